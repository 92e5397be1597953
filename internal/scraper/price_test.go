package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"R$ 3.499,90", "3499.9"},
		{"$1,234.56", "1234.56"},
		{"CDN$ 85.00", "85"},
		{"3499", "3499"},
		{"3.499", "3499"},
		{"1,234", "1234"},
		{"12,5", "12.5"},
		{"1.234.567", "1234567"},
		{" 19.999 ", "19999"},
		{"10.005", "10005"},
		{"0,99", "0.99"},
	}

	for _, tt := range tests {
		got, err := ParsePrice(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

func TestParsePriceRejectsInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "Indisponível", ".", "0,00", "R$ 0"} {
		_, err := ParsePrice(in)
		assert.Error(t, err, in)
	}
}
