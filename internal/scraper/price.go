package scraper

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	priceCharsExpr = regexp.MustCompile(`[^0-9.,]`)

	errEmptyPrice = errors.New("texto de preço vazio")
)

// ParsePrice converte textos como "R$ 3.499,90", "$1,234.56" ou "3499" em decimal com centavos.
// O separador decimal é o último '.' ou ',' quando seguido de 1 ou 2 dígitos;
// os demais separadores são tratados como milhar.
func ParsePrice(text string) (decimal.Decimal, error) {
	cleaned := priceCharsExpr.ReplaceAllString(strings.TrimSpace(text), "")
	if cleaned == "" {
		return decimal.Decimal{}, errEmptyPrice
	}

	lastSep := strings.LastIndexAny(cleaned, ".,")
	intPart, fracPart := cleaned, ""
	if lastSep >= 0 {
		sep := cleaned[lastSep]
		tail := cleaned[lastSep+1:]
		hasOther := strings.ContainsAny(cleaned[:lastSep], otherSep(sep))
		if hasOther || (len(tail) > 0 && len(tail) <= 2) {
			intPart, fracPart = cleaned[:lastSep], tail
		}
	}

	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}

	normalized := intPart
	if fracPart != "" {
		normalized += "." + fracPart
	}
	price, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsear preço %q: %w", text, err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("preço não positivo %q", text)
	}
	return price.Round(2), nil
}

func otherSep(sep byte) string {
	if sep == '.' {
		return ","
	}
	return "."
}
