package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAcceptLanguage = "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7"
	maxPageBytes          = 8 << 20
)

// HTTPFetcher baixa páginas com uma requisição GET simples
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher cria um fetcher; client nil usa timeout próprio de 30s
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

// Fetch executa o GET e devolve o corpo da resposta
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cleanURL(rawURL), nil)
	if err != nil {
		return nil, newError(KindFetch, rawURL, fmt.Errorf("montar requisição: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", defaultAcceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		if KindOf(err) == KindTimeout || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(KindTimeout, rawURL, err)
		}
		return nil, newError(KindFetch, rawURL, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, newError(KindNotFound, rawURL, fmt.Errorf("status code: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, newError(KindFetch, rawURL, fmt.Errorf("status code: %d", resp.StatusCode))
	}

	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxPageBytes), resp.Body}, nil
}

// cleanURL remove o fragmento (#...) da URL
func cleanURL(rawURL string) string {
	parts := strings.SplitN(rawURL, "#", 2)
	return parts[0]
}
