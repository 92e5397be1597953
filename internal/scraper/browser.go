package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig configura o navegador headless usado para páginas renderizadas via JS
type BrowserConfig struct {
	BinPath   string
	Headless  bool
	UserAgent string
}

// BrowserFetcher renderiza páginas em um Chromium controlado pelo rod
type BrowserFetcher struct {
	browser   *rod.Browser
	userAgent string
	logger    *slog.Logger
}

var _ Fetcher = (*BrowserFetcher)(nil)

// NewBrowserFetcher inicia o navegador e conecta ao DevTools
func NewBrowserFetcher(cfg BrowserConfig, logger *slog.Logger) (*BrowserFetcher, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage", "true").
		Set("disable-gpu", "true")
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("iniciar navegador: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("conectar navegador: %w", err)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger.Info("navegador iniciado", slog.String("bin", cfg.BinPath), slog.Bool("headless", cfg.Headless))
	return &BrowserFetcher{browser: browser, userAgent: userAgent, logger: logger}, nil
}

// Fetch abre a URL em uma aba nova, espera o carregamento e devolve o HTML renderizado
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, newError(KindFetch, rawURL, fmt.Errorf("abrir aba: %w", err))
	}
	defer func() {
		if err := page.Close(); err != nil {
			b.logger.Warn("erro ao fechar aba", slog.String("error", err.Error()))
		}
	}()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.userAgent}); err != nil {
		b.logger.Warn("erro ao definir user agent", slog.String("error", err.Error()))
	}

	p := page.Context(ctx)
	if err := p.Navigate(cleanURL(rawURL)); err != nil {
		return nil, b.classify(ctx, rawURL, fmt.Errorf("navegar: %w", err))
	}
	if err := p.WaitLoad(); err != nil {
		return nil, b.classify(ctx, rawURL, fmt.Errorf("aguardar carregamento: %w", err))
	}

	html, err := p.HTML()
	if err != nil {
		return nil, b.classify(ctx, rawURL, fmt.Errorf("ler html: %w", err))
	}
	return io.NopCloser(strings.NewReader(html)), nil
}

// Close encerra o navegador
func (b *BrowserFetcher) Close() error {
	return b.browser.Close()
}

func (b *BrowserFetcher) classify(ctx context.Context, rawURL string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, rawURL, err)
	}
	return newError(KindFetch, rawURL, err)
}
