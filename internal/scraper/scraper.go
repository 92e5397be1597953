package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"pricewatch/internal/models"
)

// Extractor converte a URL de um produto em um retrato estruturado da página.
// O tempo limite da chamada é carregado pelo ctx.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (models.Listing, error)
}

// Fetcher obtém o HTML de uma página (requisição HTTP simples ou navegador)
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Kind classifica falhas de extração
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindNotFound
	KindInvalidPrice
	KindUnsupported
	KindFetch
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindInvalidPrice:
		return "invalid_price"
	case KindUnsupported:
		return "unsupported"
	case KindFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// Transient informa se a falha tende a sumir sozinha no próximo ciclo
func (k Kind) Transient() bool {
	return k == KindTimeout || k == KindFetch
}

// Error é a falha tipada devolvida pelos extratores
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, rawURL string, err error) *Error {
	return &Error{Kind: kind, URL: rawURL, Err: err}
}

// KindOf classifica qualquer erro vindo de uma extração.
// Prazos estourados (do ctx ou da rede) contam como timeout mesmo sem *Error.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindUnknown
}

// Registry mantém os perfis de site disponíveis
type Registry struct {
	sites    []Site
	fallback *Site
}

// NewRegistry cria o registro com os sites conhecidos e o perfil genérico
func NewRegistry() *Registry {
	generic := GenericSite()
	return &Registry{
		sites: []Site{
			MercadoLivreSite(),
			AmazonSite(),
		},
		fallback: &generic,
	}
}

// Register adiciona um perfil; perfis registrados depois têm prioridade
func (r *Registry) Register(site Site) {
	r.sites = append([]Site{site}, r.sites...)
}

// FindSite encontra o perfil apropriado para uma URL
func (r *Registry) FindSite(rawURL string) (Site, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return Site{}, false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, site := range r.sites {
		if site.CanHandle(host) {
			return site, true
		}
	}
	if r.fallback != nil {
		return *r.fallback, true
	}
	return Site{}, false
}

// HTMLExtractor junta um Fetcher e os perfis de site para produzir Listings
type HTMLExtractor struct {
	fetcher  Fetcher
	registry *Registry
}

var _ Extractor = (*HTMLExtractor)(nil)

// NewHTMLExtractor cria um extrator; registry nil usa NewRegistry()
func NewHTMLExtractor(fetcher Fetcher, registry *Registry) *HTMLExtractor {
	if registry == nil {
		registry = NewRegistry()
	}
	return &HTMLExtractor{fetcher: fetcher, registry: registry}
}

// Extract baixa a página e extrai nome, preço e imagem
func (h *HTMLExtractor) Extract(ctx context.Context, rawURL string) (models.Listing, error) {
	site, ok := h.registry.FindSite(rawURL)
	if !ok {
		return models.Listing{}, newError(KindUnsupported, rawURL, errors.New("nenhum perfil de site para a URL"))
	}

	body, err := h.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return models.Listing{}, err
	}
	defer body.Close()

	listing, err := site.Parse(body)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			se.URL = rawURL
			return models.Listing{}, se
		}
		return models.Listing{}, newError(KindNotFound, rawURL, err)
	}
	return listing, nil
}
