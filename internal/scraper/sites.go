package scraper

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"pricewatch/internal/models"
)

var (
	// Primeiro tentar o preço em "offers", que geralmente é o preço atual/promocional
	jsonLDOffersPriceExpr = regexp.MustCompile(`"offers"[^}]*"price"\s*:\s*"?([0-9.,]+)"?`)
	jsonLDPriceExpr       = regexp.MustCompile(`"price"\s*:\s*"?([0-9.,]+)"?`)
	jsonLDNameExpr        = regexp.MustCompile(`"name"\s*:\s*"([^"]+)"`)
	jsonLDImageExpr       = regexp.MustCompile(`"image"\s*:\s*\[?\s*"([^"]+)"`)
)

// Selector aponta um elemento; Attr vazio lê o texto do elemento.
// Com Fraction, o valor é montado a partir dos filhos Fraction e Cents do elemento.
type Selector struct {
	Query    string
	Attr     string
	Fraction string
	Cents    string
}

// Site descreve como extrair dados das páginas de uma loja
type Site struct {
	Name  string
	Hosts []string // sufixos de host aceitos

	NameSelectors  []Selector
	PromoSelectors []Selector // primeiro preço encontrado aqui vence
	PriceSelectors []Selector
	PickLowest     bool // com vários preços, usar o menor (geralmente o promocional)
	// IgnoreWithin descarta preços dentro destes blocos (parcelas, recomendações)
	IgnoreWithin   string
	ImageSelectors []Selector
}

// CanHandle verifica se o perfil atende o host informado
func (s Site) CanHandle(host string) bool {
	for _, h := range s.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// MercadoLivreSite é o perfil das páginas de produto do Mercado Livre
func MercadoLivreSite() Site {
	return Site{
		Name:  "mercadolivre",
		Hosts: []string{"mercadolivre.com.br", "mercadolibre.com"},
		NameSelectors: []Selector{
			{Query: "h1.ui-pdp-title"},
			{Query: "h1[data-testid='title']"},
			{Query: ".ui-pdp-title"},
		},
		PromoSelectors: []Selector{
			{Query: "meta[itemprop='price']", Attr: "content"},
			mlAmount(".ui-pdp-price__second-line .andes-money-amount"),
			mlAmount(".ui-pdp-price--size-large .andes-money-amount"),
		},
		PriceSelectors: []Selector{
			mlAmount("[data-testid='price'] .andes-money-amount"),
			mlAmount(".ui-pdp-price__first-line .andes-money-amount"),
			mlAmount(".ui-pdp-price__main-container .andes-money-amount"),
			{Query: ".ui-pdp-price .price-tag", Fraction: ".price-tag-fraction", Cents: ".price-tag-cents"},
		},
		PickLowest:   true,
		IgnoreWithin: ".ui-pdp-price__subtitles, .ui-pdp-installments, .ui-pdp-payment, .ui-recommendations-carousel",
		ImageSelectors: []Selector{
			{Query: "figure.ui-pdp-gallery__figure img", Attr: "data-zoom"},
			{Query: "figure.ui-pdp-gallery__figure img", Attr: "src"},
		},
	}
}

func mlAmount(query string) Selector {
	return Selector{Query: query, Fraction: ".andes-money-amount__fraction", Cents: ".andes-money-amount__cents"}
}

// AmazonSite é o perfil das páginas de produto da Amazon
func AmazonSite() Site {
	return Site{
		Name:  "amazon",
		Hosts: []string{"amazon.com", "amazon.ca", "amazon.com.br", "amazon.co.uk", "amazon.de"},
		NameSelectors: []Selector{
			{Query: "#productTitle"},
		},
		PriceSelectors: []Selector{
			{Query: "#corePrice_feature_div span.a-offscreen"},
			{Query: "span.a-offscreen"},
		},
		ImageSelectors: []Selector{
			{Query: "#landingImage", Attr: "data-old-hires"},
			{Query: "#landingImage", Attr: "src"},
		},
	}
}

// GenericSite usa apenas metadados padronizados (OpenGraph, microdata, JSON-LD)
func GenericSite() Site {
	return Site{
		Name: "generic",
		NameSelectors: []Selector{
			{Query: "meta[property='og:title']", Attr: "content"},
			{Query: "[itemprop='name']"},
			{Query: "h1"},
		},
		PriceSelectors: []Selector{
			{Query: "[itemprop='price']", Attr: "content"},
			{Query: "[itemprop='price']"},
		},
		ImageSelectors: []Selector{
			{Query: "meta[property='og:image']", Attr: "content"},
			{Query: "[itemprop='image']", Attr: "src"},
		},
	}
}

// Parse lê o HTML de uma página de produto.
// Preço ausente é KindNotFound; preço ilegível é KindInvalidPrice.
func (s Site) Parse(r io.Reader) (models.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return models.Listing{}, newError(KindNotFound, "", err)
	}

	priceText := s.findPrice(doc)
	if priceText == "" {
		return models.Listing{}, newError(KindNotFound, "", errors.New("preço não encontrado na página"))
	}
	price, err := ParsePrice(priceText)
	if err != nil {
		return models.Listing{}, newError(KindInvalidPrice, "", err)
	}

	return models.Listing{
		Name:     s.findName(doc),
		Price:    price,
		ImageURL: s.findImage(doc),
	}, nil
}

func (s Site) findName(doc *goquery.Document) string {
	if name := firstMatch(doc, s.NameSelectors, ""); name != "" {
		return name
	}
	if name := firstMatch(doc, []Selector{{Query: "meta[property='og:title']", Attr: "content"}}, ""); name != "" {
		return name
	}
	return jsonLDMatch(doc, jsonLDNameExpr)
}

func (s Site) findImage(doc *goquery.Document) string {
	if img := firstMatch(doc, s.ImageSelectors, ""); img != "" {
		return img
	}
	if img := firstMatch(doc, []Selector{{Query: "meta[property='og:image']", Attr: "content"}}, ""); img != "" {
		return img
	}
	return jsonLDMatch(doc, jsonLDImageExpr)
}

func (s Site) findPrice(doc *goquery.Document) string {
	if promo := firstMatch(doc, s.PromoSelectors, s.IgnoreWithin); promo != "" {
		return promo
	}

	if s.PickLowest {
		if lowest := lowestMatch(doc, s.PriceSelectors, s.IgnoreWithin); lowest != "" {
			return lowest
		}
	} else if text := firstMatch(doc, s.PriceSelectors, s.IgnoreWithin); text != "" {
		return text
	}

	// Metadados comuns a qualquer loja
	fallback := []Selector{
		{Query: "meta[property='product:price:amount']", Attr: "content"},
		{Query: "[itemprop='price']", Attr: "content"},
		{Query: "[data-testid='price']", Attr: "content"},
	}
	if text := firstMatch(doc, fallback, s.IgnoreWithin); text != "" {
		return text
	}

	if text := jsonLDMatch(doc, jsonLDOffersPriceExpr); text != "" {
		return text
	}
	return jsonLDMatch(doc, jsonLDPriceExpr)
}

func selectionValue(sel *goquery.Selection, selector Selector) string {
	if selector.Fraction != "" {
		fraction := strings.TrimSpace(sel.Find(selector.Fraction).First().Text())
		if fraction == "" {
			return ""
		}
		if selector.Cents == "" {
			return fraction
		}
		if cents := strings.TrimSpace(sel.Find(selector.Cents).First().Text()); cents != "" {
			return fraction + "," + cents
		}
		return fraction
	}
	if selector.Attr != "" {
		return strings.TrimSpace(sel.AttrOr(selector.Attr, ""))
	}
	return strings.TrimSpace(sel.Text())
}

func ignored(sel *goquery.Selection, ignoreWithin string) bool {
	return ignoreWithin != "" && sel.Closest(ignoreWithin).Length() > 0
}

func firstMatch(doc *goquery.Document, selectors []Selector, ignoreWithin string) string {
	for _, selector := range selectors {
		var value string
		doc.Find(selector.Query).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if ignored(s, ignoreWithin) {
				return true
			}
			value = selectionValue(s, selector)
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

func lowestMatch(doc *goquery.Document, selectors []Selector, ignoreWithin string) string {
	var (
		best     string
		bestVal  decimal.Decimal
		hasBest  bool
		fallback string
	)
	for _, selector := range selectors {
		doc.Find(selector.Query).Each(func(i int, s *goquery.Selection) {
			if ignored(s, ignoreWithin) {
				return
			}
			text := selectionValue(s, selector)
			if text == "" {
				return
			}
			if fallback == "" {
				fallback = text
			}
			val, err := ParsePrice(text)
			if err != nil {
				return
			}
			if !hasBest || val.LessThan(bestVal) {
				best, bestVal, hasBest = text, val, true
			}
		})
	}
	if hasBest {
		return best
	}
	// Nenhum valor legível: devolver o texto bruto para que o erro seja de formato
	return fallback
}

func jsonLDMatch(doc *goquery.Document, expr *regexp.Regexp) string {
	var value string
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(i int, s *goquery.Selection) bool {
		matches := expr.FindStringSubmatch(s.Text())
		if len(matches) > 1 {
			value = strings.TrimSpace(matches[1])
		}
		return value == ""
	})
	return value
}
