// Package notify entrega alertas de preço aos donos dos itens monitorados.
//
// Cada canal implementa Notifier de forma síncrona e sem novas tentativas:
// quem chama decide o que fazer com a falha.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"pricewatch/internal/models"
)

// ErrNoRecipient indica que o dono do item não tem contato para o canal
var ErrNoRecipient = errors.New("destinatário sem contato para o canal")

// Alert é um aviso de que o preço de um item atingiu o alvo
type Alert struct {
	Recipient   models.Recipient
	ItemID      int64
	ItemName    string
	URL         string
	NewPrice    decimal.Decimal
	OldPrice    decimal.Decimal
	TargetPrice decimal.Decimal
}

// Notifier entrega um único alerta
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// FormatMessage monta o texto do alerta em texto simples
func FormatMessage(alert Alert) string {
	msg := fmt.Sprintf(
		"🎉 PROMOÇÃO DETECTADA!\n\n"+
			"Produto: %s\n"+
			"Preço atual: R$ %s\n"+
			"Preço alvo: R$ %s\n",
		displayName(alert),
		alert.NewPrice.StringFixed(2),
		alert.TargetPrice.StringFixed(2),
	)
	if alert.OldPrice.IsPositive() && alert.NewPrice.LessThan(alert.OldPrice) {
		drop := alert.OldPrice.Sub(alert.NewPrice).Div(alert.OldPrice).Mul(decimal.NewFromInt(100))
		msg += fmt.Sprintf("Desconto: %s%%\n", drop.StringFixed(1))
	}
	msg += fmt.Sprintf("\nLink: %s", alert.URL)
	return msg
}

func displayName(alert Alert) string {
	if alert.ItemName != "" {
		return alert.ItemName
	}
	return "Produto sem nome"
}

// Multi envia o alerta para todos os canais configurados
type Multi []Notifier

var _ Notifier = Multi(nil)

// Notify tenta todos os canais. Basta um canal entregar; só falha quando nenhum entregou.
func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var (
		errs      []error
		delivered int
	)
	for _, n := range m {
		err := n.Notify(ctx, alert)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrNoRecipient):
		default:
			errs = append(errs, err)
		}
	}
	if delivered > 0 {
		return nil
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return ErrNoRecipient
}

// LogNotifier apenas registra o alerta; usado quando nenhum canal está configurado
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	l.logger.Info("alerta de preço",
		slog.Int64("item_id", alert.ItemID),
		slog.Int64("user_id", alert.Recipient.UserID),
		slog.String("name", alert.ItemName),
		slog.String("price", alert.NewPrice.StringFixed(2)),
		slog.String("url", alert.URL))
	return nil
}
