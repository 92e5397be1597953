package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"
)

// EmailConfig configura o envio de alertas por SMTP
type EmailConfig struct {
	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	FromEmail string
}

// Enabled informa se há dados suficientes para enviar e-mails
func (c EmailConfig) Enabled() bool {
	return c.SMTPHost != "" && c.FromEmail != ""
}

// EmailNotifier envia alertas por e-mail
type EmailNotifier struct {
	cfg    EmailConfig
	dial   func() (gomail.SendCloser, error)
	logger *slog.Logger
}

var _ Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier cria o notificador usando um Dialer SMTP do gomail
func NewEmailNotifier(cfg EmailConfig, logger *slog.Logger) *EmailNotifier {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	return &EmailNotifier{cfg: cfg, dial: d.Dial, logger: logger}
}

// Notify envia o alerta para o e-mail do dono do item
func (n *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	to := strings.TrimSpace(alert.Recipient.Email)
	if to == "" {
		return ErrNoRecipient
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("Alerta de preço: %s agora por R$ %s", displayName(alert), alert.NewPrice.StringFixed(2)))
	m.SetBody("text/plain", FormatMessage(alert))
	m.AddAlternative("text/html", buildHTMLBody(alert))

	s, err := n.dial()
	if err != nil {
		return fmt.Errorf("email: conectar smtp: %w", err)
	}
	defer s.Close()

	if err := gomail.Send(s, m); err != nil {
		return fmt.Errorf("email: enviar: %w", err)
	}

	n.logger.Info("notificação enviada",
		slog.String("channel", "email"),
		slog.Int64("item_id", alert.ItemID),
		slog.String("to", to))
	return nil
}

func buildHTMLBody(alert Alert) string {
	link := html.EscapeString(alert.URL)
	return fmt.Sprintf(`<p>Olá,</p>
<p>O preço de <b>%s</b> caiu para <b>R$ %s</b> (alvo: R$ %s).</p>
<p>Confira aqui: <a href="%s">%s</a></p>`,
		html.EscapeString(displayName(alert)),
		alert.NewPrice.StringFixed(2),
		alert.TargetPrice.StringFixed(2),
		link, link)
}
