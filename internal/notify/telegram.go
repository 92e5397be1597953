package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Init inicializa o bot do Telegram. endpoint vazio usa a API oficial.
func Init(token string, endpoint string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN não configurado. Verifique o arquivo .env")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		if err.Error() == "Unauthorized" {
			return nil, fmt.Errorf("token do Telegram inválido ou expirado. Verifique o TELEGRAM_BOT_TOKEN")
		}
		return nil, fmt.Errorf("erro ao conectar com Telegram: %w", err)
	}

	bot.Debug = false
	return bot, nil
}

// TelegramNotifier envia alertas por mensagem do Telegram
type TelegramNotifier struct {
	bot           *tgbotapi.BotAPI
	defaultChatID int64
	logger        *slog.Logger
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier cria o notificador. defaultChatID é usado quando o dono não tem chat próprio.
func NewTelegramNotifier(bot *tgbotapi.BotAPI, defaultChatID int64, logger *slog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, defaultChatID: defaultChatID, logger: logger}
}

// Notify envia uma mensagem ao chat do dono do item
func (t *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
	chatID := alert.Recipient.TelegramChatID
	if chatID == 0 {
		chatID = t.defaultChatID
	}
	if chatID == 0 {
		return ErrNoRecipient
	}

	msg := tgbotapi.NewMessage(chatID, FormatMessage(alert))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: enviar mensagem: %w", err)
	}

	t.logger.Info("notificação enviada",
		slog.String("channel", "telegram"),
		slog.Int64("item_id", alert.ItemID),
		slog.Int64("chat_id", chatID))
	return nil
}
