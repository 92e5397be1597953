package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"pricewatch/config"
	"pricewatch/internal/database"
	"pricewatch/internal/logging"
	"pricewatch/internal/metrics"
	"pricewatch/internal/monitor"
	"pricewatch/internal/notify"
	"pricewatch/internal/scraper"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pricewatch",
		Short:         "Monitora preços de produtos e avisa quando atingem o alvo",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newRunCmd(), newScanCmd(), newCheckCmd())
	return cmd
}

// loadConfig carrega a configuração e cria o logger
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("erro ao carregar configurações: %w", err)
	}
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// app reúne as dependências do ciclo de varredura
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *database.DB
	extractor scraper.Extractor
	metrics   *metrics.Metrics
	monitor   *monitor.Monitor
	closers   []func() error
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	// Inicializar banco de dados
	db, err := database.New(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("erro ao inicializar banco de dados: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	extractor, closeExtractor, err := buildExtractor(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.extractor = extractor
	if closeExtractor != nil {
		a.closers = append(a.closers, closeExtractor)
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.monitor = monitor.New(db, extractor, notifier, monitor.Config{
		ItemTimeout:     cfg.Monitor.ItemTimeout,
		Workers:         cfg.Monitor.Workers,
		RequestInterval: cfg.Monitor.RequestInterval,
	}, a.metrics, logger)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("erro ao encerrar recurso", slog.Any("error", err))
		}
	}
}

// buildExtractor escolhe entre HTTP simples e navegador headless
func buildExtractor(cfg *config.Config, logger *slog.Logger) (scraper.Extractor, func() error, error) {
	registry := scraper.NewRegistry()

	if cfg.Scraper.UseBrowser {
		fetcher, err := scraper.NewBrowserFetcher(scraper.BrowserConfig{
			BinPath:   cfg.Scraper.BrowserBin,
			Headless:  true,
			UserAgent: cfg.Scraper.UserAgent,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("erro ao iniciar navegador: %w", err)
		}
		return scraper.NewHTMLExtractor(fetcher, registry), fetcher.Close, nil
	}

	client := &http.Client{Timeout: cfg.Scraper.RequestTimeout}
	fetcher := scraper.NewHTTPFetcher(client, cfg.Scraper.UserAgent)
	return scraper.NewHTMLExtractor(fetcher, registry), nil, nil
}

// buildNotifier liga todos os canais configurados
func buildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	var channels notify.Multi

	if cfg.Telegram.BotToken != "" {
		// Inicializar bot do Telegram
		bot, err := notify.Init(cfg.Telegram.BotToken, "")
		if err != nil {
			return nil, fmt.Errorf("erro ao inicializar bot do Telegram: %w", err)
		}
		logger.Info("bot do Telegram conectado", slog.String("username", bot.Self.UserName))
		channels = append(channels, notify.NewTelegramNotifier(bot, cfg.Telegram.ChatID, logger))
	}

	emailCfg := notify.EmailConfig{
		SMTPHost:  cfg.Email.SMTPHost,
		SMTPPort:  cfg.Email.SMTPPort,
		SMTPUser:  cfg.Email.SMTPUser,
		SMTPPass:  cfg.Email.SMTPPass,
		FromEmail: cfg.Email.FromEmail,
	}
	if emailCfg.Enabled() {
		channels = append(channels, notify.NewEmailNotifier(emailCfg, logger))
	}

	switch len(channels) {
	case 0:
		logger.Warn("nenhum canal de notificação configurado, alertas irão apenas para o log")
		return notify.NewLogNotifier(logger), nil
	case 1:
		return channels[0], nil
	}
	return channels, nil
}
