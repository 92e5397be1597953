package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "PRICEWATCH_CONFIG"
)

// Config contém as configurações da aplicação
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Email    EmailConfig    `yaml:"email"`
	Database DatabaseConfig `yaml:"database"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

// TelegramConfig configura o canal do Telegram; token vazio desativa o canal
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	// ChatID recebe os alertas de donos sem chat próprio
	ChatID int64 `yaml:"chat_id"`
}

// EmailConfig configura o envio por SMTP
type EmailConfig struct {
	SMTPHost  string `yaml:"smtp_host"`
	SMTPPort  int    `yaml:"smtp_port"`
	SMTPUser  string `yaml:"smtp_user"`
	SMTPPass  string `yaml:"smtp_pass"`
	FromEmail string `yaml:"from_email"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// Path é o arquivo do sqlite ou a DSN do postgres
	Path string `yaml:"path"`
}

// MonitorConfig controla o agendador e o ciclo de varredura
type MonitorConfig struct {
	Interval        time.Duration `yaml:"interval"`
	ItemTimeout     time.Duration `yaml:"item_timeout"`
	Workers         int           `yaml:"workers"`
	RequestInterval time.Duration `yaml:"request_interval"`
	ScanOnStart     bool          `yaml:"scan_on_start"`
}

// ScraperConfig escolhe como as páginas são baixadas
type ScraperConfig struct {
	UseBrowser     bool          `yaml:"use_browser"`
	BrowserBin     string        `yaml:"browser_bin"`
	UserAgent      string        `yaml:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default retorna a configuração padrão
func Default() Config {
	return Config{
		Email: EmailConfig{SMTPPort: 587},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   "./products.db",
		},
		Monitor: MonitorConfig{
			Interval:        30 * time.Minute,
			ItemTimeout:     45 * time.Second,
			Workers:         1,
			RequestInterval: 2 * time.Second,
		},
		Scraper: ScraperConfig{
			RequestTimeout: 30 * time.Second,
		},
		Server:   ServerConfig{Addr: ":8080"},
		LogLevel: "info",
	}
}

// Load carrega as configurações: padrões, arquivo YAML opcional e variáveis de ambiente
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ler %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("interpretar %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	// o driver segue até database.New exatamente como validado
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	// Chat ID é opcional; valor inválido é ignorado
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if chatID, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = chatID
		}
	}

	// Intervalo de verificação
	if v := os.Getenv("CHECK_INTERVAL_MINUTES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			c.Monitor.Interval = time.Duration(parsed) * time.Minute
		}
	}
	if v := os.Getenv("ITEM_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			c.Monitor.ItemTimeout = time.Duration(parsed) * time.Second
		}
	}
	if v := os.Getenv("SCAN_WORKERS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCAN_WORKERS inválido: %w", err)
		}
		c.Monitor.Workers = parsed
	}
	if v := os.Getenv("SCAN_ON_START"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCAN_ON_START inválido: %w", err)
		}
		c.Monitor.ScanOnStart = parsed
	}

	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT inválido: %w", err)
		}
		c.Email.SMTPPort = parsed
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		c.Email.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		c.Email.SMTPPass = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		c.Email.FromEmail = v
	}

	if v := os.Getenv("USE_BROWSER"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("USE_BROWSER inválido: %w", err)
		}
		c.Scraper.UseBrowser = parsed
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate rejeita valores que impediriam o monitor de rodar
func (c *Config) Validate() error {
	var errs []error
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval deve ser positivo"))
	}
	if c.Monitor.ItemTimeout <= 0 {
		errs = append(errs, errors.New("monitor.item_timeout deve ser positivo"))
	}
	if c.Monitor.Workers < 1 {
		errs = append(errs, errors.New("monitor.workers deve ser pelo menos 1"))
	}
	if c.Monitor.RequestInterval < 0 {
		errs = append(errs, errors.New("monitor.request_interval não pode ser negativo"))
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver desconhecido: %q", c.Database.Driver))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path é obrigatório"))
	}
	return errors.Join(errs...)
}
