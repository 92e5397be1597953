package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"pricewatch/internal/database"
	"pricewatch/internal/detector"
	"pricewatch/internal/metrics"
	"pricewatch/internal/models"
	"pricewatch/internal/notify"
	"pricewatch/internal/scraper"
)

// Repository é o acesso aos itens monitorados usado pelo ciclo
type Repository interface {
	ListActive(ctx context.Context) ([]models.Item, error)
	UpdateItem(ctx context.Context, id int64, upd models.ItemUpdate) error
}

// Config controla o ritmo de um ciclo
type Config struct {
	// ItemTimeout limita a extração de cada item, independente do timeout do extrator
	ItemTimeout time.Duration
	// Workers é o número de itens processados em paralelo (1 = sequencial)
	Workers int
	// RequestInterval espaça o início das extrações; zero desativa
	RequestInterval time.Duration
}

// DefaultConfig retorna os valores usados quando nada é configurado
func DefaultConfig() Config {
	return Config{
		ItemTimeout:     45 * time.Second,
		Workers:         1,
		RequestInterval: 2 * time.Second,
	}
}

// OutcomeKind é o resultado do processamento de um item
type OutcomeKind int

const (
	Skipped OutcomeKind = iota
	Unchanged
	Updated
	ExtractionFailed
	UpdateFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case ExtractionFailed:
		return "extraction_failed"
	case UpdateFailed:
		return "update_failed"
	default:
		return "skipped"
	}
}

// Outcome descreve o que aconteceu com um item em um ciclo
type Outcome struct {
	ItemID      int64
	Kind        OutcomeKind
	NewPrice    decimal.Decimal
	FailureKind scraper.Kind
	Err         error
	Notified    bool // notificação tentada
	Delivered   bool // notificação entregue
}

// Summary resume um ciclo de varredura
type Summary struct {
	CycleID             string        `json:"cycle_id"`
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration_ns"`
	Total               int           `json:"total"`
	Processed           int           `json:"processed"`
	Unchanged           int           `json:"unchanged"`
	Updated             int           `json:"updated"`
	Failed              int           `json:"failed"`
	Skipped             int           `json:"skipped"`
	NotificationsSent   int           `json:"notifications_sent"`
	NotificationsFailed int           `json:"notifications_failed"`
	Outcomes            []Outcome     `json:"-"`
}

// Monitor executa ciclos de varredura sobre os itens ativos
type Monitor struct {
	repo      Repository
	extractor scraper.Extractor
	notifier  notify.Notifier
	cfg       Config
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// New cria uma nova instância do monitor. metrics pode ser nil.
func New(repo Repository, extractor scraper.Extractor, notifier notify.Notifier, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Monitor {
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = DefaultConfig().ItemTimeout
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	var limiter *rate.Limiter
	if cfg.RequestInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RequestInterval), 1)
	}

	return &Monitor{
		repo:      repo,
		extractor: extractor,
		notifier:  notifier,
		cfg:       cfg,
		limiter:   limiter,
		metrics:   m,
		logger:    logger.With(slog.String("component", "monitor")),
		now:       time.Now,
	}
}

// RunCycle processa uma vez todos os itens ativos.
// Só retorna erro quando não é possível obter a lista de itens; falhas por item
// ficam no Summary. Cancelar ctx impede que novos itens comecem, mas os que já
// começaram terminam com seus próprios timeouts.
func (m *Monitor) RunCycle(ctx context.Context) (Summary, error) {
	summary := Summary{
		CycleID:   uuid.NewString(),
		StartedAt: m.now(),
	}
	logger := m.logger.With(slog.String("cycle_id", summary.CycleID))
	m.metrics.CycleStarted()

	items, err := m.repo.ListActive(ctx)
	if err != nil {
		summary.Duration = m.now().Sub(summary.StartedAt)
		m.metrics.CycleFinished(summary.Duration, err)
		logger.Error("erro ao buscar produtos", slog.Any("error", err))
		return summary, fmt.Errorf("buscar itens ativos: %w", err)
	}
	logger.Info("ciclo iniciado", slog.Int("items", len(items)), slog.Int("workers", m.cfg.Workers))

	outcomes := make([]Outcome, len(items))
	for i, item := range items {
		outcomes[i] = Outcome{ItemID: item.ID, Kind: Skipped}
	}

	// Itens já iniciados não são interrompidos pelo cancelamento do ciclo
	itemCtx := context.WithoutCancel(ctx)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(m.cfg.Workers, len(items)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				outcomes[i] = m.processItem(itemCtx, logger, items[i])
			}
		}()
	}

dispatch:
	for i := range items {
		if err := m.waitTurn(ctx); err != nil {
			logger.Info("ciclo cancelado", slog.Int("remaining", len(items)-i))
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			logger.Info("ciclo cancelado", slog.Int("remaining", len(items)-i))
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	summary.Total = len(items)
	summary.Outcomes = outcomes
	for _, out := range outcomes {
		switch out.Kind {
		case Skipped:
			summary.Skipped++
		case Unchanged:
			summary.Unchanged++
		case Updated:
			summary.Updated++
		case ExtractionFailed, UpdateFailed:
			summary.Failed++
		}
		if out.Kind != Skipped {
			summary.Processed++
		}
		if out.Notified {
			if out.Delivered {
				summary.NotificationsSent++
			} else {
				summary.NotificationsFailed++
			}
		}
	}
	summary.Duration = m.now().Sub(summary.StartedAt)
	m.metrics.CycleFinished(summary.Duration, nil)

	logger.Info("ciclo concluído",
		slog.Int("processed", summary.Processed),
		slog.Int("updated", summary.Updated),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("notified", summary.NotificationsSent),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

// waitTurn é o ponto de cancelamento entre itens
func (m *Monitor) waitTurn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.limiter == nil {
		return nil
	}
	return m.limiter.Wait(ctx)
}

func (m *Monitor) processItem(ctx context.Context, logger *slog.Logger, item models.Item) (out Outcome) {
	logger = logger.With(slog.Int64("item_id", item.ID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic ao processar item", slog.Any("panic", r), slog.String("url", item.URL))
			err := fmt.Errorf("panic: %v", r)
			if out.Kind == Updated || out.Kind == Unchanged {
				// o item já foi gravado; o resultado continua valendo
				out.Err = err
			} else {
				out = Outcome{ItemID: item.ID, Kind: ExtractionFailed, Err: err}
			}
		}
		kind := ""
		if out.Kind == ExtractionFailed {
			kind = out.FailureKind.String()
		}
		m.metrics.ItemProcessed(out.Kind.String(), kind)
	}()

	out = Outcome{ItemID: item.ID}

	listing, err := m.extract(ctx, item.URL)
	if err != nil {
		out.Kind = ExtractionFailed
		out.FailureKind = scraper.KindOf(err)
		out.Err = err
		logger.Warn("erro ao buscar preço",
			slog.String("url", item.URL),
			slog.String("kind", out.FailureKind.String()),
			slog.Bool("transient", out.FailureKind.Transient()),
			slog.Any("error", err))
		return out
	}

	result := detector.Detect(item.CurrentPrice, listing.Price, item.TargetPrice)
	newPrice := listing.Price.Round(detector.Precision)
	out.NewPrice = newPrice

	upd := models.ItemUpdate{LastScrapedAt: m.now()}
	if result.Changed {
		upd.CurrentPrice = &newPrice
	}
	if listing.Name != "" && listing.Name != item.Name {
		upd.Name = &listing.Name
	}
	if listing.ImageURL != "" && listing.ImageURL != item.ImageURL {
		upd.ImageURL = &listing.ImageURL
	}

	if err := m.repo.UpdateItem(ctx, item.ID, upd); err != nil {
		out.Kind = UpdateFailed
		out.Err = err
		level := slog.LevelError
		if errors.Is(err, database.ErrItemNotFound) {
			// removido pelo dono durante o ciclo
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "erro ao atualizar preço no banco", slog.Any("error", err))
		return out
	}

	if result.Changed {
		out.Kind = Updated
		logger.Info("preço alterado",
			slog.String("old", item.CurrentPrice.StringFixed(2)),
			slog.String("new", newPrice.StringFixed(2)),
			slog.String("target", item.TargetPrice.StringFixed(2)))
	} else {
		out.Kind = Unchanged
		logger.Debug("preço inalterado", slog.String("price", newPrice.StringFixed(2)))
	}

	if result.ShouldNotify() {
		out.Notified = true
		out.Delivered = m.sendAlert(ctx, logger, item, listing, newPrice)
	}
	return out
}

func (m *Monitor) extract(ctx context.Context, rawURL string) (models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ItemTimeout)
	defer cancel()

	listing, err := m.extractor.Extract(ctx, rawURL)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && scraper.KindOf(err) != scraper.KindTimeout {
			err = &scraper.Error{Kind: scraper.KindTimeout, URL: rawURL, Err: err}
		}
		return models.Listing{}, err
	}
	if !listing.Price.IsPositive() {
		return models.Listing{}, &scraper.Error{
			Kind: scraper.KindInvalidPrice,
			URL:  rawURL,
			Err:  fmt.Errorf("preço não positivo: %s", listing.Price),
		}
	}
	return listing, nil
}

func (m *Monitor) sendAlert(ctx context.Context, logger *slog.Logger, item models.Item, listing models.Listing, newPrice decimal.Decimal) bool {
	name := listing.Name
	if name == "" {
		name = item.Name
	}
	recipient := item.Owner
	if recipient.UserID == 0 {
		recipient.UserID = item.UserID
	}
	alert := notify.Alert{
		Recipient:   recipient,
		ItemID:      item.ID,
		ItemName:    name,
		URL:         item.URL,
		NewPrice:    newPrice,
		OldPrice:    item.CurrentPrice,
		TargetPrice: item.TargetPrice,
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ItemTimeout)
	defer cancel()

	if err := m.deliver(ctx, alert); err != nil {
		m.metrics.NotificationFailed()
		logger.Error("erro ao enviar notificação", slog.Any("error", err))
		return false
	}
	m.metrics.NotificationSent()
	logger.Info("notificação enviada", slog.String("price", newPrice.StringFixed(2)))
	return true
}

func (m *Monitor) deliver(ctx context.Context, alert notify.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic no notificador: %v", r)
		}
	}()
	return m.notifier.Notify(ctx, alert)
}
