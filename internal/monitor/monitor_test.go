package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/database"
	"pricewatch/internal/metrics"
	"pricewatch/internal/models"
	"pricewatch/internal/notify"
	"pricewatch/internal/scraper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeRepo struct {
	mu         sync.Mutex
	items      map[int64]models.Item
	updates    []models.ItemUpdate
	listErr    error
	failUpdate map[int64]error
}

func newFakeRepo(items ...models.Item) *fakeRepo {
	r := &fakeRepo{items: map[int64]models.Item{}, failUpdate: map[int64]error{}}
	for _, it := range items {
		if it.Status == "" {
			it.Status = models.StatusActive
		}
		r.items[it.ID] = it
	}
	return r
}

func (r *fakeRepo) ListActive(ctx context.Context) ([]models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []models.Item
	for _, it := range r.items {
		if it.Status == models.StatusActive {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) UpdateItem(ctx context.Context, id int64, upd models.ItemUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failUpdate[id]; err != nil {
		return err
	}
	it, ok := r.items[id]
	if !ok {
		return database.ErrItemNotFound
	}
	r.updates = append(r.updates, upd)
	it.LastScrapedAt = upd.LastScrapedAt
	if upd.CurrentPrice != nil {
		it.CurrentPrice = *upd.CurrentPrice
	}
	if upd.Name != nil {
		it.Name = *upd.Name
	}
	if upd.ImageURL != nil {
		it.ImageURL = *upd.ImageURL
	}
	r.items[id] = it
	return nil
}

func (r *fakeRepo) get(id int64) models.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

func (r *fakeRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

type extractFunc func(ctx context.Context, rawURL string) (models.Listing, error)

func (f extractFunc) Extract(ctx context.Context, rawURL string) (models.Listing, error) {
	return f(ctx, rawURL)
}

// staticExtractor devolve sempre o mesmo resultado por URL
func staticExtractor(results map[string]any) extractFunc {
	return func(ctx context.Context, rawURL string) (models.Listing, error) {
		switch v := results[rawURL].(type) {
		case string:
			return models.Listing{Name: "Produto", Price: price(v)}, nil
		case models.Listing:
			return v, nil
		case error:
			return models.Listing{}, v
		}
		return models.Listing{}, &scraper.Error{Kind: scraper.KindUnsupported, URL: rawURL}
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
	// onNotify roda antes de registrar o alerta
	onNotify func(notify.Alert)
}

func (n *recordingNotifier) Notify(ctx context.Context, alert notify.Alert) error {
	if n.onNotify != nil {
		n.onNotify(alert)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func item(id int64, url, current, target string) models.Item {
	return models.Item{
		ID:           id,
		UserID:       10,
		URL:          url,
		Name:         "Produto",
		InitialPrice: price(current),
		CurrentPrice: price(current),
		TargetPrice:  price(target),
		Owner:        models.Recipient{UserID: 10, Email: "ana@example.com"},
	}
}

func newTestMonitor(repo Repository, ex scraper.Extractor, n notify.Notifier, cfg Config) *Monitor {
	if cfg.ItemTimeout == 0 {
		cfg.ItemTimeout = time.Second
	}
	return New(repo, ex, n, cfg, metrics.New(), testLogger())
}

func TestRunCycleNotifiesOnceWhenPriceCrossesTarget(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(item(1, "https://a", "100.00", "90.00"))
	notifier := &recordingNotifier{}
	notifier.onNotify = func(alert notify.Alert) {
		// a escrita precisa estar visível antes do alerta
		assert.True(t, repo.get(1).CurrentPrice.Equal(price("85")))
	}
	m := newTestMonitor(repo, staticExtractor(map[string]any{"https://a": "85.00"}), notifier, Config{})

	clock := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.NotificationsSent)
	assert.NotEmpty(t, summary.CycleID)
	require.Equal(t, 1, notifier.count())

	alert := notifier.alerts[0]
	assert.Equal(t, int64(1), alert.ItemID)
	assert.Equal(t, "ana@example.com", alert.Recipient.Email)
	assert.True(t, alert.NewPrice.Equal(price("85")))
	assert.True(t, alert.OldPrice.Equal(price("100")))
	assert.Equal(t, "https://a", alert.URL)

	first := repo.get(1)
	assert.True(t, first.LastScrapedAt.Equal(clock))
	assert.True(t, first.InitialPrice.Equal(price("100")))

	clock = clock.Add(30 * time.Minute)
	summary, err = m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, 0, summary.NotificationsSent)
	assert.Equal(t, 1, notifier.count(), "preço repetido não gera novo alerta")

	second := repo.get(1)
	assert.True(t, second.CurrentPrice.Equal(price("85")))
	assert.True(t, second.LastScrapedAt.Equal(clock))
	assert.Nil(t, repo.updates[1].CurrentPrice, "preço igual só grava o horário")
}

func TestRunCycleChangedAboveTargetDoesNotNotify(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(item(1, "https://a", "100.00", "90.00"))
	notifier := &recordingNotifier{}
	m := newTestMonitor(repo, staticExtractor(map[string]any{"https://a": "95.50"}), notifier, Config{})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Zero(t, notifier.count())
	assert.True(t, repo.get(1).CurrentPrice.Equal(price("95.5")))
}

func TestRunCycleIsolatesItemFailures(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		item(1, "https://broken", "100.00", "90.00"),
		item(2, "https://ok", "100.00", "90.00"),
		item(3, "https://slow", "100.00", "90.00"),
		item(4, "https://bad-price", "100.00", "90.00"),
	)
	results := map[string]any{
		"https://broken":    &scraper.Error{Kind: scraper.KindNotFound, URL: "https://broken"},
		"https://ok":        "80.00",
		"https://bad-price": &scraper.Error{Kind: scraper.KindInvalidPrice, URL: "https://bad-price"},
	}
	static := staticExtractor(results)
	ex := extractFunc(func(ctx context.Context, rawURL string) (models.Listing, error) {
		if rawURL == "https://slow" {
			<-ctx.Done()
			return models.Listing{}, ctx.Err()
		}
		return static(ctx, rawURL)
	})
	notifier := &recordingNotifier{}
	m := newTestMonitor(repo, ex, notifier, Config{ItemTimeout: 20 * time.Millisecond})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, notifier.count())

	kinds := map[int64]scraper.Kind{}
	for _, out := range summary.Outcomes {
		kinds[out.ItemID] = out.FailureKind
	}
	assert.Equal(t, scraper.KindNotFound, kinds[1])
	assert.Equal(t, scraper.KindTimeout, kinds[3])
	assert.Equal(t, scraper.KindInvalidPrice, kinds[4])

	for _, id := range []int64{1, 3, 4} {
		it := repo.get(id)
		assert.True(t, it.CurrentPrice.Equal(price("100")), "item %d intocado", id)
		assert.True(t, it.LastScrapedAt.IsZero(), "item %d intocado", id)
	}
	assert.Equal(t, 1, repo.updateCount())
}

func TestRunCycleTimeoutWithoutTypedError(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(item(1, "https://slow", "100.00", "90.00"))
	ex := extractFunc(func(ctx context.Context, rawURL string) (models.Listing, error) {
		<-ctx.Done()
		return models.Listing{}, errors.New("conexão encerrada")
	})
	m := newTestMonitor(repo, ex, &recordingNotifier{}, Config{ItemTimeout: 10 * time.Millisecond})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, ExtractionFailed, summary.Outcomes[0].Kind)
	assert.Equal(t, scraper.KindTimeout, summary.Outcomes[0].FailureKind)
}

func TestRunCycleRejectsNonPositivePrice(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(item(1, "https://zero", "100.00", "90.00"))
	ex := staticExtractor(map[string]any{"https://zero": models.Listing{Price: decimal.Zero}})
	m := newTestMonitor(repo, ex, &recordingNotifier{}, Config{})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scraper.KindInvalidPrice, summary.Outcomes[0].FailureKind)
	assert.Zero(t, repo.updateCount())
}

func TestRunCycleUpdateFailureSkipsNotification(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		item(1, "https://a", "100.00", "90.00"),
		item(2, "https://b", "100.00", "90.00"),
	)
	repo.failUpdate[1] = errors.New("database is locked")
	notifier := &recordingNotifier{}
	ex := staticExtractor(map[string]any{"https://a": "85.00", "https://b": "85.00"})
	m := newTestMonitor(repo, ex, notifier, Config{})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, UpdateFailed, summary.Outcomes[0].Kind)
	assert.Equal(t, Updated, summary.Outcomes[1].Kind)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, int64(2), notifier.alerts[0].ItemID)
}

func TestRunCycleItemDeletedMidCycle(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(item(1, "https://a", "100.00", "90.00"))
	ex := extractFunc(func(ctx context.Context, rawURL string) (models.Listing, error) {
		repo.mu.Lock()
		delete(repo.items, 1)
		repo.mu.Unlock()
		return models.Listing{Price: price("80")}, nil
	})
	notifier := &recordingNotifier{}
	m := newTestMonitor(repo, ex, notifier, Config{})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UpdateFailed, summary.Outcomes[0].Kind)
	assert.ErrorIs(t, summary.Outcomes[0].Err, database.ErrItemNotFound)
	assert.Zero(t, notifier.count())
}

func TestRunCycleNotificationFailureKeepsState(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(item(1, "https://a", "100.00", "90.00"))
	notifier := &recordingNotifier{err: errors.New("telegram fora do ar")}
	m := newTestMonitor(repo, staticExtractor(map[string]any{"https://a": "85.00"}), notifier, Config{})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.NotificationsFailed)
	assert.True(t, repo.get(1).CurrentPrice.Equal(price("85")))

	// sem nova tentativa no ciclo seguinte
	notifier.err = nil
	_, err = m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.count())
}

func TestRunCycleRefreshesNameAndImage(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(item(1, "https://a", "100.00", "90.00"))
	ex := staticExtractor(map[string]any{"https://a": models.Listing{
		Name:     "Kindle Paperwhite",
		Price:    price("100"),
		ImageURL: "https://img/1.jpg",
	}})
	m := newTestMonitor(repo, ex, &recordingNotifier{}, Config{})

	_, err := m.RunCycle(context.Background())
	require.NoError(t, err)

	it := repo.get(1)
	assert.Equal(t, "Kindle Paperwhite", it.Name)
	assert.Equal(t, "https://img/1.jpg", it.ImageURL)
	assert.Nil(t, repo.updates[0].CurrentPrice)
}

func TestRunCycleSnapshotError(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.listErr = errors.New("no such table: items")
	m := newTestMonitor(repo, staticExtractor(nil), &recordingNotifier{}, Config{})

	_, err := m.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.listErr)
}

func TestRunCycleRecoversPanic(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		item(1, "https://panic", "100.00", "90.00"),
		item(2, "https://ok", "100.00", "90.00"),
	)
	static := staticExtractor(map[string]any{"https://ok": "99.00"})
	ex := extractFunc(func(ctx context.Context, rawURL string) (models.Listing, error) {
		if rawURL == "https://panic" {
			panic("seletor nil")
		}
		return static(ctx, rawURL)
	})
	m := newTestMonitor(repo, ex, &recordingNotifier{}, Config{})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExtractionFailed, summary.Outcomes[0].Kind)
	assert.Equal(t, Updated, summary.Outcomes[1].Kind)
}

func TestRunCycleNotifierPanicKeepsUpdatedOutcome(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		item(1, "https://a", "100.00", "90.00"),
		item(2, "https://b", "100.00", "90.00"),
	)
	notifier := &recordingNotifier{}
	notifier.onNotify = func(alert notify.Alert) {
		if alert.ItemID == 1 {
			panic("canal sem cliente")
		}
	}
	ex := staticExtractor(map[string]any{"https://a": "85.00", "https://b": "85.00"})
	m := newTestMonitor(repo, ex, notifier, Config{})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Updated)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 1, summary.NotificationsFailed)
	assert.Equal(t, 1, summary.NotificationsSent)

	out := summary.Outcomes[0]
	assert.Equal(t, Updated, out.Kind)
	assert.True(t, out.Notified)
	assert.False(t, out.Delivered)
	assert.True(t, repo.get(1).CurrentPrice.Equal(price("85")))
}

func TestRunCycleCancellationLetsCurrentItemFinish(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		item(1, "https://a", "100.00", "90.00"),
		item(2, "https://b", "100.00", "90.00"),
		item(3, "https://c", "100.00", "90.00"),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var itemCtxErr error
	ex := extractFunc(func(extractCtx context.Context, rawURL string) (models.Listing, error) {
		cancel()
		itemCtxErr = extractCtx.Err()
		return models.Listing{Price: price("85")}, nil
	})
	notifier := &recordingNotifier{}
	m := newTestMonitor(repo, ex, notifier, Config{})

	summary, err := m.RunCycle(ctx)
	require.NoError(t, err)
	assert.NoError(t, itemCtxErr, "item em andamento não vê o cancelamento")
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, Updated, summary.Outcomes[0].Kind)
	assert.Equal(t, 1, notifier.count())
	assert.True(t, repo.get(2).LastScrapedAt.IsZero())
}

func TestRunCycleWorkerPoolIsBounded(t *testing.T) {
	t.Parallel()

	var items []models.Item
	results := map[string]any{}
	for i := int64(1); i <= 6; i++ {
		url := "https://item/" + string(rune('a'+i))
		items = append(items, item(i, url, "100.00", "90.00"))
		results[url] = "100.00"
	}
	repo := newFakeRepo(items...)

	var running, peak atomic.Int32
	static := staticExtractor(results)
	ex := extractFunc(func(ctx context.Context, rawURL string) (models.Listing, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return static(ctx, rawURL)
	})
	m := newTestMonitor(repo, ex, &recordingNotifier{}, Config{Workers: 2})

	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Unchanged)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for i, out := range summary.Outcomes {
		assert.Equal(t, int64(i+1), out.ItemID, "resultados seguem a ordem do retrato")
	}
}

func TestRunCycleRequestInterval(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		item(1, "https://a", "100.00", "90.00"),
		item(2, "https://b", "100.00", "90.00"),
		item(3, "https://c", "100.00", "90.00"),
	)
	ex := staticExtractor(map[string]any{"https://a": "100", "https://b": "100", "https://c": "100"})
	m := newTestMonitor(repo, ex, &recordingNotifier{}, Config{RequestInterval: 30 * time.Millisecond})

	start := time.Now()
	summary, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	m := New(newFakeRepo(), staticExtractor(nil), &recordingNotifier{}, Config{}, nil, testLogger())
	assert.Equal(t, DefaultConfig().ItemTimeout, m.cfg.ItemTimeout)
	assert.Equal(t, 1, m.cfg.Workers)
	assert.Nil(t, m.limiter)
}
