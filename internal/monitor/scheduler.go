package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"pricewatch/internal/metrics"
)

var (
	// ErrSchedulerRunning indica que Start já foi chamado
	ErrSchedulerRunning = errors.New("agendador já está em execução")
	// ErrSchedulerStopped indica que o agendador foi parado e não pode ser reiniciado
	ErrSchedulerStopped = errors.New("agendador já foi parado")
)

// Cycler executa um ciclo de varredura
type Cycler interface {
	RunCycle(ctx context.Context) (Summary, error)
}

// Status é o estado do agendador exposto ao operador
type Status struct {
	Running     bool      `json:"running"`
	InFlight    bool      `json:"in_flight"`
	Interval    string    `json:"interval"`
	NextRun     time.Time `json:"next_run,omitempty"`
	LastSummary *Summary  `json:"last_summary,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Scheduler dispara ciclos em intervalo fixo, nunca mais de um por vez
type Scheduler struct {
	runner      Cycler
	scanOnStart bool
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// inFlight marca o ciclo em andamento; ticks que o encontram ligado são descartados
	inFlight atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	interval time.Duration
	started  bool
	stopped  bool
	last     *Summary
	lastErr  error
}

// NewScheduler cria o agendador. Com scanOnStart, Start dispara um ciclo imediatamente.
func NewScheduler(runner Cycler, scanOnStart bool, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:      runner,
		scanOnStart: scanOnStart,
		metrics:     m,
		logger:      logger.With(slog.String("component", "scheduler")),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start inicia o monitoramento em background
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("intervalo inválido: %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return ErrSchedulerRunning
	}

	s.cron = cron.New()
	s.entry = s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.tick))
	s.interval = interval
	s.cron.Start()
	s.started = true

	if s.scanOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}

	s.logger.Info("monitor iniciado", slog.Duration("interval", interval), slog.Bool("scan_on_start", s.scanOnStart))
	return nil
}

// Stop impede novos ciclos, sinaliza o ciclo em andamento e espera por ele até ctx expirar
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancel()

	cronDone := context.Background()
	if s.cron != nil {
		cronDone = s.cron.Stop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if s.cron != nil {
			<-cronDone.Done()
		}
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("monitor parado")
		return nil
	case <-ctx.Done():
		s.logger.Warn("ciclo não terminou antes do prazo de parada")
		return ctx.Err()
	}
}

// Status devolve o estado atual
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.started && !s.stopped,
		InFlight: s.inFlight.Load(),
	}
	if s.interval > 0 {
		st.Interval = s.interval.String()
	}
	if st.Running {
		st.NextRun = s.cron.Entry(s.entry).Next
	}
	if s.last != nil {
		last := *s.last
		st.LastSummary = &last
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// LastSummary devolve o resumo do último ciclo concluído
func (s *Scheduler) LastSummary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}

func (s *Scheduler) tick() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("ciclo anterior ainda em andamento, disparo ignorado")
		s.metrics.CycleSkipped()
		return
	}
	defer s.inFlight.Store(false)

	if s.ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic no ciclo", slog.Any("panic", r))
			s.record(nil, fmt.Errorf("panic: %v", r))
		}
	}()

	summary, err := s.runner.RunCycle(s.ctx)
	if err != nil {
		s.logger.Error("ciclo falhou", slog.Any("error", err))
		s.record(nil, err)
		return
	}
	s.record(&summary, nil)
}

func (s *Scheduler) record(summary *Summary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary != nil {
		s.last = summary
	}
	s.lastErr = err
}
