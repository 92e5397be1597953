// Package metrics expõe os contadores Prometheus do ciclo de varredura.
// Todos os métodos aceitam receptor nil, assim componentes podem rodar sem métricas.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pricewatch"

// Resultados de ciclo
const (
	CycleCompleted = "completed"
	CycleFailed    = "failed"
	CycleSkipped   = "skipped"
)

// Metrics agrupa os coletores em um registro próprio
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal      *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	cycleInFlight    prometheus.Gauge
	lastCycle        prometheus.Gauge
	itemsTotal       *prometheus.CounterVec
	notificationsSum *prometheus.CounterVec
}

// New cria e registra as métricas
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycles_total",
			Help:      "Ciclos de varredura por resultado",
		}, []string{"result"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycle_duration_seconds",
			Help:      "Duração dos ciclos de varredura",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		cycleInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycle_in_flight",
			Help:      "1 enquanto um ciclo está em andamento",
		}),
		lastCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Horário do último ciclo concluído",
		}),
		itemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "items_total",
			Help:      "Itens processados por resultado",
		}, []string{"outcome", "kind"}),
		notificationsSum: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notificações por resultado",
		}, []string{"result"}),
	}
}

// Registry devolve o registro para o handler /metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CycleStarted() {
	if m == nil {
		return
	}
	m.cycleInFlight.Set(1)
}

func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(CycleSkipped).Inc()
}

// CycleFinished registra o fim de um ciclo com sucesso ou falha
func (m *Metrics) CycleFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.cycleInFlight.Set(0)
	if err != nil {
		m.cyclesTotal.WithLabelValues(CycleFailed).Inc()
		return
	}
	m.cyclesTotal.WithLabelValues(CycleCompleted).Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.lastCycle.SetToCurrentTime()
}

// ItemProcessed conta o resultado de um item; kind é a classe da falha ou vazio
func (m *Metrics) ItemProcessed(outcome, kind string) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(outcome, kind).Inc()
}

func (m *Metrics) NotificationSent() {
	if m == nil {
		return
	}
	m.notificationsSum.WithLabelValues("sent").Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notificationsSum.WithLabelValues("failed").Inc()
}
