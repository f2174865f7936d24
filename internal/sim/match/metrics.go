package match

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the match loop's Prometheus instruments. A nil *Metrics is a
// no-op.
type Metrics struct {
	ticks       prometheus.Counter
	tickSeconds prometheus.Histogram
	inputs      *prometheus.CounterVec
	rounds      prometheus.Counter
	games       prometheus.Counter
	clients     prometheus.Gauge
	decoherence prometheus.Histogram
	outcomes    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quantumparty",
			Name:      "ticks_total",
			Help:      "Match loop ticks executed.",
		}),
		tickSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quantumparty",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one match step.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		inputs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantumparty",
			Name:      "inputs_total",
			Help:      "Inputs applied, by kind and result code.",
		}, []string{"input", "code"}),
		rounds: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quantumparty",
			Name:      "gate_rounds_total",
			Help:      "Gate rounds measured.",
		}),
		games: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quantumparty",
			Name:      "games_finished_total",
			Help:      "Games that reached game over.",
		}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "quantumparty",
			Name:      "clients",
			Help:      "Attached websocket clients.",
		}),
		decoherence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quantumparty",
			Name:      "round_decoherence_percent",
			Help:      "Decoherence percent of measured programs.",
			Buckets:   []float64{0, 10, 20, 30, 50, 75, 100},
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantumparty",
			Name:      "outcomes_total",
			Help:      "Measurement outcomes applied to the board.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickSeconds.Observe(d.Seconds())
}

func (m *Metrics) observeInput(kind, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	m.inputs.WithLabelValues(kind, code).Inc()
}

func (m *Metrics) observeRound(outcome string, decoherence int) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.outcomes.WithLabelValues(outcome).Inc()
	m.decoherence.Observe(float64(decoherence))
}

func (m *Metrics) observeGame() {
	if m == nil {
		return
	}
	m.games.Inc()
}

func (m *Metrics) setClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}
