package game

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	RoundsStarted    prometheus.Counter
	RoundsCrashed    prometheus.Counter
	Bets             *prometheus.CounterVec
	Cashouts         prometheus.Counter
	CrashMultiplier  prometheus.Histogram
	CreditFailures   prometheus.Counter
	ConnectedClients prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil registerer leaves them unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crash_rounds_started_total",
			Help: "rounds that entered the countdown",
		}),
		RoundsCrashed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crash_rounds_crashed_total",
			Help: "rounds that crashed and were settled",
		}),
		Bets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crash_bets_total",
			Help: "bet requests by outcome",
		}, []string{"outcome"}),
		Cashouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crash_cashouts_total",
			Help: "accepted cash-outs",
		}),
		CrashMultiplier: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crash_final_multiplier",
			Help:    "multiplier at which rounds crashed",
			Buckets: []float64{1.1, 1.5, 2, 3, 4, 5, 6, 8, 10},
		}),
		CreditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crash_settlement_credit_failures_total",
			Help: "settlement credits handed to the retry queue",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crash_connected_clients",
			Help: "open websocket connections",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RoundsStarted,
			m.RoundsCrashed,
			m.Bets,
			m.Cashouts,
			m.CrashMultiplier,
			m.CreditFailures,
			m.ConnectedClients,
		)
	}
	return m
}
