// Package metrics exposes prometheus instrumentation for the donation
// pipeline and the vitality machine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics bundles the collectors owned by one process instance.
type Metrics struct {
	HP                 prometheus.Gauge
	Phase              *prometheus.GaugeVec
	WalletBalance      prometheus.Gauge
	DonationsProcessed prometheus.Counter
	DonationsDuplicate prometheus.Counter
	HPCredited         prometheus.Counter
	RPCErrors          prometheus.Counter
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HP: factory.NewGauge(prometheus.GaugeOpts{
			Name: "octo_hp",
			Help: "Current vitality resource level.",
		}),
		Phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "octo_phase",
			Help: "Current life phase (1 for the active phase, 0 otherwise).",
		}, []string{"phase"}),
		WalletBalance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "octo_wallet_balance_sol",
			Help: "Observed balance of the monitored wallet in SOL.",
		}),
		DonationsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "octo_donations_processed_total",
			Help: "Transfers newly recorded by the donation ledger.",
		}),
		DonationsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "octo_donations_duplicate_total",
			Help: "Transfers rejected as already processed.",
		}),
		HPCredited: factory.NewCounter(prometheus.CounterOpts{
			Name: "octo_hp_credited_total",
			Help: "Total HP credited from donations.",
		}),
		RPCErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "octo_rpc_errors_total",
			Help: "Provider RPC failures.",
		}),
	}
}

// SetVitality updates the HP gauge and the per-phase indicator.
func (m *Metrics) SetVitality(hp int64, phase string) {
	m.HP.Set(float64(hp))
	for _, name := range []string{"thriving", "depleting", "critical", "extinct"} {
		value := 0.0
		if name == phase {
			value = 1.0
		}
		m.Phase.WithLabelValues(name).Set(value)
	}
}

// SetBalance updates the wallet balance gauge.
func (m *Metrics) SetBalance(sol decimal.Decimal) {
	m.WalletBalance.Set(sol.InexactFloat64())
}
