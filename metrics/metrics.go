/*
Package metrics exposes reconciliation health to Prometheus.

PASS METRICS (updated by ObservePass):
  coopbank_passes_total{result}       completed/failed pass attempts
  coopbank_new_entries_total          feed transactions applied
  coopbank_anomalies_total            passes that exceeded the feed window
  coopbank_drift_coins                |authoritative - ledger sum| after the last pass
  coopbank_drift_exceeded             1 when the last drift is above tolerance
  coopbank_upgrade_cap_coins          resolved cap, absent until known
  coopbank_last_check_timestamp_ms    when the feed was last reconciled

LEDGER METRICS (read from the published snapshot at scrape time):
  coopbank_pool_balance_coins
  coopbank_bank_interest_coins
  coopbank_member_balance_coins{member}
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/coop-banker/ledger"
)

// Recorder implements ledger.PassObserver on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	Passes        *prometheus.CounterVec
	NewEntries    prometheus.Counter
	Anomalies     prometheus.Counter
	Drift         prometheus.Gauge
	DriftExceeded prometheus.Gauge
	UpgradeCap    *prometheus.GaugeVec
	LastCheck     prometheus.Gauge
}

// NewRecorder registers every metric. snapshot supplies the ledger state at
// scrape time and may be nil.
func NewRecorder(snapshot func() *ledger.State) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		Passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopbank_passes_total",
				Help: "Reconciliation pass attempts by result",
			},
			[]string{"result"},
		),

		NewEntries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coopbank_new_entries_total",
				Help: "Feed transactions applied to the ledger",
			},
		),

		Anomalies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coopbank_anomalies_total",
				Help: "Passes with more new transactions than the feed window holds",
			},
		),

		Drift: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coopbank_drift_coins",
				Help: "Absolute difference between the reported balance and the ledger sum",
			},
		),

		DriftExceeded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coopbank_drift_exceeded",
				Help: "1 when the last drift is above tolerance",
			},
		),

		UpgradeCap: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coopbank_upgrade_cap_coins",
				Help: "Bank capacity from the highest completed upgrade",
			},
			[]string{},
		),

		LastCheck: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coopbank_last_check_timestamp_ms",
				Help: "Unix milliseconds of the last successful pass",
			},
		),
	}

	r.registry.MustRegister(
		r.Passes,
		r.NewEntries,
		r.Anomalies,
		r.Drift,
		r.DriftExceeded,
		r.UpgradeCap,
		r.LastCheck,
	)
	if snapshot != nil {
		r.registry.MustRegister(&ledgerCollector{snapshot: snapshot})
	}
	return r
}

// ObservePass implements ledger.PassObserver.
func (r *Recorder) ObservePass(report ledger.PassReport, err error) {
	if err != nil {
		r.Passes.WithLabelValues("failed").Inc()
		return
	}
	r.Passes.WithLabelValues("completed").Inc()
	r.NewEntries.Add(float64(report.NewEntries))
	if report.Anomaly {
		r.Anomalies.Inc()
	}

	drift, _ := report.Drift.Float64()
	r.Drift.Set(drift)
	if report.DriftExceeded {
		r.DriftExceeded.Set(1)
	} else {
		r.DriftExceeded.Set(0)
	}

	if report.UpgradeCap != nil {
		r.UpgradeCap.WithLabelValues().Set(float64(*report.UpgradeCap))
	} else {
		r.UpgradeCap.Reset()
	}
	r.LastCheck.Set(float64(report.CheckedAt))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// LEDGER COLLECTOR - Balances read from the published snapshot
// =============================================================================

var (
	poolBalanceDesc = prometheus.NewDesc(
		"coopbank_pool_balance_coins",
		"Authoritative pool balance reported by the last pass",
		nil, nil,
	)
	interestDesc = prometheus.NewDesc(
		"coopbank_bank_interest_coins",
		"Interest credited to the pool since tracking started",
		nil, nil,
	)
	memberBalanceDesc = prometheus.NewDesc(
		"coopbank_member_balance_coins",
		"Each member's share of the pool",
		[]string{"member"}, nil,
	)
)

type ledgerCollector struct {
	snapshot func() *ledger.State
}

func (c *ledgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolBalanceDesc
	ch <- interestDesc
	ch <- memberBalanceDesc
}

func (c *ledgerCollector) Collect(ch chan<- prometheus.Metric) {
	state := c.snapshot()
	if state == nil {
		return
	}

	balance, _ := state.Balance.Float64()
	ch <- prometheus.MustNewConstMetric(poolBalanceDesc, prometheus.GaugeValue, balance)

	interest, _ := state.BankInterest.Float64()
	ch <- prometheus.MustNewConstMetric(interestDesc, prometheus.GaugeValue, interest)

	for member, amount := range state.Balances {
		v, _ := amount.Float64()
		ch <- prometheus.MustNewConstMetric(memberBalanceDesc, prometheus.GaugeValue, v, string(member))
	}
}
