// Package metrics exposes Prometheus instrumentation for the staking engine.
package metrics

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	WorkersRegistered prometheus.Counter
	StakeOperations   *prometheus.CounterVec
	StakeVolume       *prometheus.CounterVec
	Slashes           *prometheus.CounterVec
	SlashedTokens     prometheus.Counter
	JobOutcomes       *prometheus.CounterVec
	RewardsPaid       prometheus.Counter
	ReputationDecayed prometheus.Counter
	OracleFailures    prometheus.Counter
	EligibleQueries   prometheus.Histogram
	TotalStaked       prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		WorkersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "stake_workers_registered_total",
			Help: "Workers registered",
		}),
		StakeOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stake_operations_total",
			Help: "Ledger operations by type and result",
		}, []string{"operation", "result"}),
		StakeVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stake_volume_tokens_total",
			Help: "Tokens moved by ledger operation, in whole tokens",
		}, []string{"operation"}),
		Slashes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stake_slashes_total",
			Help: "Slashes applied by reason",
		}, []string{"reason"}),
		SlashedTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "stake_slashed_tokens_total",
			Help: "Tokens confiscated by slashing, in whole tokens",
		}),
		JobOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stake_job_outcomes_total",
			Help: "Job outcomes recorded against reputation",
		}, []string{"result"}),
		RewardsPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "stake_rewards_paid_tokens_total",
			Help: "Rewards distributed, in whole tokens",
		}),
		ReputationDecayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "stake_reputation_decayed_total",
			Help: "Reputation decay adjustments applied",
		}),
		OracleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "stake_oracle_failures_total",
			Help: "Price lookups that returned no usable price",
		}),
		EligibleQueries: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stake_eligible_query_seconds",
			Help:    "Time to rank eligible workers",
			Buckets: prometheus.DefBuckets,
		}),
		TotalStaked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stake_total_staked_tokens",
			Help: "Total tokens staked, in whole tokens",
		}),
	}
}

var tokenUnit = uint256.NewInt(1_000_000_000_000_000_000)

// Tokens converts an 18-decimal base amount to whole tokens for reporting.
func Tokens(amount *uint256.Int) float64 {
	if amount == nil {
		return 0
	}
	whole, frac := new(uint256.Int).DivMod(amount, tokenUnit, new(uint256.Int))
	return whole.Float64() + frac.Float64()/1e18
}

func (m *Metrics) ObserveEligible(start time.Time) {
	if m == nil {
		return
	}
	m.EligibleQueries.Observe(time.Since(start).Seconds())
}

func (m *Metrics) WorkerRegistered() {
	if m == nil {
		return
	}
	m.WorkersRegistered.Inc()
}

func (m *Metrics) StakeOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StakeOperations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Moved(operation string, amount *uint256.Int) {
	if m == nil {
		return
	}
	m.StakeVolume.WithLabelValues(operation).Add(Tokens(amount))
}

func (m *Metrics) Slashed(reason string, amount *uint256.Int) {
	if m == nil {
		return
	}
	m.Slashes.WithLabelValues(reason).Inc()
	m.SlashedTokens.Add(Tokens(amount))
}

func (m *Metrics) JobOutcome(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.JobOutcomes.WithLabelValues(result).Inc()
}

func (m *Metrics) RewardPaid(amount *uint256.Int) {
	if m == nil {
		return
	}
	m.RewardsPaid.Add(Tokens(amount))
}

func (m *Metrics) Decayed(n int) {
	if m == nil {
		return
	}
	m.ReputationDecayed.Add(float64(n))
}

func (m *Metrics) OracleFailure() {
	if m == nil {
		return
	}
	m.OracleFailures.Inc()
}

func (m *Metrics) SetTotalStaked(amount *uint256.Int) {
	if m == nil {
		return
	}
	m.TotalStaked.Set(Tokens(amount))
}
