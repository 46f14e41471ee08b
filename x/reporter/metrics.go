package reporter

import (
	"github.com/prometheus/client_golang/prometheus"

	metrics2 "github.com/stakebridge/relay-oracle/metrics"
)

// Metrics holds the oracle's exporter surface. Names are bare: they are part
// of the daemon's external interface.
type Metrics struct {
	registry *metrics2.ComponentRegistry

	IsRecoveryModeActive          prometheus.Gauge
	ActiveEraID                   prometheus.Gauge
	LastEraReported               prometheus.Gauge
	LastFailedEra                 prometheus.Gauge
	PreviousEraChangeBlockNumber  prometheus.Gauge
	TimeElapsedUntilLastEraReport prometheus.Gauge
	TotalStashesFreeBalance       prometheus.Gauge
	OracleBalance                 prometheus.Gauge
	ParachainBalance              prometheus.Gauge
	TxRevert                      prometheus.Histogram
	TxSuccess                     prometheus.Histogram
	ParaExceptionsCount           prometheus.Counter
	RelayExceptionsCount          prometheus.Counter
	Agent                         *prometheus.GaugeVec
}

// NewMetrics creates the oracle metrics.
func NewMetrics() *Metrics {
	reg := metrics2.NewComponentRegistry("", "")

	return &Metrics{
		registry: reg,

		IsRecoveryModeActive: reg.NewGauge(prometheus.GaugeOpts{
			Name: "is_recovery_mode_active",
			Help: "1 while recovery mode is active, 0 otherwise",
		}),

		ActiveEraID: reg.NewGauge(prometheus.GaugeOpts{
			Name: "active_era_id",
			Help: "Active era index observed on the relay chain",
		}),

		LastEraReported: reg.NewGauge(prometheus.GaugeOpts{
			Name: "last_era_reported",
			Help: "The last era fully reported by this oracle",
		}),

		LastFailedEra: reg.NewGauge(prometheus.GaugeOpts{
			Name: "last_failed_era",
			Help: "The last era with a reverted report transaction",
		}),

		PreviousEraChangeBlockNumber: reg.NewGauge(prometheus.GaugeOpts{
			Name: "previous_era_change_block_number",
			Help: "Block number of the previous era change",
		}),

		TimeElapsedUntilLastEraReport: reg.NewGauge(prometheus.GaugeOpts{
			Name: "time_elapsed_until_last_era_report",
			Help: "Unix time of the last completed era report in seconds",
		}),

		TotalStashesFreeBalance: reg.NewGauge(prometheus.GaugeOpts{
			Name: "total_stashes_free_balance",
			Help: "Total free balance of all stash accounts",
		}),

		OracleBalance: reg.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_balance",
			Help: "Parachain balance of the oracle member account",
		}),

		ParachainBalance: reg.NewGauge(prometheus.GaugeOpts{
			Name: "parachain_balance",
			Help: "Relay chain balance of the parachain sovereign account",
		}),

		TxRevert: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "tx_revert",
			Help:    "Reverted report transactions",
			Buckets: metrics2.CountBuckets,
		}),

		TxSuccess: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "tx_success",
			Help:    "Successful report transactions",
			Buckets: metrics2.CountBuckets,
		}),

		ParaExceptionsCount: reg.NewCounter(prometheus.CounterOpts{
			Name: "para_exceptions_count",
			Help: "Parachain exceptions count",
		}),

		RelayExceptionsCount: reg.NewCounter(prometheus.CounterOpts{
			Name: "relay_exceptions_count",
			Help: "Relay chain exceptions count",
		}),

		Agent: reg.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent",
			Help: "Oracle agent info: connected relay node and instance id",
		}, []string{"relay_chain_node_address", "instance_id"}),
	}
}
