// Package metrics declares the prometheus collectors emitted by the
// indexer. Collectors are registered on a dedicated registry so the
// /metrics endpoint only exposes what this process owns.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Bucket tables match the original deployment dashboards: database writes
// are measured in milliseconds, RPC fetches in seconds.
var (
	DBSaveDurationMsBuckets = []float64{
		0.005, 1, 1.5, 2, 2.5, 3.5, 4, 4.5, 5, 5.5, 6, 6.5, 7, 8, 10, 15,
		20, 22.5, 25, 30, 40, 50, 60,
	}
	GetBlockDurationSecondsBuckets = []float64{
		0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
	}
)

// Metrics holds every collector the indexer and server emit.
type Metrics struct {
	registry *prometheus.Registry

	GetBlockDuration *prometheus.HistogramVec

	SaveBlockDuration     *prometheus.HistogramVec
	SaveTxsDuration       *prometheus.HistogramVec
	SaveEvidencesDuration *prometheus.HistogramVec
	SaveCommitSigDuration *prometheus.HistogramVec

	SaveBlockCounter *prometheus.CounterVec

	LastSaveBlockHeight prometheus.Gauge
	LastGetBlockHeight  prometheus.Gauge
}

// New builds and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		GetBlockDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indexer_get_block_duration",
			Help:    "Time to retrieve a block and its results from the node, in seconds.",
			Buckets: GetBlockDurationSecondsBuckets,
		}, []string{"status"}),
		SaveBlockDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_save_duration_block",
			Help:    "Time to persist a full block, in milliseconds.",
			Buckets: DBSaveDurationMsBuckets,
		}, []string{"height", "status"}),
		SaveTxsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_save_duration_transactions",
			Help:    "Time of the transactions bulk insert, in milliseconds.",
			Buckets: DBSaveDurationMsBuckets,
		}, []string{"status", "num_transactions"}),
		SaveEvidencesDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_save_duration_evidences",
			Help:    "Time of the evidences bulk insert, in milliseconds.",
			Buckets: DBSaveDurationMsBuckets,
		}, []string{"status", "num_evidences"}),
		SaveCommitSigDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_save_duration_commit_sig",
			Help:    "Time of the commit signatures bulk insert, in milliseconds.",
			Buckets: DBSaveDurationMsBuckets,
		}, []string{"status", "num_signatures"}),
		SaveBlockCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "db_save_count_block",
			Help: "Blocks persisted since the process started.",
		}, []string{"status"}),
		LastSaveBlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_last_save_block_height",
			Help: "Height of the last block committed to the database.",
		}),
		LastGetBlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_last_get_block_height",
			Help: "Height of the last block retrieved from the node.",
		}),
	}

	reg.MustRegister(
		m.GetBlockDuration,
		m.SaveBlockDuration,
		m.SaveTxsDuration,
		m.SaveEvidencesDuration,
		m.SaveCommitSigDuration,
		m.SaveBlockCounter,
		m.LastSaveBlockHeight,
		m.LastGetBlockHeight,
	)

	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
