package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the exchange.
type Metrics struct {
	// --- Requests ---
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestsBusy    *prometheus.CounterVec
	RequestsStuck   prometheus.Gauge
	TxsFinalized    *prometheus.CounterVec

	// --- Proofs ---
	ProofReplays     *prometheus.CounterVec
	ProofCacheSize   prometheus.Gauge
	InboundVerified  *prometheus.CounterVec
	OutboundTransfer *prometheus.CounterVec

	// --- Claims ---
	ClaimsCreated  *prometheus.CounterVec
	ClaimsResolved *prometheus.CounterVec

	// --- Bridge ---
	BlockhashAge           prometheus.Gauge
	BlockhashRefreshErrors prometheus.Counter
	RPCCalls               *prometheus.CounterVec
	SolanaDeposits         *prometheus.CounterVec

	// --- Audit log ---
	PersistTxsWritten prometheus.Counter
	PersistBatchSize  prometheus.Histogram
	PersistBatchDur   prometheus.Histogram
	PersistErrors     *prometheus.CounterVec
	PersistRetry      prometheus.Counter
	PersistLastTx     prometheus.Gauge
	PublishDrops      prometheus.Counter
	PersistDrops      prometheus.Counter

	// --- Store ---
	ArchiveEntries *prometheus.CounterVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with reg, or with the
// default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	requestBuckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_requests_total",
			Help: "Requests reaching a terminal state",
		}, []string{"kind", "outcome"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swap_request_duration_seconds",
			Help:    "Time from Created to terminal state",
			Buckets: requestBuckets,
		}, []string{"kind"}),

		RequestsBusy: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_requests_busy_total",
			Help: "Requests rejected because a user or pool lock was held",
		}, []string{"kind"}),

		RequestsStuck: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_requests_stuck",
			Help: "Non-terminal requests older than the stuck threshold",
		}),

		TxsFinalized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_txs_finalized_total",
			Help: "Tx records written",
		}, []string{"kind", "status"}),

		ProofReplays: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_proof_replays_total",
			Help: "Inbound proofs rejected as already consumed",
		}, []string{"tier"}),

		ProofCacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_proof_cache_size",
			Help: "Consumed proof keys held in memory",
		}),

		InboundVerified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_inbound_verifications_total",
			Help: "Inbound transfer verifications",
		}, []string{"chain", "outcome"}),

		OutboundTransfer: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_outbound_transfers_total",
			Help: "Outbound transfer legs",
		}, []string{"chain", "outcome"}),

		ClaimsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_claims_created_total",
			Help: "Claims created",
		}, []string{"kind"}),

		ClaimsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_claims_resolved_total",
			Help: "Claim resolution attempts",
		}, []string{"outcome"}),

		BlockhashAge: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_solana_blockhash_age_seconds",
			Help: "Age of the cached Solana blockhash",
		}),

		BlockhashRefreshErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_solana_blockhash_refresh_errors_total",
			Help: "Failed blockhash refreshes",
		}),

		RPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_solana_rpc_calls_total",
			Help: "Solana JSON-RPC calls",
		}, []string{"method", "outcome"}),

		SolanaDeposits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_solana_deposits_total",
			Help: "Deposit notifications consumed",
		}, []string{"outcome"}),

		PersistTxsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_persist_txs_written_total",
			Help: "Tx records written to the audit log",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_persist_batch_size",
			Help:    "Tx records per audit batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_persist_batch_duration_seconds",
			Help:    "Audit log batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_persist_errors_total",
			Help: "Audit log errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_persist_retry_total",
			Help: "Audit log retries",
		}),

		PersistLastTx: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_persist_last_tx_id",
			Help: "Last tx id written to the audit log",
		}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_publish_drops_total",
			Help: "Tx events dropped due to a full publish channel",
		}),

		PersistDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_persist_skipped_total",
			Help: "Txs not handed to the audit worker in time, left for backfill",
		}),

		ArchiveEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_archive_entries_total",
			Help: "Entries copied into archive maps",
		}, []string{"map"}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swap_http_request_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: requestBuckets,
		}, []string{"endpoint"}),
	}
}
