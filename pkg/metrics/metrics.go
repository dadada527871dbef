// Package metrics exposes Lithoglyph's Prometheus instrumentation:
// package-level metric vars registered at init and imported by every
// subsystem, rather than per-package registries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Block store metrics (pkg/blockstore).
	BlockReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lithoglyph_block_reads_total",
			Help: "Total number of block reads by result",
		},
		[]string{"result"},
	)

	BlockWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lithoglyph_block_writes_total",
			Help: "Total number of block writes by type",
		},
		[]string{"block_type"},
	)

	BlockChecksumFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lithoglyph_block_checksum_failures_total",
			Help: "Total number of CRC32C checksum mismatches detected on read",
		},
	)

	BlocksAllocatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lithoglyph_blocks_allocated_total",
			Help: "Total number of blocks allocated from the free list or file growth",
		},
	)

	BlocksFreedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lithoglyph_blocks_freed_total",
			Help: "Total number of blocks returned to the free list",
		},
	)

	// Journal metrics (pkg/journal).
	JournalCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lithoglyph_journal_commits_total",
			Help: "Total number of journal entries committed",
		},
	)

	JournalAbortsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lithoglyph_journal_aborts_total",
			Help: "Total number of journal builders rolled back before commit",
		},
	)

	JournalCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lithoglyph_journal_commit_duration_seconds",
			Help:    "Time taken to fsync and commit a journal entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	JournalEntriesReplayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lithoglyph_journal_entries_replayed_total",
			Help: "Total number of journal entries replayed during crash recovery",
		},
	)

	JournalCheckpointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lithoglyph_journal_checkpoints_total",
			Help: "Total number of block store checkpoints triggered by journal growth",
		},
	)

	// Transaction manager metrics (pkg/txn).
	TxnsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lithoglyph_txns_open",
			Help: "Number of currently open transactions by mode",
		},
		[]string{"mode"},
	)

	TxnsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lithoglyph_txns_completed_total",
			Help: "Total number of transactions completed by outcome",
		},
		[]string{"outcome"},
	)

	TxnAbortBlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lithoglyph_txn_abort_blocked_total",
			Help: "Total number of abort attempts refused due to an irreversible operation",
		},
	)

	// Proof verifier metrics (pkg/proof).
	ProofVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lithoglyph_proof_verifications_total",
			Help: "Total number of proof verifications by proof type and outcome",
		},
		[]string{"proof_type", "outcome"},
	)

	// Bridge/ABI handle table metrics (pkg/abi), sampled periodically by
	// a Collector rather than updated inline on every call.
	HandlesOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lithoglyph_db_handles_open",
			Help: "Number of currently open database handles",
		},
	)
)

func init() {
	prometheus.MustRegister(BlockReadsTotal)
	prometheus.MustRegister(BlockWritesTotal)
	prometheus.MustRegister(BlockChecksumFailuresTotal)
	prometheus.MustRegister(BlocksAllocatedTotal)
	prometheus.MustRegister(BlocksFreedTotal)

	prometheus.MustRegister(JournalCommitsTotal)
	prometheus.MustRegister(JournalAbortsTotal)
	prometheus.MustRegister(JournalCommitDuration)
	prometheus.MustRegister(JournalEntriesReplayedTotal)
	prometheus.MustRegister(JournalCheckpointsTotal)

	prometheus.MustRegister(TxnsOpen)
	prometheus.MustRegister(TxnsCompletedTotal)
	prometheus.MustRegister(TxnAbortBlockedTotal)

	prometheus.MustRegister(ProofVerificationsTotal)
	prometheus.MustRegister(HandlesOpen)
}

// Collector periodically samples a value that has no natural "on
// every call" update point, such as the bridge's open-handle count,
// via a ticker-driven loop rather than recomputing it on every
// Prometheus scrape.
type Collector struct {
	interval time.Duration
	sample   func() int
	gauge    prometheus.Gauge
	stopCh   chan struct{}
}

// NewCollector builds a Collector that writes sample()'s result into
// gauge every interval.
func NewCollector(interval time.Duration, gauge prometheus.Gauge, sample func() int) *Collector {
	return &Collector{interval: interval, sample: sample, gauge: gauge, stopCh: make(chan struct{})}
}

// Start begins the sampling loop in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.gauge.Set(float64(c.sample()))
}

// Handler returns the Prometheus scrape handler. Serving it is the
// embedder's job; the core only registers and updates the metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
