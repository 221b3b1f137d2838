package recovery

import "github.com/prometheus/client_golang/prometheus"

var (
	redoOpsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ariesdb_recovery_redo_operations_total",
		Help: "Number of log records replayed during restart redo phases.",
	})
	undoOpsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ariesdb_recovery_undo_operations_total",
		Help: "Number of log records compensated for during the undo phase, across restarts and runtime rollbacks.",
	})
	activeTransactionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ariesdb_recovery_active_transactions",
		Help: "Number of transactions currently tracked in the recovery manager's transaction table.",
	})
	dirtyPagesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ariesdb_recovery_dirty_pages",
		Help: "Number of pages currently tracked in the recovery manager's dirty page table.",
	})
	restartDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ariesdb_recovery_restart_duration_seconds",
		Help:    "Wall-clock duration of a full analysis/redo/undo restart pass.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(redoOpsTotal, undoOpsTotal, activeTransactionsGauge, dirtyPagesGauge, restartDurationSeconds)
}
