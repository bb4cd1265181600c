package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// QueryBuckets for statement execution, from point lookups to long scans
	QueryBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	// LockWaitBuckets for time spent queued behind the writer lock
	LockWaitBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

	// RowBuckets for rows returned or affected per statement
	RowBuckets = []float64{0, 1, 10, 100, 1000, 10000, 100000, 1000000}
)

// Session Metrics
var (
	// SessionsActive tracks sessions that are logged in and not expired
	SessionsActive Gauge = NoopStat{}

	// SessionEventsTotal counts session lifecycle events (opened, closed, expired)
	SessionEventsTotal CounterVec = noopCounterVec{}

	// LoginsTotal counts login requests by result (success, failed)
	LoginsTotal CounterVec = noopCounterVec{}
)

// Query Processing Metrics
var (
	// QueriesTotal counts queries by type (select, insert, update, delete, ddl) and result
	QueriesTotal CounterVec = noopCounterVec{}

	// QueryDurationSeconds measures query latency by type
	QueryDurationSeconds HistogramVec = noopHistogramVec{}

	// QueriesRunning tracks statements currently executing
	QueriesRunning Gauge = NoopStat{}

	// QueryAbortsTotal counts queries canceled by abort requests or session close
	QueryAbortsTotal Counter = NoopStat{}

	// AsyncQueriesTotal counts queries answered with a pending handle
	AsyncQueriesTotal Counter = NoopStat{}

	// QueryErrorsTotal counts failed queries by warehouse error code
	QueryErrorsTotal CounterVec = noopCounterVec{}

	// RowsAffected measures rows affected per write query
	RowsAffected Histogram = NoopStat{}

	// RowsReturned measures rows returned per read query
	RowsReturned Histogram = NoopStat{}

	// TranspileCacheTotal counts plan cache lookups by result (hit, miss)
	TranspileCacheTotal CounterVec = noopCounterVec{}
)

// Engine Metrics
var (
	// WriteLockWaitSeconds measures time waiting for the writer lock
	WriteLockWaitSeconds Histogram = NoopStat{}

	// EngineOpenConnections tracks open SQLite connections
	EngineOpenConnections Gauge = NoopStat{}

	// EngineConnectionsInUse tracks SQLite connections checked out
	EngineConnectionsInUse Gauge = NoopStat{}

	// DDLOperationsTotal counts DDL operations by object kind and result
	DDLOperationsTotal CounterVec = noopCounterVec{}
)

// Query History Metrics
var (
	// HistoryRecordsTotal counts query records persisted
	HistoryRecordsTotal Counter = NoopStat{}

	// HistoryErrorsTotal counts failed history writes
	HistoryErrorsTotal Counter = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Session Metrics
	SessionsActive = NewGauge(
		"sessions_active",
		"Number of live sessions",
	)
	SessionEventsTotal = NewCounterVec(
		"session_events_total",
		"Session lifecycle events",
		[]string{"event"},
	)
	LoginsTotal = NewCounterVec(
		"logins_total",
		"Login requests by result",
		[]string{"result"},
	)

	// Query Processing Metrics
	QueriesTotal = NewCounterVec(
		"queries_total",
		"Total queries by type and result",
		[]string{"type", "result"},
	)
	QueryDurationSeconds = NewHistogramVec(
		"query_duration_seconds",
		"Query duration in seconds",
		[]string{"type"},
		QueryBuckets,
	)
	QueriesRunning = NewGauge(
		"queries_running",
		"Number of statements currently executing",
	)
	QueryAbortsTotal = NewCounter(
		"query_aborts_total",
		"Queries canceled before completion",
	)
	AsyncQueriesTotal = NewCounter(
		"async_queries_total",
		"Queries answered with a pending result handle",
	)
	QueryErrorsTotal = NewCounterVec(
		"query_errors_total",
		"Failed queries by error code",
		[]string{"code"},
	)
	RowsAffected = NewHistogramWithBuckets(
		"rows_affected",
		"Number of rows affected per write query",
		RowBuckets,
	)
	RowsReturned = NewHistogramWithBuckets(
		"rows_returned",
		"Number of rows returned per read query",
		RowBuckets,
	)
	TranspileCacheTotal = NewCounterVec(
		"transpile_cache_total",
		"Plan cache lookups by result",
		[]string{"result"},
	)

	// Engine Metrics
	WriteLockWaitSeconds = NewHistogramWithBuckets(
		"write_lock_wait_seconds",
		"Time waiting for the writer lock in seconds",
		LockWaitBuckets,
	)
	EngineOpenConnections = NewGauge(
		"engine_open_connections",
		"Open SQLite connections",
	)
	EngineConnectionsInUse = NewGauge(
		"engine_connections_in_use",
		"SQLite connections checked out",
	)
	DDLOperationsTotal = NewCounterVec(
		"ddl_operations_total",
		"DDL operations by object kind and result",
		[]string{"object", "result"},
	)

	// Query History Metrics
	HistoryRecordsTotal = NewCounter(
		"history_records_total",
		"Query records persisted to history",
	)
	HistoryErrorsTotal = NewCounter(
		"history_errors_total",
		"Failed query history writes",
	)
}
