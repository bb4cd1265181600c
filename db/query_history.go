package db

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/maxpert/powder/encoding"
	"github.com/maxpert/powder/telemetry"
	"github.com/rs/zerolog/log"
)

// Query statuses as the monitoring endpoints report them.
const (
	QueryRunning = "RUNNING"
	QuerySuccess = "SUCCESS"
	QueryFailed  = "FAILED_WITH_ERROR"
	QueryAborted = "ABORTED"
)

// historyPrefix keys records as /query/{queryID}. Query ids sort in issue
// order, so key order is start order.
const historyPrefix = "/query/"

// QueryRecord is the persisted summary of one executed request.
type QueryRecord struct {
	QueryID       string    `json:"id"`
	RequestID     string    `json:"requestId,omitempty"`
	SessionID     int64     `json:"sessionId"`
	SQLText       string    `json:"sqlText"`
	StatementType string    `json:"statementType,omitempty"`
	Status        string    `json:"status"`
	Database      string    `json:"database,omitempty"`
	Schema        string    `json:"schema,omitempty"`
	Errno         int       `json:"errorCode,omitempty"`
	SQLState      string    `json:"sqlState,omitempty"`
	Message       string    `json:"errorMessage,omitempty"`
	Rows          int64     `json:"rows"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime,omitempty"`
}

// Duration is the run time of a finished query, or the time so far.
func (r *QueryRecord) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// QueryHistory is a pebble store of QueryRecords.
type QueryHistory struct {
	db     *pebble.DB
	path   string
	closed atomic.Bool
}

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// OpenQueryHistory opens the store at path. An empty path keeps the
// history in memory for the life of the process.
func OpenQueryHistory(path string) (*QueryHistory, error) {
	opts := &pebble.Options{Logger: &pebbleLogger{}}
	dir := path
	if dir == "" {
		opts.FS = vfs.NewMem()
		dir = "history"
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &QueryHistory{db: db, path: path}, nil
}

func historyKey(queryID string) []byte {
	return []byte(historyPrefix + queryID)
}

// Record inserts or replaces rec.
func (h *QueryHistory) Record(rec *QueryRecord) error {
	data, err := encoding.Marshal(rec)
	if err != nil {
		telemetry.HistoryErrorsTotal.Inc()
		return fmt.Errorf("failed to encode query record: %w", err)
	}
	if err := h.db.Set(historyKey(rec.QueryID), data, pebble.NoSync); err != nil {
		telemetry.HistoryErrorsTotal.Inc()
		return fmt.Errorf("failed to store query record: %w", err)
	}
	telemetry.HistoryRecordsTotal.Inc()
	return nil
}

// Get returns the record of queryID, or nil when there is none.
func (h *QueryHistory) Get(queryID string) (*QueryRecord, error) {
	val, closer, err := h.db.Get(historyKey(queryID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	rec := &QueryRecord{}
	if err := encoding.Unmarshal(val, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (h *QueryHistory) Recent(limit int) ([]*QueryRecord, error) {
	prefix := []byte(historyPrefix)
	iter, err := h.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*QueryRecord
	for iter.Last(); iter.Valid() && (limit <= 0 || len(out) < limit); iter.Prev() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}
		rec := &QueryRecord{}
		if err := encoding.Unmarshal(val, rec); err != nil {
			log.Warn().Err(err).Bytes("key", iter.Key()).Msg("Skipping undecodable query record")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// PruneBefore deletes records of queries that started before cutoff and
// returns how many were removed.
func (h *QueryHistory) PruneBefore(cutoff time.Time) (int, error) {
	prefix := []byte(historyPrefix)
	iter, err := h.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}

	batch := h.db.NewBatch()
	defer batch.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			iter.Close()
			return 0, err
		}
		var rec QueryRecord
		if err := encoding.Unmarshal(val, &rec); err == nil && !rec.StartTime.Before(cutoff) {
			break
		}
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			iter.Close()
			return 0, err
		}
		count++
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	if count == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return 0, fmt.Errorf("failed to prune query history: %w", err)
	}
	return count, nil
}

// RunPruner deletes records older than retention every interval until ctx
// is done.
func (h *QueryHistory) RunPruner(ctx context.Context, retention, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := h.PruneBefore(time.Now().Add(-retention))
			if err != nil {
				log.Warn().Err(err).Msg("Query history prune failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("records", n).Msg("Pruned query history")
			}
		}
	}
}

// Close closes the store (idempotent - safe to call multiple times)
func (h *QueryHistory) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	return h.db.Close()
}

// prefixUpperBound returns an iterator upper bound past every key under
// prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix)+8)
	copy(upper, prefix)
	for i := len(prefix); i < len(upper); i++ {
		upper[i] = 0xFF
	}
	return upper
}
