package protocol

import (
	"context"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jizhuozhi/go-future"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/powder/db"
)

// QueryResult is the success payload of an executed statement.
type QueryResult struct {
	RowType  []ColumnDescriptor
	RowSet   [][]*string
	Total    int64
	TypeID   int64
	Affected int64

	Database  string
	Schema    string
	Warehouse string
	Role      string
}

// Query is one Execute request and its eventual outcome.
type Query struct {
	ID        string
	RequestID string
	SQL       string
	Session   *Session
	Start     time.Time

	promise *future.Promise[*QueryResult]
	result  *future.Future[*QueryResult]
	done    chan struct{}
	aborted chan struct{}
	cancel  context.CancelFunc

	abortOnce  sync.Once
	finishOnce sync.Once

	mu     sync.Mutex
	status string
	end    time.Time
	qerr   *QueryError
}

func newQuery(id, requestID, sql string, s *Session, cancel context.CancelFunc) *Query {
	p := future.NewPromise[*QueryResult]()
	return &Query{
		ID:        id,
		RequestID: requestID,
		SQL:       sql,
		Session:   s,
		Start:     time.Now(),
		promise:   p,
		result:    p.Future(),
		done:      make(chan struct{}),
		aborted:   make(chan struct{}),
		cancel:    cancel,
		status:    db.QueryRunning,
	}
}

// complete resolves the query. Only the first call has an effect; an
// aborted query always resolves to the cancel error.
func (q *Query) complete(res *QueryResult, qerr *QueryError) {
	q.finishOnce.Do(func() {
		q.mu.Lock()
		switch {
		case q.Aborted():
			res, qerr = nil, canceledError()
			q.status = db.QueryAborted
		case qerr != nil:
			q.status = db.QueryFailed
		default:
			q.status = db.QuerySuccess
		}
		if qerr != nil {
			qerr.QueryID = q.ID
		}
		q.qerr = qerr
		q.end = time.Now()
		q.mu.Unlock()

		if qerr != nil {
			q.promise.Set(nil, qerr)
		} else {
			q.promise.Set(res, nil)
		}
		close(q.done)
		q.cancel()
	})
}

// Abort cancels the query's statement and wakes anyone waiting on it.
func (q *Query) Abort() {
	q.abortOnce.Do(func() {
		close(q.aborted)
		q.cancel()
	})
}

// Aborted reports whether Abort was called.
func (q *Query) Aborted() bool {
	select {
	case <-q.aborted:
		return true
	default:
		return false
	}
}

// Done reports whether the worker has finished.
func (q *Query) Done() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the query finishes, is aborted, or timeout passes, and
// reports whether an outcome is available.
func (q *Query) Wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.done:
		return true
	case <-q.aborted:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Outcome returns the result of a finished or aborted query.
func (q *Query) Outcome() (*QueryResult, *QueryError) {
	if q.Aborted() && !q.Done() {
		e := canceledError()
		e.QueryID = q.ID
		return nil, e
	}
	res, err := q.result.Get()
	if err != nil {
		return nil, MapError(err, nil)
	}
	return res, nil
}

// Status returns the monitoring status and end time.
func (q *Query) Status() (string, time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status == db.QueryRunning && q.Aborted() {
		return db.QueryAborted, q.end
	}
	return q.status, q.end
}

// QueryInfo is the admin and monitoring view of a query.
type QueryInfo struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId,omitempty"`
	SessionID int64     `json:"sessionId"`
	SQLText   string    `json:"sqlText"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime,omitempty"`
	Errno     int       `json:"errorCode,omitempty"`
	Message   string    `json:"errorMessage,omitempty"`
}

func (q *Query) Info() QueryInfo {
	status, end := q.Status()
	info := QueryInfo{
		ID:        q.ID,
		RequestID: q.RequestID,
		SessionID: q.Session.ID,
		SQLText:   q.SQL,
		Status:    status,
		StartTime: q.Start,
		EndTime:   end,
	}
	q.mu.Lock()
	if q.qerr != nil {
		info.Errno = q.qerr.Errno
		info.Message = q.qerr.Message
	}
	q.mu.Unlock()
	return info
}

// SessionRegistry indexes live sessions by token and id.
type SessionRegistry struct {
	byToken  *xsync.MapOf[string, *Session]
	byMaster *xsync.MapOf[string, *Session]
	byID     *xsync.MapOf[int64, *Session]
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byToken:  xsync.NewMapOf[string, *Session](),
		byMaster: xsync.NewMapOf[string, *Session](),
		byID:     xsync.NewMapOf[int64, *Session](),
	}
}

func (r *SessionRegistry) Add(s *Session) {
	r.byID.Store(s.ID, s)
	r.byToken.Store(s.Token, s)
	r.byMaster.Store(s.MasterToken, s)
}

// ByToken returns the session owning a session token.
func (r *SessionRegistry) ByToken(token string) (*Session, error) {
	s, ok := r.byToken.Load(token)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ByMasterToken returns the session owning a master token.
func (r *SessionRegistry) ByMasterToken(token string) (*Session, error) {
	s, ok := r.byMaster.Load(token)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *SessionRegistry) ByID(id int64) (*Session, error) {
	s, ok := r.byID.Load(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Rotate replaces the session token of s.
func (r *SessionRegistry) Rotate(s *Session, token string) {
	s.mu.Lock()
	old := s.Token
	s.Token = token
	s.mu.Unlock()

	r.byToken.Store(token, s)
	r.byToken.Delete(old)
}

// Remove drops s from every index. Removing twice is harmless.
func (r *SessionRegistry) Remove(s *Session) bool {
	_, ok := r.byID.LoadAndDelete(s.ID)
	s.mu.Lock()
	token := s.Token
	s.mu.Unlock()
	r.byToken.Delete(token)
	r.byMaster.Delete(s.MasterToken)
	return ok
}

// List returns live sessions ordered by id.
func (r *SessionRegistry) List() []*Session {
	out := make([]*Session, 0, r.byID.Size())
	r.byID.Range(func(_ int64, s *Session) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *SessionRegistry) Len() int {
	return r.byID.Size()
}

// RunReaper calls expire for every session idle longer than idle, checking
// every interval until ctx is done.
func (r *SessionRegistry) RunReaper(ctx context.Context, idle, interval time.Duration, expire func(*Session)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.reap(now, idle, expire)
		}
	}
}

func (r *SessionRegistry) reap(now time.Time, idle time.Duration, expire func(*Session)) int {
	n := 0
	r.byID.Range(func(_ int64, s *Session) bool {
		last, idleable := s.IdleSince()
		if idleable && now.Sub(last) > idle {
			log.Info().Int64("session_id", s.ID).Dur("idle", now.Sub(last)).Msg("Expiring idle session")
			expire(s)
			n++
		}
		return true
	})
	return n
}

// QueryRegistry tracks running queries and a bounded set of finished ones
// whose results can still be fetched.
type QueryRegistry struct {
	running  *xsync.MapOf[string, *Query]
	requests *xsync.MapOf[string, *Query]
	finished *lru.Cache[string, *Query]
}

func NewQueryRegistry(finishedSize int) (*QueryRegistry, error) {
	finished, err := lru.New[string, *Query](max(finishedSize, 1))
	if err != nil {
		return nil, err
	}
	return &QueryRegistry{
		running:  xsync.NewMapOf[string, *Query](),
		requests: xsync.NewMapOf[string, *Query](),
		finished: finished,
	}, nil
}

func (r *QueryRegistry) Add(q *Query) {
	r.running.Store(q.ID, q)
	if q.RequestID != "" {
		r.requests.Store(q.RequestID, q)
	}
}

// Finish moves q from the running set to the finished cache.
func (r *QueryRegistry) Finish(q *Query) {
	r.finished.Add(q.ID, q)
	r.running.Delete(q.ID)
	if q.RequestID != "" {
		if cur, ok := r.requests.Load(q.RequestID); ok && cur == q {
			r.requests.Delete(q.RequestID)
		}
	}
}

// Get finds a running or recently finished query.
func (r *QueryRegistry) Get(id string) (*Query, error) {
	if q, ok := r.running.Load(id); ok {
		return q, nil
	}
	if q, ok := r.finished.Get(id); ok {
		return q, nil
	}
	return nil, ErrQueryNotFound
}

// ByRequestID finds the running query submitted with requestID.
func (r *QueryRegistry) ByRequestID(requestID string) (*Query, bool) {
	return r.requests.Load(requestID)
}

// Running returns in-flight queries ordered by id.
func (r *QueryRegistry) Running() []*Query {
	out := make([]*Query, 0, r.running.Size())
	r.running.Range(func(_ string, q *Query) bool {
		out = append(out, q)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunningCount is the number of in-flight queries.
func (r *QueryRegistry) RunningCount() int {
	return r.running.Size()
}
