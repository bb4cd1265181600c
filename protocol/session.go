package protocol

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/protocol/query/transform"
)

// Protocol level failures. They carry no SQL error fields.
var (
	ErrSessionBusy     = &ProtocolError{Status: http.StatusConflict, Message: "session has a query in progress"}
	ErrSessionNotFound = &ProtocolError{Status: http.StatusUnauthorized, Message: "session does not exist or has expired"}
	ErrSessionClosed   = &ProtocolError{Status: http.StatusUnauthorized, Message: "session is closed"}
	ErrQueryNotFound   = &ProtocolError{Status: http.StatusNotFound, Message: "query does not exist"}
)

// ProtocolError is a request the server refuses before any SQL runs.
type ProtocolError struct {
	Status  int
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// SessionState is the lifecycle position of a session.
type SessionState int

const (
	StateConnected SessionState = iota
	StateQueryRunning
	StateResultReady
	StateAborted
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateQueryRunning:
		return "QUERY_RUNNING"
	case StateResultReady:
		return "RESULT_READY"
	case StateAborted:
		return "ABORTED"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// defaultParameters are reported to every session unless overridden.
var defaultParameters = map[string]any{
	"AUTOCOMMIT":                    true,
	"QUERY_RESULT_FORMAT":           "JSON",
	"TIMEZONE":                      "UTC",
	"TIMESTAMP_OUTPUT_FORMAT":       "YYYY-MM-DD HH24:MI:SS.FF3 TZHTZM",
	"DATE_OUTPUT_FORMAT":            "YYYY-MM-DD",
	"CLIENT_SESSION_KEEP_ALIVE":     false,
	"CLIENT_RESULT_CHUNK_SIZE":      160,
	"CLIENT_TIMESTAMP_TYPE_MAPPING": "TIMESTAMP_LTZ",
	"CLIENT_PREFETCH_THREADS":       4,
}

// Parameter is one name/value pair of the response parameter list.
type Parameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Session is one logged in client. All mutable state sits behind mu.
type Session struct {
	ID          int64
	Token       string
	MasterToken string
	User        string
	Account     string
	ClientApp   string
	CreatedAt   time.Time

	mu        sync.Mutex
	state     SessionState
	database  string
	schema    string
	warehouse string
	role      string
	params    map[string]any
	lastUsed  time.Time
	current   *Query
}

// NewSession creates a connected session.
func NewSession(id int64, token, masterToken, user string) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		Token:       token,
		MasterToken: masterToken,
		User:        user,
		CreatedAt:   now,
		params:      make(map[string]any),
		lastUsed:    now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Env snapshots the context statements are rewritten against.
func (s *Session) Env() *transform.Env {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &transform.Env{
		Database:  s.database,
		Schema:    s.schema,
		Warehouse: s.warehouse,
		Role:      s.role,
		User:      s.User,
	}
}

// SetDatabase switches the current database. The schema falls back to
// PUBLIC.
func (s *Session) SetDatabase(database string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.database = database
	s.schema = db.DefaultSchema
}

// SetNamespace sets database and schema together.
func (s *Session) SetNamespace(database, schema string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.database = database
	s.schema = schema
}

func (s *Session) SetWarehouse(warehouse string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warehouse = warehouse
}

func (s *Session) SetRole(role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
}

// SetParam records a session parameter. Names are case-insensitive.
func (s *Session) SetParam(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[strings.ToUpper(name)] = value
}

// UnsetParam restores a parameter to its default.
func (s *Session) UnsetParam(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.params, strings.ToUpper(name))
}

// Parameters returns the defaults overlaid with the session's own values,
// sorted by name.
func (s *Session) Parameters() []Parameter {
	s.mu.Lock()
	merged := make(map[string]any, len(defaultParameters)+len(s.params))
	for k, v := range defaultParameters {
		merged[k] = v
	}
	for k, v := range s.params {
		merged[k] = v
	}
	s.mu.Unlock()

	out := make([]Parameter, 0, len(merged))
	for k, v := range merged {
		out = append(out, Parameter{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
}

// IdleSince returns when the session was last used. A running query keeps
// it active.
func (s *Session) IdleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed, s.state != StateQueryRunning
}

// begin moves the session to QUERY_RUNNING with q as its current query.
func (s *Session) begin(q *Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateQueryRunning:
		return ErrSessionBusy
	}
	s.state = StateQueryRunning
	s.current = q
	s.lastUsed = time.Now()
	return nil
}

// finish records that q's worker is done. An aborted query returns the
// session straight to CONNECTED.
func (s *Session) finish(q *Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != q {
		return
	}
	switch s.state {
	case StateQueryRunning:
		s.state = StateResultReady
	case StateAborted:
		s.state = StateConnected
		s.current = nil
	}
	s.lastUsed = time.Now()
}

// delivered records that q's result reached the client.
func (s *Session) delivered(q *Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == q && s.state == StateResultReady {
		s.state = StateConnected
		s.current = nil
	}
	s.lastUsed = time.Now()
}

// abort moves the session to ABORTED if q is its running query.
func (s *Session) abort(q *Query) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != q || s.state != StateQueryRunning {
		return false
	}
	s.state = StateAborted
	return true
}

// close marks the session CLOSED and returns the query still attached to
// it, if any. Closing twice is harmless.
func (s *Session) close() (*Query, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, false
	}
	s.state = StateClosed
	q := s.current
	s.current = nil
	return q, true
}

// SessionInfo is the admin view of a session.
type SessionInfo struct {
	ID        int64     `json:"id"`
	Account   string    `json:"account"`
	User      string    `json:"user"`
	ClientApp string    `json:"clientApp,omitempty"`
	State     string    `json:"state"`
	Database  string    `json:"database"`
	Schema    string    `json:"schema"`
	Warehouse string    `json:"warehouse"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
	QueryID   string    `json:"queryId,omitempty"`
}

// Info snapshots the session for listings.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ID:        s.ID,
		Account:   s.Account,
		User:      s.User,
		ClientApp: s.ClientApp,
		State:     s.state.String(),
		Database:  s.database,
		Schema:    s.schema,
		Warehouse: s.warehouse,
		Role:      s.role,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.lastUsed,
	}
	if s.current != nil {
		info.QueryID = s.current.ID
	}
	return info
}
