package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/id"
	"github.com/maxpert/powder/protocol/query"
	"github.com/maxpert/powder/telemetry"
)

const (
	codeQueryInProgress = "333334"
	serverVersion       = "8.40.0"
	masterValidity      = 4 * 3600
)

// ServerOptions tunes the wire protocol server.
type ServerOptions struct {
	Account             string
	InlineWait          time.Duration
	MaxBodyBytes        int64
	AutoCreateNamespace bool
	ValiditySeconds     int
	FinishedQueries     int
}

// statementRunner executes one client request for a session.
type statementRunner interface {
	Execute(ctx context.Context, s *Session, req *Request) (*QueryResult, error)
}

// Server speaks the warehouse HTTP protocol: login, query, abort, result
// polling and session management.
type Server struct {
	opts     ServerOptions
	executor statementRunner
	catalog  *db.Catalog
	history  *db.QueryHistory
	clock    *id.Clock
	sessions *SessionRegistry
	queries  *QueryRegistry

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	mu      sync.Mutex
	httpSrv *http.Server
}

// NewServer wires a server. history may be nil.
func NewServer(engine *db.Engine, pipeline *query.Pipeline, history *db.QueryHistory, clock *id.Clock, opts ServerOptions) (*Server, error) {
	queries, err := NewQueryRegistry(opts.FinishedQueries)
	if err != nil {
		return nil, fmt.Errorf("failed to create query registry: %w", err)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	if opts.ValiditySeconds <= 0 {
		opts.ValiditySeconds = 3600
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:     opts,
		executor: NewExecutor(engine, pipeline),
		catalog:  engine.Catalog(),
		history:  history,
		clock:    clock,
		sessions: NewSessionRegistry(),
		queries:  queries,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (s *Server) Sessions() *SessionRegistry { return s.sessions }

func (s *Server) Queries() *QueryRegistry { return s.queries }

func (s *Server) History() *db.QueryHistory { return s.history }

// SessionStats reports live sessions and in-flight queries.
func (s *Server) SessionStats() (active, running int) {
	return s.sessions.Len(), s.queries.RunningCount()
}

// Handler returns the protocol routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Post("/session/v1/login-request", s.handleLogin)
	r.Post("/session/token-request", s.handleTokenRenew)
	r.Post("/session/heartbeat", s.handleHeartbeat)
	r.Post("/session", s.handleSessionClose)
	r.Post("/queries/v1/query-request", s.handleQuery)
	r.Post("/queries/v1/abort-request", s.handleAbort)
	r.Get("/queries/{queryID}/result", s.handleResult)
	r.Get("/monitoring/queries/{queryID}", s.handleMonitoring)
	r.Post("/telemetry/send", s.handleTelemetry)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProtocolError(w, &ProtocolError{Status: http.StatusNotFound, Message: "unknown endpoint " + r.URL.Path})
	})

	return gzhttp.GzipHandler(r)
}

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	log.Info().Str("address", ln.Addr().String()).Msg("Wire protocol server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes every session and waits for
// running statements to unwind.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, sess := range s.sessions.List() {
		s.CloseSession(sess, "shutdown")
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}
	return err
}

// CloseSession closes sess and aborts its running query. Closing twice is
// harmless.
func (s *Server) CloseSession(sess *Session, reason string) {
	q, ok := sess.close()
	if !ok {
		return
	}
	if q != nil && !q.Done() {
		q.Abort()
		telemetry.QueryAbortsTotal.Inc()
	}
	if s.sessions.Remove(sess) {
		telemetry.SessionsActive.Dec()
	}
	telemetry.SessionEventsTotal.With(reason).Inc()
	log.Info().Int64("session_id", sess.ID).Str("reason", reason).Msg("Session closed")
}

// AbortQuery aborts a running query by id.
func (s *Server) AbortQuery(queryID string) error {
	q, err := s.queries.Get(queryID)
	if err != nil {
		return err
	}
	s.abort(q)
	return nil
}

func (s *Server) abort(q *Query) {
	if q.Done() {
		return
	}
	q.Session.abort(q)
	q.Abort()
	telemetry.QueryAbortsTotal.Inc()
	log.Info().Str("query_id", q.ID).Int64("session_id", q.Session.ID).Msg("Query aborted")
}

// RunReaper expires idle sessions until ctx is done.
func (s *Server) RunReaper(ctx context.Context, idle, interval time.Duration) error {
	return s.sessions.RunReaper(ctx, idle, interval, func(sess *Session) {
		s.CloseSession(sess, "expired")
	})
}

// ---- wire types ----

type response struct {
	Data    any     `json:"data"`
	Code    *string `json:"code"`
	Message *string `json:"message"`
	Success bool    `json:"success"`
}

type loginRequest struct {
	Data struct {
		ClientAppID       string         `json:"CLIENT_APP_ID"`
		ClientAppVersion  string         `json:"CLIENT_APP_VERSION"`
		AccountName       string         `json:"ACCOUNT_NAME"`
		LoginName         string         `json:"LOGIN_NAME"`
		Authenticator     string         `json:"AUTHENTICATOR"`
		SessionParameters map[string]any `json:"SESSION_PARAMETERS"`
	} `json:"data"`
}

type sessionInfo struct {
	DatabaseName  *string `json:"databaseName"`
	SchemaName    *string `json:"schemaName"`
	WarehouseName *string `json:"warehouseName"`
	RoleName      *string `json:"roleName"`
}

type loginData struct {
	Token                   string      `json:"token"`
	MasterToken             string      `json:"masterToken"`
	ValidityInSeconds       int         `json:"validityInSeconds"`
	MasterValidityInSeconds int         `json:"masterValidityInSeconds"`
	DisplayUserName         string      `json:"displayUserName"`
	ServerVersion           string      `json:"serverVersion"`
	FirstLogin              bool        `json:"firstLogin"`
	HealthCheckInterval     int         `json:"healthCheckInterval"`
	SessionID               int64       `json:"sessionId"`
	Parameters              []Parameter `json:"parameters"`
	SessionInfo             sessionInfo `json:"sessionInfo"`
}

type queryRequest struct {
	SQLText      string             `json:"sqlText"`
	AsyncExec    bool               `json:"asyncExec"`
	SequenceID   int64              `json:"sequenceId"`
	Bindings     map[string]Binding `json:"bindings"`
	DescribeOnly bool               `json:"describeOnly"`
}

type queryData struct {
	Parameters         []Parameter        `json:"parameters"`
	RowType            []ColumnDescriptor `json:"rowtype"`
	RowSet             [][]*string        `json:"rowset"`
	Total              int64              `json:"total"`
	Returned           int64              `json:"returned"`
	QueryID            string             `json:"queryId"`
	DatabaseProvider   *string            `json:"databaseProvider"`
	FinalDatabaseName  *string            `json:"finalDatabaseName"`
	FinalSchemaName    *string            `json:"finalSchemaName"`
	FinalWarehouseName *string            `json:"finalWarehouseName"`
	FinalRoleName      *string            `json:"finalRoleName"`
	NumberOfBinds      int                `json:"numberOfBinds"`
	StatementTypeID    int64              `json:"statementTypeId"`
	Version            int                `json:"version"`
	SendResultTime     int64              `json:"sendResultTime"`
	QueryResultFormat  string             `json:"queryResultFormat"`
}

type errorData struct {
	Age           int    `json:"age"`
	ErrorCode     string `json:"errorCode"`
	InternalError bool   `json:"internalError"`
	Line          int    `json:"line"`
	Pos           int    `json:"pos"`
	QueryID       string `json:"queryId"`
	SQLState      string `json:"sqlState"`
	Type          string `json:"type"`
}

type pendingData struct {
	GetResultURL string `json:"getResultUrl"`
	QueryID      string `json:"queryId"`
}

type abortRequest struct {
	SQLText   string `json:"sqlText"`
	RequestID string `json:"requestId"`
}

type tokenRequest struct {
	OldSessionToken string `json:"oldSessionToken"`
	RequestType     string `json:"requestType"`
}

type tokenData struct {
	SessionToken        string `json:"sessionToken"`
	ValidityInSecondsST int    `json:"validityInSecondsST"`
	MasterToken         string `json:"masterToken"`
	ValidityInSecondsMT int    `json:"validityInSecondsMT"`
	SessionID           int64  `json:"sessionId"`
}

type monitoringQuery struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	SQLText      string `json:"sqlText"`
	StartTime    int64  `json:"startTime"`
	EndTime      int64  `json:"endTime"`
	SessionID    int64  `json:"sessionId"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type monitoringData struct {
	Queries []monitoringQuery `json:"queries"`
}

// ---- handlers ----

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		telemetry.LoginsTotal.With("failed").Inc()
		writeProtocolError(w, err)
		return
	}

	params := r.URL.Query()
	database := normalizeObjectName(params.Get("databaseName"))
	schema := normalizeObjectName(params.Get("schemaName"))
	if database != "" && schema == "" {
		schema = db.DefaultSchema
	}

	if database != "" {
		if s.opts.AutoCreateNamespace {
			if err := s.catalog.EnsureNamespace(r.Context(), database, schema); err != nil {
				telemetry.LoginsTotal.With("failed").Inc()
				log.Error().Err(err).Str("database", database).Str("schema", schema).Msg("Failed to create login namespace")
				writeProtocolError(w, &ProtocolError{Status: http.StatusInternalServerError, Message: err.Error()})
				return
			}
		} else if ok, err := s.catalog.SchemaExists(r.Context(), database, schema); err != nil || !ok {
			database, schema = "", ""
		}
	}

	token, err := id.Token(32)
	if err != nil {
		writeProtocolError(w, &ProtocolError{Status: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	master, err := id.Token(32)
	if err != nil {
		writeProtocolError(w, &ProtocolError{Status: http.StatusInternalServerError, Message: err.Error()})
		return
	}

	user := strings.ToUpper(req.Data.LoginName)
	sess := NewSession(int64(s.clock.NextID()), token, master, user)
	sess.Account = req.Data.AccountName
	if sess.Account == "" {
		sess.Account = s.opts.Account
	}
	sess.ClientApp = req.Data.ClientAppID
	sess.SetNamespace(database, schema)
	sess.SetWarehouse(normalizeObjectName(params.Get("warehouse")))
	sess.SetRole(normalizeObjectName(params.Get("roleName")))
	for k, v := range req.Data.SessionParameters {
		sess.SetParam(k, v)
	}
	s.sessions.Add(sess)

	telemetry.LoginsTotal.With("success").Inc()
	telemetry.SessionsActive.Inc()
	telemetry.SessionEventsTotal.With("opened").Inc()
	log.Info().
		Int64("session_id", sess.ID).
		Str("user", user).
		Str("client", sess.ClientApp).
		Str("database", database).
		Str("schema", schema).
		Msg("Session opened")

	info := sess.Info()
	writeSuccess(w, &loginData{
		Token:                   token,
		MasterToken:             master,
		ValidityInSeconds:       s.opts.ValiditySeconds,
		MasterValidityInSeconds: masterValidity,
		DisplayUserName:         user,
		ServerVersion:           serverVersion,
		HealthCheckInterval:     45,
		SessionID:               sess.ID,
		Parameters:              sess.Parameters(),
		SessionInfo: sessionInfo{
			DatabaseName:  nilIfEmpty(info.Database),
			SchemaName:    nilIfEmpty(info.Schema),
			WarehouseName: nilIfEmpty(info.Warehouse),
			RoleName:      nilIfEmpty(info.Role),
		},
	})
}

func (s *Server) handleTokenRenew(w http.ResponseWriter, r *http.Request) {
	master, ok := authToken(r)
	if !ok {
		writeProtocolError(w, ErrSessionNotFound)
		return
	}
	sess, err := s.sessions.ByMasterToken(master)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	var req tokenRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeProtocolError(w, err)
		return
	}
	token, err := id.Token(32)
	if err != nil {
		writeProtocolError(w, &ProtocolError{Status: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	s.sessions.Rotate(sess, token)
	sess.Touch()
	telemetry.SessionEventsTotal.With("renewed").Inc()

	writeSuccess(w, &tokenData{
		SessionToken:        token,
		ValidityInSecondsST: s.opts.ValiditySeconds,
		MasterToken:         master,
		ValidityInSecondsMT: masterValidity,
		SessionID:           sess.ID,
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	sess.Touch()
	writeSuccess(w, nil)
}

func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("delete") != "true" {
		writeProtocolError(w, &ProtocolError{Status: http.StatusBadRequest, Message: "unsupported session request"})
		return
	}
	if sess, err := s.sessionFor(r); err == nil {
		s.CloseSession(sess, "closed")
	}
	writeSuccess(w, nil)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	var req queryRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeProtocolError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	q := newQuery(s.clock.NextQueryID(), r.URL.Query().Get("requestId"), req.SQLText, sess, cancel)
	if err := sess.begin(q); err != nil {
		cancel()
		writeProtocolError(w, err)
		return
	}
	s.queries.Add(q)
	s.recordHistory(q, sess)
	telemetry.QueriesRunning.Inc()

	log.Debug().
		Int64("session_id", sess.ID).
		Str("query_id", q.ID).
		Str("request_id", q.RequestID).
		Bool("async", req.AsyncExec).
		Msg("Query started")

	s.workers.Add(1)
	go s.run(ctx, q, &Request{SQL: req.SQLText, Bindings: req.Bindings, DescribeOnly: req.DescribeOnly})

	if req.AsyncExec {
		telemetry.AsyncQueriesTotal.Inc()
		writePending(w, q)
		return
	}
	s.awaitAndDeliver(w, r, q)
}

// run executes q on its own goroutine so the request can stop waiting for
// it.
func (s *Server) run(ctx context.Context, q *Query, req *Request) {
	defer s.workers.Done()
	defer telemetry.QueriesRunning.Dec()

	res, err := s.execute(ctx, q, req)
	var qerr *QueryError
	if err != nil {
		qerr = MapError(err, nil)
	}
	settle(q, res, qerr)
	s.queries.Finish(q)
	s.recordHistory(q, q.Session)

	status, end := q.Status()
	ev := log.Debug()
	if qerr != nil {
		telemetry.QueryErrorsTotal.With(qerr.Code()).Inc()
		ev = log.Info().Int("errno", qerr.Errno).Str("sql_state", qerr.SQLState)
	}
	ev.Int64("session_id", q.Session.ID).
		Str("query_id", q.ID).
		Str("status", status).
		Dur("duration", end.Sub(q.Start)).
		Msg("Query finished")
}

// settle records the outcome of q. The session leaves QUERY_RUNNING before
// waiters wake, so a client may submit its next statement as soon as it has
// this one's answer.
func settle(q *Query, res *QueryResult, qerr *QueryError) {
	q.Session.finish(q)
	q.complete(res, qerr)
}

// execute runs req, turning a panic into an internal error of the query.
func (s *Server) execute(ctx context.Context, q *Query, req *Request) (res *QueryResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("query_id", q.ID).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("Query worker panicked")
			res, err = nil, newQueryError(KindEngine, ErrnoInternal, SQLStateInternal, fmt.Sprintf("internal error: %v", p))
		}
	}()
	return s.executor.Execute(ctx, q.Session, req)
}

func (s *Server) awaitAndDeliver(w http.ResponseWriter, r *http.Request, q *Query) {
	if !q.Wait(r.Context(), s.opts.InlineWait) {
		telemetry.AsyncQueriesTotal.Inc()
		writePending(w, q)
		return
	}
	res, qerr := q.Outcome()
	q.Session.delivered(q)
	if qerr != nil {
		writeQueryError(w, qerr)
		return
	}
	writeSuccess(w, &queryData{
		Parameters:         q.Session.Parameters(),
		RowType:            res.RowType,
		RowSet:             res.RowSet,
		Total:              res.Total,
		Returned:           int64(len(res.RowSet)),
		QueryID:            q.ID,
		FinalDatabaseName:  nilIfEmpty(res.Database),
		FinalSchemaName:    nilIfEmpty(res.Schema),
		FinalWarehouseName: nilIfEmpty(res.Warehouse),
		FinalRoleName:      nilIfEmpty(res.Role),
		StatementTypeID:    res.TypeID,
		Version:            1,
		SendResultTime:     time.Now().UnixMilli(),
		QueryResultFormat:  "json",
	})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	var req abortRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeProtocolError(w, err)
		return
	}
	// Only the owning session may abort its request.
	if q, ok := s.queries.ByRequestID(req.RequestID); ok && q.Session == sess {
		s.abort(q)
	}
	writeSuccess(w, nil)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	q, err := s.queries.Get(chi.URLParam(r, "queryID"))
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	if q.Session != sess {
		writeProtocolError(w, ErrQueryNotFound)
		return
	}
	s.awaitAndDeliver(w, r, q)
}

func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessionFor(r); err != nil {
		writeProtocolError(w, err)
		return
	}
	queryID := chi.URLParam(r, "queryID")

	var mq *monitoringQuery
	if q, err := s.queries.Get(queryID); err == nil {
		info := q.Info()
		mq = &monitoringQuery{
			ID:        info.ID,
			Status:    info.Status,
			SQLText:   info.SQLText,
			StartTime: info.StartTime.UnixMilli(),
			SessionID: info.SessionID,
		}
		if !info.EndTime.IsZero() {
			mq.EndTime = info.EndTime.UnixMilli()
		}
		if info.Errno != 0 {
			mq.ErrorCode = strconv.Itoa(info.Errno)
			mq.ErrorMessage = info.Message
		}
	} else if s.history != nil {
		rec, err := s.history.Get(queryID)
		if err != nil {
			writeProtocolError(w, &ProtocolError{Status: http.StatusInternalServerError, Message: err.Error()})
			return
		}
		if rec != nil {
			mq = &monitoringQuery{
				ID:        rec.QueryID,
				Status:    rec.Status,
				SQLText:   rec.SQLText,
				StartTime: rec.StartTime.UnixMilli(),
				SessionID: rec.SessionID,
			}
			if !rec.EndTime.IsZero() {
				mq.EndTime = rec.EndTime.UnixMilli()
			}
			if rec.Errno != 0 {
				mq.ErrorCode = strconv.Itoa(rec.Errno)
				mq.ErrorMessage = rec.Message
			}
		}
	}
	if mq == nil {
		writeProtocolError(w, ErrQueryNotFound)
		return
	}
	writeSuccess(w, &monitoringData{Queries: []monitoringQuery{*mq}})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	writeSuccess(w, nil)
}

// ---- helpers ----

func (s *Server) sessionFor(r *http.Request) (*Session, error) {
	token, ok := authToken(r)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.sessions.ByToken(token)
}

// authToken extracts the token of an `Authorization: Snowflake Token="..."`
// header.
func authToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, rest, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Snowflake") {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "Token=") {
		return "", false
	}
	token := strings.Trim(strings.TrimPrefix(rest, "Token="), `"`)
	return token, token != ""
}

// decodeBody reads a JSON body, transparently inflating gzip uploads.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := io.Reader(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(body)
		if err != nil {
			return &ProtocolError{Status: http.StatusBadRequest, Message: "invalid gzip body: " + err.Error()}
		}
		defer zr.Close()
		body = zr
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return &ProtocolError{Status: http.StatusBadRequest, Message: "invalid request body: " + err.Error()}
	}
	return nil
}

func (s *Server) recordHistory(q *Query, sess *Session) {
	if s.history == nil {
		return
	}
	status, end := q.Status()
	info := sess.Info()
	rec := &db.QueryRecord{
		QueryID:   q.ID,
		RequestID: q.RequestID,
		SessionID: sess.ID,
		SQLText:   q.SQL,
		Status:    status,
		Database:  info.Database,
		Schema:    info.Schema,
		StartTime: q.Start,
		EndTime:   end,
	}
	if q.Done() {
		res, qerr := q.Outcome()
		if qerr != nil {
			rec.Errno, rec.SQLState, rec.Message = qerr.Errno, qerr.SQLState, qerr.Message
		} else if res != nil {
			rec.Rows = res.Total
			if res.Affected > 0 {
				rec.Rows = res.Affected
			}
		}
	}
	if err := s.history.Record(rec); err != nil {
		log.Warn().Err(err).Str("query_id", q.ID).Msg("Failed to record query history")
	}
}

// normalizeObjectName applies identifier rules to a name sent outside SQL:
// quoted names keep their case, others are upper-cased.
func normalizeObjectName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		return strings.ReplaceAll(name[1:len(name)-1], `""`, `"`)
	}
	return strings.ToUpper(name)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, &response{Data: data, Success: true})
}

func writePending(w http.ResponseWriter, q *Query) {
	code := codeQueryInProgress
	msg := "Asynchronous execution in progress. Use provided query id to perform query monitoring and management."
	writeJSON(w, http.StatusOK, &response{
		Data:    &pendingData{GetResultURL: "/queries/" + q.ID + "/result", QueryID: q.ID},
		Code:    &code,
		Message: &msg,
		Success: true,
	})
}

func writeQueryError(w http.ResponseWriter, qe *QueryError) {
	if qe.Kind == KindProtocol {
		writeProtocolError(w, &ProtocolError{Status: http.StatusBadRequest, Message: qe.Message})
		return
	}
	code := qe.Code()
	errType := "EXECUTION"
	if qe.Kind == KindSyntax || qe.Kind == KindObjectNotFound {
		errType = "COMPILATION"
	}
	writeJSON(w, http.StatusOK, &response{
		Data: &errorData{
			ErrorCode: code,
			Line:      qe.Line,
			Pos:       qe.Pos,
			QueryID:   qe.QueryID,
			SQLState:  qe.SQLState,
			Type:      errType,
		},
		Code:    &code,
		Message: &qe.Message,
		Success: false,
	})
}

func writeProtocolError(w http.ResponseWriter, err error) {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		pe = &ProtocolError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	writeJSON(w, pe.Status, &response{Message: &pe.Message, Success: false})
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
