package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/id"
	"github.com/maxpert/powder/protocol"
	"github.com/maxpert/powder/protocol/query"
)

const testSecret = "s3cret"

type fixture struct {
	server *protocol.Server
	wire   *httptest.Server
	admin  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := db.OpenEngine(db.EngineOptions{
		Path:          filepath.Join(t.TempDir(), "powder.db"),
		PoolSize:      2,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	history, err := db.OpenQueryHistory("")
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	pipeline, err := query.NewPipeline(64)
	require.NoError(t, err)

	srv, err := protocol.NewServer(engine, pipeline, history, id.NewClock(3), protocol.ServerOptions{
		InlineWait:          time.Second,
		AutoCreateNamespace: true,
		FinishedQueries:     16,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewAdminHandlers(srv, engine), testSecret)

	f := &fixture{server: srv, wire: httptest.NewServer(srv.Handler()), admin: httptest.NewServer(mux)}
	t.Cleanup(func() {
		f.wire.Close()
		f.admin.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return f
}

// login opens a wire session and returns its token.
func (f *fixture) login(t *testing.T) string {
	t.Helper()
	body := `{"data":{"LOGIN_NAME":"admin_test"}}`
	resp, err := http.Post(f.wire.URL+"/session/v1/login-request?databaseName=db&schemaName=s",
		"application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Data struct {
			Token     string `json:"token"`
			SessionID int64  `json:"sessionId"`
		} `json:"data"`
		Success bool `json:"success"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success)
	return out.Data.Token
}

func (f *fixture) submit(t *testing.T, token, sql string, async bool) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{"sqlText": sql, "asyncExec": async})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, f.wire.URL+"/queries/v1/query-request", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", fmt.Sprintf(`Snowflake Token="%s"`, token))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Data struct {
			QueryID string `json:"queryId"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Data.QueryID
}

func (f *fixture) adminCall(t *testing.T, method, path string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.admin.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-Powder-Secret", testSecret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.admin.URL + "/admin/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, f.admin.URL+"/admin/health", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, f.admin.URL+"/admin/health", nil)
	req.Header.Set("Authorization", "Bearer "+testSecret)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	called := false
	h := AuthMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestSessionsEndpoints(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	status, out := f.adminCall(t, http.MethodGet, "/admin/sessions")
	require.Equal(t, http.StatusOK, status)
	sessions := out["data"].([]any)
	require.Len(t, sessions, 1)
	info := sessions[0].(map[string]any)
	assert.Equal(t, "ADMIN_TEST", info["user"])
	assert.Equal(t, "DB", info["database"])
	assert.Equal(t, "CONNECTED", info["state"])

	sessionID := int64(info["id"].(float64))
	status, _ = f.adminCall(t, http.MethodDelete, fmt.Sprintf("/admin/sessions/%d", sessionID))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, f.server.Sessions().Len())

	status, _ = f.adminCall(t, http.MethodDelete, fmt.Sprintf("/admin/sessions/%d", sessionID))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.adminCall(t, http.MethodGet, "/admin/sessions/abc")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestQueriesEndpoints(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	queryID := f.submit(t, token, "select system$wait(30)", true)
	require.NotEmpty(t, queryID)

	status, out := f.adminCall(t, http.MethodGet, "/admin/queries")
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)
	running := data["running"].([]any)
	require.Len(t, running, 1)
	assert.Equal(t, queryID, running[0].(map[string]any)["id"])

	status, _ = f.adminCall(t, http.MethodPost, "/admin/queries/"+queryID+"/abort")
	assert.Equal(t, http.StatusOK, status)

	require.Eventually(t, func() bool {
		status, out := f.adminCall(t, http.MethodGet, "/admin/queries/"+queryID)
		if status != http.StatusOK {
			return false
		}
		return out["data"].(map[string]any)["status"] == db.QueryAborted
	}, 5*time.Second, 20*time.Millisecond)

	status, _ = f.adminCall(t, http.MethodPost, "/admin/queries/nope/abort")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = f.adminCall(t, http.MethodGet, "/admin/queries/nope")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDatabasesAndStats(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	status, out := f.adminCall(t, http.MethodGet, "/admin/databases")
	require.Equal(t, http.StatusOK, status)
	dbs := out["data"].([]any)
	require.Len(t, dbs, 1)
	assert.Equal(t, "DB", dbs[0].(map[string]any)["name"])

	status, out = f.adminCall(t, http.MethodGet, "/admin/databases/DB/schemas")
	require.Equal(t, http.StatusOK, status)
	var names []string
	for _, s := range out["data"].([]any) {
		names = append(names, s.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "S")

	status, _ = f.adminCall(t, http.MethodGet, "/admin/databases/NOPE/schemas")
	assert.Equal(t, http.StatusNotFound, status)

	status, out = f.adminCall(t, http.MethodGet, "/admin/stats")
	require.Equal(t, http.StatusOK, status)
	stats := out["data"].(map[string]any)
	assert.Equal(t, float64(1), stats["sessions"])
	assert.Equal(t, true, stats["history_enabled"])
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 256, false},
		{"limit=10", 10, false},
		{"limit=0", 0, true},
		{"limit=5000", 0, true},
		{"limit=x", 0, true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		got, err := parseLimit(r)
		if tt.wantErr {
			assert.Error(t, err, tt.query)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
