package protocol

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/powder/db"
)

func newTestQuery(id string, s *Session) *Query {
	_, cancel := context.WithCancel(context.Background())
	return newQuery(id, "req-"+id, "SELECT 1", s, cancel)
}

func TestSessionLifecycle(t *testing.T) {
	s := NewSession(1, "tok", "master", "ALICE")
	assert.Equal(t, StateConnected, s.State())

	q1 := newTestQuery("q1", s)
	require.NoError(t, s.begin(q1))
	assert.Equal(t, StateQueryRunning, s.State())

	err := s.begin(newTestQuery("q2", s))
	assert.ErrorIs(t, err, ErrSessionBusy)

	s.finish(q1)
	assert.Equal(t, StateResultReady, s.State())
	s.delivered(q1)
	assert.Equal(t, StateConnected, s.State())

	q3 := newTestQuery("q3", s)
	require.NoError(t, s.begin(q3))
	assert.True(t, s.abort(q3))
	assert.Equal(t, StateAborted, s.State())
	s.finish(q3)
	assert.Equal(t, StateConnected, s.State())

	got, ok := s.close()
	assert.True(t, ok)
	assert.Nil(t, got)
	_, ok = s.close()
	assert.False(t, ok)
	assert.ErrorIs(t, s.begin(newTestQuery("q4", s)), ErrSessionClosed)
}

func TestSessionResultReadyAcceptsNextQuery(t *testing.T) {
	s := NewSession(1, "tok", "master", "ALICE")
	q1 := newTestQuery("q1", s)
	require.NoError(t, s.begin(q1))
	s.finish(q1)

	q2 := newTestQuery("q2", s)
	require.NoError(t, s.begin(q2))
	assert.Equal(t, "q2", s.Info().QueryID)
}

func TestSettledQueryFreesSessionForWaiter(t *testing.T) {
	s := NewSession(1, "tok", "master", "ALICE")
	for i := 0; i < 200; i++ {
		q := newTestQuery("q", s)
		require.NoError(t, s.begin(q))

		go settle(q, &QueryResult{Total: 1}, nil)

		require.True(t, q.Wait(context.Background(), time.Second))
		s.delivered(q)
		require.Equal(t, StateConnected, s.State(), "iteration %d", i)
	}

	next := newTestQuery("next", s)
	assert.NoError(t, s.begin(next))
}

func TestSessionParameters(t *testing.T) {
	s := NewSession(1, "tok", "master", "ALICE")
	s.SetParam("timezone", "America/New_York")
	s.SetParam("custom_flag", true)

	params := map[string]any{}
	for _, p := range s.Parameters() {
		params[p.Name] = p.Value
	}
	assert.Equal(t, "America/New_York", params["TIMEZONE"])
	assert.Equal(t, true, params["CUSTOM_FLAG"])
	assert.Equal(t, "JSON", params["QUERY_RESULT_FORMAT"])

	s.UnsetParam("TimeZone")
	for _, p := range s.Parameters() {
		if p.Name == "TIMEZONE" {
			assert.Equal(t, "UTC", p.Value)
		}
	}
}

func TestSessionNamespace(t *testing.T) {
	s := NewSession(1, "tok", "master", "ALICE")
	s.SetNamespace("DB1", "SCHEMA1")
	env := s.Env()
	assert.Equal(t, "DB1", env.Database)
	assert.Equal(t, "SCHEMA1", env.Schema)
	assert.Equal(t, "ALICE", env.User)

	s.SetDatabase("DB2")
	assert.Equal(t, db.DefaultSchema, s.Env().Schema)
}

func TestQueryCompleteOnce(t *testing.T) {
	s := NewSession(1, "tok", "master", "ALICE")
	q := newTestQuery("q1", s)

	q.complete(&QueryResult{Total: 3}, nil)
	q.complete(nil, objectExistsError("X"))

	res, qerr := q.Outcome()
	assert.Nil(t, qerr)
	assert.Equal(t, int64(3), res.Total)
	status, end := q.Status()
	assert.Equal(t, db.QuerySuccess, status)
	assert.False(t, end.IsZero())
}

func TestQueryAbortWinsOverResult(t *testing.T) {
	s := NewSession(1, "tok", "master", "ALICE")
	q := newTestQuery("q1", s)

	q.Abort()
	assert.True(t, q.Wait(context.Background(), time.Second))
	_, qerr := q.Outcome()
	require.NotNil(t, qerr)
	assert.Equal(t, ErrnoCanceled, qerr.Errno)
	assert.Equal(t, "q1", qerr.QueryID)

	q.complete(&QueryResult{}, nil)
	_, qerr = q.Outcome()
	require.NotNil(t, qerr)
	assert.Equal(t, ErrnoCanceled, qerr.Errno)
	status, _ := q.Status()
	assert.Equal(t, db.QueryAborted, status)
}

func TestQueryWaitTimeout(t *testing.T) {
	s := NewSession(1, "tok", "master", "ALICE")
	q := newTestQuery("q1", s)
	assert.False(t, q.Wait(context.Background(), 10*time.Millisecond))

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.complete(&QueryResult{}, nil)
	}()
	assert.True(t, q.Wait(context.Background(), time.Second))
}

func TestSessionRegistry(t *testing.T) {
	r := NewSessionRegistry()
	s := NewSession(7, "tok", "master", "ALICE")
	r.Add(s)

	got, err := r.ByToken("tok")
	require.NoError(t, err)
	assert.Same(t, s, got)
	got, err = r.ByMasterToken("master")
	require.NoError(t, err)
	assert.Same(t, s, got)

	r.Rotate(s, "tok2")
	_, err = r.ByToken("tok")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	got, err = r.ByToken("tok2")
	require.NoError(t, err)
	assert.Same(t, s, got)

	assert.True(t, r.Remove(s))
	assert.False(t, r.Remove(s))
	_, err = r.ByID(7)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, r.Len())
}

func TestSessionRegistryReap(t *testing.T) {
	r := NewSessionRegistry()
	idle := NewSession(1, "a", "ma", "U")
	busy := NewSession(2, "b", "mb", "U")
	fresh := NewSession(3, "c", "mc", "U")
	r.Add(idle)
	r.Add(busy)
	r.Add(fresh)
	require.NoError(t, busy.begin(newTestQuery("q", busy)))

	var expired []int64
	now := time.Now().Add(time.Hour)
	fresh.mu.Lock()
	fresh.lastUsed = now
	fresh.mu.Unlock()

	n := r.reap(now, time.Minute, func(s *Session) {
		expired = append(expired, s.ID)
		r.Remove(s)
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, expired)
	assert.Equal(t, 2, r.Len())
}

func TestRunReaperStops(t *testing.T) {
	r := NewSessionRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- r.RunReaper(ctx, time.Minute, 5*time.Millisecond, func(*Session) { calls.Add(1) })
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
	assert.Zero(t, calls.Load())
}

func TestQueryRegistry(t *testing.T) {
	r, err := NewQueryRegistry(2)
	require.NoError(t, err)
	s := NewSession(1, "tok", "master", "ALICE")

	q1 := newTestQuery("q1", s)
	r.Add(q1)
	assert.Equal(t, 1, r.RunningCount())
	got, ok := r.ByRequestID("req-q1")
	require.True(t, ok)
	assert.Same(t, q1, got)

	r.Finish(q1)
	assert.Equal(t, 0, r.RunningCount())
	_, ok = r.ByRequestID("req-q1")
	assert.False(t, ok)
	got, err = r.Get("q1")
	require.NoError(t, err)
	assert.Same(t, q1, got)

	for _, id := range []string{"q2", "q3"} {
		q := newTestQuery(id, s)
		r.Add(q)
		r.Finish(q)
	}
	_, err = r.Get("q1")
	assert.True(t, errors.Is(err, ErrQueryNotFound))
}
