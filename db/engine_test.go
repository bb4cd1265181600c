package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := OpenEngine(EngineOptions{
		Path:          filepath.Join(t.TempDir(), "powder.db"),
		PoolSize:      4,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineEphemeralPath(t *testing.T) {
	e, err := OpenEngine(EngineOptions{PoolSize: 2})
	require.NoError(t, err)
	path := e.Path()
	assert.FileExists(t, path)

	require.NoError(t, e.Close())
	assert.NoFileExists(t, path)
}

func TestEngineQueryColumns(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Exec(ctx, `CREATE TABLE "DB_S.T" (B BOOLEAN, I INT, F FLOAT, D DECIMAL(10,2), V VARCHAR)`)
	require.NoError(t, err)
	n, err := e.Exec(ctx, `INSERT INTO "DB_S.T" VALUES (1, 2, 3.5, 4.25, 'x'), (0, 3, 1.0, 2.5, 'y')`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rs, err := e.Query(ctx, `SELECT * FROM "DB_S.T" AS T ORDER BY I`, true)
	require.NoError(t, err)
	require.Len(t, rs.Columns, 5)
	assert.Equal(t, Column{Name: "B", DeclType: "BOOLEAN"}, rs.Columns[0])
	assert.Equal(t, "DECIMAL(10,2)", rs.Columns[3].DeclType)
	require.Len(t, rs.Rows, 2)
	assert.Equal(t, true, rs.Rows[0][0])
	assert.Equal(t, int64(2), rs.Rows[0][1])
	assert.Equal(t, "x", rs.Rows[0][4])
}

func TestEngineQueryError(t *testing.T) {
	e := openTestEngine(t)

	_, err := e.Query(context.Background(), `SELECT * FROM "NOPE.T"`, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
}

func TestEngineWritersSerialized(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Exec(ctx, `CREATE TABLE "DB_S.COUNTS" (N INT)`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Query(ctx, fmt.Sprintf(`INSERT INTO "DB_S.COUNTS" VALUES (%d)`, i), false)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rs, err := e.Query(ctx, `SELECT COUNT(*) FROM "DB_S.COUNTS"`, true)
	require.NoError(t, err)
	assert.Equal(t, int64(50), rs.Rows[0][0])
}

func TestEngineCancelSystemWait(t *testing.T) {
	e := openTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Query(ctx, `SELECT system_wait(30)`, true)
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("system_wait did not stop after cancel")
	}

	// The connection is reusable afterwards
	rs, err := e.Query(context.Background(), `SELECT system_wait(1, 'MILLISECONDS')`, true)
	require.NoError(t, err)
	assert.Equal(t, "waited 1 milliseconds", rs.Rows[0][0])
}

func TestEngineWriterWaitHonorsContext(t *testing.T) {
	e := openTestEngine(t)

	hold := make(chan struct{})
	held := make(chan struct{})
	go e.WithWriter(context.Background(), func(_ *sql.Conn) error {
		close(held)
		<-hold
		return nil
	})
	<-held
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Exec(ctx, `CREATE TABLE "DB_S.X" (A INT)`)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnginePoolStats(t *testing.T) {
	e := openTestEngine(t)
	open, inUse := e.PoolStats()
	assert.GreaterOrEqual(t, open, 1)
	assert.Equal(t, 0, inUse)
}

func TestEngineInTx(t *testing.T) {
	tests := []struct {
		name    string
		fail    bool
		wantRow int64
	}{
		{"commit", false, 1},
		{"rollback", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := openTestEngine(t)
			ctx := context.Background()
			_, err := e.Exec(ctx, `CREATE TABLE "DB_S.T" (A INT NOT NULL)`)
			require.NoError(t, err)
			_, err = e.Exec(ctx, `INSERT INTO "DB_S.T" VALUES (1), (2)`)
			require.NoError(t, err)

			err = e.InTx(ctx, func(tx *Tx) error {
				n, err := tx.Exec(ctx, `DELETE FROM "DB_S.T"`)
				if err != nil {
					return err
				}
				assert.Equal(t, int64(2), n)

				rs, err := tx.Query(ctx, `SELECT COUNT(*) FROM "DB_S.T"`, true)
				if err != nil {
					return err
				}
				assert.Equal(t, int64(0), rs.Rows[0][0])

				if tt.fail {
					_, err = tx.Exec(ctx, `INSERT INTO "DB_S.T" VALUES (NULL)`)
					return err
				}
				_, err = tx.Exec(ctx, `INSERT INTO "DB_S.T" VALUES (3)`)
				return err
			})
			if tt.fail {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "NOT NULL constraint failed")
			} else {
				require.NoError(t, err)
			}

			rs, err := e.Query(ctx, `SELECT COUNT(*) FROM "DB_S.T"`, true)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRow, rs.Rows[0][0])
		})
	}
}
