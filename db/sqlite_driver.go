package db

import (
	"database/sql"
	"runtime"
	"sync"
	"weak"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDriverName is the custom driver name with warehouse function support
const SQLiteDriverName = "sqlite3_powder"

// interrupts tracks, per raw connection, the done channel of the statement
// currently running on it. Long running compat functions watch it.
var interrupts sync.Map // weak.Pointer[sqlite3.SQLiteConn] -> *interruptSlot

type interruptSlot struct {
	mu   sync.Mutex
	done <-chan struct{}
}

func (s *interruptSlot) set(done <-chan struct{}) {
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()
}

func (s *interruptSlot) get() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// LIKE is case sensitive in the warehouse; ILIKE is rewritten
			// to LOWER() on both sides.
			if _, err := conn.Exec("PRAGMA case_sensitive_like = ON", nil); err != nil {
				return err
			}

			slot := &interruptSlot{}
			key := weak.Make(conn)
			interrupts.Store(key, slot)
			runtime.AddCleanup(conn, func(k weak.Pointer[sqlite3.SQLiteConn]) {
				interrupts.Delete(k)
			}, key)
			if err := conn.RegisterFunc("system_wait", systemWait(slot), false); err != nil {
				return err
			}

			return RegisterAllWarehouseFuncs(conn)
		},
	})
}

// bindInterrupt points the connection's slot at done and returns a func
// that clears it.
func bindInterrupt(conn *sqlite3.SQLiteConn, done <-chan struct{}) func() {
	v, ok := interrupts.Load(weak.Make(conn))
	if !ok {
		return func() {}
	}
	slot := v.(*interruptSlot)
	slot.set(done)
	return func() { slot.set(nil) }
}
