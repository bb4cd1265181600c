package id

import (
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestClock_NextID_Uniqueness(t *testing.T) {
	gen := NewClock(1)

	seen := make(map[uint64]bool)
	const iterations = 10000

	for i := 0; i < iterations; i++ {
		id := gen.NextID()
		if seen[id] {
			t.Fatalf("duplicate ID generated at iteration %d: %d", i, id)
		}
		seen[id] = true
	}
}

func TestClock_NextID_Monotonic(t *testing.T) {
	gen := NewClock(1)

	var prev uint64
	for i := 0; i < 1000; i++ {
		id := gen.NextID()
		if id <= prev {
			t.Fatalf("non-monotonic ID at iteration %d: prev=%d, curr=%d", i, prev, id)
		}
		prev = id
	}
}

func TestClock_NextID_ClockGoesBackwards(t *testing.T) {
	gen := NewClock(1)
	base := time.UnixMilli(1_700_000_000_000)
	gen.now = func() time.Time { return base }
	first := gen.NextID()

	gen.now = func() time.Time { return base.Add(-time.Second) }
	second := gen.NextID()
	if second <= first {
		t.Fatalf("id went backwards with the wall clock: %d <= %d", second, first)
	}
}

func TestClock_NextID_CounterOverflow(t *testing.T) {
	gen := NewClock(1)
	base := time.UnixMilli(1_700_000_000_000)
	gen.now = func() time.Time { return base }

	var prev uint64
	for i := 0; i < CounterMask+10; i++ {
		id := gen.NextID()
		if id <= prev {
			t.Fatalf("non-monotonic ID at iteration %d", i)
		}
		prev = id
	}
	if got := Time(prev); !got.After(base) {
		t.Errorf("expected overflow to borrow the next millisecond, got %v", got)
	}
}

func TestClock_NextID_Concurrent(t *testing.T) {
	gen := NewClock(1)

	const goroutines = 10
	const idsPerGoroutine = 1000

	var wg sync.WaitGroup
	idsChan := make(chan uint64, goroutines*idsPerGoroutine)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < idsPerGoroutine; i++ {
				idsChan <- gen.NextID()
			}
		}()
	}

	wg.Wait()
	close(idsChan)

	seen := make(map[uint64]bool)
	for id := range idsChan {
		if seen[id] {
			t.Fatalf("duplicate ID in concurrent test: %d", id)
		}
		seen[id] = true
	}

	if len(seen) != goroutines*idsPerGoroutine {
		t.Fatalf("expected %d unique IDs, got %d", goroutines*idsPerGoroutine, len(seen))
	}
}

func TestClock_DifferentNodes(t *testing.T) {
	id1 := NewClock(1).NextID()
	id2 := NewClock(2).NextID()

	if nodeID := (id1 >> CounterBits) & NodeIDMask; nodeID != 1 {
		t.Errorf("expected node ID 1 in id1, got %d", nodeID)
	}
	if nodeID := (id2 >> CounterBits) & NodeIDMask; nodeID != 2 {
		t.Errorf("expected node ID 2 in id2, got %d", nodeID)
	}
}

func TestClock_NextQueryID(t *testing.T) {
	gen := NewClock(3)
	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = gen.NextQueryID()
		if !pattern.MatchString(ids[i]) {
			t.Fatalf("malformed query id %q", ids[i])
		}
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("query ids should sort in issue order")
	}
}

func TestToken(t *testing.T) {
	a, err := Token(16)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	b, _ := Token(16)
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct tokens")
	}
}

func BenchmarkClock_NextID(b *testing.B) {
	gen := NewClock(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		gen.NextID()
	}
}
