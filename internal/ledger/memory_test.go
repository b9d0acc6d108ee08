package ledger_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/civil-whisper/evidence-ledger/internal/ledger"
)

func TestMemoryStore_appendChainsFromGenesis(t *testing.T) {
	s := ledger.NewMemoryStore()
	entries := appendN(t, s, 3)

	if entries[0].PrevHash != ledger.GenesisPrevHash {
		t.Errorf("entry 0 prev_hash: got %q", entries[0].PrevHash)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].Hash {
			t.Errorf("chain broken at %d: prev_hash %q, want %q", i, entries[i].PrevHash, entries[i-1].Hash)
		}
		if entries[i].Sequence != int64(i) {
			t.Errorf("entry %d sequence: got %d", i, entries[i].Sequence)
		}
	}
}

func TestMemoryStore_tailAndLen(t *testing.T) {
	s := ledger.NewMemoryStore()

	tail, err := s.Tail(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tail != nil {
		t.Errorf("empty store tail: got %+v, want nil", tail)
	}

	entries := appendN(t, s, 4)
	tail, err = s.Tail(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tail.Hash != entries[3].Hash {
		t.Errorf("tail hash: got %q, want %q", tail.Hash, entries[3].Hash)
	}

	n, err := s.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("Len: got %d, want 4", n)
	}
}

func TestMemoryStore_readRangeClamps(t *testing.T) {
	s := ledger.NewMemoryStore()
	appendN(t, s, 5)

	entries, err := s.ReadRange(ctx, -3, 99)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Errorf("clamped range: got %d entries, want 5", len(entries))
	}

	entries, err = s.ReadRange(ctx, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("inverted range: got %d entries, want 0", len(entries))
	}
}

func TestMemoryStore_concurrentAppendsNeverFork(t *testing.T) {
	const m = 64
	s := ledger.NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, ledger.Draft{
				EventType:  "vote_cast",
				EntityType: "cycle",
				EntityID:   fmt.Sprintf("cycle-%d", i),
				Payload:    map[string]any{"voter_count": i},
			})
			if err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := s.ReadRange(ctx, 0, m-1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != m {
		t.Fatalf("got %d entries, want %d", len(entries), m)
	}
	seen := make(map[int64]bool, m)
	for i, e := range entries {
		if seen[e.Sequence] {
			t.Errorf("duplicate sequence %d", e.Sequence)
		}
		seen[e.Sequence] = true
		if e.Sequence != int64(i) {
			t.Errorf("gap: entry at position %d has sequence %d", i, e.Sequence)
		}
	}
	if res := ledger.Verify(entries, ledger.GenesisPrevHash); !res.Valid {
		t.Errorf("chain invalid after concurrent appends: %+v", res)
	}
}

func TestMemoryStore_pageDescendingWithCursor(t *testing.T) {
	s := ledger.NewMemoryStore()
	appendN(t, s, 25)

	page1, next, err := s.Page(ctx, ledger.Filter{}, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 10 || page1[0].Sequence != 24 || page1[9].Sequence != 15 {
		t.Fatalf("page1 wrong: len=%d first=%d last=%d", len(page1), page1[0].Sequence, page1[len(page1)-1].Sequence)
	}
	if next != 15 {
		t.Fatalf("next cursor: got %d, want 15", next)
	}

	page2, next, err := s.Page(ctx, ledger.Filter{}, next, 10)
	if err != nil {
		t.Fatal(err)
	}
	if page2[0].Sequence != 14 || next != 5 {
		t.Fatalf("page2 wrong: first=%d next=%d", page2[0].Sequence, next)
	}

	page3, next, err := s.Page(ctx, ledger.Filter{}, next, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page3) != 5 || next != -1 {
		t.Fatalf("page3 wrong: len=%d next=%d", len(page3), next)
	}
}

func TestMemoryStore_pageStableUnderConcurrentAppends(t *testing.T) {
	s := ledger.NewMemoryStore()
	appendN(t, s, 10)

	page1, next, err := s.Page(ctx, ledger.Filter{}, 0, 5)
	if err != nil {
		t.Fatal(err)
	}

	// New appends land above the cursor and must not shift page two.
	appendN(t, s, 10)

	page2, _, err := s.Page(ctx, ledger.Filter{}, next, 5)
	if err != nil {
		t.Fatal(err)
	}
	if page1[len(page1)-1].Sequence != 5 {
		t.Fatalf("page1 ends at %d, want 5", page1[len(page1)-1].Sequence)
	}
	if page2[0].Sequence != 4 || page2[len(page2)-1].Sequence != 0 {
		t.Errorf("page2 shifted: first=%d last=%d", page2[0].Sequence, page2[len(page2)-1].Sequence)
	}
}

func TestMemoryStore_pageFilters(t *testing.T) {
	s := ledger.NewMemoryStore()
	appendN(t, s, 9) // entity ids cycle-0, cycle-1, cycle-2 round-robin

	entries, _, err := s.Page(ctx, ledger.Filter{EntityID: "CYCLE-1"}, 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entity_id filter: got %d entries, want 3", len(entries))
	}
	for _, e := range entries {
		if e.EntityID != "cycle-1" {
			t.Errorf("unexpected entity %q in filtered page", e.EntityID)
		}
	}

	entries, _, err = s.Page(ctx, ledger.Filter{EventType: "cycle_closed"}, 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("event_type filter: got %d entries, want 0", len(entries))
	}
}

func TestMemoryStore_history(t *testing.T) {
	s := ledger.NewMemoryStore()
	appendN(t, s, 9)

	history, err := s.History(ctx, "cycle", "Cycle-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history: got %d entries, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Sequence <= history[i-1].Sequence {
			t.Errorf("history not ascending at %d", i)
		}
	}
}
