package ledger_test

import (
	"testing"
	"time"

	"github.com/civil-whisper/evidence-ledger/internal/ledger"
)

var fixtureTime = ledger.At(time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC))

// Pinned regression value: SHA-256 of the canonical commitment
// {"entity_id":"cycle-7","entity_type":"cycle","event_type":"vote_cast",
// "payload":{"voter_count":41},"prev_hash":"genesis",
// "timestamp":"2025-11-05T12:00:00.000000Z"}.
const fixtureHash = "1758be1e246918580dec3c7a0631b50f4437502e6a07c6cb93c361a9bd333bf7"

func TestComputeHash_pinnedFixture(t *testing.T) {
	got, err := ledger.ComputeHash(
		fixtureTime, "vote_cast", "cycle", "CYCLE-7",
		map[string]any{"voter_count": 41},
		ledger.GenesisPrevHash,
	)
	if err != nil {
		t.Fatal(err)
	}
	if got != fixtureHash {
		t.Errorf("hash drifted from pinned fixture:\n got  %s\n want %s", got, fixtureHash)
	}
}

func TestComputeHash_entityIDCaseNormalized(t *testing.T) {
	payload := map[string]any{"voter_count": 41}
	upper, err := ledger.ComputeHash(fixtureTime, "vote_cast", "cycle", "CYCLE-7", payload, ledger.GenesisPrevHash)
	if err != nil {
		t.Fatal(err)
	}
	lower, err := ledger.ComputeHash(fixtureTime, "vote_cast", "cycle", "cycle-7", payload, ledger.GenesisPrevHash)
	if err != nil {
		t.Fatal(err)
	}
	if upper != lower {
		t.Errorf("entity id casing leaked into the hash: %s vs %s", upper, lower)
	}
}

func TestComputeHash_nilPayloadEqualsEmpty(t *testing.T) {
	a, err := ledger.ComputeHash(fixtureTime, "cycle_opened", "cycle", "cycle-7", nil, ledger.GenesisPrevHash)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ledger.ComputeHash(fixtureTime, "cycle_opened", "cycle", "cycle-7", map[string]any{}, ledger.GenesisPrevHash)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("nil payload hashes differently from empty payload")
	}
}

func TestComputeHash_prevHashChangesDigest(t *testing.T) {
	payload := map[string]any{"voter_count": 41}
	a, _ := ledger.ComputeHash(fixtureTime, "vote_cast", "cycle", "cycle-7", payload, ledger.GenesisPrevHash)
	b, _ := ledger.ComputeHash(fixtureTime, "vote_cast", "cycle", "cycle-7", payload, fixtureHash)
	if a == b {
		t.Error("different prev_hash produced identical digest")
	}
}

func TestTimestamp_canonicalForm(t *testing.T) {
	// Nanosecond precision is truncated, not rounded.
	ts := ledger.At(time.Date(2025, 11, 5, 12, 0, 0, 123456789, time.UTC))
	if got, want := ts.String(), "2025-11-05T12:00:00.123456Z"; got != want {
		t.Errorf("Timestamp.String(): got %s, want %s", got, want)
	}
}

func TestTimestamp_jsonRoundTrip(t *testing.T) {
	ts := ledger.At(time.Date(2025, 11, 5, 12, 0, 0, 123456000, time.UTC))
	data, err := ts.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"2025-11-05T12:00:00.123456Z"` {
		t.Fatalf("MarshalJSON: got %s", data)
	}
	var back ledger.Timestamp
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(ts.Time) {
		t.Errorf("round trip changed the value: %v vs %v", back, ts)
	}
}
