package ledger

import "fmt"

// VerifyResult is the outcome of a chain verification. A broken chain
// is a normal, expected outcome, never an error value: callers surface
// it to a human or an alert.
type VerifyResult struct {
	Valid bool `json:"valid"`
	// FirstBrokenSequence is the sequence of the first entry that
	// failed verification; -1 when Valid.
	FirstBrokenSequence int64  `json:"first_broken_sequence"`
	Reason              string `json:"reason,omitempty"`
}

func validResult() VerifyResult {
	return VerifyResult{Valid: true, FirstBrokenSequence: -1}
}

// Verify replays entries (ascending sequence order) through the hasher
// and reports the first broken link. startPrev is GenesisPrevHash for
// a full-chain check, or the known hash of the entry preceding the
// range for a partial check; the empty string means genesis. An empty
// slice is vacuously valid.
//
// Verify is a pure function over its inputs. It runs identically
// inside the writer process and inside an untrusted client that only
// has read access to public entries.
func Verify(entries []*Entry, startPrev string) VerifyResult {
	expected := startPrev
	if expected == "" {
		expected = GenesisPrevHash
	}
	for _, e := range entries {
		if res, ok := checkLink(e, expected); !ok {
			return res
		}
		expected = e.Hash
	}
	return validResult()
}

// checkLink validates a single entry against the expected predecessor
// hash. ok is false when the chain is broken at this entry.
func checkLink(e *Entry, expectedPrev string) (VerifyResult, bool) {
	if e.PrevHash != expectedPrev {
		return VerifyResult{
			FirstBrokenSequence: e.Sequence,
			Reason:              fmt.Sprintf("prev_hash mismatch: got %q, want %q", e.PrevHash, expectedPrev),
		}, false
	}
	recomputed, err := EntryHash(e)
	if err != nil {
		return VerifyResult{
			FirstBrokenSequence: e.Sequence,
			Reason:              fmt.Sprintf("cannot recompute hash: %v", err),
		}, false
	}
	if recomputed != e.Hash {
		return VerifyResult{
			FirstBrokenSequence: e.Sequence,
			Reason:              fmt.Sprintf("hash mismatch: stored %q, recomputed %q", e.Hash, recomputed),
		}, false
	}
	return VerifyResult{}, true
}
