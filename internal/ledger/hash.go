package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/civil-whisper/evidence-ledger/internal/canonical"
)

// ComputeHash builds the hash-commitment material for one entry and
// returns its lowercase hex SHA-256 digest. The commitment is the
// canonical encoding of a mapping with exactly the keys timestamp,
// event_type, entity_type, entity_id, payload and prev_hash. The
// entity id is lowercased before it participates; the stored display
// casing never reaches the digest. No salt, no nonce: anyone holding
// the public fields can recompute the hash.
func ComputeHash(ts Timestamp, eventType, entityType, entityID string, payload map[string]any, prevHash string) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	commitment := map[string]any{
		"timestamp":   ts.String(),
		"event_type":  eventType,
		"entity_type": entityType,
		"entity_id":   strings.ToLower(entityID),
		"payload":     payload,
		"prev_hash":   prevHash,
	}
	encoded, err := canonical.Marshal(commitment)
	if err != nil {
		return "", fmt.Errorf("canonicalize commitment: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// EntryHash recomputes the hash of an existing entry from its own
// fields. Used by the verifier; never trusts the stored Hash.
func EntryHash(e *Entry) (string, error) {
	return ComputeHash(e.Timestamp, e.EventType, e.EntityType, e.EntityID, e.Payload, e.PrevHash)
}
