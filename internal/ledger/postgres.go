package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to
// serialise concurrent Append calls across all writer processes of a
// deployment. The value is arbitrary but must never change.
const advisoryLockKey = int64(7_420_113_998)

const entryColumns = "seq, ts, event_type, entity_type, entity_id, correlation_id, payload, prev_hash, hash"

// PostgresStore persists the evidence ledger to PostgreSQL. It
// implements the Store interface.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given
// connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Append implements Store. It acquires a transaction-scoped advisory
// lock, reads the chain tail, computes the new entry hash, and inserts
// the row, all within a single transaction: either the whole append
// commits or nothing does. A uniqueness violation (another writer that
// bypassed the lock, or a restored backup racing a live writer) maps
// to ErrConflict and is never retried here.
func (s *PostgresStore) Append(ctx context.Context, draft Draft) (*Entry, error) {
	ts := draft.Timestamp
	if ts.IsZero() {
		ts = Now()
	}
	payload := draft.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevSeq int64
	prevHash := GenesisPrevHash
	err = tx.QueryRow(ctx,
		"SELECT seq, hash FROM evidence_log ORDER BY seq DESC LIMIT 1",
	).Scan(&prevSeq, &prevHash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		prevSeq = -1
		prevHash = GenesisPrevHash
	case err != nil:
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	hash, err := ComputeHash(ts, draft.EventType, draft.EntityType, draft.EntityID, payload, prevHash)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Sequence:      prevSeq + 1,
		Timestamp:     ts,
		EventType:     draft.EventType,
		EntityType:    draft.EntityType,
		EntityID:      draft.EntityID,
		CorrelationID: draft.CorrelationID,
		Payload:       payload,
		PrevHash:      prevHash,
		Hash:          hash,
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO evidence_log (seq, ts, event_type, entity_type, entity_id, correlation_id, payload, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.Sequence, entry.Timestamp.Time, entry.EventType,
		entry.EntityType, entry.EntityID, entry.CorrelationID,
		payloadJSON, entry.PrevHash, entry.Hash,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger entry appended",
		zap.Int64("seq", entry.Sequence),
		zap.String("event_type", entry.EventType),
		zap.String("entity_id", entry.EntityID),
	)
	return entry, nil
}

// ReadRange implements Store.
func (s *PostgresStore) ReadRange(ctx context.Context, from, to int64) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+entryColumns+" FROM evidence_log WHERE seq BETWEEN $1 AND $2 ORDER BY seq ASC",
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger range: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Tail implements Store.
func (s *PostgresStore) Tail(ctx context.Context) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM evidence_log ORDER BY seq DESC LIMIT 1")
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}
	return entry, nil
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM evidence_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Page implements Store.
func (s *PostgresStore) Page(ctx context.Context, f Filter, cursor int64, limit int) ([]*Entry, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if cursor <= 0 {
		cursor = -1 // disables the cursor predicate
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM evidence_log
		 WHERE ($1 = '' OR entity_type = $1)
		   AND ($2 = '' OR lower(entity_id) = lower($2))
		   AND ($3 = '' OR event_type = $3)
		   AND ($4 = '' OR correlation_id = $4)
		   AND ($5 < 0 OR seq < $5)
		 ORDER BY seq DESC
		 LIMIT $6`,
		f.EntityType, f.EntityID, f.EventType, f.CorrelationID, cursor, limit,
	)
	if err != nil {
		return nil, -1, fmt.Errorf("query ledger page: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, -1, err
	}
	next := int64(-1)
	if len(entries) == limit {
		if last := entries[len(entries)-1].Sequence; last > 0 {
			next = last
		}
	}
	return entries, next, nil
}

// History implements Store.
func (s *PostgresStore) History(ctx context.Context, entityType, entityID string) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM evidence_log
		 WHERE entity_type = $1 AND lower(entity_id) = lower($2)
		 ORDER BY seq ASC`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entity history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// VerifyChain implements Store. It streams all rows ordered by seq and
// validates each link with the same check the pure verifier uses.
// O(n) in ledger length; may be slow for very large ledgers.
func (s *PostgresStore) VerifyChain(ctx context.Context) (VerifyResult, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+entryColumns+" FROM evidence_log ORDER BY seq ASC")
	if err != nil {
		return VerifyResult{}, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	expected := GenesisPrevHash
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("scan ledger row: %w", err)
		}
		if res, ok := checkLink(entry, expected); !ok {
			return res, nil
		}
		expected = entry.Hash
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{}, err
	}
	return validResult(), nil
}

// scanEntry reads one entry from a row. The payload is decoded with
// UseNumber so that large integers survive the round trip through
// JSONB and recanonicalize to the same bytes the writer hashed.
func scanEntry(row pgx.Row) (*Entry, error) {
	entry := &Entry{}
	var ts time.Time
	var payloadJSON []byte
	if err := row.Scan(
		&entry.Sequence, &ts, &entry.EventType,
		&entry.EntityType, &entry.EntityID, &entry.CorrelationID,
		&payloadJSON, &entry.PrevHash, &entry.Hash,
	); err != nil {
		return nil, err
	}
	entry.Timestamp = At(ts)

	dec := json.NewDecoder(bytes.NewReader(payloadJSON))
	dec.UseNumber()
	if err := dec.Decode(&entry.Payload); err != nil {
		return nil, fmt.Errorf("decode payload for seq %d: %w", entry.Sequence, err)
	}
	return entry, nil
}

func scanEntries(rows pgx.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
