package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/civil-whisper/evidence-ledger/internal/events"
	"github.com/civil-whisper/evidence-ledger/internal/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// LedgerHandler exposes the public, read-only audit API: paginated
// entry queries, per-entity history, and chain verification. Nothing
// here mutates the ledger.
type LedgerHandler struct {
	store  ledger.Store
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(store ledger.Store, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{store: store, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/entries", h.ListEntries)
		l.GET("/entries/:seq", h.GetEntry)
		l.GET("/entities/:type/:id", h.EntityHistory)
		l.GET("/verify", h.VerifyChain)
		l.POST("/verify", h.VerifyRange)
	}
}

// Overview handles GET /ledger.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.store.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	}

	resp := gin.H{
		"entries":          count,
		"taxonomy_version": events.TaxonomyVersion,
	}
	if tail, err := h.store.Tail(ctx); err != nil {
		h.logger.Error("ledger Tail", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	} else if tail != nil {
		resp["tip_sequence"] = tail.Sequence
		resp["tip_hash"] = tail.Hash
	}

	c.JSON(http.StatusOK, resp)
}

// ListEntries handles GET /ledger/entries: a page of entries, newest
// first. The cursor is sequence-based, so pages already issued are
// never reshuffled by concurrent appends.
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	ctx := c.Request.Context()

	limit := defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if n > maxPageLimit {
			n = maxPageLimit
		}
		limit = n
	}

	var cursor int64
	if raw := c.Query("cursor"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cursor must be a non-negative integer"})
			return
		}
		cursor = n
	}

	filter := ledger.Filter{
		EntityType:    c.Query("entity_type"),
		EntityID:      c.Query("entity_id"),
		EventType:     c.Query("event_type"),
		CorrelationID: c.Query("correlation_id"),
	}
	if filter.EventType != "" && !events.Known(filter.EventType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}

	entries, next, err := h.store.Page(ctx, filter, cursor, limit)
	if err != nil {
		h.logger.Error("ledger Page", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":     entries,
		"next_cursor": next,
	})
}

// GetEntry handles GET /ledger/entries/:seq.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	ctx := c.Request.Context()

	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be a non-negative integer"})
		return
	}

	entries, err := h.store.ReadRange(ctx, seq, seq)
	if err != nil {
		h.logger.Error("ledger ReadRange", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	}
	if len(entries) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}

	c.JSON(http.StatusOK, entries[0])
}

// EntityHistory handles GET /ledger/entities/:type/:id, the full
// ascending event history of one entity.
func (h *LedgerHandler) EntityHistory(c *gin.Context) {
	ctx := c.Request.Context()

	entries, err := h.store.History(ctx, c.Param("type"), c.Param("id"))
	if err != nil {
		h.logger.Error("ledger History", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entity_type": c.Param("type"),
		"entity_id":   c.Param("id"),
		"entries":     entries,
	})
}

// VerifyChain handles GET /ledger/verify by walking the full stored
// chain. A broken chain is a 200 with valid=false: verification
// failure is a result to surface, not a server fault.
func (h *LedgerHandler) VerifyChain(c *gin.Context) {
	ctx := c.Request.Context()

	res, err := h.store.VerifyChain(ctx)
	if err != nil {
		h.logger.Error("ledger VerifyChain", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	}
	recordVerifyRun(res.Valid)
	if !res.Valid {
		h.logger.Warn("chain verification failed",
			zap.Int64("first_broken_sequence", res.FirstBrokenSequence),
			zap.String("reason", res.Reason),
		)
	}
	c.JSON(http.StatusOK, res)
}

// verifyRangeRequest is a caller-supplied contiguous range of entries.
// prev_hash defaults to the genesis sentinel; a partial-range check
// passes the known hash of the entry preceding the range.
type verifyRangeRequest struct {
	Entries  []*ledger.Entry `json:"entries"`
	PrevHash string          `json:"prev_hash"`
}

// VerifyRange handles POST /ledger/verify: stateless recomputation
// over public data supplied by the caller. Entries may arrive in any
// order (the query API returns them newest first) and are sorted
// ascending before checking.
func (h *LedgerHandler) VerifyRange(c *gin.Context) {
	// Decoded with UseNumber so large integer payload values
	// recanonicalize to the exact bytes the writer hashed.
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var req verifyRangeRequest
	if err := dec.Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	sort.Slice(req.Entries, func(i, j int) bool {
		return req.Entries[i].Sequence < req.Entries[j].Sequence
	})

	res := ledger.Verify(req.Entries, req.PrevHash)
	recordVerifyRun(res.Valid)
	c.JSON(http.StatusOK, res)
}
