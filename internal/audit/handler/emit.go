package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/civil-whisper/evidence-ledger/internal/events"
	"github.com/civil-whisper/evidence-ledger/internal/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EmitHandler is the internal write endpoint for out-of-process
// collaborators that do not go through the Kafka intake. It is guarded
// by a shared bearer token; with no token configured the route is not
// mounted at all, so the public surface stays read-only by default.
type EmitHandler struct {
	emitter  *events.Emitter
	apiToken string
	logger   *zap.Logger
}

// NewEmitHandler creates a new EmitHandler.
func NewEmitHandler(emitter *events.Emitter, apiToken string, logger *zap.Logger) *EmitHandler {
	return &EmitHandler{emitter: emitter, apiToken: apiToken, logger: logger}
}

// Register mounts the emit route. No-op when no token is configured.
func (h *EmitHandler) Register(rg *gin.RouterGroup) {
	if h.apiToken == "" {
		return
	}
	rg.POST("/ledger/events", h.Emit)
}

// emitRequest is the wire form of one collaborator-reported event.
type emitRequest struct {
	EventType     string         `json:"event_type"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	CorrelationID string         `json:"correlation_id"`
	Payload       map[string]any `json:"payload"`
}

// Emit handles POST /ledger/events.
func (h *EmitHandler) Emit(c *gin.Context) {
	token := c.GetHeader("Authorization")
	if subtle.ConstantTimeCompare([]byte(token), []byte("Bearer "+h.apiToken)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return
	}

	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var req emitRequest
	if err := dec.Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	entry, appended, err := h.emitter.Emit(c.Request.Context(), events.Event{
		Type:          req.EventType,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		CorrelationID: req.CorrelationID,
		Payload:       req.Payload,
	})
	switch {
	case errors.Is(err, events.ErrUnknownEventType),
		errors.Is(err, events.ErrInvalidEntityID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ledger.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "storage conflict, retry append"})
		return
	case err != nil:
		h.logger.Error("emit failed", zap.String("event_type", req.EventType), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	}

	if !appended {
		c.JSON(http.StatusOK, gin.H{"skipped": true})
		return
	}
	c.JSON(http.StatusCreated, entry)
}
