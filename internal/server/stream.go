package server

import (
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type realtimeEventPayload struct {
	DocumentID  string    `json:"document_id"`
	SignatureID string    `json:"signature_id,omitempty"`
	VersionIDs  []string  `json:"version_ids,omitempty"`
	Verified    *bool     `json:"verified,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
}

func (h *httpHandler) handleDocumentEvents(c *gin.Context) {
	documentID := strings.TrimSpace(c.Param("documentID"))
	if documentID == "" {
		badRequest(c)
		return
	}
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, documentID)
	defer cleanup()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventHeartbeat, heartbeatPayload(documentID, time.Now().UTC()))
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				DocumentID:  message.DocumentID,
				SignatureID: message.SignatureID,
				VersionIDs:  message.VersionIDs,
				Verified:    message.Verified,
				Timestamp:   message.Timestamp.UTC(),
				Source:      realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload(documentID, tick.UTC()))
			return true
		}
	})
}

func heartbeatPayload(documentID string, timestamp time.Time) realtimeEventPayload {
	return realtimeEventPayload{
		DocumentID: documentID,
		Timestamp:  timestamp,
		Source:     realtimeSourceBackend,
	}
}
