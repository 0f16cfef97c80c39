package handlers

import (
	"encoding/json"
	"io"

	"photo-transform-go/internal/server/sse"

	"github.com/gin-gonic/gin"
)

// StreamEvents liefert Zustandswechsel und Ergebnisse per Server-Sent Events.
// Mit ?run_id= werden nur die Ereignisse eines Laufs gesendet.
func (h *APIHandler) StreamEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	runID := c.Query("run_id")

	client := make(sse.Client, 10)
	h.events.Register(client)
	defer h.events.Unregister(client)

	// Header sofort senden, damit der Client die Verbindung als offen sieht
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-client:
			if !ok {
				return false
			}
			if runID != "" && !matchesRun(msg, runID) {
				return true
			}
			c.SSEvent("message", string(msg))
			return true
		}
	})
}

func matchesRun(msg []byte, runID string) bool {
	var event sse.Event
	if err := json.Unmarshal(msg, &event); err != nil {
		return false
	}
	return event.RunID == runID
}
