package handlers

import (
	"context"
	"net/http"
	"time"

	"photo-transform-go/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const pingTimeout = 3 * time.Second

// GetStatus meldet Erreichbarkeit des Backends, Auslastung und Statistiken.
// Ist das Backend nicht erreichbar, lautet der Status "degraded".
func (h *APIHandler) GetStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	status := "ok"
	backend := gin.H{"url": h.cfg.Inference.URL}
	reachable, err := h.backend.Ping(ctx)
	backend["reachable"] = reachable
	if err != nil {
		backend["error"] = err.Error()
	}
	if !reachable {
		status = "degraded"
	}

	body := gin.H{
		"status":      status,
		"inference":   backend,
		"system":      utils.GetSystemStats(h.pool),
		"sse_clients": h.events.ClientCount(),
	}

	stats, err := h.repo.GetStatistics()
	if err != nil {
		log.Errorf("Failed to load transformation statistics: %v", err)
	} else {
		body["transformations"] = stats
	}

	c.JSON(http.StatusOK, body)
}
