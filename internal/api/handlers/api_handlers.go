package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"photo-transform-go/config"
	"photo-transform-go/internal/api/middleware"
	"photo-transform-go/internal/core/models"
	"photo-transform-go/internal/core/processor"
	"photo-transform-go/internal/db/repository"
	"photo-transform-go/internal/prompt"
	"photo-transform-go/internal/server/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pool nimmt Transformationsaufträge entgegen; *processor.WorkerPool erfüllt ihn
type Pool interface {
	Submit(ctx context.Context, req processor.Request) (*processor.Outcome, error)
	Stats() processor.PoolStats
}

// Pinger prüft die Erreichbarkeit des KI-Backends
type Pinger interface {
	Ping(ctx context.Context) (bool, error)
}

// EventSource liefert Fortschrittsereignisse an SSE-Clients; *sse.Hub erfüllt ihn
type EventSource interface {
	Register(client sse.Client)
	Unregister(client sse.Client)
	ClientCount() int
}

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	repo    repository.Repository
	cfg     *config.Config
	pool    Pool
	backend Pinger
	events  EventSource
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(repo repository.Repository, cfg *config.Config, pool Pool, backend Pinger, events EventSource) *APIHandler {
	return &APIHandler{
		repo:    repo,
		cfg:     cfg,
		pool:    pool,
		backend: backend,
		events:  events,
	}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Transformationen
	router.POST("/transform", h.Transform)
	router.GET("/transformations", h.ListTransformations)
	router.GET("/transformations/:id", h.GetTransformation)

	// Stilkatalog
	router.GET("/styles", h.ListStyles)

	// System
	router.GET("/status", h.GetStatus)
	router.GET("/events", h.StreamEvents)
}

type errorView struct {
	Code    string `json:"code"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

type transformationView struct {
	ID             uint           `json:"id"`
	RunID          string         `json:"run_id"`
	Style          string         `json:"style"`
	CustomPrompt   string         `json:"custom_prompt,omitempty"`
	Status         string         `json:"status"`
	ImageURL       string         `json:"image_url,omitempty"`
	FaceCount      int            `json:"face_count"`
	QualityScore   float64        `json:"quality_score"`
	FaceSimilarity float64        `json:"face_similarity"`
	Passed         bool           `json:"passed"`
	Report         datatypes.JSON `json:"report,omitempty"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	Timings        datatypes.JSON `json:"timings,omitempty"`
	Error          *errorView     `json:"error,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func (h *APIHandler) view(c *gin.Context, t *models.Transformation) transformationView {
	v := transformationView{
		ID:             t.ID,
		RunID:          t.RunID,
		Style:          t.StyleID,
		CustomPrompt:   t.CustomPrompt,
		Status:         t.Status,
		FaceCount:      t.FaceCount,
		QualityScore:   t.QualityScore,
		FaceSimilarity: t.FaceSimilarity,
		Passed:         t.Passed,
		Report:         t.Report,
		Metadata:       t.EngineMetadata,
		Timings:        t.Timings,
		DurationMS:     t.DurationMS,
		CreatedAt:      t.CreatedAt,
		CompletedAt:    t.CompletedAt,
	}
	if t.OutputPath != "" {
		v.ImageURL = h.cfg.Server.SnapshotURL + "/" + t.OutputPath
	}
	if t.Status == models.StatusFailed {
		v.Error = &errorView{
			Code:    t.ErrorKind,
			Stage:   t.ErrorStage,
			Message: middleware.T(c, t.ErrorKind, nil),
		}
	}
	return v
}

// ListTransformations listet gespeicherte Transformationen seitenweise
func (h *APIHandler) ListTransformations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 || limit > maxPageSize {
		h.abort(c, http.StatusBadRequest, "invalid_request", nil)
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		h.abort(c, http.StatusBadRequest, "invalid_request", nil)
		return
	}
	status := c.Query("status")
	switch status {
	case "", models.StatusProcessing, models.StatusCompleted, models.StatusFailed:
	default:
		h.abort(c, http.StatusBadRequest, "invalid_request", nil)
		return
	}

	items, total, err := h.repo.GetTransformations(limit, offset, status)
	if err != nil {
		log.Errorf("Failed to list transformations: %v", err)
		h.abort(c, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	views := make([]transformationView, 0, len(items))
	for i := range items {
		views = append(views, h.view(c, &items[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  views,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetTransformation liefert eine Transformation anhand ihrer ID oder Run-ID
func (h *APIHandler) GetTransformation(c *gin.Context) {
	param := c.Param("id")

	var (
		record *models.Transformation
		err    error
	)
	if id, parseErr := strconv.ParseUint(param, 10, 64); parseErr == nil {
		record, err = h.repo.GetTransformationByID(uint(id))
	} else {
		record, err = h.repo.GetTransformationByRunID(param)
	}
	if err != nil {
		log.Errorf("Failed to load transformation %s: %v", param, err)
		h.abort(c, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	if record == nil {
		h.abort(c, http.StatusNotFound, "not_found", nil)
		return
	}

	c.JSON(http.StatusOK, h.view(c, record))
}

// ListStyles liefert den Stilkatalog samt Standardparametern
func (h *APIHandler) ListStyles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"styles": prompt.Styles(),
		"defaults": gin.H{
			"strength":        prompt.DefaultStrength,
			"guidance_scale":  prompt.DefaultGuidanceScale,
			"inference_steps": prompt.DefaultInferenceSteps,
		},
		"custom_prompt": gin.H{
			"min_length": prompt.MinLength,
			"max_length": prompt.MaxLength,
		},
	})
}

// abort sendet eine lokalisierte Fehlermeldung
func (h *APIHandler) abort(c *gin.Context, status int, code string, data map[string]any) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": middleware.T(c, code, data),
		"code":  code,
	})
}
