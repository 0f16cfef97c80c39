package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"photo-transform-go/internal/api/middleware"
	"photo-transform-go/internal/core/processor"
	"photo-transform-go/internal/inference"
	"photo-transform-go/internal/pipeline"
	"photo-transform-go/internal/prompt"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Transform nimmt ein Foto per multipart/form-data entgegen und führt die
// Pipeline synchron aus. Felder: image, style, custom_prompt, strength,
// guidance_scale, inference_steps und optional run_id. Mit einer eigenen
// run_id kann der Client den Lauf vorab über /api/events?run_id= verfolgen.
func (h *APIHandler) Transform(c *gin.Context) {
	data, err := h.readUpload(c)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	req := processor.Request{
		Image:        data,
		StyleID:      c.PostForm("style"),
		CustomPrompt: c.PostForm("custom_prompt"),
		RunID:        c.PostForm("run_id"),
	}
	if req.Strength, err = optionalFloat(c, "strength"); err != nil {
		h.respondError(c, err, nil)
		return
	}
	if req.GuidanceScale, err = optionalFloat(c, "guidance_scale"); err != nil {
		h.respondError(c, err, nil)
		return
	}
	if req.InferenceSteps, err = optionalInt(c, "inference_steps"); err != nil {
		h.respondError(c, err, nil)
		return
	}

	outcome, err := h.pool.Submit(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, outcome)
		return
	}

	c.JSON(http.StatusOK, h.view(c, outcome.Record))
}

func (h *APIHandler) readUpload(c *gin.Context) ([]byte, error) {
	header, err := c.FormFile("image")
	if err != nil {
		return nil, processor.ErrEmptyUpload
	}
	maxBytes := h.cfg.Upload.MaxBytes
	if header.Size > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", processor.ErrFileTooLarge, header.Size)
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, processor.ErrFileTooLarge
	}
	return data, nil
}

func optionalFloat(c *gin.Context, field string) (*float64, error) {
	raw := c.PostForm(field)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", processor.ErrBadAdjustments, field, err)
	}
	return &v, nil
}

func optionalInt(c *gin.Context, field string) (*int, error) {
	raw := c.PostForm(field)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", processor.ErrBadAdjustments, field, err)
	}
	return &v, nil
}

// respondError bildet einen Fehler auf HTTP-Status und Fehlercode ab. Ist ein
// Datensatz entstanden, wird er mitgeliefert.
func (h *APIHandler) respondError(c *gin.Context, err error, outcome *processor.Outcome) {
	status, code, data := h.classify(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("Transformation request failed (%s): %v", code, err)
	} else {
		log.Infof("Transformation request rejected (%s): %v", code, err)
	}

	body := gin.H{
		"error": middleware.T(c, code, data),
		"code":  code,
	}
	if stage := pipeline.StageOf(err); stage != "" {
		body["stage"] = string(stage)
	}
	if outcome != nil && outcome.Record != nil {
		body["transformation"] = h.view(c, outcome.Record)
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *APIHandler) classify(err error) (int, string, map[string]any) {
	var backendErr *inference.Error
	upload := h.cfg.Upload

	switch {
	// Eingabefehler
	case errors.Is(err, processor.ErrEmptyUpload):
		return http.StatusBadRequest, "no_image", nil
	case errors.Is(err, processor.ErrFileTooLarge):
		return http.StatusBadRequest, "file_too_large", map[string]any{"MaxMB": upload.MaxBytes / (1024 * 1024)}
	case errors.Is(err, processor.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format", nil
	case errors.Is(err, processor.ErrBadDimensions):
		return http.StatusBadRequest, "invalid_dimensions", map[string]any{"Min": upload.MinDimension, "Max": upload.MaxDimension}
	case errors.Is(err, prompt.ErrUnknownStyle):
		return http.StatusBadRequest, "unknown_style", nil
	case errors.Is(err, prompt.ErrTooLong):
		return http.StatusBadRequest, "prompt_too_long", map[string]any{"Max": prompt.MaxLength}
	case errors.Is(err, prompt.ErrTooShort):
		return http.StatusBadRequest, "prompt_too_short", nil
	case errors.Is(err, prompt.ErrForbiddenContent):
		return http.StatusBadRequest, "prompt_forbidden", nil
	case errors.Is(err, processor.ErrBadAdjustments):
		return http.StatusBadRequest, "invalid_adjustments", nil
	case errors.Is(err, processor.ErrBadRunID):
		return http.StatusBadRequest, "invalid_run_id", nil
	case errors.Is(err, processor.ErrRunIDInUse):
		return http.StatusConflict, "run_id_in_use", nil
	case errors.Is(err, processor.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request", nil

	// Fachliche Ablehnungen der Pipeline
	case errors.Is(err, pipeline.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity, "no_face_detected", nil
	case errors.Is(err, pipeline.ErrQualityRejected):
		return http.StatusUnprocessableEntity, "quality_rejected", nil
	case errors.Is(err, pipeline.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", nil

	// Backend nicht verfügbar
	case errors.As(err, &backendErr) && backendErr.Timeout(), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout", nil
	case pipeline.KindOf(err) != nil:
		return http.StatusServiceUnavailable, pipeline.Code(err), nil
	case errors.Is(err, processor.ErrPoolClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "service_unavailable", nil

	case errors.Is(err, processor.ErrStorage):
		return http.StatusInternalServerError, processor.ErrorKindStorage, nil
	}
	return http.StatusInternalServerError, "internal_error", nil
}
