package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"photo-transform-go/config"
	"photo-transform-go/internal/core/models"
	"photo-transform-go/internal/db/repository"
	"photo-transform-go/internal/integrations/mqtt"
	"photo-transform-go/internal/pipeline"
	"photo-transform-go/internal/prompt"
	"photo-transform-go/internal/server/sse"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var logFields = log.Fields{"component": "image_processor"}

var (
	// ErrInvalidRequest umschließt alle Fehler, die vor dem Pipeline-Lauf erkannt werden
	ErrInvalidRequest = errors.New("invalid transformation request")
	// ErrStorage meldet, dass ein erfolgreiches Ergebnis nicht gespeichert werden konnte
	ErrStorage = errors.New("failed to store transformation result")
	// ErrBadRunID meldet eine vom Client vorgegebene Lauf-ID, die keine kanonische UUID ist
	ErrBadRunID = errors.New("run id must be a lowercase canonical UUID")
	// ErrRunIDInUse meldet eine bereits vergebene Lauf-ID
	ErrRunIDInUse = errors.New("run id already in use")
)

// ErrorKindStorage ist die Fehlerart eines Laufs, dessen Ergebnis nicht gespeichert werden konnte
const ErrorKindStorage = "storage_failed"

// Runner führt einen Pipeline-Lauf aus; *pipeline.Orchestrator erfüllt ihn
type Runner interface {
	RunWithID(ctx context.Context, runID string, img pipeline.SourceImage, style pipeline.StyleRequest) (*pipeline.Result, error)
}

// EventPublisher veröffentlicht Ergebnisse nach außen (MQTT)
type EventPublisher interface {
	PublishTransformation(event mqtt.TransformationEvent) error
}

// Broadcaster verteilt Ergebnisse an verbundene Browser (SSE)
type Broadcaster interface {
	BroadcastEvent(event sse.Event)
}

// Request ist ein Transformationsauftrag. Nil-Felder werden mit den
// Standardwerten des Stilkatalogs belegt.
type Request struct {
	Image          []byte
	StyleID        string
	CustomPrompt   string
	Strength       *float64
	GuidanceScale  *float64
	InferenceSteps *int
	// RunID ist optional. Ein Client, der den Lauf über /api/events verfolgen
	// will, gibt sie vor; sonst wird sie erzeugt.
	RunID string
}

// Outcome ist das Ergebnis eines Auftrags. Record ist auch bei einem
// fehlgeschlagenen Lauf gesetzt.
type Outcome struct {
	Record   *models.Transformation
	Result   *pipeline.Result
	ImageURL string
}

// ImageProcessor prüft Aufträge, führt die Pipeline aus und speichert die Ergebnisse
type ImageProcessor struct {
	repo      repository.Repository
	runner    Runner
	cfg       *config.Config
	publisher EventPublisher
	hub       Broadcaster
}

// NewImageProcessor erstellt einen neuen Bildverarbeitungsprozessor. publisher
// und hub dürfen nil sein.
func NewImageProcessor(repo repository.Repository, runner Runner, cfg *config.Config, publisher EventPublisher, hub Broadcaster) *ImageProcessor {
	return &ImageProcessor{
		repo:      repo,
		runner:    runner,
		cfg:       cfg,
		publisher: publisher,
		hub:       hub,
	}
}

// Process führt einen Auftrag synchron aus
func (p *ImageProcessor) Process(ctx context.Context, req Request) (*Outcome, error) {
	upload, style, err := p.prepare(req)
	if err != nil {
		log.WithFields(logFields).WithError(err).Info("Rejected transformation request")
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	} else if existing, err := p.repo.GetTransformationByRunID(runID); err != nil {
		return nil, fmt.Errorf("%w: failed to look up run id: %w", ErrStorage, err)
	} else if existing != nil {
		log.WithFields(logFields).WithField("run_id", runID).Info("Rejected transformation request with a used run id")
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, ErrRunIDInUse)
	}

	record := &models.Transformation{
		RunID:        runID,
		StyleID:      req.StyleID,
		CustomPrompt: style.CustomPrompt,
		Status:       models.StatusProcessing,
		SourceMIME:   upload.MIMEType,
		SourceBytes:  upload.Bytes,
		SourceWidth:  upload.Width,
		SourceHeight: upload.Height,
	}
	if err := p.repo.SaveTransformation(record); err != nil {
		return nil, fmt.Errorf("failed to create transformation record: %w", err)
	}

	logger := log.WithFields(logFields).WithFields(log.Fields{"run_id": record.RunID, "id": record.ID})
	logger.Infof("Starting transformation with style '%s'", req.StyleID)

	start := time.Now()
	result, runErr := p.runner.RunWithID(ctx, record.RunID, pipeline.SourceImage{Data: req.Image, MIMEType: upload.MIMEType}, style)
	record.DurationMS = time.Since(start).Milliseconds()
	now := time.Now()
	record.CompletedAt = &now

	outcome := &Outcome{Record: record, Result: result}

	if runErr != nil {
		p.markFailed(record, runErr)
	} else if err := p.markCompleted(record, result); err != nil {
		// Ergebnis nicht speicherbar, der Lauf gilt als fehlgeschlagen
		logger.WithError(err).Error("Failed to store transformed image")
		record.Status = models.StatusFailed
		record.ErrorKind = ErrorKindStorage
		record.ErrorMessage = err.Error()
		runErr = fmt.Errorf("%w: %w", ErrStorage, err)
		outcome.Result = nil
	} else {
		outcome.ImageURL = p.imageURL(record)
	}

	if err := p.repo.SaveTransformation(record); err != nil {
		logger.WithError(err).Error("Failed to update transformation record")
		if runErr == nil {
			runErr = fmt.Errorf("%w: failed to update transformation record: %w", ErrStorage, err)
			outcome.Result = nil
		}
	}

	p.notify(record, outcome.ImageURL)

	if runErr != nil {
		return outcome, runErr
	}
	logger.WithField("duration_ms", record.DurationMS).Info("Transformation completed")
	return outcome, nil
}

// prepare prüft Upload, Stil, Prompt und Parameter, bevor ein Datensatz entsteht
func (p *ImageProcessor) prepare(req Request) (UploadInfo, pipeline.StyleRequest, error) {
	upload, err := ValidateUpload(req.Image, p.cfg.Upload)
	if err != nil {
		return UploadInfo{}, pipeline.StyleRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if req.RunID != "" {
		if id, err := uuid.Parse(req.RunID); err != nil || id.String() != req.RunID {
			return UploadInfo{}, pipeline.StyleRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, ErrBadRunID)
		}
	}

	style, err := prompt.Lookup(req.StyleID)
	if err != nil {
		return UploadInfo{}, pipeline.StyleRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	custom, err := prompt.Prepare(req.CustomPrompt)
	if err != nil {
		return UploadInfo{}, pipeline.StyleRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	adj := pipeline.Adjustments{
		Strength:       prompt.DefaultStrength,
		GuidanceScale:  prompt.DefaultGuidanceScale,
		InferenceSteps: prompt.DefaultInferenceSteps,
	}
	if req.Strength != nil {
		adj.Strength = *req.Strength
	}
	if req.GuidanceScale != nil {
		adj.GuidanceScale = *req.GuidanceScale
	}
	if req.InferenceSteps != nil {
		adj.InferenceSteps = *req.InferenceSteps
	}
	if err := adj.Check(); err != nil {
		return UploadInfo{}, pipeline.StyleRequest{}, fmt.Errorf("%w: %w: %w", ErrInvalidRequest, ErrBadAdjustments, err)
	}

	return upload, pipeline.StyleRequest{
		StyleID:      style.ID,
		BasePrompt:   style.Prompt,
		CustomPrompt: custom,
		Adjustments:  adj,
	}, nil
}

var ErrBadAdjustments = errors.New("invalid adjustments")

func (p *ImageProcessor) markFailed(record *models.Transformation, err error) {
	record.Status = models.StatusFailed
	record.ErrorKind = pipeline.Code(err)
	record.ErrorStage = string(pipeline.StageOf(err))
	record.ErrorMessage = err.Error()
}

func (p *ImageProcessor) markCompleted(record *models.Transformation, result *pipeline.Result) error {
	relPath, err := p.storeImage(record.RunID, result.TransformedImage)
	if err != nil {
		return err
	}

	report, err := json.Marshal(result.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal validation report: %w", err)
	}
	metadata, err := json.Marshal(result.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal engine metadata: %w", err)
	}
	timings, err := json.Marshal(map[string]int64{
		"detection_ms":  result.Timings.Detection.Milliseconds(),
		"analysis_ms":   result.Timings.Analysis.Milliseconds(),
		"transfer_ms":   result.Timings.Transfer.Milliseconds(),
		"validation_ms": result.Timings.Validation.Milliseconds(),
		"total_ms":      result.Timings.Total.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal timings: %w", err)
	}

	record.Status = models.StatusCompleted
	record.OutputPath = relPath
	record.FaceCount = result.FaceCount
	record.QualityScore = result.Report.Quality.OverallScore
	record.FaceSimilarity = result.Report.Face.Similarity
	record.Passed = result.Report.Passed
	record.Report = datatypes.JSON(report)
	record.EngineMetadata = datatypes.JSON(metadata)
	record.Timings = datatypes.JSON(timings)
	return nil
}

// storeImage legt das Bild unter <snapshot_dir>/transformations ab und liefert den relativen Pfad
func (p *ImageProcessor) storeImage(runID string, data []byte) (string, error) {
	relPath := filepath.Join("transformations", runID+extensionFor(data))
	fullPath := filepath.Join(p.cfg.Server.SnapshotDir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write transformed image: %w", err)
	}
	return filepath.ToSlash(relPath), nil
}

func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/png":
		return ".png"
	}
	return ".bin"
}

func (p *ImageProcessor) imageURL(record *models.Transformation) string {
	if record.OutputPath == "" {
		return ""
	}
	return p.cfg.Server.SnapshotURL + "/" + record.OutputPath
}

func (p *ImageProcessor) notify(record *models.Transformation, imageURL string) {
	if p.hub != nil {
		p.hub.BroadcastEvent(sse.Event{
			Type:      sse.EventResult,
			RunID:     record.RunID,
			Status:    record.Status,
			ImageURL:  imageURL,
			ErrorKind: record.ErrorKind,
		})
	}

	if p.publisher == nil {
		return
	}
	event := mqtt.TransformationEvent{
		ID:             record.ID,
		RunID:          record.RunID,
		Style:          record.StyleID,
		Status:         record.Status,
		FaceCount:      record.FaceCount,
		QualityScore:   record.QualityScore,
		FaceSimilarity: record.FaceSimilarity,
		Passed:         record.Passed,
		ImageURL:       imageURL,
		ErrorKind:      record.ErrorKind,
		DurationMS:     record.DurationMS,
		Timestamp:      time.Now(),
	}
	if err := p.publisher.PublishTransformation(event); err != nil {
		log.WithFields(logFields).Warnf("Failed to publish transformation event: %v", err)
	}
}
