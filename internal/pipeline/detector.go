package pipeline

import (
	"context"
	"fmt"
	"time"

	"photo-transform-go/config"

	log "github.com/sirupsen/logrus"
)

type detectRequest struct {
	Image               []byte  `json:"image"`
	MIMEType            string  `json:"mime_type,omitempty"`
	Model               string  `json:"model,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MinFaceSize         int     `json:"min_face_size"`
	LandmarkCount       int     `json:"landmark_count"`
	MaxFaces            int     `json:"max_faces"`
	TrackOrientation    bool    `json:"track_orientation"`
}

type detectResponse struct {
	Faces []DetectedFace `json:"faces"`
}

// FaceDetector ist die erste Stufe und entscheidet, ob die Pipeline weiterläuft
type FaceDetector struct {
	caller  Caller
	cfg     config.PipelineConfig
	timeout time.Duration
}

// NewFaceDetector erstellt einen neuen FaceDetector
func NewFaceDetector(caller Caller, cfg config.PipelineConfig, timeout time.Duration) *FaceDetector {
	return &FaceDetector{caller: caller, cfg: cfg, timeout: timeout}
}

// Detect sucht Gesichter im Quellbild. Ein leeres Ergebnis ist kein Erfolg,
// sondern ErrNoFaceDetected.
func (d *FaceDetector) Detect(ctx context.Context, img SourceImage) (*FaceDetectionResult, error) {
	req := detectRequest{
		Image:               img.Data,
		MIMEType:            img.MIMEType,
		Model:               d.cfg.DetectionModel,
		ConfidenceThreshold: d.cfg.ConfidenceThreshold,
		MinFaceSize:         d.cfg.MinFaceSize,
		LandmarkCount:       d.cfg.LandmarkCount,
		MaxFaces:            d.cfg.MaxFaces,
		TrackOrientation:    true,
	}

	var resp detectResponse
	if err := d.caller.Call(ctx, EndpointDetectFaces, req, &resp, d.timeout); err != nil {
		return nil, stageError(StageDetection, ErrFaceDetection, err)
	}

	if len(resp.Faces) == 0 {
		return nil, stageError(StageDetection, ErrNoFaceDetected, nil)
	}

	for i, face := range resp.Faces {
		if face.Confidence < 0 || face.Confidence > 1 {
			return nil, stageError(StageDetection, ErrFaceDetection,
				fmt.Errorf("%w: face %d confidence %.3f", ErrOutOfRange, i, face.Confidence))
		}
		if d.cfg.LandmarkCount > 0 && len(face.Landmarks) != d.cfg.LandmarkCount {
			return nil, stageError(StageDetection, ErrFaceDetection,
				fmt.Errorf("%w: face %d has %d landmarks, expected %d", ErrCountMismatch, i, len(face.Landmarks), d.cfg.LandmarkCount))
		}
	}

	log.WithFields(log.Fields{"component": "face_detector"}).Debugf("Detected %d face(s)", len(resp.Faces))
	return &FaceDetectionResult{Faces: resp.Faces}, nil
}
