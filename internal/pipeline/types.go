package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Endpunkte des KI-Backends
const (
	EndpointDetectFaces         = "/detect-faces"
	EndpointAnalyzeExpressions  = "/analyze-expressions"
	EndpointAnalyzeDemographics = "/analyze-demographics"
	EndpointGenerateDescriptors = "/generate-descriptors"
	EndpointStyleTransfer       = "/style-transfer"
	EndpointValidate            = "/validate"
)

// Caller ist der Vertrag zum Inferenz-Client: genau ein Round-Trip pro Aufruf.
// inference.Client erfüllt ihn, Tests verwenden eine Fälschung.
type Caller interface {
	Call(ctx context.Context, endpoint string, payload, out any, timeout time.Duration) error
}

// SourceImage ist das hochgeladene Foto. Es wird von keiner Stufe verändert.
type SourceImage struct {
	Data     []byte
	MIMEType string
}

// Adjustments steuern die Stilübertragung
type Adjustments struct {
	Strength       float64 `json:"strength"`
	GuidanceScale  float64 `json:"guidance_scale"`
	InferenceSteps int     `json:"num_inference_steps"`
}

// Check prüft die Wertebereiche der Parameter
func (a Adjustments) Check() error {
	switch {
	case a.Strength < 0 || a.Strength > 1:
		return fmt.Errorf("strength %.2f outside [0,1]", a.Strength)
	case a.GuidanceScale <= 0:
		return fmt.Errorf("guidance scale must be positive")
	case a.InferenceSteps <= 0:
		return fmt.Errorf("inference steps must be positive")
	}
	return nil
}

// StyleRequest beschreibt den gewünschten Stil. CustomPrompt ist leer, wenn
// kein eigener Prompt angegeben wurde, und wurde vorher bereits geprüft.
type StyleRequest struct {
	StyleID      string
	BasePrompt   string
	CustomPrompt string
	Adjustments  Adjustments
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Orientation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// DetectedFace ist ein vom Backend gefundenes Gesicht
type DetectedFace struct {
	BoundingBox BoundingBox `json:"bbox"`
	Landmarks   []Point     `json:"landmarks"`
	Confidence  float64     `json:"confidence"`
	Orientation Orientation `json:"orientation"`
}

// FaceDetectionResult enthält mindestens ein Gesicht, in Erkennungsreihenfolge
type FaceDetectionResult struct {
	Faces []DetectedFace
}

// Expression enthält die Blendshape-Koeffizienten eines Gesichts
type Expression struct {
	Coefficients []float64 `json:"coefficients"`
}

// ExpressionAnalysis ist per Index an FaceDetectionResult.Faces ausgerichtet
type ExpressionAnalysis struct {
	Expressions []Expression
}

// Demographic enthält Altersbereich und Geschlechtskonfidenz eines Gesichts
type Demographic struct {
	AgeRange         string  `json:"ageRange"`
	GenderConfidence float64 `json:"genderConfidence"`
}

// DemographicAnalysis ist per Index an FaceDetectionResult.Faces ausgerichtet
type DemographicAnalysis struct {
	Demographics []Demographic
}

// Descriptor ist das Identitäts-Embedding eines Gesichts
type Descriptor struct {
	Vector []float64 `json:"vector"`
}

// FaceDescriptorSet ist per Index an FaceDetectionResult.Faces ausgerichtet
type FaceDescriptorSet struct {
	Descriptors []Descriptor
}

// EngineMetadata beschreibt den Lauf der Stilübertragung im Backend
type EngineMetadata struct {
	Model           string  `json:"model,omitempty"`
	Seed            int64   `json:"seed,omitempty"`
	InferenceTimeMS float64 `json:"inference_time_ms,omitempty"`
}

// StyleTransferResult ist das transformierte Bild samt Metadaten
type StyleTransferResult struct {
	TransformedImage []byte
	Metadata         EngineMetadata
}

type QualityMetrics struct {
	OverallScore float64 `json:"overall_score"`
	Sharpness    float64 `json:"sharpness"`
	Noise        float64 `json:"noise"`
	Contrast     float64 `json:"contrast"`
	Exposure     float64 `json:"exposure"`
}

type FaceMetrics struct {
	Similarity          float64 `json:"similarity"`
	LandmarkAccuracy    float64 `json:"landmark_accuracy"`
	OrientationAccuracy float64 `json:"orientation_accuracy"`
	FacesPreserved      int     `json:"faces_preserved"`
}

type DemographicMetrics struct {
	AgeConsistency    float64 `json:"age_consistency"`
	GenderConsistency float64 `json:"gender_consistency"`
}

type ExpressionMetrics struct {
	ExpressionSimilarity float64 `json:"expression_similarity"`
}

// ValidationReport enthält die Metriken der Validierung und das Urteil.
// Demographic und Expression sind optional.
type ValidationReport struct {
	Quality     QualityMetrics      `json:"quality_metrics"`
	Face        FaceMetrics         `json:"face_metrics"`
	Demographic *DemographicMetrics `json:"demographic_metrics,omitempty"`
	Expression  *ExpressionMetrics  `json:"expression_metrics,omitempty"`
	Passed      bool                `json:"passed"`
}

// Timings hält die Dauer der einzelnen Phasen eines Laufs fest
type Timings struct {
	Detection  time.Duration
	Analysis   time.Duration
	Transfer   time.Duration
	Validation time.Duration
	Total      time.Duration
}

// Result ist das einzige Objekt, das ein erfolgreicher Lauf zurückgibt
type Result struct {
	RunID            string
	TransformedImage []byte
	Metadata         EngineMetadata
	Report           ValidationReport
	FaceCount        int
	Timings          Timings
}
