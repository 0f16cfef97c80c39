package pipeline

import (
	"context"
	"fmt"
	"time"

	"photo-transform-go/config"
)

type validationChecks struct {
	CheckLandmarks    bool `json:"check_landmarks"`
	CheckExpressions  bool `json:"check_expressions"`
	CheckDemographics bool `json:"check_demographics"`
	CheckQuality      bool `json:"check_quality"`
	CheckOrientation  bool `json:"check_orientation"`
	CheckMultiFace    bool `json:"check_multi_face"`
}

type validateRequest struct {
	OriginalFaces       []DetectedFace   `json:"original_faces"`
	TransformedImage    []byte           `json:"transformed_image"`
	ExpressionAnalysis  []Expression     `json:"expression_analysis"`
	DemographicAnalysis []Demographic    `json:"demographic_analysis"`
	Checks              validationChecks `json:"checks"`
}

type validateResponse struct {
	QualityMetrics     *QualityMetrics     `json:"quality_metrics"`
	FaceMetrics        *FaceMetrics        `json:"face_metrics"`
	DemographicMetrics *DemographicMetrics `json:"demographic_metrics"`
	ExpressionMetrics  *ExpressionMetrics  `json:"expression_metrics"`
	Passed             *bool               `json:"passed"`
}

// ResultValidator bewertet das transformierte Bild gegen die ursprüngliche Analyse
type ResultValidator struct {
	caller  Caller
	cfg     config.PipelineConfig
	timeout time.Duration
}

func NewResultValidator(caller Caller, cfg config.PipelineConfig, timeout time.Duration) *ResultValidator {
	return &ResultValidator{caller: caller, cfg: cfg, timeout: timeout}
}

// Validate liefert den Bericht. Fehlen Qualitäts- oder Gesichtsmetriken, gibt
// es keinen Teilbericht, sondern ErrValidation.
func (v *ResultValidator) Validate(ctx context.Context, det *FaceDetectionResult, transfer *StyleTransferResult,
	expressions *ExpressionAnalysis, demographics *DemographicAnalysis) (*ValidationReport, error) {

	if det == nil || transfer == nil || expressions == nil || demographics == nil {
		return nil, stageError(StageValidation, ErrInvalidInput, fmt.Errorf("detection, transfer result and analyses are required"))
	}

	req := validateRequest{
		OriginalFaces:       det.Faces,
		TransformedImage:    transfer.TransformedImage,
		ExpressionAnalysis:  expressions.Expressions,
		DemographicAnalysis: demographics.Demographics,
		Checks: validationChecks{
			CheckLandmarks:    true,
			CheckExpressions:  true,
			CheckDemographics: true,
			CheckQuality:      true,
			CheckOrientation:  true,
			CheckMultiFace:    true,
		},
	}

	var resp validateResponse
	if err := v.caller.Call(ctx, EndpointValidate, req, &resp, v.timeout); err != nil {
		return nil, stageError(StageValidation, ErrValidation, err)
	}
	if resp.QualityMetrics == nil {
		return nil, stageError(StageValidation, ErrValidation, fmt.Errorf("%w: quality_metrics", ErrMissingField))
	}
	if resp.FaceMetrics == nil {
		return nil, stageError(StageValidation, ErrValidation, fmt.Errorf("%w: face_metrics", ErrMissingField))
	}

	report := &ValidationReport{
		Quality:     *resp.QualityMetrics,
		Face:        *resp.FaceMetrics,
		Demographic: resp.DemographicMetrics,
		Expression:  resp.ExpressionMetrics,
	}
	report.Passed = report.Quality.OverallScore >= v.cfg.MinQualityScore &&
		report.Face.Similarity >= v.cfg.MinFaceSimilarity
	// Ein eigenes Urteil des Backends kann den Lauf nur verschärfen
	backendVerdict := ""
	if resp.Passed != nil {
		report.Passed = report.Passed && *resp.Passed
		backendVerdict = fmt.Sprintf(", backend passed=%t", *resp.Passed)
	}

	if !report.Passed && v.cfg.EnforceQuality {
		return nil, stageError(StageValidation, ErrValidation, fmt.Errorf("%w: quality %.2f (min %.2f), face similarity %.2f (min %.2f)%s",
			ErrQualityRejected, report.Quality.OverallScore, v.cfg.MinQualityScore, report.Face.Similarity, v.cfg.MinFaceSimilarity, backendVerdict))
	}

	return report, nil
}
