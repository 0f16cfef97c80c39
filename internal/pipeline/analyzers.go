package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"photo-transform-go/config"
)

type expressionRequest struct {
	Faces           []DetectedFace `json:"faces"`
	BlendshapeCount int            `json:"blendshape_count"`
}

type expressionResponse struct {
	Expressions []Expression `json:"expressions"`
}

type demographicRequest struct {
	Faces                     []DetectedFace `json:"faces"`
	AgeRanges                 []string       `json:"age_ranges"`
	GenderConfidenceThreshold float64        `json:"gender_confidence_threshold"`
}

type demographicResponse struct {
	Demographics []Demographic `json:"demographics"`
}

// requireFaces schützt die Analysestufen vor Orchestrierungsfehlern
func requireFaces(stage Stage, det *FaceDetectionResult) error {
	if det == nil || len(det.Faces) == 0 {
		return stageError(stage, ErrInvalidInput, fmt.Errorf("no faces provided"))
	}
	return nil
}

func checkCount(stage Stage, kind error, what string, got, faces int) error {
	if got != faces {
		return stageError(stage, kind, fmt.Errorf("%w: got %d %s for %d faces", ErrCountMismatch, got, what, faces))
	}
	return nil
}

// ExpressionAnalyzer ermittelt Blendshape-Koeffizienten pro Gesicht
type ExpressionAnalyzer struct {
	caller  Caller
	cfg     config.PipelineConfig
	timeout time.Duration
}

func NewExpressionAnalyzer(caller Caller, cfg config.PipelineConfig, timeout time.Duration) *ExpressionAnalyzer {
	return &ExpressionAnalyzer{caller: caller, cfg: cfg, timeout: timeout}
}

// Analyze liefert genau einen Koeffizientenvektor pro erkanntem Gesicht
func (a *ExpressionAnalyzer) Analyze(ctx context.Context, det *FaceDetectionResult) (*ExpressionAnalysis, error) {
	if err := requireFaces(StageExpressions, det); err != nil {
		return nil, err
	}

	req := expressionRequest{Faces: det.Faces, BlendshapeCount: a.cfg.BlendshapeCount}
	var resp expressionResponse
	if err := a.caller.Call(ctx, EndpointAnalyzeExpressions, req, &resp, a.timeout); err != nil {
		return nil, stageError(StageExpressions, ErrAnalysis, err)
	}

	if err := checkCount(StageExpressions, ErrAnalysis, "expression sets", len(resp.Expressions), len(det.Faces)); err != nil {
		return nil, err
	}
	for i, expr := range resp.Expressions {
		if len(expr.Coefficients) != a.cfg.BlendshapeCount {
			return nil, stageError(StageExpressions, ErrAnalysis,
				fmt.Errorf("%w: face %d has %d coefficients, expected %d", ErrCountMismatch, i, len(expr.Coefficients), a.cfg.BlendshapeCount))
		}
		for _, c := range expr.Coefficients {
			if c < 0 || c > 1 {
				return nil, stageError(StageExpressions, ErrAnalysis,
					fmt.Errorf("%w: face %d coefficient %.3f", ErrOutOfRange, i, c))
			}
		}
	}

	return &ExpressionAnalysis{Expressions: resp.Expressions}, nil
}

// DemographicAnalyzer ermittelt Altersbereich und Geschlechtskonfidenz pro Gesicht
type DemographicAnalyzer struct {
	caller  Caller
	cfg     config.PipelineConfig
	timeout time.Duration
}

func NewDemographicAnalyzer(caller Caller, cfg config.PipelineConfig, timeout time.Duration) *DemographicAnalyzer {
	return &DemographicAnalyzer{caller: caller, cfg: cfg, timeout: timeout}
}

// Analyze liefert genau einen Eintrag pro erkanntem Gesicht
func (a *DemographicAnalyzer) Analyze(ctx context.Context, det *FaceDetectionResult) (*DemographicAnalysis, error) {
	if err := requireFaces(StageDemographics, det); err != nil {
		return nil, err
	}

	req := demographicRequest{
		Faces:                     det.Faces,
		AgeRanges:                 a.cfg.AgeRanges,
		GenderConfidenceThreshold: a.cfg.GenderConfidenceThreshold,
	}
	var resp demographicResponse
	if err := a.caller.Call(ctx, EndpointAnalyzeDemographics, req, &resp, a.timeout); err != nil {
		return nil, stageError(StageDemographics, ErrAnalysis, err)
	}

	if err := checkCount(StageDemographics, ErrAnalysis, "demographic entries", len(resp.Demographics), len(det.Faces)); err != nil {
		return nil, err
	}
	for i, d := range resp.Demographics {
		if !slices.Contains(a.cfg.AgeRanges, d.AgeRange) {
			return nil, stageError(StageDemographics, ErrAnalysis,
				fmt.Errorf("%w: face %d has unknown age range %q", ErrOutOfRange, i, d.AgeRange))
		}
		if d.GenderConfidence < 0 || d.GenderConfidence > 1 {
			return nil, stageError(StageDemographics, ErrAnalysis,
				fmt.Errorf("%w: face %d gender confidence %.3f", ErrOutOfRange, i, d.GenderConfidence))
		}
	}

	return &DemographicAnalysis{Demographics: resp.Demographics}, nil
}
