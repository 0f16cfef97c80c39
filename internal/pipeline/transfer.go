package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"photo-transform-go/config"
)

// BuildPrompt verbindet den Basis-Prompt des Stils mit einem optionalen eigenen Prompt
func BuildPrompt(base, custom string) string {
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return base
	}
	return base + ", " + custom
}

type facePreservation struct {
	Enabled                 bool    `json:"enabled"`
	Weight                  float64 `json:"weight"`
	LandmarkPreservation    bool    `json:"landmark_preservation"`
	ExpressionPreservation  bool    `json:"expression_preservation"`
	DemographicPreservation bool    `json:"demographic_preservation"`
	OrientationPreservation bool    `json:"orientation_preservation"`
}

type styleBlending struct {
	Enabled       bool    `json:"enabled"`
	CustomPrompt  string  `json:"custom_prompt"`
	BlendStrength float64 `json:"blend_strength"`
}

type transferRequest struct {
	Image               []byte           `json:"image"`
	MIMEType            string           `json:"mime_type,omitempty"`
	Style               string           `json:"style,omitempty"`
	Prompt              string           `json:"prompt"`
	FaceDescriptors     []Descriptor     `json:"face_descriptors"`
	ExpressionAnalysis  []Expression     `json:"expression_analysis"`
	DemographicAnalysis []Demographic    `json:"demographic_analysis"`
	Adjustments         Adjustments      `json:"adjustments"`
	FacePreservation    facePreservation `json:"face_preservation"`
	StyleBlending       *styleBlending   `json:"style_blending,omitempty"`
}

type transferResponse struct {
	TransformedImage []byte         `json:"transformed_image"`
	Metadata         EngineMetadata `json:"metadata"`
}

// StyleTransferEngine ist der Synchronisationspunkt nach der Analysephase
// und die einzige Stufe, die ein neues Bild erzeugt.
type StyleTransferEngine struct {
	caller  Caller
	cfg     config.PipelineConfig
	timeout time.Duration
}

func NewStyleTransferEngine(caller Caller, cfg config.PipelineConfig, timeout time.Duration) *StyleTransferEngine {
	return &StyleTransferEngine{caller: caller, cfg: cfg, timeout: timeout}
}

// Transfer führt die Stilübertragung aus. Alle Analyse-Eingaben sind Pflicht.
func (e *StyleTransferEngine) Transfer(ctx context.Context, img SourceImage, style StyleRequest,
	descriptors *FaceDescriptorSet, expressions *ExpressionAnalysis, demographics *DemographicAnalysis) (*StyleTransferResult, error) {

	if descriptors == nil || expressions == nil || demographics == nil {
		return nil, stageError(StageStyleTransfer, ErrInvalidInput, fmt.Errorf("descriptors and both analyses are required"))
	}

	req := transferRequest{
		Image:               img.Data,
		MIMEType:            img.MIMEType,
		Style:               style.StyleID,
		Prompt:              BuildPrompt(style.BasePrompt, style.CustomPrompt),
		FaceDescriptors:     descriptors.Descriptors,
		ExpressionAnalysis:  expressions.Expressions,
		DemographicAnalysis: demographics.Demographics,
		Adjustments:         style.Adjustments,
		FacePreservation: facePreservation{
			Enabled:                 true,
			Weight:                  e.cfg.PreservationWeight,
			LandmarkPreservation:    true,
			ExpressionPreservation:  true,
			DemographicPreservation: true,
			OrientationPreservation: true,
		},
	}
	if custom := strings.TrimSpace(style.CustomPrompt); custom != "" {
		req.StyleBlending = &styleBlending{
			Enabled:       true,
			CustomPrompt:  custom,
			BlendStrength: e.cfg.BlendStrength,
		}
	}

	var resp transferResponse
	if err := e.caller.Call(ctx, EndpointStyleTransfer, req, &resp, e.timeout); err != nil {
		return nil, stageError(StageStyleTransfer, ErrStyleTransfer, err)
	}
	if len(resp.TransformedImage) == 0 {
		return nil, stageError(StageStyleTransfer, ErrStyleTransfer, fmt.Errorf("%w: transformed_image", ErrMissingField))
	}

	return &StyleTransferResult{TransformedImage: resp.TransformedImage, Metadata: resp.Metadata}, nil
}
