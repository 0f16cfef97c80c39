package pipeline

import (
	"context"
	"errors"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		base, custom, want string
	}{
		{"futuristic cyberpunk style", "", "futuristic cyberpunk style"},
		{"futuristic cyberpunk style", "neon rain", "futuristic cyberpunk style, neon rain"},
		{"retro 80s style", "  synthwave  ", "retro 80s style, synthwave"},
		{"retro 80s style", "\t\n", "retro 80s style"},
	}
	for _, tt := range tests {
		if got := BuildPrompt(tt.base, tt.custom); got != tt.want {
			t.Errorf("BuildPrompt(%q, %q) = %q, want %q", tt.base, tt.custom, got, tt.want)
		}
	}
}

func TestDetect_RejectsImplausibleFaces(t *testing.T) {
	cfg := testPipelineConfig()

	lowLandmarks := makeFaces(1)
	lowLandmarks[0].Landmarks = lowLandmarks[0].Landmarks[:68]

	badConfidence := makeFaces(1)
	badConfidence[0].Confidence = 1.4

	tests := []struct {
		name  string
		faces []DetectedFace
		cause error
	}{
		{"landmark count", lowLandmarks, ErrCountMismatch},
		{"confidence", badConfidence, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newFakeCaller().on(EndpointDetectFaces, cannedResponse{body: map[string]any{"faces": tt.faces}})
			_, err := NewFaceDetector(caller, cfg, testTimeouts().Detection).Detect(context.Background(), testImage())
			if !errors.Is(err, ErrFaceDetection) || !errors.Is(err, tt.cause) {
				t.Fatalf("expected detection error caused by %v, got %v", tt.cause, err)
			}
		})
	}
}

func TestDetect_SendsDetectionParameters(t *testing.T) {
	caller := newFakeCaller().on(EndpointDetectFaces, cannedResponse{body: detectBody(1)})
	res, err := NewFaceDetector(caller, testPipelineConfig(), testTimeouts().Detection).Detect(context.Background(), testImage())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Faces) != 1 {
		t.Fatalf("expected one face, got %d", len(res.Faces))
	}

	var req detectRequest
	if err := caller.request(EndpointDetectFaces, &req); err != nil {
		t.Fatal(err)
	}
	if req.ConfidenceThreshold != 0.9 || req.MinFaceSize != 20 || req.LandmarkCount != 478 || req.MaxFaces != 10 {
		t.Errorf("unexpected detection parameters: %+v", req)
	}
	if !req.TrackOrientation {
		t.Error("orientation tracking not requested")
	}
}

func TestAnalyzers_RequireFaces(t *testing.T) {
	caller := happyCaller(1)
	cfg := testPipelineConfig()
	timeout := testTimeouts().Analysis
	empty := &FaceDetectionResult{}

	if _, err := NewExpressionAnalyzer(caller, cfg, timeout).Analyze(context.Background(), empty); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expressions: expected ErrInvalidInput, got %v", err)
	}
	if _, err := NewDemographicAnalyzer(caller, cfg, timeout).Analyze(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("demographics: expected ErrInvalidInput, got %v", err)
	}
	if _, err := NewDescriptorGenerator(caller, cfg, timeout).Generate(context.Background(), empty); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("descriptors: expected ErrInvalidInput, got %v", err)
	}
	if caller.called(EndpointAnalyzeExpressions) || caller.called(EndpointAnalyzeDemographics) || caller.called(EndpointGenerateDescriptors) {
		t.Error("backend called without faces")
	}
}

func TestExpressionAnalyzer_Validation(t *testing.T) {
	det := &FaceDetectionResult{Faces: makeFaces(1)}

	short := expressionsBody(1)
	short["expressions"].([]Expression)[0].Coefficients = make([]float64, 10)

	outOfRange := expressionsBody(1)
	outOfRange["expressions"].([]Expression)[0].Coefficients[3] = 1.7

	tests := []struct {
		name  string
		body  map[string]any
		cause error
	}{
		{"coefficient count", short, ErrCountMismatch},
		{"coefficient range", outOfRange, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newFakeCaller().on(EndpointAnalyzeExpressions, cannedResponse{body: tt.body})
			_, err := NewExpressionAnalyzer(caller, testPipelineConfig(), testTimeouts().Analysis).Analyze(context.Background(), det)
			if !errors.Is(err, ErrAnalysis) || !errors.Is(err, tt.cause) {
				t.Fatalf("expected analysis error caused by %v, got %v", tt.cause, err)
			}
			if StageOf(err) != StageExpressions {
				t.Errorf("unexpected stage %q", StageOf(err))
			}
		})
	}
}

func TestDemographicAnalyzer_Validation(t *testing.T) {
	det := &FaceDetectionResult{Faces: makeFaces(1)}
	tests := []struct {
		name string
		demo Demographic
	}{
		{"unknown age range", Demographic{AgeRange: "21-30", GenderConfidence: 0.9}},
		{"gender confidence", Demographic{AgeRange: "60+", GenderConfidence: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newFakeCaller().on(EndpointAnalyzeDemographics, cannedResponse{
				body: map[string]any{"demographics": []Demographic{tt.demo}},
			})
			_, err := NewDemographicAnalyzer(caller, testPipelineConfig(), testTimeouts().Analysis).Analyze(context.Background(), det)
			if !errors.Is(err, ErrAnalysis) || !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("expected out-of-range analysis error, got %v", err)
			}
		})
	}
}

func TestDescriptorGenerator_DimensionMismatch(t *testing.T) {
	body := map[string]any{"descriptors": []Descriptor{{Vector: make([]float64, 64)}}}
	caller := newFakeCaller().on(EndpointGenerateDescriptors, cannedResponse{body: body})

	_, err := NewDescriptorGenerator(caller, testPipelineConfig(), testTimeouts().Descriptors).
		Generate(context.Background(), &FaceDetectionResult{Faces: makeFaces(1)})
	if !errors.Is(err, ErrDescriptorGeneration) || !errors.Is(err, ErrCountMismatch) {
		t.Fatalf("expected descriptor dimension error, got %v", err)
	}
}

func TestTransfer_RequiresAnalyses(t *testing.T) {
	caller := happyCaller(1)
	_, err := NewStyleTransferEngine(caller, testPipelineConfig(), testTimeouts().StyleTransfer).
		Transfer(context.Background(), testImage(), testStyle(), nil, &ExpressionAnalysis{}, &DemographicAnalysis{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if caller.called(EndpointStyleTransfer) {
		t.Error("backend called without descriptors")
	}
}

func TestStageError_Matching(t *testing.T) {
	cause := errors.New("upstream")
	err := error(stageError(StageDescriptors, ErrDescriptorGeneration, cause))

	if !errors.Is(err, ErrDescriptorGeneration) || !errors.Is(err, cause) {
		t.Error("kind and cause must both match")
	}
	if errors.Is(err, ErrAnalysis) {
		t.Error("unrelated kind matched")
	}
	if KindOf(err) != ErrDescriptorGeneration || StageOf(err) != StageDescriptors {
		t.Errorf("unexpected kind/stage: %v / %v", KindOf(err), StageOf(err))
	}
	if KindOf(cause) != nil {
		t.Error("plain error has no kind")
	}
	if got := stageError(StageDetection, ErrNoFaceDetected, nil).Error(); got != "face_detection: no face detected" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{stageError(StageDetection, ErrNoFaceDetected, nil), "no_face_detected"},
		{stageError(StageDemographics, ErrAnalysis, ErrCountMismatch), "analysis_failed"},
		{stageError(StageValidation, ErrValidation, ErrQualityRejected), "quality_rejected"},
		{stageError(StageValidation, ErrValidation, ErrMissingField), "validation_failed"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAdjustments_Check(t *testing.T) {
	tests := []struct {
		name    string
		adj     Adjustments
		wantErr bool
	}{
		{"defaults", Adjustments{Strength: 0.75, GuidanceScale: 7.5, InferenceSteps: 50}, false},
		{"bounds", Adjustments{Strength: 1, GuidanceScale: 0.1, InferenceSteps: 1}, false},
		{"negative strength", Adjustments{Strength: -0.1, GuidanceScale: 7.5, InferenceSteps: 50}, true},
		{"strength above one", Adjustments{Strength: 1.01, GuidanceScale: 7.5, InferenceSteps: 50}, true},
		{"zero guidance", Adjustments{Strength: 0.5, InferenceSteps: 50}, true},
		{"zero steps", Adjustments{Strength: 0.5, GuidanceScale: 7.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.adj.Check(); (err != nil) != tt.wantErr {
				t.Errorf("Check() = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}
