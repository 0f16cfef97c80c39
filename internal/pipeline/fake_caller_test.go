package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"photo-transform-go/config"
	"photo-transform-go/internal/inference"
)

// cannedResponse ist die vorbereitete Antwort eines Endpunkts
type cannedResponse struct {
	body  any
	err   error
	delay time.Duration
}

// fakeCaller spielt das KI-Backend nach. Antworten laufen einmal durch JSON,
// damit die Adapter dieselben Formen sehen wie über HTTP.
type fakeCaller struct {
	mu        sync.Mutex
	responses map[string]cannedResponse
	events    []string
	requests  map[string]json.RawMessage
	cancelled map[string]bool
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: make(map[string]cannedResponse),
		requests:  make(map[string]json.RawMessage),
		cancelled: make(map[string]bool),
	}
}

func (f *fakeCaller) on(endpoint string, resp cannedResponse) *fakeCaller {
	f.responses[endpoint] = resp
	return f
}

func (f *fakeCaller) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeCaller) Call(ctx context.Context, endpoint string, payload, out any, timeout time.Duration) error {
	f.record("start:" + endpoint)

	raw, err := json.Marshal(payload)
	if err != nil {
		return &inference.Error{Endpoint: endpoint, Message: "failed to encode request", Err: err}
	}
	f.mu.Lock()
	f.requests[endpoint] = raw
	resp, ok := f.responses[endpoint]
	f.mu.Unlock()

	if !ok {
		return &inference.Error{Endpoint: endpoint, StatusCode: 404, Message: "no canned response"}
	}

	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-ctx.Done():
			f.mu.Lock()
			f.cancelled[endpoint] = true
			f.mu.Unlock()
			f.record("cancel:" + endpoint)
			return &inference.Error{Endpoint: endpoint, Message: ctx.Err().Error(), Err: ctx.Err()}
		}
	}
	defer f.record("end:" + endpoint)

	if resp.err != nil {
		return resp.err
	}
	body, err := json.Marshal(resp.body)
	if err != nil {
		return &inference.Error{Endpoint: endpoint, Message: "failed to encode canned body", Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &inference.Error{Endpoint: endpoint, Message: "malformed response", Err: err}
	}
	return nil
}

func (f *fakeCaller) called(endpoint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.requests[endpoint]
	return ok
}

func (f *fakeCaller) request(endpoint string, out any) error {
	f.mu.Lock()
	raw := f.requests[endpoint]
	f.mu.Unlock()
	return json.Unmarshal(raw, out)
}

func (f *fakeCaller) eventIndex(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (f *fakeCaller) wasCancelled(endpoint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[endpoint]
}

func testPipelineConfig() config.PipelineConfig {
	return config.Defaults().Pipeline
}

func testTimeouts() config.StageTimeouts {
	return config.Defaults().Inference.Timeouts
}

func testImage() SourceImage {
	return SourceImage{Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}, MIMEType: "image/jpeg"}
}

func testStyle() StyleRequest {
	return StyleRequest{
		StyleID:     "anime",
		BasePrompt:  "anime style",
		Adjustments: Adjustments{Strength: 0.6, GuidanceScale: 7.5, InferenceSteps: 50},
	}
}

func makeFaces(n int) []DetectedFace {
	cfg := testPipelineConfig()
	faces := make([]DetectedFace, n)
	for i := range faces {
		landmarks := make([]Point, cfg.LandmarkCount)
		for j := range landmarks {
			landmarks[j] = Point{X: float64(j % 100), Y: float64(j / 100)}
		}
		faces[i] = DetectedFace{
			BoundingBox: BoundingBox{X: float64(10 * i), Y: 10, Width: 120, Height: 140},
			Landmarks:   landmarks,
			Confidence:  0.97,
			Orientation: Orientation{Yaw: 2.5},
		}
	}
	return faces
}

func detectBody(n int) map[string]any {
	return map[string]any{"faces": makeFaces(n)}
}

func expressionsBody(n int) map[string]any {
	cfg := testPipelineConfig()
	exprs := make([]Expression, n)
	for i := range exprs {
		coeffs := make([]float64, cfg.BlendshapeCount)
		for j := range coeffs {
			coeffs[j] = 0.25
		}
		exprs[i] = Expression{Coefficients: coeffs}
	}
	return map[string]any{"expressions": exprs}
}

func demographicsBody(n int) map[string]any {
	demos := make([]Demographic, n)
	for i := range demos {
		demos[i] = Demographic{AgeRange: "20-32", GenderConfidence: 0.93}
	}
	return map[string]any{"demographics": demos}
}

func descriptorsBody(n int) map[string]any {
	cfg := testPipelineConfig()
	descs := make([]Descriptor, n)
	for i := range descs {
		descs[i] = Descriptor{Vector: make([]float64, cfg.EmbeddingSize)}
	}
	return map[string]any{"descriptors": descs}
}

func transferBody() map[string]any {
	return map[string]any{
		"transformed_image": []byte("transformed-png-bytes"),
		"metadata":          map[string]any{"model": "sdxl", "seed": 42, "inference_time_ms": 812.5},
	}
}

func validateBody() map[string]any {
	return map[string]any{
		"quality_metrics":     map[string]any{"overall_score": 0.91, "sharpness": 0.8, "noise": 0.1, "contrast": 0.7, "exposure": 0.6},
		"face_metrics":        map[string]any{"similarity": 0.88, "landmark_accuracy": 0.9, "orientation_accuracy": 0.95, "faces_preserved": 1},
		"demographic_metrics": map[string]any{"age_consistency": 0.9, "gender_consistency": 0.97},
		"expression_metrics":  map[string]any{"expression_similarity": 0.86},
	}
}

// happyCaller beantwortet alle Endpunkte erfolgreich für n Gesichter
func happyCaller(n int) *fakeCaller {
	return newFakeCaller().
		on(EndpointDetectFaces, cannedResponse{body: detectBody(n)}).
		on(EndpointAnalyzeExpressions, cannedResponse{body: expressionsBody(n)}).
		on(EndpointAnalyzeDemographics, cannedResponse{body: demographicsBody(n)}).
		on(EndpointGenerateDescriptors, cannedResponse{body: descriptorsBody(n)}).
		on(EndpointStyleTransfer, cannedResponse{body: transferBody()}).
		on(EndpointValidate, cannedResponse{body: validateBody()})
}
