package pipeline

import (
	"context"
	"fmt"
	"time"

	"photo-transform-go/config"
)

type descriptorRequest struct {
	Faces             []DetectedFace `json:"faces"`
	EmbeddingSize     int            `json:"embedding_size"`
	PreserveLandmarks bool           `json:"preserve_landmarks"`
}

type descriptorResponse struct {
	Descriptors []Descriptor `json:"descriptors"`
}

// DescriptorGenerator erzeugt Identitäts-Embeddings für die Stilübertragung.
// Er hängt nur von der Gesichtserkennung ab, nicht von den Analysen.
type DescriptorGenerator struct {
	caller  Caller
	cfg     config.PipelineConfig
	timeout time.Duration
}

func NewDescriptorGenerator(caller Caller, cfg config.PipelineConfig, timeout time.Duration) *DescriptorGenerator {
	return &DescriptorGenerator{caller: caller, cfg: cfg, timeout: timeout}
}

func (g *DescriptorGenerator) Generate(ctx context.Context, det *FaceDetectionResult) (*FaceDescriptorSet, error) {
	if err := requireFaces(StageDescriptors, det); err != nil {
		return nil, err
	}

	req := descriptorRequest{Faces: det.Faces, EmbeddingSize: g.cfg.EmbeddingSize, PreserveLandmarks: true}
	var resp descriptorResponse
	if err := g.caller.Call(ctx, EndpointGenerateDescriptors, req, &resp, g.timeout); err != nil {
		return nil, stageError(StageDescriptors, ErrDescriptorGeneration, err)
	}

	if err := checkCount(StageDescriptors, ErrDescriptorGeneration, "descriptors", len(resp.Descriptors), len(det.Faces)); err != nil {
		return nil, err
	}
	for i, d := range resp.Descriptors {
		if len(d.Vector) != g.cfg.EmbeddingSize {
			return nil, stageError(StageDescriptors, ErrDescriptorGeneration,
				fmt.Errorf("%w: descriptor %d has %d dimensions, expected %d", ErrCountMismatch, i, len(d.Vector), g.cfg.EmbeddingSize))
		}
	}

	return &FaceDescriptorSet{Descriptors: resp.Descriptors}, nil
}
