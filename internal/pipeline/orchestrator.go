package pipeline

import (
	"context"
	"fmt"
	"time"

	"photo-transform-go/config"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// State ist der Zustand eines einzelnen Pipeline-Laufs
type State int

const (
	StateIdle State = iota
	StateDetecting
	StateAnalyzing
	StateTransferring
	StateValidating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	case StateAnalyzing:
		return "analyzing"
	case StateTransferring:
		return "transferring"
	case StateValidating:
		return "validating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Observer wird bei jedem Zustandswechsel eines Laufs aufgerufen
type Observer func(runID string, from, to State)

// Orchestrator führt die Stufen in der Reihenfolge ihrer Abhängigkeiten aus.
// Er hält keinen veränderlichen Zustand zwischen Läufen und darf parallel
// verwendet werden.
type Orchestrator struct {
	detector     *FaceDetector
	expressions  *ExpressionAnalyzer
	demographics *DemographicAnalyzer
	descriptors  *DescriptorGenerator
	transfer     *StyleTransferEngine
	validator    *ResultValidator
	observer     Observer
}

// Option konfiguriert den Orchestrator
type Option func(*Orchestrator)

// WithObserver registriert einen Beobachter für Zustandswechsel
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// NewOrchestrator baut alle Stufen auf demselben Caller auf
func NewOrchestrator(caller Caller, cfg config.PipelineConfig, timeouts config.StageTimeouts, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		detector:     NewFaceDetector(caller, cfg, timeouts.Detection),
		expressions:  NewExpressionAnalyzer(caller, cfg, timeouts.Analysis),
		demographics: NewDemographicAnalyzer(caller, cfg, timeouts.Analysis),
		descriptors:  NewDescriptorGenerator(caller, cfg, timeouts.Descriptors),
		transfer:     NewStyleTransferEngine(caller, cfg, timeouts.StyleTransfer),
		validator:    NewResultValidator(caller, cfg, timeouts.Validation),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run hält den Zustand eines einzelnen Laufs
type run struct {
	id     string
	state  State
	logger *log.Entry
	obs    Observer
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	r.logger.Debugf("Pipeline state %s -> %s", from, to)
	if r.obs != nil {
		r.obs(r.id, from, to)
	}
}

func (r *run) fail(err error) error {
	r.transition(StateFailed)
	r.logger.WithError(err).WithField("stage", StageOf(err)).Warn("Pipeline run failed")
	return err
}

// Run führt einen vollständigen Lauf aus. Es wird entweder ein Result oder
// genau ein *StageError zurückgegeben, nie ein Teilergebnis.
func (o *Orchestrator) Run(ctx context.Context, img SourceImage, style StyleRequest) (*Result, error) {
	return o.RunWithID(ctx, uuid.NewString(), img, style)
}

// RunWithID wie Run, aber mit einer vom Aufrufer vergebenen Lauf-ID
func (o *Orchestrator) RunWithID(ctx context.Context, runID string, img SourceImage, style StyleRequest) (*Result, error) {
	r := &run{
		id:    runID,
		state: StateIdle,
		obs:   o.observer,
	}
	r.logger = log.WithFields(log.Fields{"component": "orchestrator", "run_id": r.id, "style": style.StyleID})

	if err := checkInput(img, style); err != nil {
		// Ungültige Eingaben verlassen Idle nicht
		r.logger.WithError(err).Warn("Rejected pipeline input")
		return nil, err
	}

	start := time.Now()
	var timings Timings

	// Detecting
	r.transition(StateDetecting)
	phase := time.Now()
	det, err := o.detector.Detect(ctx, img)
	if err != nil {
		return nil, r.fail(err)
	}
	timings.Detection = time.Since(phase)

	// Analyzing: beide Analysen und die Deskriptoren laufen parallel, der
	// erste Fehler bricht die übrigen über gctx ab.
	r.transition(StateAnalyzing)
	phase = time.Now()
	var (
		expressions  *ExpressionAnalysis
		demographics *DemographicAnalysis
		descriptors  *FaceDescriptorSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expressions, err = o.expressions.Analyze(gctx, det)
		return err
	})
	g.Go(func() error {
		var err error
		demographics, err = o.demographics.Analyze(gctx, det)
		return err
	})
	g.Go(func() error {
		var err error
		descriptors, err = o.descriptors.Generate(gctx, det)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, r.fail(err)
	}
	timings.Analysis = time.Since(phase)

	// Transferring
	r.transition(StateTransferring)
	phase = time.Now()
	transfer, err := o.transfer.Transfer(ctx, img, style, descriptors, expressions, demographics)
	if err != nil {
		return nil, r.fail(err)
	}
	timings.Transfer = time.Since(phase)

	// Validating
	r.transition(StateValidating)
	phase = time.Now()
	report, err := o.validator.Validate(ctx, det, transfer, expressions, demographics)
	if err != nil {
		return nil, r.fail(err)
	}
	timings.Validation = time.Since(phase)
	timings.Total = time.Since(start)

	r.transition(StateDone)
	r.logger.WithFields(log.Fields{
		"faces":    len(det.Faces),
		"passed":   report.Passed,
		"duration": timings.Total,
	}).Info("Pipeline run completed")

	return &Result{
		RunID:            r.id,
		TransformedImage: transfer.TransformedImage,
		Metadata:         transfer.Metadata,
		Report:           *report,
		FaceCount:        len(det.Faces),
		Timings:          timings,
	}, nil
}

func checkInput(img SourceImage, style StyleRequest) error {
	switch {
	case len(img.Data) == 0:
		return stageError(StageInput, ErrInvalidInput, fmt.Errorf("source image is empty"))
	case style.BasePrompt == "":
		return stageError(StageInput, ErrInvalidInput, fmt.Errorf("base prompt is empty"))
	}
	if err := style.Adjustments.Check(); err != nil {
		return stageError(StageInput, ErrInvalidInput, err)
	}
	return nil
}
