package pipeline

import (
	"errors"
	"fmt"
)

// Stage benennt eine Stufe der Pipeline; jede Stufe entspricht genau einem Backend-Aufruf
type Stage string

const (
	StageInput         Stage = "input"
	StageDetection     Stage = "face_detection"
	StageExpressions   Stage = "expression_analysis"
	StageDemographics  Stage = "demographic_analysis"
	StageDescriptors   Stage = "descriptor_generation"
	StageStyleTransfer Stage = "style_transfer"
	StageValidation    Stage = "validation"
)

// Fehlerarten. Jeder von der Pipeline zurückgegebene Fehler ist ein *StageError,
// dessen Kind eine dieser Sentinels ist.
var (
	ErrNoFaceDetected       = errors.New("no face detected")
	ErrFaceDetection        = errors.New("face detection failed")
	ErrAnalysis             = errors.New("face analysis failed")
	ErrDescriptorGeneration = errors.New("descriptor generation failed")
	ErrStyleTransfer        = errors.New("style transfer failed")
	ErrValidation           = errors.New("result validation failed")
	ErrInvalidInput         = errors.New("invalid pipeline input")
)

// Ursachen, die innerhalb eines StageError auftreten können
var (
	ErrCountMismatch   = errors.New("result count does not match face count")
	ErrMissingField    = errors.New("required field missing from response")
	ErrOutOfRange      = errors.New("value out of range")
	ErrQualityRejected = errors.New("transformed image failed quality checks")
)

// StageError verbindet die Stufe, die Fehlerart und die Ursache aus dem Backend
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is erlaubt errors.Is(err, ErrAnalysis) usw.
func (e *StageError) Is(target error) bool {
	return target == e.Kind
}

func stageError(stage Stage, kind, cause error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: cause}
}

// KindOf liefert die Fehlerart eines Pipeline-Fehlers oder nil
func KindOf(err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return nil
}

// StageOf liefert die Stufe, in der der Fehler aufgetreten ist
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Code liefert einen stabilen, maschinenlesbaren Bezeichner für die Fehlerart.
// Eine abgelehnte Qualität wird gesondert gemeldet.
func Code(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrQualityRejected) {
		return "quality_rejected"
	}
	switch KindOf(err) {
	case ErrNoFaceDetected:
		return "no_face_detected"
	case ErrFaceDetection:
		return "face_detection_failed"
	case ErrAnalysis:
		return "analysis_failed"
	case ErrDescriptorGeneration:
		return "descriptor_generation_failed"
	case ErrStyleTransfer:
		return "style_transfer_failed"
	case ErrValidation:
		return "validation_failed"
	case ErrInvalidInput:
		return "invalid_input"
	}
	return "internal_error"
}
