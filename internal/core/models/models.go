package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status eines Transformationsauftrags
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Transformation ist ein einzelner Pipeline-Lauf samt Ergebnis
type Transformation struct {
	gorm.Model
	RunID        string `gorm:"uniqueIndex;not null"` // ID des Pipeline-Laufs
	StyleID      string `gorm:"index;not null"`
	CustomPrompt string
	Status       string `gorm:"index;not null;default:'processing'"`

	SourceMIME   string
	SourceBytes  int64
	SourceWidth  int
	SourceHeight int

	FaceCount  int
	OutputPath string // Relativ zum Snapshot-Verzeichnis

	// Validierungsurteil
	QualityScore   float64
	FaceSimilarity float64
	Passed         bool

	Report         datatypes.JSON `gorm:"type:json;null"` // Vollständiger ValidationReport
	EngineMetadata datatypes.JSON `gorm:"type:json;null"`
	Timings        datatypes.JSON `gorm:"type:json;null"`

	ErrorKind    string `gorm:"index"` // z.B. 'no_face_detected'
	ErrorStage   string
	ErrorMessage string

	DurationMS  int64
	CompletedAt *time.Time `gorm:"index"`
}

// Statistics fasst die gespeicherten Transformationen zusammen
type Statistics struct {
	Total       int64            `json:"total"`
	Completed   int64            `json:"completed"`
	Failed      int64            `json:"failed"`
	Processing  int64            `json:"processing"`
	ByErrorKind map[string]int64 `json:"by_error_kind"`
	LatestRun   time.Time        `json:"latest_run"`
}
