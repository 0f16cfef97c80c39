package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Inference InferenceConfig `mapstructure:"inference"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Upload    UploadConfig    `mapstructure:"upload"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	I18n      I18nConfig      `mapstructure:"i18n"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	DataDir       string   `mapstructure:"data_dir"`
	SnapshotDir   string   `mapstructure:"snapshot_dir"`
	SnapshotURL   string   `mapstructure:"snapshot_url"`
	SessionSecret string   `mapstructure:"session_secret"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"`
}

// InferenceConfig enthält die Verbindungsdaten des KI-Backends
type InferenceConfig struct {
	URL      string        `mapstructure:"url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeouts StageTimeouts `mapstructure:"timeouts"`
}

// StageTimeouts enthält die Zeitbudgets pro Pipeline-Stufe
type StageTimeouts struct {
	Detection     time.Duration `mapstructure:"detection"`
	Analysis      time.Duration `mapstructure:"analysis"`
	Descriptors   time.Duration `mapstructure:"descriptors"`
	StyleTransfer time.Duration `mapstructure:"style_transfer"`
	Validation    time.Duration `mapstructure:"validation"`
}

// PipelineConfig enthält die Parameter der einzelnen Stufen
type PipelineConfig struct {
	DetectionModel      string  `mapstructure:"detection_model"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MinFaceSize         int     `mapstructure:"min_face_size"`
	LandmarkCount       int     `mapstructure:"landmark_count"`
	MaxFaces            int     `mapstructure:"max_faces"`

	BlendshapeCount           int      `mapstructure:"blendshape_count"`
	AgeRanges                 []string `mapstructure:"age_ranges"`
	GenderConfidenceThreshold float64  `mapstructure:"gender_confidence_threshold"`
	EmbeddingSize             int      `mapstructure:"embedding_size"`

	PreservationWeight float64 `mapstructure:"preservation_weight"`
	BlendStrength      float64 `mapstructure:"blend_strength"`

	MinQualityScore   float64 `mapstructure:"min_quality_score"`
	MinFaceSimilarity float64 `mapstructure:"min_face_similarity"`
	EnforceQuality    bool    `mapstructure:"enforce_quality"`
}

// UploadConfig enthält die Grenzen für hochgeladene Fotos
type UploadConfig struct {
	MaxBytes         int64    `mapstructure:"max_bytes"`
	MinDimension     int      `mapstructure:"min_dimension"`
	MaxDimension     int      `mapstructure:"max_dimension"`
	SupportedFormats []string `mapstructure:"supported_formats"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// CleanupConfig enthält Bereinigungseinstellungen
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// WorkersConfig begrenzt die gleichzeitig laufenden Pipelines
type WorkersConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

// I18nConfig enthält die Spracheinstellungen für Fehlermeldungen
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.SetEnvPrefix("PHOTO_TRANSFORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// Validate prüft Werte, ohne die keine Pipeline laufen kann
func (c *Config) Validate() error {
	if c.Inference.URL == "" {
		return fmt.Errorf("inference.url must be set")
	}
	if c.Pipeline.MaxFaces <= 0 {
		return fmt.Errorf("pipeline.max_faces must be positive, got %d", c.Pipeline.MaxFaces)
	}
	if c.Pipeline.BlendshapeCount <= 0 || c.Pipeline.EmbeddingSize <= 0 {
		return fmt.Errorf("pipeline.blendshape_count and pipeline.embedding_size must be positive")
	}
	if len(c.Pipeline.AgeRanges) == 0 {
		return fmt.Errorf("pipeline.age_ranges must not be empty")
	}
	return nil
}

// Defaults liefert eine vollständig mit Standardwerten belegte Konfiguration
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Standardwerte sind statisch, ein Fehler hier ist ein Programmierfehler
		panic(fmt.Sprintf("invalid default configuration: %v", err))
	}
	return &cfg
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.snapshot_dir", "/data/snapshots")
	v.SetDefault("server.snapshot_url", "/snapshots")
	v.SetDefault("server.session_secret", "change-me")
	v.SetDefault("server.allow_origins", []string{"*"})

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/photo-transform.log")

	// DB-Standardwerte
	v.SetDefault("db.file", "/data/photo-transform.db")

	// Inferenz-Backend
	v.SetDefault("inference.url", "http://localhost:5002")
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.timeouts.detection", 10*time.Second)
	v.SetDefault("inference.timeouts.analysis", 15*time.Second)
	v.SetDefault("inference.timeouts.descriptors", 15*time.Second)
	v.SetDefault("inference.timeouts.style_transfer", 60*time.Second)
	v.SetDefault("inference.timeouts.validation", 10*time.Second)

	// Pipeline-Parameter
	v.SetDefault("pipeline.detection_model", "mtcnn")
	v.SetDefault("pipeline.confidence_threshold", 0.9)
	v.SetDefault("pipeline.min_face_size", 20)
	v.SetDefault("pipeline.landmark_count", 478)
	v.SetDefault("pipeline.max_faces", 10)
	v.SetDefault("pipeline.blendshape_count", 52)
	v.SetDefault("pipeline.age_ranges", []string{"0-2", "3-12", "13-19", "20-32", "33-45", "46-60", "60+"})
	v.SetDefault("pipeline.gender_confidence_threshold", 0.9)
	v.SetDefault("pipeline.embedding_size", 128)
	v.SetDefault("pipeline.preservation_weight", 0.8)
	v.SetDefault("pipeline.blend_strength", 0.5)
	v.SetDefault("pipeline.min_quality_score", 0.6)
	v.SetDefault("pipeline.min_face_similarity", 0.7)
	v.SetDefault("pipeline.enforce_quality", true)

	// Upload-Grenzen
	v.SetDefault("upload.max_bytes", 10*1024*1024)
	v.SetDefault("upload.min_dimension", 256)
	v.SetDefault("upload.max_dimension", 4096)
	v.SetDefault("upload.supported_formats", []string{"image/jpeg", "image/png", "image/webp"})

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "photo-transform-go")
	v.SetDefault("mqtt.topic_prefix", "photo-transform")

	// Cleanup-Standardwerte
	v.SetDefault("cleanup.retention_days", 30)

	// Worker-Standardwerte, 0 bedeutet automatisch nach CPU-Anzahl
	v.SetDefault("workers.count", 0)
	v.SetDefault("workers.queue_size", 0)

	v.SetDefault("i18n.default_language", "en")
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Server.SnapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" && !strings.HasPrefix(cfg.DB.File, "file::memory:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
