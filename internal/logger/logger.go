package logger

import (
	"io"
	"os"
	"path/filepath"

	"photo-transform-go/config"

	log "github.com/sirupsen/logrus"
)

// Init richtet den globalen logrus-Logger ein. Die zurückgegebene Datei (oder
// nil) muss beim Herunterfahren geschlossen werden.
func Init(cfg config.LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// Container-Logs laufen immer über stdout
	writers := []io.Writer{os.Stdout}
	var file *os.File

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
			log.Errorf("Failed to create log directory for '%s': %v", cfg.File, err)
		} else if file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660); err != nil {
			log.Errorf("Failed to open log file '%s': %v", cfg.File, err)
			file = nil
		} else {
			writers = append(writers, file)
		}
	}

	log.SetOutput(io.MultiWriter(writers...))
	log.WithField("level", level.String()).Info("Logger initialized")

	if file == nil {
		return nil, nil
	}
	return file, nil
}
