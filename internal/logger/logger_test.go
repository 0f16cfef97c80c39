package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"photo-transform-go/config"

	log "github.com/sirupsen/logrus"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	closer, err := Init(config.LogConfig{Level: "debug", File: path})
	if err != nil {
		t.Fatal(err)
	}
	if closer == nil {
		t.Fatal("expected a closer for the log file")
	}
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	})

	log.Debug("pipeline debug line")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "pipeline debug line") {
		t.Errorf("log file misses debug output: %s", data)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %s", log.GetLevel())
	}
}

func TestInit_InvalidLevelFallsBack(t *testing.T) {
	closer, err := Init(config.LogConfig{Level: "chatty"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	if closer != nil {
		t.Error("no closer expected without log file")
	}
	if log.GetLevel() != log.InfoLevel {
		t.Errorf("expected info level, got %s", log.GetLevel())
	}
}
