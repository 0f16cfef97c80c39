package cleanup

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"photo-transform-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Store ist der Teil des Repositorys, den die Bereinigung braucht
type Store interface {
	DeleteTransformationsOlderThan(cutoff time.Time) ([]models.Transformation, error)
}

// Service löscht Transformationen und ihre Bilder nach Ablauf der Aufbewahrungsfrist
type Service struct {
	store         Store
	retentionDays int
	snapshotDir   string
	checkInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	now           func() time.Time
}

// Result fasst einen Bereinigungszyklus zusammen
type Result struct {
	Records     int
	Files       int
	FailedFiles int
}

// NewService erstellt den Dienst. Bei retentionDays <= 0 ist die Bereinigung
// deaktiviert und es wird nil zurückgegeben.
func NewService(store Store, retentionDays int, snapshotDir string, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if store == nil || snapshotDir == "" {
		log.Error("Cannot initialize CleanupService: store or snapshot directory missing")
		return nil
	}
	log.Infof("Initializing CleanupService: RetentionDays=%d, SnapshotDir='%s', CheckInterval=%s", retentionDays, snapshotDir, checkInterval)
	return &Service{
		store:         store,
		retentionDays: retentionDays,
		snapshotDir:   snapshotDir,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
		now:           time.Now,
	}
}

// StartBackgroundCleanup läuft einmal sofort und danach im Intervall
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		s.RunCleanupCycle()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup beendet die Hintergrundroutine
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunCleanupCycle führt einen Zyklus aus
func (s *Service) RunCleanupCycle() Result {
	var res Result
	if s == nil {
		return res
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	log.Infof("Cleanup: Deleting transformations older than %s", cutoff.Format(time.RFC3339))

	deleted, err := s.store.DeleteTransformationsOlderThan(cutoff)
	if err != nil {
		log.Errorf("Cleanup: Failed to delete old transformations: %v", err)
		return res
	}
	res.Records = len(deleted)

	for _, t := range deleted {
		if t.OutputPath == "" {
			continue
		}
		path := filepath.Join(s.snapshotDir, t.OutputPath)
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warnf("Cleanup: Failed to delete file '%s' of run %s: %v", path, t.RunID, err)
				res.FailedFiles++
			}
			continue
		}
		res.Files++
	}

	log.Infof("Cleanup cycle finished. Records: %d, files: %d, failed files: %d", res.Records, res.Files, res.FailedFiles)
	return res
}
