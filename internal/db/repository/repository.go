package repository

import (
	"errors"
	"time"

	"photo-transform-go/internal/core/models"

	"gorm.io/gorm"
)

// Repository definiert die Schnittstelle für die Datenbank-Operationen
type Repository interface {
	GetTransformationByID(id uint) (*models.Transformation, error)
	GetTransformationByRunID(runID string) (*models.Transformation, error)
	GetTransformations(limit, offset int, status string) ([]models.Transformation, int64, error)
	SaveTransformation(t *models.Transformation) error
	DeleteTransformationsOlderThan(cutoff time.Time) ([]models.Transformation, error)

	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implementiert die Repository-Schnittstelle für SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetTransformationByID liefert nil, nil, wenn es keinen Datensatz gibt
func (r *SQLiteRepository) GetTransformationByID(id uint) (*models.Transformation, error) {
	var t models.Transformation
	if err := r.db.First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *SQLiteRepository) GetTransformationByRunID(runID string) (*models.Transformation, error) {
	var t models.Transformation
	if err := r.db.Where("run_id = ?", runID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetTransformations holt Transformationen mit Pagination, optional gefiltert nach Status
func (r *SQLiteRepository) GetTransformations(limit, offset int, status string) ([]models.Transformation, int64, error) {
	var (
		items []models.Transformation
		total int64
	)

	query := r.db.Model(&models.Transformation{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SaveTransformation legt einen Datensatz an oder aktualisiert ihn
func (r *SQLiteRepository) SaveTransformation(t *models.Transformation) error {
	return r.db.Save(t).Error
}

// DeleteTransformationsOlderThan löscht alle Datensätze vor cutoff endgültig
// und gibt sie zurück, damit die zugehörigen Dateien entfernt werden können.
func (r *SQLiteRepository) DeleteTransformationsOlderThan(cutoff time.Time) ([]models.Transformation, error) {
	var old []models.Transformation
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("created_at < ?", cutoff).Find(&old).Error; err != nil {
			return err
		}
		if len(old) == 0 {
			return nil
		}
		ids := make([]uint, len(old))
		for i, t := range old {
			ids[i] = t.ID
		}
		return tx.Unscoped().Delete(&models.Transformation{}, ids).Error
	})
	if err != nil {
		return nil, err
	}
	return old, nil
}

// GetStatistics gibt Statistiken über die gespeicherten Transformationen zurück
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	stats := models.Statistics{ByErrorKind: make(map[string]int64)}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.Model(&models.Transformation{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case models.StatusCompleted:
			stats.Completed = row.Count
		case models.StatusFailed:
			stats.Failed = row.Count
		case models.StatusProcessing:
			stats.Processing = row.Count
		}
	}

	var kinds []struct {
		ErrorKind string
		Count     int64
	}
	if err := r.db.Model(&models.Transformation{}).
		Select("error_kind, COUNT(*) AS count").
		Where("error_kind <> ''").
		Group("error_kind").
		Scan(&kinds).Error; err != nil {
		return stats, err
	}
	for _, k := range kinds {
		stats.ByErrorKind[k.ErrorKind] = k.Count
	}

	var latest models.Transformation
	if err := r.db.Order("created_at DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, err
		}
	} else {
		stats.LatestRun = latest.CreatedAt
	}

	return stats, nil
}
