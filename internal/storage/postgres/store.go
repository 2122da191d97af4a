// Package postgres provides a PostgreSQL roulette store built on gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"roulette/internal/models"
	"roulette/internal/storage"
)

type rouletteRow struct {
	ID              int64  `gorm:"primaryKey"`
	Hash            string `gorm:"size:256;not null;index:hash_idx"`
	AutoSaveEnabled bool   `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (rouletteRow) TableName() string { return "emoji_roulette_roulette" }

type participantRow struct {
	ID              int64  `gorm:"primaryKey"`
	RouletteID      int64  `gorm:"not null;index:roulette_id_idx"`
	ParticipantName string `gorm:"size:256;not null"`
	Emoji           string `gorm:"size:16;not null"`
	IsHit           bool   `gorm:"not null"`
	Position        *int
	Roulette        rouletteRow `gorm:"foreignKey:RouletteID;constraint:OnDelete:CASCADE"`
}

func (participantRow) TableName() string { return "emoji_roulette_roulette_participant" }

// logWriter routes gorm's logger through google/logger.
type logWriter struct{}

func (logWriter) Printf(format string, args ...any) { logger.Infof(format, args...) }

// Store persists roulettes in PostgreSQL.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(logWriter{}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, storage.ErrNotConfigured
	}
	if err := db.AutoMigrate(&rouletteRow{}, &participantRow{}); err != nil {
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateRoulette inserts a roulette and its participants in one transaction.
func (s *Store) CreateRoulette(ctx context.Context, hash string, autoSave bool, participants []storage.ParticipantInput) (models.Roulette, []int64, error) {
	if s == nil || s.db == nil {
		return models.Roulette{}, nil, storage.ErrNotConfigured
	}
	row := rouletteRow{Hash: hash, AutoSaveEnabled: autoSave}
	ids := make([]int64, len(participants))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create roulette: %w", err)
		}
		for i, p := range participants {
			pr := toRow(row.ID, p)
			if err := tx.Omit("Roulette").Create(&pr).Error; err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
			ids[i] = pr.ID
		}
		return nil
	})
	if err != nil {
		return models.Roulette{}, nil, err
	}
	return row.toModel(), ids, nil
}

// UpdateRoulette upserts participants and deletes the ones missing from the
// input in one transaction.
func (s *Store) UpdateRoulette(ctx context.Context, hash string, autoSave *bool, participants []storage.ParticipantInput) (models.Roulette, []int64, error) {
	if s == nil || s.db == nil {
		return models.Roulette{}, nil, storage.ErrNotConfigured
	}
	var row rouletteRow
	ids := make([]int64, len(participants))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findRoulette(tx, hash, &row); err != nil {
			return err
		}

		var existingIDs []int64
		if err := tx.Model(&participantRow{}).Where("roulette_id = ?", row.ID).Pluck("id", &existingIDs).Error; err != nil {
			return fmt.Errorf("list participant ids: %w", err)
		}
		existing := make(map[int64]bool, len(existingIDs))
		for _, id := range existingIDs {
			existing[id] = true
		}

		kept := map[int64]bool{}
		for i, p := range participants {
			if p.ID != nil && existing[*p.ID] && !kept[*p.ID] {
				err := tx.Model(&participantRow{}).
					Where("id = ? AND roulette_id = ?", *p.ID, row.ID).
					Updates(map[string]any{
						"participant_name": p.ParticipantName,
						"emoji":            p.Emoji,
						"is_hit":           p.IsHit,
						"position":         p.Position,
					}).Error
				if err != nil {
					return fmt.Errorf("update participant %d: %w", *p.ID, err)
				}
				ids[i] = *p.ID
				kept[*p.ID] = true
				continue
			}
			pr := toRow(row.ID, p)
			if err := tx.Omit("Roulette").Create(&pr).Error; err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
			ids[i] = pr.ID
		}

		var stale []int64
		for _, id := range existingIDs {
			if !kept[id] {
				stale = append(stale, id)
			}
		}
		if len(stale) > 0 {
			if err := tx.Where("roulette_id = ? AND id IN ?", row.ID, stale).Delete(&participantRow{}).Error; err != nil {
				return fmt.Errorf("delete participants: %w", err)
			}
		}

		if autoSave != nil {
			row.AutoSaveEnabled = *autoSave
		}
		if err := tx.Model(&row).Updates(map[string]any{
			"auto_save_enabled": row.AutoSaveEnabled,
			"updated_at":        time.Now().UTC(),
		}).Error; err != nil {
			return fmt.Errorf("update roulette: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Roulette{}, nil, err
	}
	return row.toModel(), ids, nil
}

// GetRoulette returns the roulette with hash and its ordered participants.
func (s *Store) GetRoulette(ctx context.Context, hash string) (models.RouletteView, error) {
	if s == nil || s.db == nil {
		return models.RouletteView{}, storage.ErrNotConfigured
	}
	db := s.db.WithContext(ctx)
	var row rouletteRow
	if err := findRoulette(db, hash, &row); err != nil {
		return models.RouletteView{}, err
	}
	var rows []participantRow
	if err := db.Where("roulette_id = ?", row.ID).
		Order("position IS NULL, position, id").
		Find(&rows).Error; err != nil {
		return models.RouletteView{}, fmt.Errorf("list participants: %w", err)
	}

	view := models.RouletteView{Roulette: row.toModel(), Participants: make([]models.RouletteParticipant, 0, len(rows))}
	for _, r := range rows {
		view.Participants = append(view.Participants, models.RouletteParticipant{
			ID:              r.ID,
			RouletteID:      r.RouletteID,
			ParticipantName: r.ParticipantName,
			Emoji:           r.Emoji,
			IsHit:           r.IsHit,
			Position:        r.Position,
		})
	}
	return view, nil
}

func findRoulette(db *gorm.DB, hash string, row *rouletteRow) error {
	err := db.Where("hash = ?", hash).Order("id").First(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get roulette: %w", err)
	}
	return nil
}

func toRow(rouletteID int64, p storage.ParticipantInput) participantRow {
	pos := p.Position
	return participantRow{
		RouletteID:      rouletteID,
		ParticipantName: p.ParticipantName,
		Emoji:           p.Emoji,
		IsHit:           p.IsHit,
		Position:        &pos,
	}
}

func (r rouletteRow) toModel() models.Roulette {
	return models.Roulette{ID: r.ID, Hash: r.Hash, AutoSaveEnabled: r.AutoSaveEnabled}
}

var _ storage.RouletteStore = (*Store)(nil)
