// Package sqlite provides a SQLite-backed roulette store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"roulette/internal/models"
	"roulette/internal/storage"
	"roulette/internal/storage/sqlite/migrations"
	"roulette/internal/storage/sqlitemigrate"
)

// Store persists roulettes in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Writers serialize in SQLite anyway; one connection avoids SQLITE_BUSY
	// between concurrent saves.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateRoulette inserts a roulette and all of its participants.
func (s *Store) CreateRoulette(ctx context.Context, hash string, autoSave bool, participants []storage.ParticipantInput) (models.Roulette, []int64, error) {
	if err := s.ready(ctx); err != nil {
		return models.Roulette{}, nil, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return models.Roulette{}, nil, fmt.Errorf("begin create roulette: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC().UnixMilli()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO roulettes (hash, auto_save_enabled, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		hash, autoSave, now, now,
	)
	if err != nil {
		return models.Roulette{}, nil, fmt.Errorf("create roulette: %w", err)
	}
	rouletteID, err := res.LastInsertId()
	if err != nil {
		return models.Roulette{}, nil, fmt.Errorf("create roulette: %w", err)
	}

	ids := make([]int64, len(participants))
	for i, p := range participants {
		id, err := insertParticipant(ctx, tx, rouletteID, p)
		if err != nil {
			return models.Roulette{}, nil, err
		}
		ids[i] = id
	}
	if err := tx.Commit(); err != nil {
		return models.Roulette{}, nil, fmt.Errorf("commit create roulette: %w", err)
	}
	return models.Roulette{ID: rouletteID, Hash: hash, AutoSaveEnabled: autoSave}, ids, nil
}

// UpdateRoulette upserts participants and removes the ones missing from the
// input, all in one transaction.
func (s *Store) UpdateRoulette(ctx context.Context, hash string, autoSave *bool, participants []storage.ParticipantInput) (models.Roulette, []int64, error) {
	if err := s.ready(ctx); err != nil {
		return models.Roulette{}, nil, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return models.Roulette{}, nil, fmt.Errorf("begin update roulette: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	roulette, err := getRoulette(ctx, tx, hash)
	if err != nil {
		return models.Roulette{}, nil, err
	}

	existing := map[int64]bool{}
	rows, err := tx.QueryContext(ctx, `SELECT id FROM roulette_participants WHERE roulette_id = ?`, roulette.ID)
	if err != nil {
		return models.Roulette{}, nil, fmt.Errorf("list participant ids: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return models.Roulette{}, nil, fmt.Errorf("list participant ids: %w", err)
		}
		existing[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.Roulette{}, nil, fmt.Errorf("list participant ids: %w", err)
	}

	ids := make([]int64, len(participants))
	kept := map[int64]bool{}
	for i, p := range participants {
		if p.ID != nil && existing[*p.ID] && !kept[*p.ID] {
			if _, err := tx.ExecContext(ctx,
				`UPDATE roulette_participants
				    SET participant_name = ?, emoji = ?, is_hit = ?, position = ?
				  WHERE id = ? AND roulette_id = ?`,
				p.ParticipantName, p.Emoji, p.IsHit, p.Position, *p.ID, roulette.ID,
			); err != nil {
				return models.Roulette{}, nil, fmt.Errorf("update participant %d: %w", *p.ID, err)
			}
			ids[i] = *p.ID
			kept[*p.ID] = true
			continue
		}
		id, err := insertParticipant(ctx, tx, roulette.ID, p)
		if err != nil {
			return models.Roulette{}, nil, err
		}
		ids[i] = id
	}

	for id := range existing {
		if kept[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM roulette_participants WHERE id = ?`, id); err != nil {
			return models.Roulette{}, nil, fmt.Errorf("delete participant %d: %w", id, err)
		}
	}

	if autoSave != nil {
		roulette.AutoSaveEnabled = *autoSave
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE roulettes SET auto_save_enabled = ?, updated_at = ? WHERE id = ?`,
		roulette.AutoSaveEnabled, s.now().UTC().UnixMilli(), roulette.ID,
	); err != nil {
		return models.Roulette{}, nil, fmt.Errorf("update roulette: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Roulette{}, nil, fmt.Errorf("commit update roulette: %w", err)
	}
	return roulette, ids, nil
}

// GetRoulette returns the roulette with hash and its participants ordered by
// position, then id.
func (s *Store) GetRoulette(ctx context.Context, hash string) (models.RouletteView, error) {
	if err := s.ready(ctx); err != nil {
		return models.RouletteView{}, err
	}
	roulette, err := getRoulette(ctx, s.sqlDB, hash)
	if err != nil {
		return models.RouletteView{}, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, roulette_id, participant_name, emoji, is_hit, position
		   FROM roulette_participants
		  WHERE roulette_id = ?
		  ORDER BY position IS NULL, position, id`,
		roulette.ID,
	)
	if err != nil {
		return models.RouletteView{}, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	view := models.RouletteView{Roulette: roulette, Participants: []models.RouletteParticipant{}}
	for rows.Next() {
		var p models.RouletteParticipant
		var position sql.NullInt64
		if err := rows.Scan(&p.ID, &p.RouletteID, &p.ParticipantName, &p.Emoji, &p.IsHit, &position); err != nil {
			return models.RouletteView{}, fmt.Errorf("list participants: %w", err)
		}
		if position.Valid {
			v := int(position.Int64)
			p.Position = &v
		}
		view.Participants = append(view.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return models.RouletteView{}, fmt.Errorf("list participants: %w", err)
	}
	return view, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrNotConfigured
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRoulette(ctx context.Context, q queryer, hash string) (models.Roulette, error) {
	var r models.Roulette
	err := q.QueryRowContext(ctx,
		`SELECT id, hash, auto_save_enabled FROM roulettes WHERE hash = ? ORDER BY id LIMIT 1`,
		hash,
	).Scan(&r.ID, &r.Hash, &r.AutoSaveEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Roulette{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Roulette{}, fmt.Errorf("get roulette: %w", err)
	}
	return r, nil
}

func insertParticipant(ctx context.Context, tx *sql.Tx, rouletteID int64, p storage.ParticipantInput) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO roulette_participants (roulette_id, participant_name, emoji, is_hit, position)
		 VALUES (?, ?, ?, ?, ?)`,
		rouletteID, p.ParticipantName, p.Emoji, p.IsHit, p.Position,
	)
	if err != nil {
		return 0, fmt.Errorf("insert participant: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert participant: %w", err)
	}
	return id, nil
}

var _ storage.RouletteStore = (*Store)(nil)
