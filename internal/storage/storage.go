// Package storage defines persistence contracts for roulette records.
package storage

import (
	"context"
	"errors"

	"roulette/internal/models"
)

var (
	// ErrNotFound indicates no roulette matches the requested hash.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a roulette with the same hash is stored.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNotConfigured indicates a nil or closed store was used.
	ErrNotConfigured = errors.New("storage is not configured")
)

// ParticipantInput is one participant written by a create or update.
// A nil ID, or an ID that does not belong to the roulette being updated,
// inserts a new row.
type ParticipantInput struct {
	ID              *int64
	ParticipantName string
	Emoji           string
	IsHit           bool
	Position        int
}

// RouletteStore persists roulettes and their participants.
//
// CreateRoulette and UpdateRoulette return the durable participant ids in
// input order. UpdateRoulette deletes participants of the roulette whose ids
// are missing from the input and leaves AutoSaveEnabled untouched when
// autoSave is nil.
type RouletteStore interface {
	CreateRoulette(ctx context.Context, hash string, autoSave bool, participants []ParticipantInput) (models.Roulette, []int64, error)
	UpdateRoulette(ctx context.Context, hash string, autoSave *bool, participants []ParticipantInput) (models.Roulette, []int64, error)
	GetRoulette(ctx context.Context, hash string) (models.RouletteView, error)
	Close() error
}
