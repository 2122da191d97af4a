// Package memory is an in-process roulette store for development and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"roulette/internal/models"
	"roulette/internal/storage"
)

type record struct {
	roulette     models.Roulette
	participants map[int64]models.RouletteParticipant
}

// Store keeps roulettes in memory. Data is lost on restart.
type Store struct {
	mutex        sync.RWMutex
	byHash       map[string]*record
	nextRoulette int64
	nextPart     int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{byHash: make(map[string]*record)}
}

// CreateRoulette stores a new roulette with the given participants.
func (s *Store) CreateRoulette(ctx context.Context, hash string, autoSave bool, participants []storage.ParticipantInput) (models.Roulette, []int64, error) {
	if err := ctx.Err(); err != nil {
		return models.Roulette{}, nil, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.byHash[hash]; exists {
		return models.Roulette{}, nil, storage.ErrAlreadyExists
	}
	s.nextRoulette++
	rec := &record{
		roulette:     models.Roulette{ID: s.nextRoulette, Hash: hash, AutoSaveEnabled: autoSave},
		participants: make(map[int64]models.RouletteParticipant),
	}
	ids := make([]int64, len(participants))
	for i, p := range participants {
		ids[i] = s.insert(rec, p)
	}
	s.byHash[hash] = rec
	return rec.roulette, ids, nil
}

// UpdateRoulette upserts participants and drops the ones not in the input.
func (s *Store) UpdateRoulette(ctx context.Context, hash string, autoSave *bool, participants []storage.ParticipantInput) (models.Roulette, []int64, error) {
	if err := ctx.Err(); err != nil {
		return models.Roulette{}, nil, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, exists := s.byHash[hash]
	if !exists {
		return models.Roulette{}, nil, storage.ErrNotFound
	}

	next := make(map[int64]models.RouletteParticipant, len(participants))
	ids := make([]int64, len(participants))
	for i, p := range participants {
		if p.ID != nil {
			if _, owned := rec.participants[*p.ID]; owned {
				if _, dup := next[*p.ID]; !dup {
					next[*p.ID] = toRecord(*p.ID, rec.roulette.ID, p)
					ids[i] = *p.ID
					continue
				}
			}
		}
		s.nextPart++
		next[s.nextPart] = toRecord(s.nextPart, rec.roulette.ID, p)
		ids[i] = s.nextPart
	}
	rec.participants = next
	if autoSave != nil {
		rec.roulette.AutoSaveEnabled = *autoSave
	}
	return rec.roulette, ids, nil
}

// GetRoulette returns a copy of the roulette with its ordered participants.
func (s *Store) GetRoulette(ctx context.Context, hash string) (models.RouletteView, error) {
	if err := ctx.Err(); err != nil {
		return models.RouletteView{}, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, exists := s.byHash[hash]
	if !exists {
		return models.RouletteView{}, storage.ErrNotFound
	}
	view := models.RouletteView{Roulette: rec.roulette, Participants: make([]models.RouletteParticipant, 0, len(rec.participants))}
	for _, p := range rec.participants {
		if p.Position != nil {
			v := *p.Position
			p.Position = &v
		}
		view.Participants = append(view.Participants, p)
	}
	slices.SortFunc(view.Participants, func(a, b models.RouletteParticipant) int {
		switch {
		case a.Position == nil && b.Position != nil:
			return 1
		case a.Position != nil && b.Position == nil:
			return -1
		case a.Position != nil && b.Position != nil && *a.Position != *b.Position:
			return cmp.Compare(*a.Position, *b.Position)
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return view, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) insert(rec *record, p storage.ParticipantInput) int64 {
	s.nextPart++
	rec.participants[s.nextPart] = toRecord(s.nextPart, rec.roulette.ID, p)
	return s.nextPart
}

func toRecord(id, rouletteID int64, p storage.ParticipantInput) models.RouletteParticipant {
	pos := p.Position
	return models.RouletteParticipant{
		ID:              id,
		RouletteID:      rouletteID,
		ParticipantName: p.ParticipantName,
		Emoji:           p.Emoji,
		IsHit:           p.IsHit,
		Position:        &pos,
	}
}

var _ storage.RouletteStore = (*Store)(nil)
