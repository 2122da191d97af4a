package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roulette/internal/models"
	"roulette/internal/storage"
)

const (
	hashBytes          = 16
	maxHashLength      = 256
	maxNameLength      = 256
	maxEmojiLength     = 16
	tracerInstrumentID = "roulette/internal/services"
)

// NewHash returns a random 128-bit roulette hash encoded as hex.
func NewHash() (string, error) {
	b := make([]byte, hashBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random hash: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RouletteService saves and loads roulettes through a storage backend.
type RouletteService struct {
	store   storage.RouletteStore
	newHash func() (string, error)
	tracer  trace.Tracer
}

// NewRouletteService creates a RouletteService backed by store.
func NewRouletteService(store storage.RouletteStore) *RouletteService {
	return &RouletteService{
		store:   store,
		newHash: NewHash,
		tracer:  otel.Tracer(tracerInstrumentID),
	}
}

// Save creates a roulette when req.Hash is empty, otherwise it syncs the
// stored participants of req.Hash with req.Participants. Participants are
// positioned in request order.
func (s *RouletteService) Save(ctx context.Context, req models.SaveRequest) (result models.SaveResult, err error) {
	ctx, span := s.tracer.Start(ctx, "RouletteService.Save", trace.WithAttributes(
		attribute.Bool("roulette.create", req.Hash == ""),
		attribute.Int("roulette.participants", len(req.Participants)),
	))
	defer func() { endSpan(span, err) }()

	if err := validateParticipants(req.Participants); err != nil {
		logger.Warningf("Rejected roulette save: %v", err)
		return models.SaveResult{}, err
	}
	if len(req.Hash) > maxHashLength {
		return models.SaveResult{}, models.ErrInvalidHash
	}

	inputs := make([]storage.ParticipantInput, len(req.Participants))
	for i, p := range req.Participants {
		inputs[i] = storage.ParticipantInput{
			ID:              p.ID,
			ParticipantName: p.ParticipantName,
			Emoji:           p.Emoji,
			IsHit:           p.IsHit,
			Position:        i,
		}
	}

	if req.Hash == "" {
		hash, err := s.newHash()
		if err != nil {
			return models.SaveResult{}, err
		}
		autoSave := req.AutoSaveEnabled != nil && *req.AutoSaveEnabled
		roulette, ids, err := s.store.CreateRoulette(ctx, hash, autoSave, inputs)
		if err != nil {
			logger.Errorf("Failed to create roulette: %v", err)
			return models.SaveResult{}, fmt.Errorf("create roulette: %w", err)
		}
		logger.Infof("Created roulette %d with %d participants", roulette.ID, len(ids))
		return models.SaveResult{Hash: roulette.Hash, ID: roulette.ID, ParticipantIDs: ids}, nil
	}

	roulette, ids, err := s.store.UpdateRoulette(ctx, req.Hash, req.AutoSaveEnabled, inputs)
	if errors.Is(err, storage.ErrNotFound) {
		return models.SaveResult{}, models.ErrRouletteNotFound
	}
	if err != nil {
		logger.Errorf("Failed to update roulette %s: %v", req.Hash, err)
		return models.SaveResult{}, fmt.Errorf("update roulette: %w", err)
	}
	logger.Infof("Updated roulette %d with %d participants", roulette.ID, len(ids))
	return models.SaveResult{Hash: roulette.Hash, ID: roulette.ID, ParticipantIDs: ids}, nil
}

// Load returns the roulette addressed by hash, or nil when none exists.
func (s *RouletteService) Load(ctx context.Context, hash string) (view *models.RouletteView, err error) {
	ctx, span := s.tracer.Start(ctx, "RouletteService.Load")
	defer func() { endSpan(span, err) }()

	if hash == "" || len(hash) > maxHashLength {
		return nil, models.ErrInvalidHash
	}
	v, err := s.store.GetRoulette(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load roulette: %w", err)
	}
	span.SetAttributes(attribute.Int("roulette.participants", len(v.Participants)))
	return &v, nil
}

func validateParticipants(participants []models.SaveParticipant) error {
	for i, p := range participants {
		if n := utf8.RuneCountInString(p.ParticipantName); n < 1 || n > maxNameLength {
			return fmt.Errorf("%w: participant %d name must be 1-%d characters", models.ErrInvalidParticipant, i, maxNameLength)
		}
		if n := utf8.RuneCountInString(p.Emoji); n < 1 || n > maxEmojiLength {
			return fmt.Errorf("%w: participant %d emoji must be 1-%d characters", models.ErrInvalidParticipant, i, maxEmojiLength)
		}
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
