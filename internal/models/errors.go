package models

import "errors"

// Common errors
var (
	ErrRouletteNotFound   = errors.New("roulette not found")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrInvalidHash        = errors.New("invalid roulette hash")
)
