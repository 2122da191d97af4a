// Package selection implements the spin/confirm/retry state machine that
// eliminates one roulette participant at a time.
package selection

import (
	"math/rand/v2"

	"roulette/internal/models"
	"roulette/internal/roster"
)

// State is the phase of a selection round.
type State string

const (
	StateIdle     State = "idle"
	StateSpinning State = "spinning"
	StateResolved State = "resolved"
)

// IndexFunc returns a uniformly random index in [0, n). n is always > 0.
type IndexFunc func(n int) int

// DefaultIndex draws from the process-wide generator.
func DefaultIndex(n int) int { return rand.IntN(n) }

// Engine tracks one selection round. The spin target is remembered by local
// key so roster edits while spinning cannot redirect the confirmation.
type Engine struct {
	state       State
	prizeNumber int
	targetKey   string
	winner      *models.Participant
	pick        IndexFunc
}

// NewEngine returns an idle engine. A nil pick uses DefaultIndex.
func NewEngine(pick IndexFunc) *Engine {
	if pick == nil {
		pick = DefaultIndex
	}
	return &Engine{state: StateIdle, pick: pick}
}

// State returns the current phase.
func (e *Engine) State() State { return e.state }

// IsSpinning reports whether a spin awaits confirmation.
func (e *Engine) IsSpinning() bool { return e.state == StateSpinning }

// PrizeNumber is the roster index of the current or most recent spin target.
func (e *Engine) PrizeNumber() int { return e.prizeNumber }

// Winner returns a copy of the last confirmed winner.
func (e *Engine) Winner() *models.Participant {
	if e.winner == nil {
		return nil
	}
	w := *e.winner
	return &w
}

// Spin picks a random participant that has not been hit and enters the
// spinning state. A single remaining candidate is a valid draw. It does
// nothing while a spin is in flight or when every participant is hit.
func (e *Engine) Spin(r *roster.Roster) bool {
	if e.state == StateSpinning {
		return false
	}
	candidates := r.Candidates()
	if len(candidates) == 0 {
		return false
	}
	idx := candidates[e.pick(len(candidates))]
	p, _ := r.At(idx)

	e.prizeNumber = idx
	e.targetKey = p.LocalKey
	e.winner = nil
	e.state = StateSpinning
	return true
}

// Confirm resolves the spin in flight: the target is marked hit and becomes
// the winner. Outside the spinning state it does nothing. If the target was
// removed while spinning the engine goes back to idle without a winner.
func (e *Engine) Confirm(r *roster.Roster) (models.Participant, bool) {
	if e.state != StateSpinning {
		return models.Participant{}, false
	}
	idx := r.Index(e.targetKey)
	if idx < 0 {
		e.state = StateIdle
		e.targetKey = ""
		return models.Participant{}, false
	}
	r.SetHit(e.targetKey, true)
	w, _ := r.At(idx)

	e.prizeNumber = idx
	e.winner = &w
	e.state = StateResolved
	return w, true
}

// Retry undoes the last elimination and spins again. The previous winner
// is eligible for the new draw. When no draw could start (the winner was
// removed and everyone left is hit) nothing changes.
func (e *Engine) Retry(r *roster.Roster) bool {
	if e.state != StateResolved || e.winner == nil {
		return false
	}
	if r.Index(e.winner.LocalKey) < 0 && len(r.Candidates()) == 0 {
		return false
	}
	r.SetHit(e.winner.LocalKey, false)
	e.winner = nil
	e.state = StateIdle
	return e.Spin(r)
}

// Reset clears every hit and the winner and returns to idle.
func (e *Engine) Reset(r *roster.Roster) {
	r.ClearHits()
	e.winner = nil
	e.targetKey = ""
	e.state = StateIdle
}
