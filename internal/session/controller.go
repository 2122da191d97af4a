// Package session owns a roulette roster, its selection round and its
// persistence state, and decides when the session is saved.
//
// Every user action goes through a Controller method. After the action the
// controller compares the persisted projection of the roster (name, emoji
// and hit flag of each participant, in order) with the last queued one and
// schedules a debounced auto-save when it differs. Reorders, spins and
// auto-save toggles save immediately instead.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/logger"

	"roulette/internal/models"
	"roulette/internal/roster"
	"roulette/internal/selection"
)

// ErrClosed is reported by saves attempted after Close.
var ErrClosed = errors.New("session closed")

// Persister is the durable side of the save/load protocol.
type Persister interface {
	Save(ctx context.Context, req models.SaveRequest) (models.SaveResult, error)
	Load(ctx context.Context, hash string) (*models.RouletteView, error)
}

// Save reasons, used for logging.
const (
	ReasonManual   = "manual"
	ReasonAutoSave = "autosave"
	ReasonReorder  = "reorder"
	ReasonSpin     = "spin"
	ReasonToggle   = "autosave-toggle"
)

// SaveOptions controls the side effects of one save.
type SaveOptions struct {
	// ShowNavigation navigates to the saved roulette on success.
	ShowNavigation bool
	// Silent suppresses the success notification. Failures are always
	// reported.
	Silent bool
	Reason string
	// AutoSaveOverride persists this flag value instead of the current one.
	AutoSaveOverride *bool

	skipUnchanged bool
}

// SaveOutcome reports the result of a save.
type SaveOutcome struct {
	Hash string
	Err  error
}

// State is a snapshot of a controller.
type State struct {
	Hash            string               `json:"hash"`
	AutoSaveEnabled bool                 `json:"autoSaveEnabled"`
	Participants    []models.Participant `json:"participants"`
	Selection       selection.State      `json:"selection"`
	IsSpinning      bool                 `json:"isSpinning"`
	PrizeNumber     int                  `json:"prizeNumber"`
	Winner          *models.Participant  `json:"winner"`
	SavesInFlight   int                  `json:"savesInFlight"`
}

type entry struct {
	name  string
	emoji string
	isHit bool
}

// Controller is the single entry point for mutating one roulette session.
// Methods are safe to call while saves are running in the background.
type Controller struct {
	mu        sync.Mutex
	roster    *roster.Roster
	engine    *selection.Engine
	hash      string
	autoSave  bool
	persister Persister
	cfg       config

	lastSaved  []entry
	lastQueued []entry
	timer      *time.Timer
	timerGen   uint64
	pending    bool

	// saveSeq numbers saves in request order; appliedSeq is the newest
	// one whose response has been applied.
	saveSeq    uint64
	appliedSeq uint64

	creating   bool
	createDone chan struct{}
	inFlight   int
	running    int
	idle       *sync.Cond
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a controller for a new, never saved session.
func New(p Persister, opts ...Option) *Controller {
	cfg := newConfig(opts)
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		roster:    roster.New(),
		engine:    selection.NewEngine(cfg.pick),
		persister: p,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Open creates a controller hydrated from the roulette addressed by hash.
// An empty or unknown hash yields a new session; only load failures are
// returned as errors.
func Open(ctx context.Context, p Persister, hash string, opts ...Option) (*Controller, error) {
	c := New(p, opts...)
	if hash == "" {
		return c, nil
	}
	view, err := p.Load(ctx, hash)
	if err != nil {
		c.cancel()
		return nil, fmt.Errorf("load roulette: %w", err)
	}
	if view == nil {
		return c, nil
	}
	c.roster = roster.FromRecords(view.Participants)
	c.hash = view.Hash
	c.autoSave = view.AutoSaveEnabled
	c.lastSaved = c.projection()
	c.lastQueued = c.lastSaved
	return c, nil
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Hash:            c.hash,
		AutoSaveEnabled: c.autoSave,
		Participants:    c.roster.Participants(),
		Selection:       c.engine.State(),
		IsSpinning:      c.engine.IsSpinning(),
		PrizeNumber:     c.engine.PrizeNumber(),
		Winner:          c.engine.Winner(),
		SavesInFlight:   c.inFlight,
	}
}

// AddParticipant appends a participant. Empty and duplicate names are ignored.
func (c *Controller) AddParticipant(name string) bool {
	return c.mutate(func(r *roster.Roster) bool { return r.Add(name) })
}

// RemoveParticipant deletes the participant with localKey.
func (c *Controller) RemoveParticipant(localKey string) bool {
	return c.mutate(func(r *roster.Roster) bool { return r.Remove(localKey) })
}

// RenameParticipant changes a participant name. Empty names are ignored.
func (c *Controller) RenameParticipant(localKey, name string) bool {
	return c.mutate(func(r *roster.Roster) bool { return r.Rename(localKey, name) })
}

// SetEmoji changes a participant emoji. Empty emoji are ignored.
func (c *Controller) SetEmoji(localKey, emoji string) bool {
	return c.mutate(func(r *roster.Roster) bool { return r.SetEmoji(localKey, emoji) })
}

// ToggleHit flips the hit flag of a participant.
func (c *Controller) ToggleHit(localKey string) bool {
	return c.mutate(func(r *roster.Roster) bool { return r.ToggleHit(localKey) })
}

// MoveParticipant swaps a participant with its neighbour and saves
// immediately when auto-save is on.
func (c *Controller) MoveParticipant(localKey string, dir roster.Direction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.roster.Move(localKey, dir) {
		return false
	}
	if c.autoSave {
		c.saveNowLocked(SaveOptions{Silent: true, Reason: ReasonReorder})
	}
	return true
}

// Spin starts a selection round. It is refused while a spin is in flight.
func (c *Controller) Spin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.engine.Spin(c.roster) {
		return false
	}
	if c.autoSave {
		c.saveNowLocked(SaveOptions{Silent: true, Reason: ReasonSpin})
	}
	return true
}

// Confirm resolves the spin in flight once the wheel has stopped.
func (c *Controller) Confirm() (models.Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.engine.Confirm(c.roster)
	if ok {
		c.checkAutoSaveLocked()
	}
	return w, ok
}

// Retry restores the last winner and spins again.
func (c *Controller) Retry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.engine.Retry(c.roster) {
		return false
	}
	if c.autoSave {
		c.saveNowLocked(SaveOptions{Silent: true, Reason: ReasonSpin})
	}
	return true
}

// ResetSelection clears every hit and the winner.
func (c *Controller) ResetSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Reset(c.roster)
	c.checkAutoSaveLocked()
}

// SetAutoSave changes the auto-save flag and persists it right away. Turning
// auto-save off for a session that was never saved does not create one.
func (c *Controller) SetAutoSave(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoSave == enabled {
		return
	}
	c.autoSave = enabled
	if !enabled && c.hash == "" {
		c.stopTimerLocked()
		return
	}
	v := enabled
	c.saveNowLocked(SaveOptions{Silent: true, Reason: ReasonToggle, AutoSaveOverride: &v})
}

// Save persists the session and waits for the result. Failures are reported
// to the notifier and leave local state untouched.
func (c *Controller) Save(ctx context.Context, opts SaveOptions) SaveOutcome {
	if opts.Reason == "" {
		opts.Reason = ReasonManual
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return SaveOutcome{Err: ErrClosed}
	}
	c.running++
	c.mu.Unlock()
	defer c.done()
	return c.save(ctx, opts)
}

// Flush starts a pending debounced save now.
func (c *Controller) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Wait blocks until no save is running. Saves started while waiting are
// waited for as well.
func (c *Controller) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.running > 0 {
		c.idle.Wait()
	}
}

// Close flushes a pending auto-save, waits for running saves and releases
// the controller. Later saves fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	c.flushLocked()
	c.closed = true
	for c.running > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()
	c.cancel()
}

func (c *Controller) flushLocked() {
	if c.pending && !c.closed {
		c.stopTimerLocked()
		c.launchLocked(SaveOptions{Silent: true, Reason: ReasonAutoSave, skipUnchanged: true})
	}
}

// flushTimer runs when the debounce timer of generation gen fires. Timers
// replaced or stopped since then are ignored.
func (c *Controller) flushTimer(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.timerGen {
		return
	}
	c.flushLocked()
}

func (c *Controller) done() {
	c.mu.Lock()
	c.running--
	if c.running == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

func (c *Controller) mutate(fn func(*roster.Roster) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !fn(c.roster) {
		return false
	}
	c.checkAutoSaveLocked()
	return true
}

// checkAutoSaveLocked schedules a debounced save when auto-save is on and
// the projection differs from the last queued one.
func (c *Controller) checkAutoSaveLocked() {
	if !c.autoSave || c.closed {
		return
	}
	proj := c.projection()
	if slices.Equal(proj, c.lastQueued) {
		return
	}
	c.lastQueued = proj
	if c.cfg.debounce <= 0 {
		c.launchLocked(SaveOptions{Silent: true, Reason: ReasonAutoSave, skipUnchanged: true})
		return
	}
	c.stopTimerLocked()
	c.pending = true
	gen := c.timerGen
	c.timer = time.AfterFunc(c.cfg.debounce, func() { c.flushTimer(gen) })
}

func (c *Controller) saveNowLocked(opts SaveOptions) {
	if c.closed {
		return
	}
	c.stopTimerLocked()
	c.lastQueued = c.projection()
	c.launchLocked(opts)
}

func (c *Controller) stopTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = false
}

func (c *Controller) launchLocked(opts SaveOptions) {
	c.running++
	go func() {
		defer c.done()
		c.save(c.ctx, opts)
	}()
}

func (c *Controller) save(ctx context.Context, opts SaveOptions) SaveOutcome {
	c.mu.Lock()
	// Only one create may run at a time; later saves wait for the hash.
	for c.creating {
		done := c.createDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			err := ctx.Err()
			c.cfg.notifier.Notify(Notification{Level: LevelError, Message: "Save failed: " + err.Error()})
			return SaveOutcome{Err: err}
		}
		c.mu.Lock()
	}

	proj := c.projection()
	if opts.skipUnchanged && c.hash != "" && slices.Equal(proj, c.lastSaved) {
		hash := c.hash
		c.mu.Unlock()
		return SaveOutcome{Hash: hash}
	}

	req, keys := c.requestLocked(opts)
	c.saveSeq++
	seq := c.saveSeq
	creating := req.Hash == ""
	if creating {
		c.creating = true
		c.createDone = make(chan struct{})
	}
	c.inFlight++
	c.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(ctx, c.cfg.saveTimeout)
	res, err := c.persister.Save(saveCtx, req)
	cancel()

	c.mu.Lock()
	c.inFlight--
	if creating {
		c.creating = false
		close(c.createDone)
	}
	if err != nil {
		if slices.Equal(c.lastQueued, proj) {
			c.lastQueued = c.lastSaved
		}
		c.mu.Unlock()
		logger.Errorf("Roulette save (%s) failed: %v", opts.Reason, err)
		c.cfg.notifier.Notify(Notification{Level: LevelError, Message: saveErrorMessage(err)})
		return SaveOutcome{Err: err}
	}

	if c.hash == "" {
		c.hash = res.Hash
	}
	// A response overtaken by a newer save must not roll back its ids or
	// saved snapshot.
	if seq > c.appliedSeq {
		c.appliedSeq = seq
		if len(res.ParticipantIDs) == len(keys) {
			ids := make(map[string]int64, len(keys))
			for i, key := range keys {
				ids[key] = res.ParticipantIDs[i]
			}
			c.roster.AssignIDs(ids)
		}
		c.lastSaved = proj
	}
	hash := c.hash
	c.mu.Unlock()

	if !opts.Silent {
		c.cfg.notifier.Notify(Notification{Level: LevelSuccess, Message: "Roulette saved"})
	}
	if opts.ShowNavigation {
		c.cfg.navigator.Navigate(hash, true)
	}
	return SaveOutcome{Hash: hash}
}

func (c *Controller) requestLocked(opts SaveOptions) (models.SaveRequest, []string) {
	c.roster.Renumber()
	participants := c.roster.Participants()
	req := models.SaveRequest{
		Hash:         c.hash,
		Participants: make([]models.SaveParticipant, len(participants)),
	}
	keys := make([]string, len(participants))
	for i, p := range participants {
		req.Participants[i] = models.SaveParticipant{
			ID:              p.ID,
			ParticipantName: p.ParticipantName,
			Emoji:           p.Emoji,
			IsHit:           p.IsHit,
		}
		keys[i] = p.LocalKey
	}
	autoSave := c.autoSave
	if opts.AutoSaveOverride != nil {
		autoSave = *opts.AutoSaveOverride
	}
	req.AutoSaveEnabled = &autoSave
	return req, keys
}

func (c *Controller) projection() []entry {
	ps := c.roster.Participants()
	out := make([]entry, len(ps))
	for i, p := range ps {
		out[i] = entry{name: p.ParticipantName, emoji: p.Emoji, isHit: p.IsHit}
	}
	return out
}

func saveErrorMessage(err error) string {
	if errors.Is(err, models.ErrRouletteNotFound) {
		return "Save failed: this roulette no longer exists"
	}
	return "Save failed: " + err.Error()
}
