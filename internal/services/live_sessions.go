package services

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"

	"roulette/internal/session"
)

const (
	// DefaultIdleTimeout is how long a live session survives without activity.
	DefaultIdleTimeout = time.Hour

	maxQueuedNotifications = 32
	subscriberBuffer       = 16
)

// Event is pushed to subscribers of a live session.
type Event struct {
	Type         string                `json:"type"`
	State        *session.State        `json:"state,omitempty"`
	Notification *session.Notification `json:"notification,omitempty"`
	URL          string                `json:"url,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// LiveSession is a server-hosted session controller together with the
// notifications and redirects its saves produced.
type LiveSession struct {
	ID         string
	Controller *session.Controller

	mu            sync.Mutex
	notifications []session.Notification
	redirect      string
	subscribers   map[chan Event]struct{}
	lastActivity  time.Time
}

// Notify queues n for the next HTTP response and pushes it to subscribers.
func (ls *LiveSession) Notify(n session.Notification) {
	ls.mu.Lock()
	ls.notifications = append(ls.notifications, n)
	if len(ls.notifications) > maxQueuedNotifications {
		ls.notifications = ls.notifications[len(ls.notifications)-maxQueuedNotifications:]
	}
	ls.mu.Unlock()
	ls.Broadcast(Event{Type: "notification", Notification: &n})
}

// Navigate records the address of a freshly saved roulette.
func (ls *LiveSession) Navigate(hash string, showSuccess bool) {
	target := "/roulettes/" + url.PathEscape(hash)
	if showSuccess {
		target += "?saved=1"
	}
	ls.mu.Lock()
	ls.redirect = target
	ls.mu.Unlock()
	ls.Broadcast(Event{Type: "navigate", URL: target})
}

// Drain returns and clears the queued notifications and redirect.
func (ls *LiveSession) Drain() ([]session.Notification, string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	n, r := ls.notifications, ls.redirect
	ls.notifications, ls.redirect = nil, ""
	return n, r
}

// Subscribe registers a channel that receives every event of the session.
// The returned function unregisters and closes it.
func (ls *LiveSession) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	ls.mu.Lock()
	if ls.subscribers == nil {
		ls.subscribers = make(map[chan Event]struct{})
	}
	ls.subscribers[ch] = struct{}{}
	ls.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			ls.mu.Lock()
			if _, ok := ls.subscribers[ch]; ok {
				delete(ls.subscribers, ch)
				close(ch)
			}
			ls.mu.Unlock()
		})
	}
}

// PublishState pushes the current controller state to subscribers.
func (ls *LiveSession) PublishState() {
	st := ls.Controller.State()
	ls.Broadcast(Event{Type: "state", State: &st})
}

// Broadcast sends ev to every subscriber. Slow subscribers miss events.
func (ls *LiveSession) Broadcast(ev Event) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for ch := range ls.subscribers {
		select {
		case ch <- ev:
		default:
			logger.Warningf("Dropped %s event for live session %s", ev.Type, ls.ID)
		}
	}
}

func (ls *LiveSession) touch(now time.Time) {
	ls.mu.Lock()
	ls.lastActivity = now
	ls.mu.Unlock()
}

func (ls *LiveSession) idleSince() time.Time {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.lastActivity
}

func (ls *LiveSession) closeSubscribers() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for ch := range ls.subscribers {
		delete(ls.subscribers, ch)
		close(ch)
	}
}

// LiveSessions manages the live sessions hosted by this process.
type LiveSessions struct {
	mu          sync.RWMutex
	sessions    map[string]*LiveSession // Key: live id
	persister   session.Persister
	opts        []session.Option
	idleTimeout time.Duration
	now         func() time.Time
}

// NewLiveSessions creates a registry whose controllers save through p.
func NewLiveSessions(p session.Persister, idleTimeout time.Duration, opts ...session.Option) *LiveSessions {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &LiveSessions{
		sessions:    make(map[string]*LiveSession),
		persister:   p,
		opts:        opts,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Create opens a controller for hash (empty for a new roulette) and
// registers it under a fresh live id.
func (s *LiveSessions) Create(ctx context.Context, hash string) (*LiveSession, error) {
	ls := &LiveSession{ID: uuid.NewString()}
	opts := append(append([]session.Option(nil), s.opts...),
		session.WithNotifier(ls), session.WithNavigator(ls))
	c, err := session.Open(ctx, s.persister, hash, opts...)
	if err != nil {
		return nil, err
	}
	ls.Controller = c
	ls.touch(s.now())

	s.mu.Lock()
	s.sessions[ls.ID] = ls
	s.mu.Unlock()
	logger.Infof("Opened live session %s for roulette %q", ls.ID, hash)
	return ls, nil
}

// Get returns the live session with id and marks it active.
func (s *LiveSessions) Get(id string) (*LiveSession, bool) {
	s.mu.RLock()
	ls, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		ls.touch(s.now())
	}
	return ls, ok
}

// Len returns the number of live sessions.
func (s *LiveSessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CleanUpInactiveSessions closes sessions idle for longer than the idle
// timeout. Pending auto-saves are flushed first.
func (s *LiveSessions) CleanUpInactiveSessions() int {
	now := s.now()
	var expired []*LiveSession
	s.mu.Lock()
	for id, ls := range s.sessions {
		if now.Sub(ls.idleSince()) > s.idleTimeout {
			expired = append(expired, ls)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, ls := range expired {
		logger.Infof("Expiring idle live session %s", ls.ID)
		ls.close()
	}
	return len(expired)
}

// ClearSession closes and removes the live session with id.
func (s *LiveSessions) ClearSession(id string) bool {
	s.mu.Lock()
	ls, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	ls.close()
	logger.Infof("Cleared live session %s", id)
	return true
}

// CloseAll closes every live session, flushing pending saves.
func (s *LiveSessions) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*LiveSession)
	s.mu.Unlock()
	for _, ls := range all {
		ls.close()
	}
}

func (ls *LiveSession) close() {
	ls.Controller.Close()
	ls.closeSubscribers()
}
