package session

import (
	"time"

	"roulette/internal/selection"
)

// Defaults used when no option overrides them.
const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultSaveTimeout = 10 * time.Second
)

type config struct {
	notifier    Notifier
	navigator   Navigator
	pick        selection.IndexFunc
	debounce    time.Duration
	saveTimeout time.Duration
}

// Option configures a Controller.
type Option func(*config)

// WithNotifier sets the receiver of save notifications.
func WithNotifier(n Notifier) Option { return func(c *config) { c.notifier = n } }

// WithNavigator sets the receiver of post-save navigation.
func WithNavigator(n Navigator) Option { return func(c *config) { c.navigator = n } }

// WithIndexFunc replaces the random source used for spins.
func WithIndexFunc(f selection.IndexFunc) Option { return func(c *config) { c.pick = f } }

// WithDebounce sets how long auto-save waits for further changes. Zero or
// less saves immediately after every change.
func WithDebounce(d time.Duration) Option { return func(c *config) { c.debounce = d } }

// WithSaveTimeout bounds each call to the persister. Non-positive values
// keep the default.
func WithSaveTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.saveTimeout = d
		}
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		notifier:    discard{},
		navigator:   discard{},
		debounce:    DefaultDebounce,
		saveTimeout: DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.notifier == nil {
		cfg.notifier = discard{}
	}
	if cfg.navigator == nil {
		cfg.navigator = discard{}
	}
	return cfg
}
