package session

// Level classifies a notification for presentation.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notification is a recoverable, user-facing message produced by a save.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier receives save notifications. It is called without the
// controller lock held, so it may read controller state.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

// Navigator is told where to go after a save that asked for navigation.
type Navigator interface {
	Navigate(hash string, showSuccess bool)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(hash string, showSuccess bool)

// Navigate calls f(hash, showSuccess).
func (f NavigatorFunc) Navigate(hash string, showSuccess bool) { f(hash, showSuccess) }

type discard struct{}

func (discard) Notify(Notification)   {}
func (discard) Navigate(string, bool) {}
