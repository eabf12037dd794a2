package cart

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity classifies a user-facing notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Notifier is the user-visible notification surface driven by cart
// operations.
type Notifier interface {
	Notify(severity Severity, message string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(Severity, string) {}

// Notification is one active toast.
type Notification struct {
	ID        string
	Severity  Severity
	Message   string
	CreatedAt time.Time
}

// DefaultDismissAfter is how long a toast stays visible before it
// auto-dismisses.
const DefaultDismissAfter = 3 * time.Second

// Center is a Notifier that keeps the set of active toasts, auto-dismissing
// each after a fixed interval. Toasts can also be dismissed explicitly.
type Center struct {
	dismissAfter time.Duration

	mu     sync.Mutex
	active map[string]Notification
	timers map[string]*time.Timer
}

// NewCenter creates a notification center. A non-positive dismissAfter uses
// DefaultDismissAfter.
func NewCenter(dismissAfter time.Duration) *Center {
	if dismissAfter <= 0 {
		dismissAfter = DefaultDismissAfter
	}
	return &Center{
		dismissAfter: dismissAfter,
		active:       make(map[string]Notification),
		timers:       make(map[string]*time.Timer),
	}
}

// Notify adds a toast and schedules its auto-dismissal.
func (c *Center) Notify(severity Severity, message string) {
	n := Notification{
		ID:        uuid.New().String(),
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	c.active[n.ID] = n
	c.timers[n.ID] = time.AfterFunc(c.dismissAfter, func() { c.Dismiss(n.ID) })
	c.mu.Unlock()
}

// Dismiss removes a toast immediately. Unknown ids are a no-op.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	delete(c.active, id)
}

// Active returns the visible toasts ordered by creation time.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	out := make([]Notification, 0, len(c.active))
	for _, n := range c.active {
		out = append(out, n)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
