// Package permission models the notification permission prompt of a client:
// the browser-style permission value and the locally stored dismissal state
// that keeps the prompt from nagging.
package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Permission is the notification permission of the client.
type Permission string

const (
	Default Permission = "default"
	Granted Permission = "granted"
	Denied  Permission = "denied"
)

// StorageKey is the local storage key holding the prompt state.
const StorageKey = "notification-permission-prompt"

// DismissalCooldown is how long a temporary dismissal hides the prompt.
const DismissalCooldown = 7 * 24 * time.Hour

// ErrInvalidTransition is returned for any change away from a decided permission.
var ErrInvalidTransition = errors.New("permission already decided")

// DismissalState is persisted under StorageKey. LastDismissedAt is in Unix
// milliseconds, zero when never dismissed. Permission holds a decided answer
// for clients that have no browser to remember it.
type DismissalState struct {
	HasBeenPrompted        bool       `json:"hasBeenPrompted"`
	IsDismissedPermanently bool       `json:"isDismissedPermanently"`
	LastDismissedAt        int64      `json:"lastDismissedAt,omitempty"`
	Permission             Permission `json:"permission,omitempty"`
}

// DismissedError is returned by a Requester when the user closed the prompt
// without deciding.
type DismissedError struct {
	Permanent bool
}

func (e *DismissedError) Error() string {
	if e.Permanent {
		return "permission prompt dismissed permanently"
	}
	return "permission prompt dismissed"
}

// Store persists the dismissal state.
type Store interface {
	Load() (DismissalState, error)
	Save(DismissalState) error
}

// Requester asks the user for permission, as the browser prompt does. Closing
// the prompt is reported as a *DismissedError.
type Requester interface {
	Request(ctx context.Context) (Permission, error)
}

// Transition applies the outcome of a permission request. Only default moves,
// and only to granted or denied.
func Transition(current, outcome Permission) (Permission, error) {
	if current == outcome {
		return current, nil
	}
	if current != Default {
		return current, fmt.Errorf("%w: %s", ErrInvalidTransition, current)
	}
	switch outcome {
	case Granted, Denied:
		return outcome, nil
	case Default:
		return Default, nil
	default:
		return current, fmt.Errorf("unknown permission %q", outcome)
	}
}

// Prompt decides when to show the permission prompt and records the user's
// answers. Safe for concurrent use.
type Prompt struct {
	mu         sync.Mutex
	store      Store
	requester  Requester
	permission Permission
	now        func() time.Time
}

// NewPrompt creates a prompt starting at the given permission. A default
// initial permission picks up the answer saved by an earlier run.
func NewPrompt(store Store, requester Requester, initial Permission) *Prompt {
	if initial == "" {
		initial = Default
	}
	if initial == Default {
		if state, err := store.Load(); err == nil && (state.Permission == Granted || state.Permission == Denied) {
			initial = state.Permission
		}
	}
	return &Prompt{
		store:      store,
		requester:  requester,
		permission: initial,
		now:        time.Now,
	}
}

// Permission returns the current permission.
func (p *Prompt) Permission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

// ShouldPrompt reports whether the prompt may be shown now.
func (p *Prompt) ShouldPrompt() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shouldPrompt()
}

func (p *Prompt) shouldPrompt() (bool, error) {
	state, err := p.store.Load()
	if err != nil {
		return false, err
	}
	if state.IsDismissedPermanently || p.permission != Default {
		return false, nil
	}
	if state.LastDismissedAt > 0 {
		dismissed := time.UnixMilli(state.LastDismissedAt)
		if p.now().Sub(dismissed) < DismissalCooldown {
			return false, nil
		}
	}
	return true, nil
}

// Request asks for permission when the prompt may be shown and returns the
// resulting permission. A decided permission is returned without asking.
func (p *Prompt) Request(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ok, err := p.shouldPrompt()
	if err != nil || !ok {
		return p.permission, err
	}

	outcome, err := p.requester.Request(ctx)
	var dismissed *DismissedError
	if errors.As(err, &dismissed) {
		return p.permission, p.dismiss(dismissed.Permanent)
	}
	if err != nil {
		return p.permission, err
	}

	next, err := Transition(p.permission, outcome)
	if err != nil {
		return p.permission, err
	}

	state, err := p.store.Load()
	if err != nil {
		return p.permission, err
	}
	state.HasBeenPrompted = true
	if next != Default {
		state.Permission = next
	}
	if err := p.store.Save(state); err != nil {
		return p.permission, err
	}
	p.permission = next
	return next, nil
}

// Allowed reports whether local notifications may be shown, asking first
// when that is still possible.
func (p *Prompt) Allowed(ctx context.Context) (bool, error) {
	perm, err := p.Request(ctx)
	return perm == Granted, err
}

// Dismiss records that the user closed the prompt. A permanent dismissal
// hides it for good.
func (p *Prompt) Dismiss(permanent bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismiss(permanent)
}

func (p *Prompt) dismiss(permanent bool) error {
	state, err := p.store.Load()
	if err != nil {
		return err
	}
	state.HasBeenPrompted = true
	state.LastDismissedAt = p.now().UnixMilli()
	if permanent {
		state.IsDismissedPermanently = true
	}
	return p.store.Save(state)
}

// MemoryStore keeps the state in memory.
type MemoryStore struct {
	mu    sync.Mutex
	state DismissalState
}

func (m *MemoryStore) Load() (DismissalState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *MemoryStore) Save(s DismissalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	return nil
}
