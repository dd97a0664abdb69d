package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/store"
)

const activeSessionsCollection = "activeSessions"

// Phase is the manager's lifecycle state.
type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
)

// Snapshot is a point-in-time view of the manager's state. The manager owns
// the truth; the HTTP layer only consumes snapshots.
type Snapshot struct {
	Phase   Phase       `json:"phase"`
	Form    Form        `json:"form"`
	Session *Descriptor `json:"session,omitempty"`
}

// Manager owns the single in-process session state machine and orchestrates
// activation and termination against the document store.
type Manager struct {
	store  store.Store
	ledger *Ledger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	form    Form
	current *Descriptor
	subs    []chan Snapshot
}

// NewManager creates an idle manager.
func NewManager(st store.Store, ledger *Ledger) *Manager {
	return &Manager{
		store:  st,
		ledger: ledger,
		now:    time.Now,
		newID:  uuid.NewString,
		form:   DefaultForm(),
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Active reports whether a session is currently active.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Subscribe returns a channel receiving a snapshot after every state change.
// The channel is closed when ctx is done. Slow consumers drop updates.
func (m *Manager) Subscribe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 4)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		for i, sub := range m.subs {
			if sub == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(ch)
	}()
	return ch
}

// SetForm replaces the teacher's selection. Rejected while a session is
// active, since the form then describes the running session.
func (m *Manager) SetForm(form Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return ErrAlreadyActive
	}
	if !form.Type.Valid() {
		return ErrInvalidType
	}
	m.form = form
	m.notifyLocked()
	return nil
}

// Activate validates the form, mints a session and writes one active-session
// document per class group. Writes are sequential; a failed write reports
// failure without rolling back earlier class groups, and the manager stays
// idle so the teacher can retry.
func (m *Manager) Activate(ctx context.Context, form Form) (*Descriptor, error) {
	if len(form.ClassGroups) == 0 || form.Subject == "" || form.Room == "" {
		return nil, ErrIncompleteForm
	}
	if !form.Type.Valid() {
		return nil, ErrInvalidType
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return nil, ErrAlreadyActive
	}

	d := &Descriptor{
		ClassGroups: append([]string(nil), form.ClassGroups...),
		Subject:     form.Subject,
		Room:        form.Room,
		Type:        form.Type,
		IsExtra:     form.IsExtra,
		Date:        m.now().Format("2006-01-02"),
		SessionID:   m.newID(),
		Active:      true,
	}

	for _, cg := range d.ClassGroups {
		doc := store.Document{
			"date":      d.Date,
			"isActive":  true,
			"isExtra":   d.IsExtra,
			"room":      d.Room,
			"sessionId": d.SessionID,
			"subject":   d.Subject,
			"type":      string(d.Type),
		}
		if err := m.store.Set(ctx, activeSessionsCollection, cg, doc); err != nil {
			return nil, fmt.Errorf("activate %s: %w", cg, err)
		}
	}

	m.form = form
	m.current = d
	m.notifyLocked()
	return d, nil
}

// End marks every class group's active-session document inactive, then
// bumps the subject ledger. On success the descriptor is cleared and the
// form resets to defaults. A failed write leaves the session active so End
// can be retried.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNoActiveSession
	}
	d := m.current

	for _, cg := range d.ClassGroups {
		fields := store.Document{"isActive": false}
		if err := m.store.Update(ctx, activeSessionsCollection, cg, fields); err != nil {
			return fmt.Errorf("end %s: %w", cg, err)
		}
	}

	if err := m.ledger.Increment(ctx, d); err != nil {
		return fmt.Errorf("end %s: %w", d.Subject, err)
	}

	d.Active = false
	m.current = nil
	m.form = DefaultForm()
	m.notifyLocked()
	return nil
}

// Restart reports on the running session without touching the store. It
// deliberately does not reactivate: the observed behavior treats restart as
// an "already active" notice, not a second activation.
func (m *Manager) Restart() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNoActiveSession
	}
	return ErrAlreadyActive
}

// EndOnShutdown attempts to end any active session during teardown, bounded
// by timeout so shutdown cannot hang on a dead store.
func (m *Manager) EndOnShutdown(timeout time.Duration) {
	if !m.Active() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.End(ctx); err != nil {
		log.Printf("shutdown: end session failed: %v", err)
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{Phase: PhaseIdle, Form: m.form}
	if m.current != nil {
		snap.Phase = PhaseActive
		d := *m.current
		d.ClassGroups = append([]string(nil), m.current.ClassGroups...)
		snap.Session = &d
	}
	return snap
}

func (m *Manager) notifyLocked() {
	snap := m.snapshotLocked()
	for _, sub := range m.subs {
		select {
		case sub <- snap:
		default:
		}
	}
}
