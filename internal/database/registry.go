package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/johan-st/tsbrowse/internal/config"
)

// Registry holds one session per configured host, in configuration order,
// and tracks which host is active.
type Registry struct {
	sessions []*HostSession
	byID     map[string]*HostSession
	active   string
	// owner is false for views created by Subset; they never close sessions.
	owner bool
	mu    sync.RWMutex
}

// NewRegistry creates a registry over already-created sessions. The first
// connected session becomes active.
func NewRegistry(sessions []*HostSession) *Registry {
	r := &Registry{
		sessions: sessions,
		byID:     make(map[string]*HostSession, len(sessions)),
		owner:    true,
	}
	for _, s := range sessions {
		r.byID[s.ID()] = s
	}
	r.active = r.firstConnected()
	return r
}

func (r *Registry) firstConnected() string {
	for _, s := range r.sessions {
		if s.Connected() {
			return s.ID()
		}
	}
	if len(r.sessions) > 0 {
		return r.sessions[0].ID()
	}
	return ""
}

// ConnectAll connects every host concurrently. Hosts that fail stay in the
// registry unconnected so they can be retried. ErrNoHosts is returned, along
// with the registry, only when nothing connected.
func ConnectAll(ctx context.Context, hosts []config.Host, opts ...Option) (*Registry, error) {
	sessions := make([]*HostSession, len(hosts))
	errs := make([]error, len(hosts))

	for i, h := range hosts {
		s, err := NewSession(h, opts...)
		if err != nil {
			return nil, err
		}
		sessions[i] = s
	}

	var g errgroup.Group
	for i, s := range sessions {
		g.Go(func() error {
			// Per-host failures are recorded, not propagated, so one bad
			// host does not cancel the others.
			errs[i] = s.Connect(ctx)
			return nil
		})
	}
	_ = g.Wait()

	r := NewRegistry(sessions)

	connected := 0
	for i, err := range errs {
		if err == nil {
			connected++
			continue
		}
		log.Warn("host unavailable", "host", hosts[i].ID(), "err", err)
	}

	if connected == 0 {
		return r, fmt.Errorf("%w: %w", ErrNoHosts, errors.Join(errs...))
	}
	return r, nil
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Sessions returns the sessions in configuration order.
func (r *Registry) Sessions() []*HostSession {
	return append([]*HostSession(nil), r.sessions...)
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*HostSession, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// ActiveID returns the id of the active host.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Active returns the active session. It fails with ErrNoHosts on an empty
// registry and ErrNotConnected if the active host is down.
func (r *Registry) Active() (*HostSession, error) {
	r.mu.RLock()
	id := r.active
	r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, ErrNoHosts
	}
	if !s.Connected() {
		return s, fmt.Errorf("%w: %s", ErrNotConnected, id)
	}
	return s, nil
}

// SwitchActive makes id the active host. Only connected hosts can become
// active; on error the active host is unchanged.
func (r *Registry) SwitchActive(id string) error {
	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHostNotFound, id)
	}
	if !s.Connected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, id)
	}

	r.mu.Lock()
	r.active = id
	r.mu.Unlock()
	return nil
}

// Subset returns a view containing the sessions keep accepts, sharing them
// with r but tracking its own active host. Closing a subset is a no-op.
func (r *Registry) Subset(keep func(*HostSession) bool) *Registry {
	var sessions []*HostSession
	for _, s := range r.sessions {
		if keep(s) {
			sessions = append(sessions, s)
		}
	}
	sub := NewRegistry(sessions)
	sub.owner = false

	// Prefer the parent's active host when visible.
	if _, ok := sub.byID[r.ActiveID()]; ok && sub.byID[r.ActiveID()].Connected() {
		sub.active = r.ActiveID()
	}
	return sub
}

// Close closes every session. Only the registry that created the sessions
// closes them.
func (r *Registry) Close() error {
	if !r.owner {
		return nil
	}
	var errs []error
	for _, s := range r.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}
