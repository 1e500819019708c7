package cache

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/swcache/core"
)

var ErrNoActiveWorker = errors.New("no active cache manager")

// Registration is the scope a Manager is bound to. At most one manager is active at a time;
// round trips go through it, or straight to the network when none is active.
type Registration struct {
	network http.RoundTripper
	logger  core.Logger

	updateMu sync.Mutex // serialises Register: install completes before activate begins

	mu      sync.RWMutex
	active  *Manager
	waiting *Manager
}

var _ http.RoundTripper = (*Registration)(nil)

func NewRegistration(network http.RoundTripper, logger core.Logger) *Registration {
	return &Registration{network: network, logger: logger}
}

func (r *Registration) Active() *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *Registration) Waiting() *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// IsCurrent reports whether the active manager serves the given version tag.
func (r *Registration) IsCurrent(version string) bool {
	m := r.Active()
	return m != nil && m.Version() == version
}

// Register installs m and, once installed, activates it in place of the current manager.
// When the install fails the current manager keeps serving. If there is none (e.g. right after a
// restart), the stored generation of m's version is restored, or failing that the one generation
// left by the last activation, so offline fallback keeps working until an install succeeds.
func (r *Registration) Register(ctx context.Context, m *Manager) error {
	r.updateMu.Lock()
	defer r.updateMu.Unlock()

	if r.IsCurrent(m.Version()) {
		return nil
	}

	if err := m.OnInstall(ctx); err != nil {
		if r.Active() == nil {
			r.tryRestore(ctx, m)
		}
		return err
	}

	if !m.SkipWaiting() {
		r.mu.Lock()
		r.waiting = m
		r.mu.Unlock()
		return nil
	}
	return r.activate(ctx, m)
}

// ActivateWaiting activates the installed manager that did not skip waiting, if any.
func (r *Registration) ActivateWaiting(ctx context.Context) error {
	r.updateMu.Lock()
	defer r.updateMu.Unlock()

	m := r.Waiting()
	if m == nil {
		return nil
	}
	return r.activate(ctx, m)
}

func (r *Registration) activate(ctx context.Context, m *Manager) error {
	err := m.OnActivate(ctx)
	if m.State() != StateActive {
		return errors.Wrapf(err, "activating %s", m.Version())
	}
	r.promote(m)
	return errors.Wrapf(err, "activating %s", m.Version())
}

func (r *Registration) tryRestore(ctx context.Context, m *Manager) {
	version, err := restorableVersion(ctx, m.opts.Store, m.Version())
	if err != nil {
		r.logger.Warn(fmt.Sprintf("looking for a stored generation: %v", err), err)
		return
	}
	if version == "" {
		return
	}

	target := m
	if version != m.Version() {
		if target, err = m.withVersion(version); err != nil {
			r.logger.Warn(fmt.Sprintf("restoring %s: %v", version, err), err)
			return
		}
	}
	if err = target.Restore(ctx); err != nil && target.State() != StateActive {
		r.logger.Warn(fmt.Sprintf("restoring %s: %v", version, err), err)
		return
	}
	r.logger.Info(fmt.Sprintf("restored generation %s from store", version))
	r.promote(target)
}

// restorableVersion picks the generation to serve when nothing is active: the wanted version if
// stored, else the only stored generation. Several candidates are ambiguous and yield none.
func restorableVersion(ctx context.Context, store Store, want string) (string, error) {
	has, err := store.Has(ctx, want)
	if err != nil {
		return "", err
	}
	if has {
		return want, nil
	}
	names, err := store.Names(ctx)
	if err != nil {
		return "", err
	}
	if len(names) != 1 {
		return "", nil
	}
	return names[0], nil
}

func (r *Registration) promote(m *Manager) {
	r.mu.Lock()
	prev := r.active
	r.active = m
	if r.waiting == m {
		r.waiting = nil
	}
	r.mu.Unlock()

	if prev != nil && prev != m {
		if err := prev.Supersede(); err != nil {
			r.logger.Warn(fmt.Sprintf("superseding %s: %v", prev.Version(), err), err)
		}
	}
	r.logger.Info(fmt.Sprintf("cache %s active", m.Version()))
}

// RoundTrip routes the request through the active manager.
func (r *Registration) RoundTrip(req *http.Request) (*http.Response, error) {
	if m := r.Active(); m != nil {
		return m.OnFetch(req.Context(), req)
	}
	return r.network.RoundTrip(req)
}

// Push delivers a push payload to the active manager.
func (r *Registration) Push(ctx context.Context, data []byte) (Notification, error) {
	m := r.Active()
	if m == nil {
		return Notification{}, ErrNoActiveWorker
	}
	return m.OnPush(ctx, data)
}

// NotificationClick delivers a notification click to the active manager.
func (r *Registration) NotificationClick(ctx context.Context, n Notification) (Client, error) {
	m := r.Active()
	if m == nil {
		return Client{}, ErrNoActiveWorker
	}
	return m.OnNotificationClick(ctx, n)
}
