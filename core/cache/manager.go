package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/swcache/core"
)

var nowFunc = time.Now // mockable

type Options struct {
	Version      string   `json:"version" validate:"required,versiontag"`
	Origin       string   `json:"origin" validate:"required,url"`
	StaticAssets []string `json:"static_assets" validate:"dive,required,startswith=/"`

	Store    Store             `json:"-" validate:"-"`
	Network  http.RoundTripper `json:"-" validate:"-"`
	Notifier Notifier          `json:"-" validate:"-"`
	Clients  Clients           `json:"-" validate:"-"`
	Logger   core.Logger       `json:"-" validate:"-"`
	Recorder Recorder          `json:"-" validate:"-"`

	Defaults NotificationDefaults `json:"-" validate:"-"`
}

func (opts Options) Validate() error {
	if err := core.Validate.Struct(opts); err != nil {
		return err
	}
	var missing string
	switch {
	case opts.Store == nil:
		missing = "store"
	case opts.Network == nil:
		missing = "network"
	case opts.Notifier == nil:
		missing = "notifier"
	case opts.Clients == nil:
		missing = "clients"
	case opts.Logger == nil:
		missing = "logger"
	}
	if missing != "" {
		err := errors.New(missing + " is required")
		return core.NewValidationError(err, core.FieldError{Field: missing, Error: err.Error()})
	}
	return nil
}

// Manager is the offline cache manager of one deployed version tag.
// Lifecycle transitions are computed by Transition; Manager only performs the resulting effects.
type Manager struct {
	opts   Options
	origin *url.URL

	mu          sync.Mutex
	state       State
	skipWaiting bool
}

var _ Worker = (*Manager)(nil)

func NewManager(opts Options) (*Manager, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating manager options")
	}
	origin, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, errors.Wrap(err, "parsing origin")
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Defaults.URL == "" {
		opts.Defaults.URL = "/"
	}
	return &Manager{opts: opts, origin: origin}, nil
}

func (m *Manager) Version() string { return m.opts.Version }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SkipWaiting reports whether the installed manager asked to become active immediately.
func (m *Manager) SkipWaiting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipWaiting
}

func (m *Manager) transition(event Event) ([]Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, effects, err := Transition(m.state, event)
	if err != nil {
		return nil, err
	}
	m.opts.Logger.Debug(fmt.Sprintf("cache %s: %s -> %s", m.opts.Version, m.state, next))
	m.state = next
	return effects, nil
}

func (m *Manager) perform(ctx context.Context, effects []Effect) error {
	for _, effect := range effects {
		var err error
		switch effect {
		case EffectPrecache:
			err = m.precache(ctx)
		case EffectDiscardGeneration:
			m.discard(ctx)
		case EffectSkipWaiting:
			m.mu.Lock()
			m.skipWaiting = true
			m.mu.Unlock()
		case EffectPurgeStale:
			m.purgeStale(ctx)
		case EffectClaimClients:
			err = errors.Wrap(m.opts.Clients.Claim(ctx), "claiming clients")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// OnInstall populates the generation named by the version tag with every static asset.
// The batch is all-or-nothing: a failed attempt leaves no partial generation behind and can be retried.
func (m *Manager) OnInstall(ctx context.Context) error {
	effects, err := m.transition(EventInstall)
	if err != nil {
		return err
	}
	if err = m.perform(ctx, effects); err != nil {
		if fx, tErr := m.transition(EventInstallFailed); tErr == nil {
			_ = m.perform(ctx, fx)
		}
		m.opts.Recorder.InstallFinished(m.opts.Version, false)
		return errors.Wrapf(err, "installing %s", m.opts.Version)
	}

	effects, err = m.transition(EventInstallSucceeded)
	if err != nil {
		return err
	}
	m.opts.Recorder.InstallFinished(m.opts.Version, true)
	return m.perform(ctx, effects)
}

// OnActivate deletes every generation but the current one, then claims all open clients.
func (m *Manager) OnActivate(ctx context.Context) error {
	effects, err := m.transition(EventActivate)
	if err != nil {
		return err
	}
	if err = m.perform(ctx, effects); err != nil {
		return err
	}
	effects, err = m.transition(EventActivated)
	if err != nil {
		return err
	}
	return m.perform(ctx, effects)
}

// Restore promotes an uninstalled manager whose generation is already present in the store.
func (m *Manager) Restore(ctx context.Context) error {
	effects, err := m.transition(EventRestore)
	if err != nil {
		return err
	}
	return m.perform(ctx, effects)
}

// Supersede marks the manager redundant; a newer version took over the scope.
func (m *Manager) Supersede() error {
	_, err := m.transition(EventSuperseded)
	return err
}

// withVersion returns an uninstalled manager sharing m's collaborators, bound to another version tag.
func (m *Manager) withVersion(version string) (*Manager, error) {
	opts := m.opts
	opts.Version = version
	opts.StaticAssets = nil
	return NewManager(opts)
}

func (m *Manager) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return m.origin.ResolveReference(ref).String()
}

type precacheItem struct {
	req  *http.Request
	resp *http.Response
	body []byte
}

func (m *Manager) fetchAsset(ctx context.Context, path string) (precacheItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.resolve(path), nil)
	if err != nil {
		return precacheItem{}, errors.Wrapf(err, "building request for %s", path)
	}
	resp, err := m.opts.Network.RoundTrip(req)
	if err != nil {
		return precacheItem{}, errors.Wrapf(err, "fetching %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isCacheable(resp.StatusCode) {
		return precacheItem{}, errors.Errorf("fetching %s: bad response status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return precacheItem{}, errors.Wrapf(err, "reading %s", path)
	}
	return precacheItem{req: req, resp: resp, body: body}, nil
}

func (m *Manager) precache(ctx context.Context) error {
	items := make([]precacheItem, 0, len(m.opts.StaticAssets))
	for _, path := range m.opts.StaticAssets {
		item, err := m.fetchAsset(ctx, path)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	gen, err := m.opts.Store.Open(ctx, m.opts.Version)
	if err != nil {
		return errors.Wrap(err, "opening generation")
	}
	now := nowFunc()
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, newEntry(RequestKey(item.req), item.req, item.resp, item.body, now))
	}
	return errors.Wrap(gen.PutAll(ctx, entries), "storing static assets")
}

// discard deletes the generation left empty by a failed install.
// A populated one holds a previous complete install (PutAll is atomic) and is kept.
func (m *Manager) discard(ctx context.Context) {
	gen, ok, err := m.opts.Store.Lookup(ctx, m.opts.Version)
	if err != nil || !ok {
		return
	}
	if keys, err := gen.Keys(ctx); err != nil || len(keys) > 0 {
		return
	}
	if _, err = m.opts.Store.Delete(ctx, m.opts.Version); err != nil {
		m.opts.Logger.Warn(fmt.Sprintf("discarding generation %s: %v", m.opts.Version, err), err)
	}
}

func (m *Manager) purgeStale(ctx context.Context) {
	names, err := m.opts.Store.Names(ctx)
	if err != nil {
		m.opts.Logger.Warn(fmt.Sprintf("listing generations: %v", err), err)
		return
	}
	var purged int
	for _, name := range names {
		if name == m.opts.Version {
			continue
		}
		if _, err := m.opts.Store.Delete(ctx, name); err != nil {
			m.opts.Logger.Warn(fmt.Sprintf("deleting generation %s: %v", name, err), err)
			continue
		}
		purged++
	}
	if purged > 0 {
		m.opts.Logger.Info(fmt.Sprintf("purged %d stale generation(s)", purged))
	}
	m.opts.Recorder.GenerationsPurged(purged)
}

// isCacheable: only successful responses are stored; error pages are never served offline.
func isCacheable(status int) bool {
	return status >= 200 && status < 300
}
