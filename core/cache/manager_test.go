package cache_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/swcache/core"
	. "github.com/trezcool/swcache/core/cache"
	clientsvc "github.com/trezcool/swcache/services/clients"
	notifysvc "github.com/trezcool/swcache/services/notify"
	inmemstore "github.com/trezcool/swcache/storage/cachestore/inmem"
	"github.com/trezcool/swcache/tests"
)

const origin = "https://app.test"

type env struct {
	conf     *core.Config
	logger   core.Logger
	network  *testutil.Network
	store    *inmemstore.Store
	tray     *notifysvc.Tray
	hub      *clientsvc.Hub
	recorder *recorder
}

func newEnv(t *testing.T) *env {
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger(conf)
	return &env{
		conf:    conf,
		logger:  logger,
		network: testutil.NewNetwork().Handle("/", http.StatusOK, "<html>home</html>").Handle("/app.js", http.StatusOK, "app()"),
		store:   inmemstore.New(),
		tray:    notifysvc.NewTray(),
		hub:     clientsvc.NewHub(logger),
		recorder: &recorder{
			fetches: make(map[Source]int),
		},
	}
}

func (e *env) options(version string, assets ...string) Options {
	return Options{
		Version:      version,
		Origin:       origin,
		StaticAssets: assets,
		Store:        e.store,
		Network:      e.network,
		Notifier:     e.tray,
		Clients:      e.hub,
		Logger:       e.logger,
		Recorder:     e.recorder,
		Defaults: NotificationDefaults{
			Title: "Default app name",
			Body:  "You have a new notification",
			URL:   "/",
		},
	}
}

func (e *env) manager(t *testing.T, version string, assets ...string) *Manager {
	m, err := NewManager(e.options(version, assets...))
	require.NoError(t, err)
	return m
}

// activeManager installs & activates a manager through a registration.
func (e *env) activeManager(t *testing.T, version string, assets ...string) (*Manager, *Registration) {
	reg := NewRegistration(e.network, e.logger)
	m := e.manager(t, version, assets...)
	require.NoError(t, reg.Register(context.Background(), m))
	require.Equal(t, StateActive, m.State())
	e.network.Reset()
	return m, reg
}

type recorder struct {
	mutex    sync.Mutex
	fetches  map[Source]int
	installs []bool
	purged   int
	shown    int
}

func (r *recorder) FetchServed(source Source) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.fetches[source]++
}

func (r *recorder) InstallFinished(_ string, ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.installs = append(r.installs, ok)
}

func (r *recorder) GenerationsPurged(n int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.purged += n
}

func (r *recorder) NotificationShown() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.shown++
}

func readBody(t *testing.T, resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestNewManager(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name    string
		modify  func(opts *Options)
		wantErr bool
	}{
		{name: "valid", modify: func(opts *Options) {}},
		{name: "no assets", modify: func(opts *Options) { opts.StaticAssets = nil }},
		{name: "missing version", modify: func(opts *Options) { opts.Version = "" }, wantErr: true},
		{name: "bad version", modify: func(opts *Options) { opts.Version = "v 1" }, wantErr: true},
		{name: "bad origin", modify: func(opts *Options) { opts.Origin = "lol" }, wantErr: true},
		{name: "relative asset", modify: func(opts *Options) { opts.StaticAssets = []string{"app.js"} }, wantErr: true},
		{name: "missing store", modify: func(opts *Options) { opts.Store = nil }, wantErr: true},
		{name: "missing network", modify: func(opts *Options) { opts.Network = nil }, wantErr: true},
		{name: "missing clients", modify: func(opts *Options) { opts.Clients = nil }, wantErr: true},
		{name: "no recorder", modify: func(opts *Options) { opts.Recorder = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := e.options("v1", "/", "/app.js")
			tt.modify(&opts)
			m, err := NewManager(opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateUninstalled, m.State())
		})
	}
}

func TestManager_OnInstall(t *testing.T) {
	ctx := context.Background()

	t.Run("stores every asset", func(t *testing.T) {
		e := newEnv(t)
		m := e.manager(t, "v1", "/", "/app.js")

		require.NoError(t, m.OnInstall(ctx))
		assert.Equal(t, StateInstalled, m.State())
		assert.True(t, m.SkipWaiting())
		assert.Equal(t, []string{origin + "/", origin + "/app.js"}, testutil.Keys(t, e.store, "v1"))
		assert.Equal(t, []bool{true}, e.recorder.installs)

		gen, err := e.store.Open(ctx, "v1")
		require.NoError(t, err)
		entry, ok, err := gen.Match(ctx, origin+"/app.js")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "app()", string(entry.Body))
		assert.Equal(t, http.StatusOK, entry.Status)
	})

	t.Run("no assets", func(t *testing.T) {
		e := newEnv(t)
		m := e.manager(t, "v1")

		require.NoError(t, m.OnInstall(ctx))
		assert.Equal(t, StateInstalled, m.State())
		assert.Empty(t, testutil.Keys(t, e.store, "v1"))
	})

	t.Run("failing asset leaves nothing behind", func(t *testing.T) {
		e := newEnv(t)
		m := e.manager(t, "v1", "/", "/missing.css")

		err := m.OnInstall(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "/missing.css")
		assert.Equal(t, StateUninstalled, m.State())
		assert.Nil(t, testutil.Keys(t, e.store, "v1"))
		assert.Equal(t, []bool{false}, e.recorder.installs)

		// the next attempt succeeds once the asset is deployed
		e.network.Handle("/missing.css", http.StatusOK, "body{}")
		require.NoError(t, m.OnInstall(ctx))
		assert.Equal(t, StateInstalled, m.State())
		assert.Equal(t, []string{origin + "/", origin + "/missing.css"}, testutil.Keys(t, e.store, "v1"))
	})

	t.Run("offline", func(t *testing.T) {
		e := newEnv(t)
		m := e.manager(t, "v1", "/")
		e.network.SetOffline(true)

		err := m.OnInstall(ctx)
		require.Error(t, err)
		assert.Equal(t, testutil.ErrOffline, errors.Cause(err))
		assert.Equal(t, StateUninstalled, m.State())
	})

	t.Run("keeps a previous complete install", func(t *testing.T) {
		e := newEnv(t)
		testutil.SeedGeneration(t, e.store, "v1", map[string]string{origin + "/": "old home"})
		m := e.manager(t, "v1", "/", "/missing.css")

		require.Error(t, m.OnInstall(ctx))
		assert.Equal(t, []string{origin + "/"}, testutil.Keys(t, e.store, "v1"))
	})

	t.Run("twice", func(t *testing.T) {
		e := newEnv(t)
		m := e.manager(t, "v1", "/")

		require.NoError(t, m.OnInstall(ctx))
		err := m.OnInstall(ctx)
		assert.Equal(t, ErrInvalidTransition, errors.Cause(err))
		assert.Equal(t, StateInstalled, m.State())
	})
}

func TestManager_OnActivate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	testutil.SeedGeneration(t, e.store, "v0", map[string]string{origin + "/": "v0 home"})
	testutil.SeedGeneration(t, e.store, "old", map[string]string{origin + "/": "old home"})

	page := &fakeConn{}
	e.hub.Attach(origin+"/", page, "")

	m := e.manager(t, "v1", "/", "/app.js")
	err := m.OnActivate(ctx)
	assert.Equal(t, ErrInvalidTransition, errors.Cause(err), "activate before install")

	require.NoError(t, m.OnInstall(ctx))
	require.NoError(t, m.OnActivate(ctx))

	assert.Equal(t, StateActive, m.State())
	names, err := e.store.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, names)
	assert.Equal(t, 2, e.recorder.purged)

	clients, err := e.hub.MatchAll(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.True(t, clients[0].Controlled)
	assert.Equal(t, []clientsvc.Message{{Type: clientsvc.MsgClaim, ClientID: clients[0].ID}}, page.messages())
}

type fakeConn struct {
	mutex  sync.Mutex
	sent   []clientsvc.Message
	closed bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if msg, ok := v.(clientsvc.Message); ok {
		c.sent = append(c.sent, msg)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() []clientsvc.Message {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]clientsvc.Message(nil), c.sent...)
}
