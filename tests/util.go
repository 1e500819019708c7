package testutil

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/swcache/core"
	"github.com/trezcool/swcache/core/cache"
	logsvc "github.com/trezcool/swcache/services/logger"
)

var ErrOffline = errors.New("dial tcp: network is unreachable")

// NewConfig returns the test configuration: no debug output, an sqlite database inside `t`'s temp dir.
func NewConfig(t *testing.T) *core.Config {
	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Origin.URL = "https://app.test"
	conf.Database.Engine = "sqlite"
	conf.Database.Name = filepath.Join(t.TempDir(), "swcache.db")
	return conf
}

// NewLogger returns a silent core.Logger with rollbar reporting disabled.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

type route struct {
	status int
	body   string
	header http.Header
}

// Network is a fake origin implementing http.RoundTripper. Unknown paths answer 404.
type Network struct {
	mutex    sync.Mutex
	routes   map[string]route
	offline  bool
	requests []string
}

var _ http.RoundTripper = (*Network)(nil)

func NewNetwork() *Network {
	return &Network{routes: make(map[string]route)}
}

// Handle answers GET|POST|... `path` with `status` and `body`.
func (n *Network) Handle(path string, status int, body string, header ...string) *Network {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	for i := 0; i+1 < len(header); i += 2 {
		h.Set(header[i], header[i+1])
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.routes[path] = route{status: status, body: body, header: h}
	return n
}

func (n *Network) SetOffline(offline bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.offline = offline
}

// Requests returns the "METHOD PATH" of every request that reached the network, in order.
func (n *Network) Requests() []string {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]string(nil), n.requests...)
}

func (n *Network) Reset() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.requests = nil
}

func (n *Network) RoundTrip(req *http.Request) (*http.Response, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.offline {
		return nil, ErrOffline
	}
	n.requests = append(n.requests, req.Method+" "+req.URL.Path)

	rt, ok := n.routes[req.URL.Path]
	if !ok {
		rt = route{status: http.StatusNotFound, body: "not found", header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}}}
	}
	header := rt.header.Clone()
	header.Set("Content-Length", strconv.Itoa(len(rt.body)))
	return &http.Response{
		Status:        strconv.Itoa(rt.status) + " " + http.StatusText(rt.status),
		StatusCode:    rt.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(rt.body))),
		ContentLength: int64(len(rt.body)),
		Request:       req,
	}, nil
}

// SeedGeneration stores `bodies` (request key → body) as 200 responses in the named generation.
func SeedGeneration(t *testing.T, store cache.Store, name string, bodies map[string]string) {
	ctx := context.Background()
	gen, err := store.Open(ctx, name)
	if err != nil {
		t.Fatalf("SeedGeneration() failed: %v", err)
	}

	keys := make([]string, 0, len(bodies))
	for key := range bodies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]cache.Entry, 0, len(bodies))
	for _, key := range keys {
		entries = append(entries, cache.Entry{
			Key:    key,
			URL:    key,
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
			Body:   []byte(bodies[key]),
		})
	}
	if err = gen.PutAll(ctx, entries); err != nil {
		t.Fatalf("SeedGeneration() failed: %v", err)
	}
}

// Keys returns the sorted request keys of the named generation, nil if it does not exist.
func Keys(t *testing.T, store cache.Store, name string) []string {
	ctx := context.Background()
	gen, ok, err := store.Lookup(ctx, name)
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if !ok {
		return nil
	}
	keys, err := gen.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	return keys
}
