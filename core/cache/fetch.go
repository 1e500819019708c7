package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// OnFetch serves a request network-first.
//
// Non-GET requests, and every request while the manager is not active, go straight to the network:
// the store is neither read nor written. A successful GET response is snapshotted into the current
// generation before it is returned. When the network fails, the stored snapshot is returned if any;
// otherwise the network error is.
//
// Requests carrying credentials are stored under a key partitioned by those credentials, so one
// caller's responses are never replayed to another.
func (m *Manager) OnFetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if req.Method != http.MethodGet || m.State() != StateActive {
		m.opts.Recorder.FetchServed(SourcePassthrough)
		return m.opts.Network.RoundTrip(req)
	}

	resp, body, netErr := m.fetchNetwork(req)
	if netErr == nil {
		if isStorable(req, resp) {
			m.store(ctx, newEntry(storageKey(req), req, resp, body, nowFunc()))
		}
		m.opts.Recorder.FetchServed(SourceNetwork)
		return resp, nil
	}

	if entry, ok := m.match(ctx, req); ok {
		m.opts.Recorder.FetchServed(SourceCache)
		return entry.Response(req), nil
	}
	m.opts.Recorder.FetchServed(SourceNone)
	return nil, netErr
}

// fetchNetwork performs the round trip and buffers the body so the response can be
// returned to the caller and persisted independently.
func (m *Manager) fetchNetwork(req *http.Request) (*http.Response, []byte, error) {
	resp, err := m.opts.Network.RoundTrip(req)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "fetching %s", req.URL)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", req.URL)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, body, nil
}

// store is best-effort: a failed write never affects the response delivered to the caller.
// It never creates the generation: a manager superseded while the request was in flight
// must not bring back a generation purged by its successor.
func (m *Manager) store(ctx context.Context, entry Entry) {
	if m.State() != StateActive {
		return
	}
	gen, ok, err := m.opts.Store.Lookup(ctx, m.opts.Version)
	if err == nil && !ok {
		err = ErrGenerationNotFound
	}
	if err == nil {
		err = gen.Put(ctx, entry)
	}
	switch {
	case err == nil:
	case errors.Cause(err) == ErrGenerationNotFound:
		m.opts.Logger.Debug(fmt.Sprintf("not caching %s: generation %s is gone", entry.Key, m.opts.Version))
	default:
		m.opts.Logger.Warn(fmt.Sprintf("caching %s: %v", entry.Key, err), err)
	}
}

// match looks up the caller's own snapshot first, then the shared one.
func (m *Manager) match(ctx context.Context, req *http.Request) (Entry, bool) {
	gen, ok, err := m.opts.Store.Lookup(ctx, m.opts.Version)
	if err != nil {
		m.opts.Logger.Warn(fmt.Sprintf("opening generation %s: %v", m.opts.Version, err), err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	keys := []string{RequestKey(req)}
	if key := credentialKey(req); key != "" {
		keys = []string{key, keys[0]}
	}
	for _, key := range keys {
		entry, ok, err := gen.Match(ctx, key)
		if err != nil {
			m.opts.Logger.Warn(fmt.Sprintf("matching %s: %v", key, err), err)
			return Entry{}, false
		}
		if ok {
			return entry, true
		}
	}
	return Entry{}, false
}
