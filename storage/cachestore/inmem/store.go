package inmemstore

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/trezcool/swcache/core/cache"
)

type (
	Store struct {
		mutex sync.RWMutex
		t     map[string]*generation
	}

	generation struct {
		name    string
		mutex   sync.RWMutex
		t       map[string]cache.Entry
		deleted bool
	}
)

var _ cache.Store = (*Store)(nil)

func New() *Store {
	return &Store{t: make(map[string]*generation)}
}

func (s *Store) Open(_ context.Context, name string) (cache.Generation, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	gen, ok := s.t[name]
	if !ok {
		gen = &generation{name: name, t: make(map[string]cache.Entry)}
		s.t[name] = gen
	}
	return gen, nil
}

func (s *Store) Lookup(_ context.Context, name string) (cache.Generation, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	gen, ok := s.t[name]
	if !ok {
		return nil, false, nil
	}
	return gen, true, nil
}

func (s *Store) Has(_ context.Context, name string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.t[name]
	return ok, nil
}

func (s *Store) Names(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.t))
	for name := range s.t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Delete(_ context.Context, name string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	gen, ok := s.t[name]
	if ok {
		gen.mutex.Lock()
		gen.deleted = true
		gen.mutex.Unlock()
	}
	delete(s.t, name)
	return ok, nil
}

func (g *generation) Name() string { return g.name }

func (g *generation) Put(_ context.Context, entry cache.Entry) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.deleted {
		return cache.ErrGenerationNotFound
	}
	g.t[entry.Key] = clone(entry)
	return nil
}

func (g *generation) PutAll(_ context.Context, entries []cache.Entry) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.deleted {
		return cache.ErrGenerationNotFound
	}
	for _, entry := range entries {
		g.t[entry.Key] = clone(entry)
	}
	return nil
}

func (g *generation) Match(_ context.Context, key string) (cache.Entry, bool, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	entry, ok := g.t[key]
	if !ok {
		return cache.Entry{}, false, nil
	}
	return clone(entry), true, nil
}

func (g *generation) Keys(_ context.Context) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	keys := make([]string, 0, len(g.t))
	for key := range g.t {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// clone keeps stored snapshots independent from the caller's slices and headers.
func clone(e cache.Entry) cache.Entry {
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	e.Body = body
	if e.Header != nil {
		e.Header = e.Header.Clone()
	} else {
		e.Header = make(http.Header)
	}
	return e
}
