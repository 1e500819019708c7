package cache

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrClientNotFound       = errors.New("client not found")
	ErrGenerationNotFound   = errors.New("generation not found")
)

type (
	// Store holds named cache generations.
	Store interface {
		// Open returns the named generation, creating it when missing.
		Open(ctx context.Context, name string) (Generation, error)
		// Lookup returns the named generation only if it exists; it never creates one.
		Lookup(ctx context.Context, name string) (Generation, bool, error)
		Has(ctx context.Context, name string) (bool, error)
		// Names lists the existing generation names, sorted.
		Names(ctx context.Context) ([]string, error)
		// Delete removes the generation and all its entries; reports whether it existed.
		Delete(ctx context.Context, name string) (bool, error)
	}

	// Generation is a set of request-key → response-snapshot entries.
	// Writes are keyed; a read never observes a partially written entry.
	// Once the generation is deleted, writes through an old handle fail with ErrGenerationNotFound
	// instead of bringing it back.
	Generation interface {
		Name() string
		Put(ctx context.Context, entry Entry) error
		// PutAll writes all entries or none of them.
		PutAll(ctx context.Context, entries []Entry) error
		Match(ctx context.Context, key string) (Entry, bool, error)
		Keys(ctx context.Context) ([]string, error)
	}

	// Notifier displays notifications and keeps the list of visible ones.
	Notifier interface {
		Show(ctx context.Context, n Notification) error
		Close(ctx context.Context, id string) error
		Get(ctx context.Context, id string) (Notification, error)
		List(ctx context.Context) ([]Notification, error)
	}

	// Clients controls the browser contexts in the registration scope.
	Clients interface {
		// Claim makes the manager control every open context without a reload.
		Claim(ctx context.Context) error
		MatchAll(ctx context.Context) ([]Client, error)
		Focus(ctx context.Context, id string) (Client, error)
		OpenWindow(ctx context.Context, url string) (Client, error)
	}

	// Recorder observes the manager (metrics).
	Recorder interface {
		FetchServed(source Source)
		InstallFinished(version string, ok bool)
		GenerationsPurged(n int)
		NotificationShown()
	}

	// Worker has one method per lifecycle event. Each blocks until the event is fully handled.
	Worker interface {
		OnInstall(ctx context.Context) error
		OnActivate(ctx context.Context) error
		OnFetch(ctx context.Context, req *http.Request) (*http.Response, error)
		OnPush(ctx context.Context, data []byte) (Notification, error)
		OnNotificationClick(ctx context.Context, n Notification) (Client, error)
	}
)

type nopRecorder struct{}

func (nopRecorder) FetchServed(Source)          {}
func (nopRecorder) InstallFinished(string, bool) {}
func (nopRecorder) GenerationsPurged(int)        {}
func (nopRecorder) NotificationShown()           {}
