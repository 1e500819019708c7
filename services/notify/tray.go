package notifysvc

import (
	"context"
	"sort"
	"sync"

	"github.com/trezcool/swcache/core/cache"
)

// Tray is the list of visible notifications. Closing a notification removes it from the list.
type Tray struct {
	mutex sync.RWMutex
	t     map[string]cache.Notification
}

var _ cache.Notifier = (*Tray)(nil)

func NewTray() *Tray {
	return &Tray{t: make(map[string]cache.Notification)}
}

func (tr *Tray) Show(_ context.Context, n cache.Notification) error {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	tr.t[n.ID] = n
	return nil
}

func (tr *Tray) Close(_ context.Context, id string) error {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	if _, ok := tr.t[id]; !ok {
		return cache.ErrNotificationNotFound
	}
	delete(tr.t, id)
	return nil
}

func (tr *Tray) Get(_ context.Context, id string) (cache.Notification, error) {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()
	n, ok := tr.t[id]
	if !ok {
		return cache.Notification{}, cache.ErrNotificationNotFound
	}
	return n, nil
}

// List returns the visible notifications, oldest first.
func (tr *Tray) List(_ context.Context) ([]cache.Notification, error) {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	list := make([]cache.Notification, 0, len(tr.t))
	for _, n := range tr.t {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}
