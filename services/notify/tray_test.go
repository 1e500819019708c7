package notifysvc

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/swcache/core/cache"
)

func TestTray(t *testing.T) {
	ctx := context.Background()
	tray := NewTray()
	now := time.Now().UTC()

	second := cache.Notification{ID: "b", Title: "second", CreatedAt: now.Add(time.Second)}
	first := cache.Notification{ID: "a", Title: "first", CreatedAt: now}
	require.NoError(t, tray.Show(ctx, second))
	require.NoError(t, tray.Show(ctx, first))

	list, err := tray.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []cache.Notification{first, second}, list)

	got, err := tray.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "close", id: "a"},
		{name: "close twice", id: "a", wantErr: cache.ErrNotificationNotFound},
		{name: "unknown", id: "lol", wantErr: cache.ErrNotificationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tray.Close(ctx, tt.id)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}

	_, err = tray.Get(ctx, "a")
	assert.Equal(t, cache.ErrNotificationNotFound, err)

	list, err = tray.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []cache.Notification{second}, list)
}
