package cache_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/swcache/core/cache"
	clientsvc "github.com/trezcool/swcache/services/clients"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Payload
	}{
		{name: "empty object", data: `{}`, want: Payload{}},
		{name: "empty input", data: ``, want: Payload{}},
		{name: "not JSON", data: `lol`, want: Payload{}},
		{name: "JSON array", data: `["a"]`, want: Payload{}},
		{name: "JSON string", data: `"title"`, want: Payload{}},
		{
			name: "all fields",
			data: `{"title":"Hello","body":"World","url":"/inbox?id=1"}`,
			want: Payload{Title: "Hello", Body: "World", URL: "/inbox?id=1"},
		},
		{name: "absolute URL", data: `{"url":"https://app.test/inbox"}`, want: Payload{URL: "https://app.test/inbox"}},
		{name: "trimmed", data: `{"title":"  Hi  "}`, want: Payload{Title: "Hi"}},
		{name: "non-string fields dropped", data: `{"title":42,"body":{"a":1},"url":null}`, want: Payload{}},
		{name: "unknown fields ignored", data: `{"title":"Hi","icon":"/x.png"}`, want: Payload{Title: "Hi"}},
		{name: "script URL dropped", data: `{"title":"Hi","url":"javascript:alert(1)"}`, want: Payload{Title: "Hi"}},
		{name: "protocol-relative URL dropped", data: `{"url":"//evil.test/"}`, want: Payload{}},
		{name: "relative URL dropped", data: `{"url":"inbox"}`, want: Payload{}},
		{name: "title too long", data: `{"title":"` + strings.Repeat("a", 257) + `","body":"ok"}`, want: Payload{Body: "ok"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePayload([]byte(tt.data)))
		})
	}
}

func TestNewNotification(t *testing.T) {
	defaults := NotificationDefaults{Title: "Default app name", Body: "You have a new notification", URL: "/", Icon: "/i.png", Badge: "/b.png"}

	n := NewNotification(Payload{}, defaults)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "Default app name", n.Title)
	assert.Equal(t, "You have a new notification", n.Body)
	assert.Equal(t, "/", n.Data.URL)
	assert.Equal(t, "/i.png", n.Icon)
	assert.Equal(t, "/b.png", n.Badge)

	n2 := NewNotification(Payload{Title: "T", Body: "B", URL: "/x"}, defaults)
	assert.NotEqual(t, n.ID, n2.ID)
	assert.Equal(t, "T", n2.Title)
	assert.Equal(t, "B", n2.Body)
	assert.Equal(t, "/x", n2.Data.URL)
}

func TestManager_OnPush(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m, reg := e.activeManager(t, "v1", "/")

	tests := []struct {
		name      string
		data      string
		wantTitle string
		wantBody  string
		wantURL   string
	}{
		{name: "defaults", data: `{}`, wantTitle: "Default app name", wantBody: "You have a new notification", wantURL: "/"},
		{name: "malformed", data: `{"title":`, wantTitle: "Default app name", wantBody: "You have a new notification", wantURL: "/"},
		{name: "custom", data: `{"title":"Build","body":"passed","url":"/builds/7"}`, wantTitle: "Build", wantBody: "passed", wantURL: "/builds/7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := m.OnPush(ctx, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, n.Title)
			assert.Equal(t, tt.wantBody, n.Body)
			assert.Equal(t, tt.wantURL, n.Data.URL)

			shown, err := e.tray.Get(ctx, n.ID)
			require.NoError(t, err)
			assert.Equal(t, n, shown)
		})
	}

	list, err := e.tray.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(tests))
	assert.Equal(t, len(tests), e.recorder.shown)

	t.Run("through the registration", func(t *testing.T) {
		n, err := reg.Push(ctx, []byte(`{"title":"via reg"}`))
		require.NoError(t, err)
		assert.Equal(t, "via reg", n.Title)
	})
}

func TestManager_OnNotificationClick(t *testing.T) {
	ctx := context.Background()

	t.Run("opens exactly one client", func(t *testing.T) {
		e := newEnv(t)
		m, _ := e.activeManager(t, "v1", "/")
		page := &fakeConn{}
		e.hub.Attach(origin+"/", page, "")
		require.NoError(t, e.hub.Claim(ctx))

		n, err := m.OnPush(ctx, []byte(`{"url":"/inbox"}`))
		require.NoError(t, err)

		client, err := m.OnNotificationClick(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, "/inbox", client.URL)
		assert.True(t, client.Focused)

		clients, err := e.hub.MatchAll(ctx)
		require.NoError(t, err)
		assert.Len(t, clients, 2)

		_, err = e.tray.Get(ctx, n.ID)
		assert.Equal(t, ErrNotificationNotFound, errors.Cause(err), "notification is closed")

		msgs := page.messages()
		require.NotEmpty(t, msgs)
		assert.Equal(t, clientsvc.Message{Type: clientsvc.MsgOpen, URL: "/inbox", ClientID: client.ID}, msgs[len(msgs)-1])
	})

	t.Run("focuses the client already there", func(t *testing.T) {
		e := newEnv(t)
		m, _ := e.activeManager(t, "v1", "/")
		home := &fakeConn{}
		inbox := &fakeConn{}
		e.hub.Attach(origin+"/", home, "")
		existing := e.hub.Attach(origin+"/inbox", inbox, "")

		n, err := m.OnPush(ctx, []byte(`{"url":"/inbox"}`))
		require.NoError(t, err)

		client, err := m.OnNotificationClick(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, client.ID)
		assert.True(t, client.Focused)

		clients, err := e.hub.MatchAll(ctx)
		require.NoError(t, err)
		assert.Len(t, clients, 2, "no new client opened")
		assert.Equal(t, []clientsvc.Message{{Type: clientsvc.MsgFocus, ClientID: existing.ID}}, inbox.messages())
	})

	t.Run("default URL", func(t *testing.T) {
		e := newEnv(t)
		m, _ := e.activeManager(t, "v1", "/")

		n, err := m.OnPush(ctx, []byte(`{}`))
		require.NoError(t, err)
		client, err := m.OnNotificationClick(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, "/", client.URL)
	})

	t.Run("already closed", func(t *testing.T) {
		e := newEnv(t)
		m, _ := e.activeManager(t, "v1", "/")

		n := NewNotification(Payload{URL: "/x"}, NotificationDefaults{URL: "/"})
		client, err := m.OnNotificationClick(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, "/x", client.URL)
	})

	t.Run("pages served through another host", func(t *testing.T) {
		tests := []struct {
			name      string
			pageURL   string
			target    string
			wantFocus bool
			wantOpen  string
		}{
			{name: "relative target", pageURL: "https://crm.example/inbox?tab=2", target: "/inbox?tab=2", wantFocus: true},
			{name: "origin target", pageURL: "https://crm.example/inbox", target: origin + "/inbox", wantFocus: true},
			{name: "other query", pageURL: "https://crm.example/inbox?tab=1", target: "/inbox?tab=2", wantOpen: "/inbox?tab=2"},
			{name: "external target", pageURL: "https://crm.example/inbox", target: "https://docs.example/inbox", wantOpen: "https://docs.example/inbox"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				e := newEnv(t)
				m, _ := e.activeManager(t, "v1", "/")
				page := e.hub.Attach(tt.pageURL, &fakeConn{}, "")

				n := NewNotification(Payload{URL: tt.target}, NotificationDefaults{URL: "/"})
				client, err := m.OnNotificationClick(ctx, n)
				require.NoError(t, err)

				clients, err := e.hub.MatchAll(ctx)
				require.NoError(t, err)
				if tt.wantFocus {
					assert.Equal(t, page.ID, client.ID)
					assert.Len(t, clients, 1)
				} else {
					assert.Equal(t, tt.wantOpen, client.URL)
					assert.Len(t, clients, 2)
				}
			})
		}
	})
}
