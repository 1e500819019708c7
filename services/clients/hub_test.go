package clientsvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/swcache/core/cache"
	"github.com/trezcool/swcache/tests"
)

type fakeConn struct {
	mutex  sync.Mutex
	sent   []Message
	fail   bool
	closed bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, v.(Message))
	return nil
}

func (c *fakeConn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() []Message {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]Message(nil), c.sent...)
}

func newHub(t *testing.T) *Hub {
	conf := testutil.NewConfig(t)
	return NewHub(testutil.NewLogger(conf))
}

func TestHub_Claim(t *testing.T) {
	ctx := context.Background()
	hub := newHub(t)

	ok := &fakeConn{}
	broken := &fakeConn{fail: true}
	a := hub.Attach("https://app.test/", ok, "")
	b := hub.Attach("https://app.test/docs", broken, "")
	assert.False(t, a.Controlled)

	require.NoError(t, hub.Claim(ctx))

	all, err := hub.MatchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "broken client detached")
	assert.Equal(t, a.ID, all[0].ID)
	assert.True(t, all[0].Controlled)
	assert.Equal(t, []Message{{Type: MsgClaim, ClientID: a.ID}}, ok.messages())
	assert.True(t, broken.closed)

	_, err = hub.Focus(ctx, b.ID)
	assert.Equal(t, cache.ErrClientNotFound, err)

	// late pages are controlled right away
	c := hub.Attach("https://app.test/late", &fakeConn{}, "")
	assert.True(t, c.Controlled)
}

func TestHub_MatchAll_order(t *testing.T) {
	ctx := context.Background()
	hub := newHub(t)

	var ids []string
	for _, u := range []string{"https://app.test/1", "https://app.test/2", "https://app.test/3"} {
		ids = append(ids, hub.Attach(u, &fakeConn{}, "").ID)
	}
	hub.Detach(ids[1])

	all, err := hub.MatchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ids[0], all[0].ID)
	assert.Equal(t, ids[2], all[1].ID)
}

func TestHub_Focus(t *testing.T) {
	ctx := context.Background()
	hub := newHub(t)

	aConn, bConn := &fakeConn{}, &fakeConn{}
	a := hub.Attach("https://app.test/a", aConn, "")
	b := hub.Attach("https://app.test/b", bConn, "")

	got, err := hub.Focus(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Focused)
	assert.Equal(t, []Message{{Type: MsgFocus, ClientID: b.ID}}, bConn.messages())
	assert.Empty(t, aConn.messages())

	_, err = hub.Focus(ctx, a.ID)
	require.NoError(t, err)
	all, _ := hub.MatchAll(ctx)
	assert.True(t, all[0].Focused)
	assert.False(t, all[1].Focused)
}

func TestHub_OpenWindow(t *testing.T) {
	ctx := context.Background()
	hub := newHub(t)

	opener := &fakeConn{}
	hub.Attach("https://app.test/", opener, "")
	require.NoError(t, hub.Claim(ctx))

	opened, err := hub.OpenWindow(ctx, "https://app.test/inbox")
	require.NoError(t, err)
	assert.True(t, opened.Focused)
	assert.True(t, opened.Controlled)
	assert.Equal(t, "https://app.test/inbox", opened.URL)

	msgs := opener.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Type: MsgOpen, URL: "https://app.test/inbox", ClientID: opened.ID}, msgs[1])

	// the new page attaches with the pending id
	page := &fakeConn{}
	adopted := hub.Attach("https://app.test/inbox?x=1", page, opened.ID)
	assert.Equal(t, opened.ID, adopted.ID)
	assert.Equal(t, "https://app.test/inbox?x=1", adopted.URL)

	all, err := hub.MatchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHub_ServeWS(t *testing.T) {
	ctx := context.Background()
	hub := newHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?url=" + "https://app.test/"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	waitFor := func(cond func([]cache.Client) bool) []cache.Client {
		var all []cache.Client
		assert.Eventually(t, func() bool {
			all, _ = hub.MatchAll(ctx)
			return cond(all)
		}, time.Second, 10*time.Millisecond)
		return all
	}

	all := waitFor(func(all []cache.Client) bool { return len(all) == 1 })
	require.Len(t, all, 1)
	assert.Equal(t, "https://app.test/", all[0].URL)

	// claim reaches the page
	require.NoError(t, hub.Claim(ctx))
	var msg Message
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, Message{Type: MsgClaim, ClientID: all[0].ID}, msg)

	// navigation updates the client URL
	require.NoError(t, ws.WriteJSON(Message{Type: MsgNavigate, URL: "https://app.test/docs"}))
	waitFor(func(all []cache.Client) bool { return len(all) == 1 && all[0].URL == "https://app.test/docs" })

	// closing detaches
	require.NoError(t, ws.Close())
	waitFor(func(all []cache.Client) bool { return len(all) == 0 })
}
