package clientsvc

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/trezcool/swcache/core"
	"github.com/trezcool/swcache/core/cache"
)

// message types exchanged with the pages
const (
	MsgClaim    = "claim"    // server -> page: the page is now controlled
	MsgFocus    = "focus"    // server -> page: bring the window to front
	MsgOpen     = "open"     // server -> page: window.open(url); the new page attaches with ?client_id=
	MsgNavigate = "navigate" // page -> server: the page location changed
)

type Message struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// Conn is the page side of a browser context. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type client struct {
	cache.Client
	seq int

	wmu  sync.Mutex
	conn Conn // nil while an opened window has not attached yet
}

func (c *client) send(msg Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteJSON(msg)
}

// Hub tracks the browser contexts of the scope and implements cache.Clients.
type Hub struct {
	logger   core.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	seq     int
	claimed bool
}

var _ cache.Clients = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Attach registers a connected page. A non-empty clientID adopts the pending context created by OpenWindow.
func (h *Hub) Attach(url string, conn Conn, clientID string) cache.Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok && clientID != "" {
		c.wmu.Lock()
		c.conn = conn
		c.wmu.Unlock()
		if url != "" {
			c.URL = url
		}
		c.Controlled = h.claimed
		return c.Client
	}

	h.seq++
	c := &client{
		Client: cache.Client{ID: uuid.New().String(), URL: url, Controlled: h.claimed},
		seq:    h.seq,
		conn:   conn,
	}
	h.clients[c.ID] = c
	return c.Client
}

func (h *Hub) Detach(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if ok && c.conn != nil {
		_ = c.conn.Close()
	}
}

func (h *Hub) navigate(id, url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok && url != "" {
		c.URL = url
	}
}

func (h *Hub) sorted() []*client {
	list := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return list
}

func (h *Hub) Claim(_ context.Context) error {
	h.mu.Lock()
	h.claimed = true
	list := h.sorted()
	for _, c := range list {
		c.Controlled = true
	}
	h.mu.Unlock()

	for _, c := range list {
		if err := c.send(Message{Type: MsgClaim, ClientID: c.ID}); err != nil {
			h.logger.Warn(fmt.Sprintf("claiming client %s: %v", c.ID, err), err)
			h.Detach(c.ID)
		}
	}
	return nil
}

func (h *Hub) MatchAll(_ context.Context) ([]cache.Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.sorted()
	all := make([]cache.Client, 0, len(list))
	for _, c := range list {
		all = append(all, c.Client)
	}
	return all, nil
}

func (h *Hub) Focus(_ context.Context, id string) (cache.Client, error) {
	h.mu.Lock()
	target, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return cache.Client{}, cache.ErrClientNotFound
	}
	for _, c := range h.clients {
		c.Focused = c == target
	}
	focused := target.Client
	h.mu.Unlock()

	if err := target.send(Message{Type: MsgFocus, ClientID: id}); err != nil {
		return focused, errors.Wrap(err, "sending focus")
	}
	return focused, nil
}

// OpenWindow registers a new focused context at url and asks the most recent controlled page to open it.
func (h *Hub) OpenWindow(_ context.Context, url string) (cache.Client, error) {
	h.mu.Lock()
	h.seq++
	opened := &client{
		Client: cache.Client{ID: uuid.New().String(), URL: url, Controlled: h.claimed, Focused: true},
		seq:    h.seq,
	}
	var opener *client
	for _, c := range h.sorted() {
		c.Focused = false
		if c.conn != nil && c.Controlled {
			opener = c
		}
	}
	h.clients[opened.ID] = opened
	h.mu.Unlock()

	if opener != nil {
		if err := opener.send(Message{Type: MsgOpen, URL: url, ClientID: opened.ID}); err != nil {
			h.logger.Warn(fmt.Sprintf("asking client %s to open %s: %v", opener.ID, url, err), err)
		}
	}
	return opened.Client, nil
}

// ServeWS upgrades the request and keeps the page attached until the connection closes.
// Query params: url (current page location), client_id (set by pages opened through OpenWindow).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}
	c := h.Attach(r.URL.Query().Get("url"), ws, r.URL.Query().Get("client_id"))
	defer h.Detach(c.ID)

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn(fmt.Sprintf("client %s: %v", c.ID, err), err)
			}
			return nil
		}
		if msg.Type == MsgNavigate {
			h.navigate(c.ID, msg.URL)
		}
	}
}
