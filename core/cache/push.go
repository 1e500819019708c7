package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/swcache/core"
)

// Payload is the push payload contract. Every field is optional.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

var payloadRules = map[string]string{
	"title": "max=256",
	"body":  "max=4096",
	"url":   "max=2048,navurl",
}

// ParsePayload decodes a push payload leniently: a payload that cannot be parsed at all
// yields an empty record, and fields that are not strings or fail validation are dropped.
func ParsePayload(data []byte) Payload {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}
	}
	field := func(name string) string {
		msg, ok := raw[name]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return ""
		}
		s = core.CleanString(s)
		if s == "" || core.Validate.Var(s, payloadRules[name]) != nil {
			return ""
		}
		return s
	}
	return Payload{
		Title: field("title"),
		Body:  field("body"),
		URL:   field("url"),
	}
}

// NewNotification applies defaults to the absent payload fields.
func NewNotification(p Payload, defaults NotificationDefaults) Notification {
	n := Notification{
		ID:        uuid.New().String(),
		Title:     p.Title,
		Body:      p.Body,
		Icon:      defaults.Icon,
		Badge:     defaults.Badge,
		Data:      NotificationData{URL: p.URL},
		CreatedAt: nowFunc().UTC(),
	}
	if n.Title == "" {
		n.Title = defaults.Title
	}
	if n.Body == "" {
		n.Body = defaults.Body
	}
	if n.Data.URL == "" {
		n.Data.URL = defaults.URL
	}
	return n
}

// OnPush displays a notification for the payload and returns once it is shown.
func (m *Manager) OnPush(ctx context.Context, data []byte) (Notification, error) {
	n := NewNotification(ParsePayload(data), m.opts.Defaults)
	if err := m.opts.Notifier.Show(ctx, n); err != nil {
		return Notification{}, errors.Wrap(err, "showing notification")
	}
	m.opts.Recorder.NotificationShown()
	m.opts.Logger.Debug(fmt.Sprintf("notification %s shown", n.ID))
	return n, nil
}

// OnNotificationClick dismisses the notification, then focuses the client already at its target URL
// or opens exactly one new client there.
//
// Targets on the origin are compared by path and query: pages report the location they were served
// from (this host, not the origin), so the scheme and host of a client URL carry no information.
func (m *Manager) OnNotificationClick(ctx context.Context, n Notification) (Client, error) {
	if err := m.opts.Notifier.Close(ctx, n.ID); err != nil && errors.Cause(err) != ErrNotificationNotFound {
		return Client{}, errors.Wrap(err, "closing notification")
	}

	target := n.Data.URL
	if target == "" {
		target = m.opts.Defaults.URL
	}
	target, inScope := m.scopeTarget(target)

	clients, err := m.opts.Clients.MatchAll(ctx)
	if err != nil {
		return Client{}, errors.Wrap(err, "matching clients")
	}
	for _, c := range clients {
		current := c.URL
		if inScope {
			current = scopePath(c.URL)
		}
		if current == target {
			c, err = m.opts.Clients.Focus(ctx, c.ID)
			return c, errors.Wrap(err, "focusing client")
		}
	}
	c, err := m.opts.Clients.OpenWindow(ctx, target)
	return c, errors.Wrap(err, "opening window")
}

// scopeTarget reduces a target on the origin to its path and query; other targets are kept whole.
func (m *Manager) scopeTarget(target string) (string, bool) {
	u, err := url.Parse(target)
	if err != nil {
		return target, false
	}
	if u.IsAbs() && !strings.EqualFold(u.Host, m.origin.Host) {
		return target, false
	}
	return scopePath(m.origin.ResolveReference(u).String()), true
}

// scopePath returns the path and query of a URL, "/" for an empty path.
func scopePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
