package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Entry is a response snapshot stored in a cache generation, keyed by request identity.
type Entry struct {
	Key      string      `json:"key"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"` // UTC
}

// RequestKey returns the shared identity of a request inside a generation: its URL without fragment.
func RequestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// credentialKey partitions RequestKey by the Authorization and Cookie headers of the request.
// Empty when the request carries neither.
func credentialKey(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	cookie := strings.Join(req.Header.Values("Cookie"), "; ")
	if auth == "" && cookie == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(auth + "\n" + cookie))
	return RequestKey(req) + "#credentials=" + hex.EncodeToString(sum[:16])
}

func storageKey(req *http.Request) string {
	if key := credentialKey(req); key != "" {
		return key
	}
	return RequestKey(req)
}

// isStorable reports whether a network response may be snapshotted for offline use.
// Session-setting and no-store responses never are; private ones only in the caller's partition.
func isStorable(req *http.Request, resp *http.Response) bool {
	if !isCacheable(resp.StatusCode) || len(resp.Header.Values("Set-Cookie")) > 0 {
		return false
	}
	cc := cacheControl(resp.Header)
	if cc["no-store"] {
		return false
	}
	return !cc["private"] || credentialKey(req) != ""
}

// cacheControl returns the set of Cache-Control directive names, lower-cased.
func cacheControl(h http.Header) map[string]bool {
	directives := make(map[string]bool)
	for _, v := range h.Values("Cache-Control") {
		for _, d := range strings.Split(v, ",") {
			name := strings.SplitN(d, "=", 2)[0]
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				directives[name] = true
			}
		}
	}
	return directives
}

func newEntry(key string, req *http.Request, resp *http.Response, body []byte, now time.Time) Entry {
	return Entry{
		Key:      key,
		URL:      req.URL.String(),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: now.UTC(),
	}
}

// Response rebuilds an independent *http.Response from the snapshot.
func (e Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Notification is a user-visible notification created from a push payload.
type Notification struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Icon      string           `json:"icon"`
	Badge     string           `json:"badge"`
	Data      NotificationData `json:"data"`
	CreatedAt time.Time        `json:"created_at"` // UTC
}

// NotificationData is opaque metadata consumed only by the click handler.
type NotificationData struct {
	URL string `json:"url"`
}

// NotificationDefaults are substituted for absent or invalid push payload fields.
type NotificationDefaults struct {
	Title string
	Body  string
	URL   string
	Icon  string
	Badge string
}

// Client is a browser context (window/tab) that may be controlled by the manager.
type Client struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Controlled bool   `json:"controlled"`
	Focused    bool   `json:"focused"`
}

// Source tells where a fetch was served from.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourcePassthrough Source = "passthrough"
	SourceNone        Source = "none"
)
