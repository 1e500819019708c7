package metricsvc

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/swcache/core/cache"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder("swcache")

	r.FetchServed(cache.SourceNetwork)
	r.FetchServed(cache.SourceNetwork)
	r.FetchServed(cache.SourceCache)
	r.InstallFinished("v1", false)
	r.InstallFinished("v1", true)
	r.GenerationsPurged(2)
	r.GenerationsPurged(0)
	r.NotificationShown()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_sw/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{
		`swcache_cache_fetches_total{source="network"} 2`,
		`swcache_cache_fetches_total{source="cache"} 1`,
		`swcache_cache_installs_total{success="false",version="v1"} 1`,
		`swcache_cache_installs_total{success="true",version="v1"} 1`,
		"swcache_cache_generations_purged_total 2",
		"swcache_push_notifications_shown_total 1",
	} {
		assert.Contains(t, body, want)
	}
}
