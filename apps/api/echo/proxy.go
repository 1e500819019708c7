package echoapi

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/swcache/core"
)

// newProxy forwards every request to the origin through `transport` (the cache registration).
// The outbound URL is absolute, so it doubles as the cache key of GET requests.
func newProxy(origin *url.URL, transport http.RoundTripper, logger core.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = origin.Scheme
			req.URL.Host = origin.Host
			req.URL.Path = singleJoiningSlash(origin.Path, req.URL.Path)
			req.URL.RawPath = ""
			req.Host = origin.Host
			if _, ok := req.Header["User-Agent"]; !ok {
				req.Header.Set("User-Agent", "") // explicitly disable the default User-Agent
			}
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			logger.Warn(fmt.Sprintf("proxying %s %s: %v", req.Method, req.URL, err), err)
			w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
			w.WriteHeader(errOfflineNoCached.Code)
			_, _ = fmt.Fprintf(w, "{\"error\":%q}\n", errOfflineNoCached.Message)
		},
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
