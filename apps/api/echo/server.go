package echoapi

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/swcache/core"
	"github.com/trezcool/swcache/core/cache"
	clientsvc "github.com/trezcool/swcache/services/clients"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool

		Registration *cache.Registration
		Store        cache.Store
		Notifier     cache.Notifier
		Hub          *clientsvc.Hub
		Metrics      http.Handler // optional

		// Update registers a manager for the configured version unless it is already active.
		Update func(ctx context.Context) error
	}

	Server struct {
		opts     Options
		origin   *url.URL
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(opts Options) (*Server, error) {
	origin, err := url.Parse(opts.Conf.Origin.URL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, errors.Errorf("invalid origin URL %q", opts.Conf.Origin.URL)
	}

	s := &Server{
		opts:     opts,
		origin:   origin,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s, nil
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	root := s.app.Group("")
	jwt := middleware.JWTWithConfig(jwtConfig(conf.SecretKey))

	registerWorkerAPI(root, jwt, &workerApi{
		version:  conf.Cache.Version,
		reg:      s.opts.Registration,
		store:    s.opts.Store,
		notifier: s.opts.Notifier,
		hub:      s.opts.Hub,
		update:   s.opts.Update,
	})
	if s.opts.Metrics != nil {
		s.app.GET("/_sw/metrics", echo.WrapHandler(s.opts.Metrics))
	}

	// everything else is served by the origin, through the cache registration
	s.app.Any("/*", echo.WrapHandler(newProxy(s.origin, s.opts.Registration, s.opts.Logger)))
}

func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)

	s.opts.Logger.Info("API listening on " + s.opts.Conf.Server.Address())
	if err := s.app.Start(s.opts.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

// Errors returns the channel on which fatal listener errors are sent.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal returns the channel on which OS signals (and internal shutdown requests) are sent.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
