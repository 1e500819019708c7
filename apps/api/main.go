package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/swcache/apps/api/echo"
	"github.com/trezcool/swcache/core"
	"github.com/trezcool/swcache/core/cache"
	clientsvc "github.com/trezcool/swcache/services/clients"
	emailsvc "github.com/trezcool/swcache/services/email"
	logsvc "github.com/trezcool/swcache/services/logger"
	metricsvc "github.com/trezcool/swcache/services/metrics"
	notifysvc "github.com/trezcool/swcache/services/notify"
	inmemstore "github.com/trezcool/swcache/storage/cachestore/inmem"
	"github.com/trezcool/swcache/storage/cachestore/redisstore"
	"github.com/trezcool/swcache/storage/cachestore/sqlstore"
	"github.com/trezcool/swcache/storage/database"
)

const (
	storeMemory   = "memory"
	storeDatabase = "database"
	storeRedis    = "redis"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	storeLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	storeLogger.Enable(!conf.Debug)

	// set up the cache store
	store, closeStore, err := setUpStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s store: %v", conf.Cache.Store, err), err)
	}
	defer func() {
		if err = closeStore.Close(); err != nil {
			storeLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	tray := notifysvc.NewTray()
	var notifier cache.Notifier = tray
	if len(conf.Notification.EmailTo) > 0 {
		notifier = notifysvc.NewEmailRelay(tray, mailSvc, conf.Origin.URL, conf.Notification.EmailTo...)
	}
	hub := clientsvc.NewHub(logger)
	recorder := metricsvc.NewRecorder("swcache")

	network := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: conf.Origin.Timeout}).DialContext,
		ResponseHeaderTimeout: conf.Origin.Timeout,
		MaxIdleConnsPerHost:   16,
	}
	reg := cache.NewRegistration(network, logger)

	upd := newUpdater(conf, logger, reg, func() cache.Options {
		return cache.Options{
			Version:      conf.Cache.Version,
			Origin:       conf.Origin.URL,
			StaticAssets: conf.Cache.StaticAssets,
			Store:        store,
			Network:      network,
			Notifier:     notifier,
			Clients:      hub,
			Logger:       logger,
			Recorder:     recorder,
			Defaults: cache.NotificationDefaults{
				Title: conf.Notification.DefaultTitle,
				Body:  conf.Notification.DefaultBody,
				URL:   conf.Notification.DefaultURL,
				Icon:  conf.Notification.Icon,
				Badge: conf.Notification.Badge,
			},
		}
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, cache %q", conf.Build, conf.Cache.Version))
	defer logger.Info("Application stopped")

	if err = upd.Start(context.Background()); err != nil {
		logger.Fatal(fmt.Sprintf("starting updater: %v", err), err)
	}
	defer upd.Stop()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("cache").Set(conf.Cache.Version)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server, err := echoapi.NewServer(echoapi.Options{
		Conf:         conf,
		Logger:       logger,
		Registration: reg,
		Store:        store,
		Notifier:     tray,
		Hub:          hub,
		Metrics:      recorder.Handler(),
		Update:       upd.Update,
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("creating server: %v", err), err)
	}

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// setUpStore returns the configured cache store and the closer of its backing connection.
func setUpStore(conf *core.Config) (cache.Store, io.Closer, error) {
	switch conf.Cache.Store {
	case storeMemory:
		return inmemstore.New(), closerFunc(func() error { return nil }), nil

	case storeDatabase:
		db, err := database.Setup(conf)
		if err != nil {
			return nil, nil, err
		}
		return sqlstore.New(db), db, nil

	case storeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, errors.Wrap(err, "pinging redis")
		}
		return redisstore.New(client, conf.Redis.Prefix), client, nil

	default:
		return nil, nil, errors.Errorf("unknown cache store %q", conf.Cache.Store)
	}
}
