package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		RollbarToken string

		DefaultFromEmail string
		SendgridApiKey   string

		Server       ServerConfig
		Database     DatabaseConfig
		Redis        RedisConfig
		Cache        CacheConfig
		Origin       OriginConfig
		Notification NotificationConfig
	}

	ServerConfig struct {
		Host               string
		Port               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		UpdateSchedule     string // cron spec of the registration update check
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string // database name (postgres) or file path (sqlite)
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}

	CacheConfig struct {
		Version      string   // cache generation name; bump it to invalidate all offline content
		Store        string   // memory | database | redis
		StaticAssets []string // ordered, fetched at install time
	}

	OriginConfig struct {
		URL     string
		Timeout time.Duration
	}

	NotificationConfig struct {
		DefaultTitle string
		DefaultBody  string
		DefaultURL   string
		Icon         string
		Badge        string
		EmailTo      []string // mirror shown notifications by email when set
	}
)

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, s.Port)
}

func (d DatabaseConfig) Address() string {
	return net.JoinHostPort(d.Host, d.Port)
}

func (c *Config) FromEmail() string {
	return c.DefaultFromEmail
}

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Env vars are prefixed by the uppercase env name, e.g. DEV_CACHE_VERSION.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("appName", "swcache")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.updateSchedule", "@every 1m")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "swcache")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "swcache")

	v.SetDefault("cache.version", "swcache-v1")
	v.SetDefault("cache.store", "memory")
	v.SetDefault("cache.staticAssets", []string{
		"/",
		"/index.html",
		"/manifest.json",
		"/icons/icon-192x192.png",
		"/icons/icon-512x512.png",
	})

	v.SetDefault("origin.url", "http://localhost:3000")
	v.SetDefault("origin.timeout", 15*time.Second)

	v.SetDefault("notification.defaultTitle", "Default app name")
	v.SetDefault("notification.defaultBody", "You have a new notification")
	v.SetDefault("notification.defaultURL", "/")
	v.SetDefault("notification.icon", "/icons/icon-192x192.png")
	v.SetDefault("notification.badge", "/icons/icon-72x72.png")
	v.SetDefault("notification.emailTo", []string{})

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Port:               v.GetString("server.port"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			UpdateSchedule:     v.GetString("server.updateSchedule"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
		},
		Cache: CacheConfig{
			Version:      v.GetString("cache.version"),
			Store:        v.GetString("cache.store"),
			StaticAssets: v.GetStringSlice("cache.staticAssets"),
		},
		Origin: OriginConfig{
			URL:     v.GetString("origin.url"),
			Timeout: v.GetDuration("origin.timeout"),
		},
		Notification: NotificationConfig{
			DefaultTitle: v.GetString("notification.defaultTitle"),
			DefaultBody:  v.GetString("notification.defaultBody"),
			DefaultURL:   v.GetString("notification.defaultURL"),
			Icon:         v.GetString("notification.icon"),
			Badge:        v.GetString("notification.badge"),
			EmailTo:      v.GetStringSlice("notification.emailTo"),
		},
	}
}
