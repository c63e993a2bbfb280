package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/edgebridge/edgebridge/pkg/cache"
	"github.com/edgebridge/edgebridge/pkg/config"
	"github.com/edgebridge/edgebridge/pkg/identity"
	"github.com/edgebridge/edgebridge/pkg/keyset"
	"github.com/edgebridge/edgebridge/pkg/login"
	"github.com/edgebridge/edgebridge/pkg/observability"
	"github.com/edgebridge/edgebridge/pkg/token"
)

var configFile = flag.String("config", "", "Path to YAML config file (environment variables take precedence)")

func main() {
	flag.Parse()

	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := loadConfig(*configFile)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			logrus.WithError(cfgErr).Fatal("Invalid configuration; SSO bridge disabled")
		}
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)
	metrics := observability.NewMetrics(nil)

	// Shared cache backend. Redis keeps key material and sessions
	// consistent across instances; on failure the bridge degrades to
	// per-instance caching.
	var store cache.Cache
	redisCache, err := cache.NewRedisCache(cache.RedisConfig{
		URL:      cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		logrus.WithError(err).Warn("Redis unavailable, falling back to in-process cache")
		store = cache.NewMemoryCache()
	} else {
		store = redisCache
		defer redisCache.Close()
	}

	fetcher := keyset.NewFetcher(cfg.Access.TeamName, cfg.Access.IssuerDomain, cfg.Access.FetchTimeout)
	keys := keyset.NewClient(store, fetcher, keyset.ClientOptions{
		FreshTTL:  cfg.Access.KeyFreshTTL,
		MarkerTTL: cfg.Access.KeyMarkerTTL,
		Logger:    logger,
		Metrics:   metrics,
	})

	users, cleanup, err := newUserStore(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize user store")
	}
	defer cleanup()

	resolver := identity.NewResolver(users, identity.ResolverOptions{
		AutoProvision: cfg.Provision.AutoProvision,
		DefaultRole:   cfg.Provision.DefaultRole,
		FallbackRole:  cfg.Provision.FallbackRole,
		Logger:        logger,
		Metrics:       metrics,
	})

	verifier := token.NewVerifier(token.Audience(cfg.Access.Audiences), cfg.Access.Leeway)
	sessions := login.NewCacheSessions(store, "", login.DefaultSessionTTL, true)

	establisher := login.NewEstablisher(keys, verifier, resolver, sessions, login.Options{
		CookieName:      cfg.Access.CookieName,
		MaxAttempts:     cfg.Access.MaxAttempts,
		DefaultRedirect: cfg.Access.DefaultRedirect,
		Logger:          logger,
		Metrics:         metrics,
	})
	bridge := login.NewBridge(establisher, sessions, keys, login.BridgeOptions{
		CookieName:       cfg.Access.CookieName,
		DefaultRedirect:  cfg.Access.DefaultRedirect,
		FallbackLoginURL: cfg.Access.FallbackLoginURL,
		Logger:           logger,
	})

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	bridge.Register(router)
	router.HandleFunc("/healthz", healthHandler(redisCache)).Methods(http.MethodGet)
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	// Background key warming keeps the shared cache fresh so login
	// requests rarely pay for a fetch.
	var scheduler *cron.Cron
	if cfg.Access.KeyRefreshSchedule != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Access.KeyRefreshSchedule, func() {
			if _, err := keys.Keys(context.Background(), true); err != nil {
				logrus.WithError(err).Warn("Scheduled key refresh failed")
			}
		})
		if err != nil {
			logrus.WithError(err).Fatal("Invalid key refresh schedule")
		}
		scheduler.Start()
		logrus.WithField("schedule", cfg.Access.KeyRefreshSchedule).Info("Key refresh scheduler started")
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.WithField("addr", server.Addr).Info("Edgebridge listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("Shutting down gracefully...")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Server shutdown failed")
	}
	if err := bridge.Close(ctx); err != nil {
		logrus.WithError(err).Warn("Key cache flush failed")
	}

	logrus.Info("Edgebridge stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadConfig()
}

// newUserStore opens the Postgres user store when configured and falls
// back to the in-memory store otherwise.
func newUserStore(cfg *config.Config) (identity.UserStore, func(), error) {
	if cfg.Postgres.URL == "" {
		logrus.Warn("No Postgres URL configured, using in-memory user store")
		roles := []string{cfg.Provision.DefaultRole}
		if cfg.Provision.FallbackRole != cfg.Provision.DefaultRole {
			roles = append(roles, cfg.Provision.FallbackRole)
		}
		return identity.NewMemoryStore(roles...), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return identity.NewPostgresStore(db), func() { db.Close() }, nil
}

func healthHandler(redis *cache.RedisCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redis != nil {
			if err := redis.Ping(r.Context()); err != nil {
				http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
