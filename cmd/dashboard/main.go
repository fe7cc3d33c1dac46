package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"schooladmin/internal/apiclient"
	"schooladmin/internal/auth"
	"schooladmin/internal/cache"
	"schooladmin/internal/config"
	"schooladmin/internal/handler"
	"schooladmin/internal/httpmiddleware"
	"schooladmin/internal/logging"
	"schooladmin/web"
)

const sessionName = "schooladmin_session"

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("refusing to start", zap.Error(err))
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	var (
		backend cache.Cache
		memory  *cache.Memory
		health  func(ctx context.Context) error
	)
	if cfg.CacheBackend == "redis" {
		rc := cache.NewRedis(cfg.RedisAddr, "schooladmin")
		defer func() { _ = rc.Close() }()
		if !rc.Healthy(context.Background()) {
			logger.Warn("redis not reachable, cache lookups will fall through", zap.String("addr", cfg.RedisAddr))
		}
		backend = rc
		health = func(ctx context.Context) error {
			if !rc.Healthy(ctx) {
				return errors.New("redis unreachable")
			}
			return nil
		}
	} else {
		memory = cache.NewMemory()
		backend = memory
	}
	query := cache.NewQuery(backend, cfg.CacheTTL, logger)
	query.LoadTimeout = cfg.APITimeout

	api := apiclient.New(cfg.APIURL, cfg.APITimeout, logger)
	api.Invalidator = query
	tokens := auth.NewTokenClient(apiclient.New(cfg.AuthURL, cfg.APITimeout, logger))

	views, err := handler.ParseViews(web.Templates())
	if err != nil {
		return err
	}
	h := handler.New(handler.Deps{
		Log:             logger,
		API:             api,
		Query:           query,
		Tokens:          tokens,
		VerifyKey:       cfg.JWTVerifyKey,
		Views:           views,
		DefaultPageSize: cfg.DefaultPageSize,
		Health:          health,
	})
	guard := &auth.Guard{Tokens: tokens, VerifyKey: cfg.JWTVerifyKey, Log: logger}

	store := cookie.NewStore(cfg.SessionKeys())
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		Secure:   cfg.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, limitKey)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.RequestID())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", httpmiddleware.RequestIDHeader, httpmiddleware.CSRFHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(httpmiddleware.SecurityHeaders(cfg.Production()))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(httpmiddleware.CSRF(cfg.CSRFKey(), cfg.SecureCookies))
	r.Use(limiter.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.StaticFS("/static", http.FS(web.Static()))
	h.Register(r, guard.RequireSession())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				limiter.Sweep()
				if memory != nil {
					if n := memory.Sweep(); n > 0 {
						logger.Debug("expired cache entries dropped", zap.Int("count", n))
					}
				}
			}
		}
	}()

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("api", cfg.APIURL), zap.String("cache", cfg.CacheBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// limitKey charges signed-in users by account and everyone else by address.
func limitKey(c *gin.Context) string {
	if s, ok := auth.Load(c); ok && s.User.ID != "" {
		return "user:" + s.User.ID
	}
	return httpmiddleware.ClientIP(c)
}
