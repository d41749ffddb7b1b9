package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/cinelog/internal/app"
	"github.com/dropDatabas3/cinelog/internal/config"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/observability/metrics"

	// registra postgres, sqlite y memory
	_ "github.com/dropDatabas3/cinelog/internal/store/adapters/dal"
)

// version se inyecta con -ldflags "-X main.version=…"
var version = "dev"

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $CINELOG_CONFIG o configs/config.yaml)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
		flagPrint      = flag.Bool("print-config", false, "imprime config efectiva y termina")
	)
	flag.Parse()

	if *flagEnvFile != "" && fileExists(*flagEnvFile) {
		if err := godotenv.Load(*flagEnvFile); err != nil {
			fmt.Fprintf(os.Stderr, "dotenv: %v\n", err)
		}
	}

	cfgPath := *flagConfigPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CINELOG_CONFIG")
	}
	if cfgPath == "" && fileExists("configs/config.yaml") {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *flagPrint {
		printConfigSummary(cfg)
		return
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "cinelog",
		Version:     version,
	})
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.L().Error("service stopped", logger.Err(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logger.L()

	c, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("close", logger.Err(err))
		}
	}()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler, err = metrics.Register(metrics.Config{Pool: c.PgPool})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	handler, err := c.Handler(version, metricsHandler)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("service up",
			logger.String("addr", cfg.Server.Addr),
			logger.Driver(cfg.Storage.Driver),
			logger.String("cache", cfg.Cache.Kind),
			logger.Bool("rate_limit", cfg.Rate.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func printConfigSummary(c *config.Config) {
	masked := "(vacía)"
	if c.Auth.SecretboxKey != "" {
		masked = "****"
	}
	fmt.Printf(`cinelog config
  env=%s log_level=%s
  server.addr=%s public_https=%t trusted_proxies=%v
  storage.driver=%s migrate=%t
  cache.kind=%s redis.addr=%s
  auth.cookies=%s,%s,%s samesite=%s token_ttl=%s device_ttl=%s
  auth.secretbox_key=%s
  rate.enabled=%t login=%d/%s totp=%d/%s recovery=%d/%s
  metrics.enabled=%t
`,
		c.App.Env, c.App.LogLevel,
		c.Server.Addr, c.Server.PublicHTTPS, c.Server.TrustedProxies,
		c.Storage.Driver, c.Storage.Migrate,
		c.Cache.Kind, c.Cache.Redis.Addr,
		c.Auth.SessionCookie, c.Auth.BearerCookie, c.Auth.DeviceCookie, c.Auth.SameSite, c.Auth.TokenTTL, c.Auth.DeviceTTL,
		masked,
		c.Rate.Enabled, c.Rate.Login.Limit, c.Rate.Login.Window, c.Rate.TOTP.Limit, c.Rate.TOTP.Window,
		c.Rate.Recovery.Limit, c.Rate.Recovery.Window,
		c.Metrics.Enabled,
	)
}
