package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	"github.com/barazo-forum/barazo-api-sub003/antispam"
	"github.com/barazo-forum/barazo-api-sub003/directory"
	"github.com/barazo-forum/barazo-api-sub003/indexer"
	"github.com/barazo-forum/barazo-api-sub003/ingester"
	"github.com/barazo-forum/barazo-api-sub003/moderation"
	"github.com/barazo-forum/barazo-api-sub003/tracker"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting process", "error", err)
		os.Exit(-1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:    "barazo-ingester",
		Usage:   "federated forum stream ingester",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db-url",
			Usage:   "database connection string (sqlite:// or postgres://)",
			Value:   "sqlite://./barazo.db",
			EnvVars: []string{"BARAZO_DB_URL", "DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "upstream-host",
			Usage:   "event stream host to subscribe to",
			Value:   "https://stream.barazo.forum",
			EnvVars: []string{"BARAZO_UPSTREAM_HOST"},
		},
		&cli.StringFlag{
			Name:    "directory-host",
			Usage:   "identity directory host for DID resolution",
			Value:   "https://directory.barazo.forum",
			EnvVars: []string{"BARAZO_DIRECTORY_HOST"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection string for rate-limit windows and settings cache (optional; in-memory fallback)",
			EnvVars: []string{"BARAZO_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "address and port for the admin HTTP server",
			Value:   ":8200",
			EnvVars: []string{"BARAZO_BIND"},
		},
		&cli.BoolFlag{
			Name:    "auto-track",
			Usage:   "track a repo when it first produces or targets served content instead of requiring explicit registration",
			Value:   true,
			EnvVars: []string{"BARAZO_AUTO_TRACK"},
		},
		&cli.DurationFlag{
			Name:    "cursor-save-interval",
			Usage:   "how often to persist the stream cursor",
			Value:   5 * time.Second,
			EnvVars: []string{"BARAZO_CURSOR_SAVE_INTERVAL"},
		},
		&cli.IntFlag{
			Name:    "persist-cursor-every",
			Usage:   "persist the cursor after this many handled events",
			Value:   50,
			EnvVars: []string{"BARAZO_PERSIST_CURSOR_EVERY"},
		},
		&cli.DurationFlag{
			Name:    "replay-window",
			Usage:   "events older than this are treated as catch-up replay (no notification fan-out)",
			Value:   time.Minute,
			EnvVars: []string{"BARAZO_REPLAY_WINDOW"},
		},
		&cli.IntFlag{
			Name:    "max-initial-retries",
			Usage:   "dial attempts before the first successful connection is declared unrecoverable",
			Value:   5,
			EnvVars: []string{"BARAZO_MAX_INITIAL_RETRIES"},
		},
		&cli.Int64Flag{
			Name:    "new-account-days",
			Usage:   "account age below which stricter rate limits apply",
			Value:   7,
			EnvVars: []string{"BARAZO_NEW_ACCOUNT_DAYS"},
		},
		&cli.DurationFlag{
			Name:    "identity-cache-ttl",
			Usage:   "how long resolved identities stay cached",
			Value:   time.Hour,
			EnvVars: []string{"BARAZO_IDENTITY_CACHE_TTL"},
		},
		&cli.DurationFlag{
			Name:    "settings-cache-ttl",
			Usage:   "how long community settings stay cached",
			Value:   5 * time.Minute,
			EnvVars: []string{"BARAZO_SETTINGS_CACHE_TTL"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"BARAZO_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Action = runIngester

	return app.Run(args)
}

func runIngester(cctx *cli.Context) error {
	ctx, cancel := context.WithCancel(cctx.Context)
	defer cancel()
	logger := configLogger(cctx, os.Stdout)
	slog.SetDefault(logger)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	db, err := setupDatabase(cctx.String("db-url"), logger)
	if err != nil {
		return err
	}

	var windows antispam.WindowStore
	redisURL := cctx.String("redis-url")
	settingsLoader := antispam.NewSettingsLoader(db, nil, cctx.Duration("settings-cache-ttl"), logger.With("component", "settings"))
	if redisURL != "" {
		rws, err := antispam.NewRedisWindowStore(redisURL)
		if err != nil {
			return err
		}
		windows = rws
		settingsLoader = antispam.NewSettingsLoader(db, rws.Client, cctx.Duration("settings-cache-ttl"), logger.With("component", "settings"))
	} else {
		logger.Warn("no redis configured, using in-memory rate limit windows")
		windows = antispam.NewMemWindowStore()
	}

	resolver := directory.NewCachingResolver(
		directory.NewHTTPResolver(cctx.String("directory-host")),
		cctx.Duration("identity-cache-ttl"),
		50_000,
	)

	repos := tracker.NewStore(db)
	restored, err := repos.Restore(ctx)
	if err != nil {
		return err
	}
	logger.Info("restored tracked repos", "count", restored)

	gate := antispam.NewGate(settingsLoader, windows, logger.With("component", "antispam"))
	notifier := indexer.NewNotifier(db, logger.With("component", "notifications"))
	contentIndexer := indexer.NewIndexer(db, gate, notifier, logger.With("component", "indexer"))

	identity := &indexer.IdentityHandler{
		DB:       db,
		Logger:   logger.With("component", "identity"),
		Resolver: resolver,
		Tracker:  repos,
	}

	host := cctx.String("upstream-host")
	consumer := &ingester.Consumer{
		Host:   host,
		Logger: logger.With("component", "ingester"),
		Cursor: ingester.NewCursorStore(db, host),
		Records: &ingester.RecordHandler{
			DB:             db,
			Logger:         logger.With("component", "records"),
			Indexer:        contentIndexer,
			Identity:       identity,
			Resolver:       resolver,
			Tracker:        repos,
			NewAccountDays: cctx.Int64("new-account-days"),
			AutoTrack:      cctx.Bool("auto-track"),
		},
		InitialBackoff:     time.Second,
		MaxBackoff:         time.Minute,
		MaxInitialRetries:  cctx.Int("max-initial-retries"),
		PersistCursorEvery: cctx.Int("persist-cursor-every"),
		CursorSaveInterval: cctx.Duration("cursor-save-interval"),
		ReplayWindow:       cctx.Duration("replay-window"),
	}

	admin := &adminServer{
		logger:   logger,
		consumer: consumer,
		tracker:  repos,
		queue:    moderation.NewQueue(db, settingsLoader, logger.With("component", "moderation")),
		settings: settingsLoader,
	}

	svcErr := make(chan error, 1)

	go func() {
		logger.Info("starting stream consumer", "host", host)
		if err := consumer.Run(ctx); err != nil {
			svcErr <- err
		}
	}()

	go consumer.RunCursorSaver(ctx)

	go func() {
		logger.Info("starting admin HTTP server", "addr", cctx.String("bind"))
		if err := admin.Start(cctx.String("bind")); err != nil {
			svcErr <- err
		}
	}()

	logger.Info("startup complete")
	select {
	case <-signals:
		logger.Info("received shutdown signal")
	case err := <-svcErr:
		if err != nil {
			logger.Error("service error", "error", err)
		}
	}

	logger.Info("shutting down")
	consumer.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}

	if err := closeDatabase(db); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

func configLogger(cctx *cli.Context, writer *os.File) *slog.Logger {
	var level slog.Level
	switch cctx.String("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
}
