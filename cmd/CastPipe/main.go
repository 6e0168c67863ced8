package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BTreeMap/CastPipe/internal/api"
	"github.com/BTreeMap/CastPipe/internal/dedup"
	"github.com/BTreeMap/CastPipe/internal/dispatch"
	"github.com/BTreeMap/CastPipe/internal/farcaster"
	"github.com/BTreeMap/CastPipe/internal/genai"
	"github.com/BTreeMap/CastPipe/internal/lockfile"
	"github.com/BTreeMap/CastPipe/internal/poller"
	"github.com/BTreeMap/CastPipe/internal/replies"
	"github.com/BTreeMap/CastPipe/internal/scheduler"
	"github.com/BTreeMap/CastPipe/internal/store"
	"github.com/BTreeMap/CastPipe/internal/trace"
	"github.com/BTreeMap/CastPipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CastPipe state data
	DefaultStateDir = "/var/lib/castpipe"
	// DefaultHandledFileName is the default JSON snapshot filename for the file marker tier
	DefaultHandledFileName = "handled.json"
	// ShutdownTimeout bounds graceful HTTP shutdown
	ShutdownTimeout = 10 * time.Second
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Hold the state directory lock for the lifetime of the process so two
	// instances never share marker state.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build the two-tier marker store: best available remote tier plus the
	// always-present file tier.
	st := buildStore(flags)
	defer st.Close()

	// Farcaster client is the one hard requirement.
	client, err := farcaster.NewClient(
		farcaster.WithAPIKey(*flags.neynarKey),
		farcaster.WithSignerUUID(*flags.signerUUID),
		farcaster.WithFID(int64(*flags.fid)),
	)
	if err != nil {
		slog.Error("Failed to create Farcaster client", "error", err)
		os.Exit(1)
	}

	tracer := trace.NewTracer(0)
	gate := dedup.NewGate(st)
	responder := buildResponder(flags)
	dispatcher := dispatch.NewDispatcher(gate, responder, client, tracer)

	p := poller.New(client, gate, dispatcher, st, tracer, poller.Config{
		Interval:    flags.pollInterval,
		MinInterval: flags.pollMinInterval,
		MaxInterval: flags.pollMaxInterval,
		Disabled:    *flags.disablePolling,
	})
	p.Start(ctx)
	defer p.Stop()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if *flags.dailyCron != "" {
		err := sched.AddJob(*flags.dailyCron, func() {
			jobCtx, jobCancel := context.WithTimeout(context.Background(), time.Minute)
			defer jobCancel()
			if _, err := client.PublishCast(jobCtx, replies.DailyGreeting()); err != nil {
				slog.Error("Daily greeting cast failed", "error", err)
				return
			}
			slog.Info("Daily greeting cast published")
		})
		if err != nil {
			slog.Error("Failed to schedule daily greeting", "error", err, "cron", *flags.dailyCron)
			os.Exit(1)
		}
	}

	server := api.NewServer(p, dispatcher, st, tracer,
		api.WithAddr(*flags.apiAddr),
		api.WithAdminToken(*flags.adminToken),
		api.WithBotFID(int64(*flags.fid)),
	)

	slog.Info("Bootstrapping CastPipe", "fid", *flags.fid, "api_addr", *flags.apiAddr, "polling_disabled", *flags.disablePolling)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			slog.Error("CastPipe server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("CastPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	NeynarKey       string
	SignerUUID      string
	FID             int
	RedisURL        string
	DatabaseURL     string
	StateDir        string
	HandledPath     string
	APIAddr         string
	AdminToken      string
	OpenAIKey       string
	WeatherKey      string
	DailyCron       string
	DisablePolling  bool
	PollInterval    time.Duration
	PollMinInterval time.Duration
	PollMaxInterval time.Duration
}

// Flags holds command line flag values
type Flags struct {
	neynarKey       *string
	signerUUID      *string
	fid             *int
	redisURL        *string
	dbDSN           *string
	stateDir        *string
	handledPath     *string
	apiAddr         *string
	adminToken      *string
	openaiKey       *string
	weatherKey      *string
	dailyCron       *string
	disablePolling  *bool
	pollInterval    time.Duration
	pollMinInterval time.Duration
	pollMaxInterval time.Duration
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		NeynarKey:       os.Getenv("NEYNAR_API_KEY"),
		SignerUUID:      os.Getenv("FARCASTER_SIGNER_UUID"),
		FID:             util.ParseIntEnv("FARCASTER_FID", 0),
		RedisURL:        os.Getenv("REDIS_URL"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("CASTPIPE_STATE_DIR"),
		HandledPath:     os.Getenv("HANDLED_PATH"),
		APIAddr:         os.Getenv("API_ADDR"),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		WeatherKey:      os.Getenv("WEATHER_API_KEY"),
		DailyCron:       os.Getenv("DAILY_CAST_CRON"),
		DisablePolling:  util.ParseBoolEnv("DISABLE_POLLING", false),
		PollInterval:    util.ParseDurationEnv("POLL_INTERVAL", poller.DefaultInterval),
		PollMinInterval: util.ParseDurationEnv("POLL_MIN_INTERVAL", poller.DefaultMinInterval),
		PollMaxInterval: util.ParseDurationEnv("POLL_MAX_INTERVAL", poller.DefaultMaxInterval),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CASTPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.HandledPath == "" {
		config.HandledPath = filepath.Join(config.StateDir, DefaultHandledFileName)
		slog.Debug("No HANDLED_PATH set, using state directory default", "handled_path", config.HandledPath)
	}

	slog.Debug("environment variables loaded",
		"NEYNAR_API_KEY_SET", config.NeynarKey != "",
		"FARCASTER_SIGNER_UUID_SET", config.SignerUUID != "",
		"FARCASTER_FID", config.FID,
		"REDIS_URL_SET", config.RedisURL != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CASTPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"ADMIN_TOKEN_SET", config.AdminToken != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"WEATHER_API_KEY_SET", config.WeatherKey != "",
		"DAILY_CAST_CRON", config.DailyCron,
		"DISABLE_POLLING", config.DisablePolling,
		"POLL_INTERVAL", config.PollInterval)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		neynarKey:       flag.String("neynar-api-key", config.NeynarKey, "Neynar API key (overrides $NEYNAR_API_KEY)"),
		signerUUID:      flag.String("signer-uuid", config.SignerUUID, "Farcaster signer UUID (overrides $FARCASTER_SIGNER_UUID)"),
		fid:             flag.Int("fid", config.FID, "bot Farcaster ID (overrides $FARCASTER_FID)"),
		redisURL:        flag.String("redis-url", config.RedisURL, "Redis URL for the remote marker tier (overrides $REDIS_URL)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN for the remote marker tier (overrides $DATABASE_URL)"),
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for CastPipe data (overrides $CASTPIPE_STATE_DIR)"),
		handledPath:     flag.String("handled-path", config.HandledPath, "JSON snapshot path for the file marker tier (overrides $HANDLED_PATH)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		adminToken:      flag.String("admin-token", config.AdminToken, "shared secret for /admin endpoints (overrides $ADMIN_TOKEN)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		weatherKey:      flag.String("weather-api-key", config.WeatherKey, "WeatherAPI key (overrides $WEATHER_API_KEY)"),
		dailyCron:       flag.String("daily-cron", config.DailyCron, "cron schedule for the daily greeting cast (overrides $DAILY_CAST_CRON)"),
		disablePolling:  flag.Bool("disable-polling", config.DisablePolling, "disable the poll loop, webhook-only mode (overrides $DISABLE_POLLING)"),
		pollInterval:    config.PollInterval,
		pollMinInterval: config.PollMinInterval,
		pollMaxInterval: config.PollMaxInterval,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"fid", *flags.fid,
		"stateDir", *flags.stateDir,
		"handledPath", *flags.handledPath,
		"redisURLSet", *flags.redisURL != "",
		"dbDSNSet", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"disablePolling", *flags.disablePolling)

	return flags
}

// buildStore wires the primary marker tier (Redis or SQL when configured)
// over the file tier. A broken remote tier degrades to file-only operation
// instead of aborting startup.
func buildStore(flags Flags) store.Store {
	fileStore, err := store.NewFileStore(store.WithFilePath(*flags.handledPath))
	if err != nil {
		slog.Error("Failed to open file marker store", "error", err, "path", *flags.handledPath)
		os.Exit(1)
	}

	var primary store.Store
	switch {
	case *flags.redisURL != "":
		rs, err := store.NewRedisStore(store.WithRedisURL(*flags.redisURL))
		if err != nil {
			slog.Warn("Redis store unavailable, degrading to file tier", "error", err)
		} else {
			slog.Debug("Using Redis remote marker tier")
			primary = rs
		}
	case *flags.dbDSN != "":
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			ps, err := store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
			if err != nil {
				slog.Warn("PostgreSQL store unavailable, degrading to file tier", "error", err)
			} else {
				slog.Debug("Using PostgreSQL remote marker tier")
				primary = ps
			}
		} else {
			ss, err := store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
			if err != nil {
				slog.Warn("SQLite store unavailable, degrading to file tier", "error", err)
			} else {
				slog.Debug("Using SQLite remote marker tier", "db_path", *flags.dbDSN)
				primary = ss
			}
		}
	default:
		slog.Debug("No remote marker tier configured, file tier only")
	}

	return store.NewFallbackStore(primary, fileStore)
}

// buildResponder constructs the reply generator with whichever optional
// integrations are configured.
func buildResponder(flags Flags) *replies.Responder {
	var opts []replies.Option
	if *flags.weatherKey != "" {
		opts = append(opts, replies.WithWeatherAPIKey(*flags.weatherKey))
	}
	if *flags.openaiKey != "" {
		gen, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			slog.Warn("GenAI client unavailable, using canned replies", "error", err)
		} else {
			opts = append(opts, replies.WithGenerator(gen))
		}
	}
	return replies.NewResponder(opts...)
}
