package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/StayPilot/StayPilot/internal/api"
	"github.com/StayPilot/StayPilot/internal/approval"
	"github.com/StayPilot/StayPilot/internal/autonomy"
	"github.com/StayPilot/StayPilot/internal/channel"
	"github.com/StayPilot/StayPilot/internal/conversation"
	"github.com/StayPilot/StayPilot/internal/engine"
	"github.com/StayPilot/StayPilot/internal/events"
	"github.com/StayPilot/StayPilot/internal/genai"
	"github.com/StayPilot/StayPilot/internal/store"
	"github.com/StayPilot/StayPilot/internal/twiliosms"
	"github.com/StayPilot/StayPilot/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for StayPilot state data
	DefaultStateDir = "/var/lib/staypilot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "staypilot.db"
	// DefaultEventBusBuffer is the per-subscriber event channel buffer
	DefaultEventBusBuffer = 64
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping StayPilot with configured modules")
	if err := run(flags); err != nil {
		slog.Error("StayPilot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("StayPilot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	WhatsAppDSN string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	Channel     string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	waDSN     *string
	openaiKey *string
	apiAddr   *string
	msgChan   *string
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
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:    os.Getenv("STAYPILOT_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		Channel:     os.Getenv("MESSAGE_CHANNEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No STAYPILOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"STAYPILOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGE_CHANNEL", config.Channel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:  flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:   flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for StayPilot data (overrides $STAYPILOT_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the StayPilot store (overrides $DATABASE_URL)"),
		waDSN:     flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		msgChan:   flag.String("channel", config.Channel, "guest message channel: twilio, whatsapp, or empty for none (overrides $MESSAGE_CHANNEL)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"waDSN_set", *flags.waDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"channel", *flags.msgChan)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// openStore creates the storage backend matching the DSN type.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Info("Opening PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Info("Opening SQLite store", "path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildSender constructs the outbound message channel adapter.
func buildSender(flags Flags) (channel.Sender, error) {
	switch strings.ToLower(*flags.msgChan) {
	case "twilio":
		slog.Info("Using Twilio SMS message channel")
		return twiliosms.NewClient()
	case "whatsapp":
		slog.Info("Using WhatsApp message channel")
		var waOpts []whatsapp.Option
		if *flags.waDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		return whatsapp.NewClient(waOpts...)
	case "":
		slog.Warn("No message channel configured; send_message actions will fail")
		return nil, nil
	default:
		slog.Warn("Unknown message channel, running without one", "channel", *flags.msgChan)
		return nil, nil
	}
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	bus := events.NewBus(DefaultEventBusBuffer)
	defer bus.Close()

	sender, err := buildSender(flags)
	if err != nil {
		return err
	}

	policy := autonomy.NewEngine(st)
	queue := approval.NewQueue(st, approval.WithBus(bus))
	tracker := conversation.NewTracker(st, conversation.WithTrackerBus(bus))

	engOpts := []engine.Option{engine.WithBus(bus)}
	if sender != nil {
		engOpts = append(engOpts, engine.WithSender(sender))
	}
	eng := engine.NewEngine(st, engOpts...)
	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Stop()

	apiOpts := []api.Option{}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}

	// AI reply drafting is optional and requires an OpenAI key.
	if *flags.openaiKey != "" {
		os.Setenv("OPENAI_API_KEY", *flags.openaiKey)
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		gaClient, gaErr := genai.NewClient()
		if gaErr != nil {
			slog.Warn("GenAI client unavailable, inbound messages will not be auto-drafted", "error", gaErr)
		} else {
			responder := genai.NewResponder(st, gaClient, policy, queue, sender)
			apiOpts = append(apiOpts, api.WithResponder(responder))
			slog.Info("GenAI responder enabled")
		}
	} else {
		slog.Debug("OPENAI_API_KEY not set, GenAI responder disabled")
	}

	// Inbound WhatsApp messages are routed through the API by the gateway in
	// front of this service; log them here for operator visibility.
	if waClient, ok := sender.(*whatsapp.Client); ok {
		waClient.OnInbound(func(from, body string) {
			slog.Info("Inbound WhatsApp message", "from", from, "body_length", len(body))
			bus.Publish(events.EventMessageReceived, map[string]any{
				"from": from,
				"body": body,
			})
		})
	}

	srv := api.NewServer(st, eng, queue, policy, tracker, apiOpts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
