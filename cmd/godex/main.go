package main

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "modernc.org/sqlite"

	"godex/cmd/godex/chat"
	"godex/internal/config"
	"godex/internal/controller"
	"godex/internal/migrate"
	"godex/internal/session"
	"godex/internal/storage"
)

var (
	// Global flags
	verbose   bool
	endpoint  string
	dbPath    string
	ephemeral bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "godex",
	Short: "godex - streaming chat client",
	Long: `godex is a client-side conversational session manager.

It drives assistant turns against a server-push streaming endpoint, survives
connection loss and restarts by persisting resumable session state, and falls
back to a locally synthesized preview stream when no backend is reachable.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip logger init for interactive mode (it has its own UI)
		if cmd.Use == "godex" && cmd.CalledAs() == "godex" {
			logger = zap.NewNop()
			return nil
		}

		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat()
	},
}

// runCmd executes a single turn and streams the response to stdout
var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Execute a single turn, streaming the response to stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOnce,
}

// migrateCmd transforms legacy message blobs into the parts shape
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate legacy message content blobs to the parts format",
	Long: `Copies every row of the legacy message table into message_v2,
transforming the single-blob content column into structured parts and
attachments. Idempotent; safe to re-run.`,
	RunE: runMigration,
}

// resetCmd clears persisted conversation state
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the stored transcript and any resumable stream state",
	RunE:  runReset,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "streaming endpoint URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep state in memory only")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(resetCmd)
}

// buildEngine wires store, session and controller from config plus flags.
func buildEngine() (*controller.Controller, storage.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("Failed to load config, using defaults", zap.Error(err))
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	script, err := config.LoadScript(cfg.ScriptPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load preview script: %w", err)
	}

	var store storage.Store
	cleanup := func() {}
	if ephemeral {
		store = storage.NewMemoryStore()
	} else {
		path, err := config.DatabasePath(cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		sqlStore, err := storage.NewSQLiteStore(path, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		store = sqlStore
		cleanup = func() { sqlStore.Close() }
	}

	sess := session.New(store, session.Options{
		Endpoint: cfg.Endpoint,
		Script:   script,
		Delay:    cfg.PreviewDelay(),
		Logger:   logger,
	})
	ctrl := controller.New(store, sess, logger)
	return ctrl, store, cleanup, nil
}

func runInteractiveChat() error {
	ctrl, _, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, _ := config.Load()
	return chat.Run(ctrl, cfg)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctrl, _, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	prompt := args[0]
	done := make(chan struct{})
	var once sync.Once
	var printed int

	ctrl.SetOnChange(func(st controller.State) {
		// Stream new assistant output as it accumulates.
		for i := len(st.Messages) - 1; i >= 0; i-- {
			m := st.Messages[i]
			if m.Role != "assistant" {
				continue
			}
			content := m.Content()
			if len(content) > printed {
				fmt.Print(content[printed:])
				printed = len(content)
			}
			break
		}
		if !st.IsStreaming && st.ActiveMessageID == "" {
			once.Do(func() { close(done) })
		}
	})

	if !ctrl.Send(prompt) {
		return fmt.Errorf("nothing to send: prompt is blank or a turn is already active")
	}
	<-done

	st := ctrl.State()
	fmt.Println()
	for _, entry := range st.Metadata {
		fmt.Printf("%s: %s\n", entry.Label, entry.Value)
	}
	if st.Err != "" {
		fmt.Fprintf(os.Stderr, "notice: %s\n", st.Err)
	}
	return nil
}

func runMigration(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("Failed to load config, using defaults", zap.Error(err))
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	path, err := config.DatabasePath(cfg)
	if err != nil {
		return fmt.Errorf("failed to resolve database path: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	result, err := migrate.Run(db, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Migrated %d of %d legacy messages (%d skipped).\n",
		result.Migrated, result.Found, result.Skipped)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	_, store, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	store.ClearActiveStream()
	store.ClearState()
	fmt.Println("Stored conversation state cleared.")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
