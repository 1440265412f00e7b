package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"domscout/internal/config"
	"domscout/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string
	timeout    time.Duration
	liveHost   bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "domscout",
	Short: "Discover and replay the interaction surface of web pages",
	Long: `domscout enumerates what a page lets a user interact with: listeners
registered from script, inline and property handlers, handlers inherited by
form controls, and pointer-cursor elements under a global click listener.

Targets are local HTML files (parsed in memory) or http(s) URLs (loaded in
Chrome over the DevTools protocol).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		if dbPath != "" {
			cfg.Store.Path = dbPath
		}
		if err := logging.Initialize(filepath.Dir(cfg.Store.Path), cfg.Logging.Options()); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
		logger.Debug("configuration loaded", zap.String("path", configPath))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <file|url>",
	Short: "List every interaction of a page and record the run",
	Long: `Collects explicit listeners, affordances, declarative and inherited
handlers, timers and page errors, prints them as JSON and stores the run.

With --replay every discovered interaction is dispatched once afterwards and
the outcome is stored with the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <file|url> <selector> <event-type>",
	Short: "Fire one event on the element a selector addresses",
	Args:  cobra.ExactArgs(3),
	RunE:  runDispatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve <file|url>",
	Short: "Serve the discovery methods over HTTP",
	Long: `Exposes the method table at POST /call/{method} with a JSON array of
positional arguments, plus GET /methods and GET /healthz.

With --watch a local file is reloaded on change; each reload is a new
document lifetime.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

var callCmd = &cobra.Command{
	Use:   "call <base-url> <method> [json-args]",
	Short: "Call a method on a running serve instance",
	Example: `  domscout call http://127.0.0.1:8765 get_event_listeners '[["click"], [], 0, 10]'
  domscout call http://127.0.0.1:8765 get_event_listeners --all`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runCall,
}

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List stored runs, or show the records of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "domscout.yaml", "Config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Run database (default from config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().BoolVar(&liveHost, "live", false, "Load local files in Chrome instead of parsing them")

	scanCmd.Flags().StringSlice("events", nil, "Only these event types")
	scanCmd.Flags().StringSlice("tags", nil, "Only these tag names")
	scanCmd.Flags().Bool("replay", false, "Dispatch every discovered interaction after the scan")
	scanCmd.Flags().Bool("no-store", false, "Do not record the run")

	serveCmd.Flags().String("listen", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("watch", false, "Reload a local file when it changes")

	callCmd.Flags().Bool("all", false, "Follow pagination and print every item")

	runsCmd.Flags().Int("limit", 20, "Number of runs to list (0 for all)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
