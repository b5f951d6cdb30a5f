package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/subnet/internal/config"
	"github.com/TobiSchelling/subnet/internal/database"
	"github.com/TobiSchelling/subnet/internal/pipeline"
	"github.com/TobiSchelling/subnet/internal/server"
)

var version = "dev"

var (
	verbose    bool
	quiet      bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if pipeline.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "subnet",
	Short:   "Subreddit overlap networks",
	Long:    "subnet builds a weighted network of subreddits from shared commenters and answers overlap queries.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			initLogging("")
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		initLogging(cfg.Logging.Level)
		log.Debugf("using config %s", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(overlapsCmd)
	rootCmd.AddCommand(pairsCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging(configured string) {
	level := log.InfoLevel
	if configured != "" {
		if l, err := log.ParseLevel(configured); err == nil {
			level = l
		}
	}
	if verbose {
		level = log.DebugLevel
	}
	if quiet {
		level = log.ErrorLevel
	}
	log.SetLevel(level)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("subnet", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/subnet/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit data.path and data.period to point at your comment export.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Data: %s (%s)\n", cfg.Data.Path, database.FormatPeriodDisplay(cfg.Data.Period))
		fmt.Printf("Catalog: %s\n\n", db.Path())
		fmt.Println("Builds:")
		fmt.Printf("  Total: %d\n", stats.TotalBuilds)
		fmt.Printf("  Periods: %d\n", stats.Periods)
		if stats.LatestKey != "" {
			fmt.Printf("  Latest: %s (%s)\n", stats.LatestKey[:12], stats.LatestAt)
		}

		builds, err := db.GetAllBuilds()
		if err != nil {
			return err
		}
		if len(builds) > 0 {
			fmt.Println()
		}
		for _, b := range builds {
			fmt.Printf("  %s  %-14s %8s subreddits %10s edges  %s\n",
				b.Key[:12], database.FormatPeriodDisplay(b.PeriodID),
				humanize.Comma(int64(b.Subreddits)), humanize.Comma(int64(b.Edges)), b.Dir)
		}
		return nil
	},
}

// --- build command ---

var (
	dryRun     bool
	rebuild    bool
	dataPath   string
	periodFlag string
	jsonOut    bool
)

// addDataFlags registers the overrides shared by commands that obtain a network.
func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&dataPath, "data", "", "Override data.path")
	cmd.Flags().StringVar(&periodFlag, "period", "", "Override data.period")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Ignore cached artifacts and rebuild")
}

func applyOverrides() {
	if dataPath != "" {
		cfg.Data.Path = dataPath
	}
	if periodFlag != "" {
		cfg.Data.Period = periodFlag
	}
	if rebuild {
		cfg.Output.Rebuild = true
	}
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the overlap network: load -> filter & index -> overlap -> persist",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyOverrides()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		if !quiet {
			pipe.SetProgress(os.Stderr)
		}

		var result *pipeline.Result
		if dryRun {
			result, err = pipe.DryRun(cfg.Output.Rebuild)
		} else {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			result, err = pipe.Network(ctx, cfg.Output.Rebuild)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if err != nil {
			return err
		}

		if !dryRun {
			n := result.Network
			fmt.Printf("\nNetwork %s: %s subreddits, %s edges.\n",
				result.Key[:12], humanize.Comma(int64(n.Len())), humanize.Comma(int64(n.EdgeCount())))
			fmt.Println("Run 'subnet overlaps <subreddit>' or 'subnet serve' to explore it.")
		}
		return nil
	},
}

func init() {
	addDataFlags(buildCmd)
	buildCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

// obtainNetwork returns the configured network, building it if needed.
func obtainNetwork(cmd *cobra.Command) (*pipeline.Result, error) {
	applyOverrides()
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	pipe := pipeline.New(cfg, db)
	if !quiet {
		pipe.SetProgress(os.Stderr)
	}
	return pipe.Network(cmd.Context(), cfg.Output.Rebuild)
}

// --- overlaps command ---

var limit int

var overlapsCmd = &cobra.Command{
	Use:   "overlaps <subreddit>",
	Short: "List the subreddits that overlap most with one subreddit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := obtainNetwork(cmd)
		if err != nil {
			return err
		}

		overlaps, err := result.Network.StrongestOverlaps(args[0])
		if err != nil {
			return err
		}
		if limit > 0 && limit < len(overlaps) {
			overlaps = overlaps[:limit]
		}

		if jsonOut {
			return emitJSON(overlaps)
		}
		fmt.Printf("Strongest overlaps for r/%s (%s):\n\n", args[0], database.FormatPeriodDisplay(result.PeriodID))
		for i, o := range overlaps {
			fmt.Printf("  %3d. %-30s %s\n", i+1, o.Subreddit, formatWeight(o.Weight))
		}
		return nil
	},
}

func init() {
	addDataFlags(overlapsCmd)
	overlapsCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of subreddits to show (0 for all)")
	overlapsCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
}

// --- pairs command ---

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "List the strongest subreddit pairs overall",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := obtainNetwork(cmd)
		if err != nil {
			return err
		}

		pairs := result.Network.TopPairs(limit)
		if jsonOut {
			return emitJSON(pairs)
		}
		if len(pairs) == 0 {
			fmt.Println("No overlapping subreddits.")
			return nil
		}
		for i, p := range pairs {
			fmt.Printf("  %3d. %-25s %-25s %s\n", i+1, p.A, p.B, formatWeight(p.Weight))
		}
		return nil
	},
}

func init() {
	addDataFlags(pairsCmd)
	pairsCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of pairs to show (0 for all)")
	pairsCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port, cfg.Server.CacheTTL)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'g', 6, 64)
}

func emitJSON(x any) error {
	bs, err := json.MarshalIndent(x, "", "    ")
	if err != nil {
		return err
	}
	fmt.Println(string(bs))
	return nil
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := database.Open(cfg.DBPath())
	if errors.Is(err, os.ErrPermission) {
		return nil, fmt.Errorf("catalog %s is not writable: %w", cfg.DBPath(), err)
	}
	return db, err
}
