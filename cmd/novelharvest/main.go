package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"novelharvest/internal/batch"
	"novelharvest/internal/config"
	"novelharvest/internal/database"
	"novelharvest/internal/ratelimit"
	"novelharvest/internal/record"
	"novelharvest/internal/scrape"
	"novelharvest/internal/server"
	"novelharvest/internal/session"
	"novelharvest/internal/transform"
)

var version = "dev"

const exitInterrupted = 130

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "novelharvest",
	Short:   "Serialized-fiction scraping pipeline",
	Long:    "novelharvest acquires serialized stories from hostile platforms, emits per-story JSON records, and imports them into a local database.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
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
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("novelharvest", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/novelharvest/",
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
		fmt.Println("Edit it to configure the platform, worker counts, and rate limit.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
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

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Entities:")
		fmt.Printf("  Websites: %d\n", stats.Websites)
		fmt.Printf("  Users: %d\n", stats.Users)
		fmt.Printf("  Stories: %d\n", stats.Stories)
		fmt.Printf("  Chapters: %d\n", stats.Chapters)
		fmt.Printf("  Chapter contents: %d\n", stats.ChapterContents)
		fmt.Printf("  Comments: %d\n", stats.Comments)
		fmt.Printf("  Reviews: %d\n", stats.Reviews)
		fmt.Printf("  Rankings: %d\n", stats.Rankings)
		fmt.Printf("  Scores: %d\n", stats.Scores)

		pending, err := record.List(cfg.JSONDir())
		if err == nil {
			fmt.Printf("\nRecord files: %d in %s\n", len(pending), cfg.JSONDir())
		}
		return nil
	},
}

// --- scrape command ---

var (
	scrapeChapters int
	scrapeOutput   string
	scrapeHeadless bool
	scrapeFast     bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [story-url]",
	Short: "Acquire one story and emit its JSON record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !cmd.Flags().Changed("headless") {
			scrapeHeadless = cfg.Scrape.Headless
		}
		if !cmd.Flags().Changed("fast") {
			scrapeFast = cfg.Scrape.BlockResources
		}

		outDir := scrapeOutput
		if outDir == "" {
			outDir = cfg.JSONDir()
		}
		emitter, err := record.NewEmitter(outDir)
		if err != nil {
			return err
		}

		scraper, err := buildScraper(emitter)
		if err != nil {
			return err
		}

		res, err := scraper.Run(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("\nAcquisition complete:\n")
		fmt.Printf("  Stories: %d ok, %d failed\n", res.StoriesOK, res.StoriesFailed)
		fmt.Printf("  Chapters: %d ok, %d failed\n", res.ChaptersOK, res.ChaptersFailed)
		for _, path := range res.Emitted {
			fmt.Printf("  Record: %s\n", path)
		}
		for _, e := range res.Errors {
			fmt.Printf("  Error: %s\n", e)
		}

		if ctx.Err() != nil {
			os.Exit(exitInterrupted)
		}
		if res.StoriesFailed > 0 {
			return fmt.Errorf("acquisition failed for %d story(ies)", res.StoriesFailed)
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeChapters, "chapters", 0, "Max chapters to acquire (0 = all)")
	scrapeCmd.Flags().StringVar(&scrapeOutput, "output", "", "Record output directory (default: <data-dir>/json)")
	scrapeCmd.Flags().BoolVar(&scrapeHeadless, "headless", true, "Run without a visible window (reserved; only browser-backed sessions honor it)")
	scrapeCmd.Flags().BoolVar(&scrapeFast, "fast", false, "Skip non-essential page resources (reserved; only browser-backed sessions honor it)")
}

func buildScraper(emitter *record.Emitter) (*scrapeRunner, error) {
	store, err := session.NewCookieStore(cfg.CookieDir())
	if err != nil {
		return nil, err
	}

	opts := session.Options{
		PollInterval:   time.Duration(cfg.Session.PollSeconds) * time.Second,
		MaxWait:        time.Duration(cfg.Session.MaxWaitSeconds) * time.Second,
		SettleChecks:   cfg.Session.SettleChecks,
		SettleInterval: time.Duration(cfg.Session.SettleIntervalMS) * time.Millisecond,
		IdleTimeout:    time.Duration(cfg.Session.IdleTimeoutMS) * time.Millisecond,
		Markers:        cfg.Session.Markers,
		ContentReady:   pageHasContent,
	}
	timeout := time.Duration(cfg.Scrape.TimeoutSeconds) * time.Second

	factory := func() (scrape.PageGetter, error) {
		nav, err := session.NewHTTPNavigator(timeout)
		if err != nil {
			return nil, err
		}
		s := session.New(nav, opts)
		s.UseCookieStore(store)
		return s, nil
	}

	maxChapters := cfg.Scrape.MaxChapters
	if scrapeChapters > 0 {
		maxChapters = scrapeChapters
	}

	s := scrape.New(
		factory,
		scrape.NewSiteExtractor(cfg.Platform.Name),
		ratelimit.PerMinute(cfg.Scrape.RequestsPerMinute),
		emitter,
		scrape.Options{
			StoryWorkers:   cfg.Scrape.StoryWorkers,
			ChapterWorkers: cfg.Scrape.ChapterWorkers,
			MaxChapters:    maxChapters,
			MaxComments:    cfg.Scrape.MaxComments,
		},
	)
	return &scrapeRunner{s}, nil
}

// scrapeRunner adapts the pool's multi-target Run to the single-target CLI.
type scrapeRunner struct {
	pool *scrape.Scraper
}

func (r *scrapeRunner) Run(ctx context.Context, target string) (*scrape.Result, error) {
	return r.pool.Run(ctx, []string{target})
}

// pageHasContent reports whether a page carries real story markup rather
// than an interstitial shell.
func pageHasContent(html string) bool {
	return strings.Contains(html, "<h1") || strings.Contains(html, "fic_title")
}

// --- batch command ---

var (
	batchLimit    int
	batchForce    bool
	batchHeadless bool
	batchFast     bool
	batchCooldown int
	batchPower    string
	batchQueue    string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Acquire every story in the queue file, one process per target",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !cmd.Flags().Changed("headless") {
			batchHeadless = cfg.Scrape.Headless
		}
		if !cmd.Flags().Changed("fast") {
			batchFast = cfg.Scrape.BlockResources
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		queue := batchQueue
		if queue == "" {
			queue = cfg.Batch.QueueFile
		}
		targets, err := batch.ReadQueue(queue)
		if err != nil {
			return err
		}
		fmt.Printf("Queue: %d target(s) from %s\n", len(targets), queue)

		cooldown := time.Duration(cfg.Batch.CooldownSeconds) * time.Second
		if batchCooldown > 0 {
			cooldown = time.Duration(batchCooldown) * time.Second
		}

		runner := &batch.ExecRunner{ExtraArgs: childArgs()}
		o := batch.New(db, runner, batch.Options{
			Limit:    batchLimit,
			Force:    batchForce,
			Cooldown: cooldown,
			ErrorLog: cfg.Batch.ErrorLog,
		})

		res, err := o.Run(ctx, targets)
		if res != nil {
			fmt.Println("\n" + res.Summary())
		}
		if err != nil {
			return err
		}
		if res.Interrupted {
			db.Close()
			os.Exit(exitInterrupted)
		}

		if batchPower != "" {
			if err := batch.PowerAction(ctx, batchPower, 30*time.Second); err != nil {
				log.Printf("power action: %v", err)
			}
		}
		if res.Failed > 0 {
			return fmt.Errorf("%d target(s) failed", res.Failed)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "Max targets to process (0 = whole queue)")
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "Re-acquire targets already in the store")
	batchCmd.Flags().BoolVar(&batchHeadless, "headless", true, "Run child processes without a visible window (reserved; only browser-backed sessions honor it)")
	batchCmd.Flags().BoolVar(&batchFast, "fast", false, "Skip non-essential page resources in child processes (reserved; only browser-backed sessions honor it)")
	batchCmd.Flags().IntVar(&batchCooldown, "cooldown", 0, "Seconds between targets (default from config)")
	batchCmd.Flags().StringVar(&batchPower, "power", "", "Power action after the batch: off or sleep")
	batchCmd.Flags().StringVar(&batchQueue, "queue", "", "Queue file (default from config)")
}

// childArgs propagates the relevant flags to each scrape child process.
func childArgs() []string {
	args := []string{fmt.Sprintf("--headless=%t", batchHeadless)}
	if batchFast {
		args = append(args, "--fast")
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}

// --- import command ---

var importDir string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import pending JSON records into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		dir := importDir
		if dir == "" {
			dir = cfg.JSONDir()
		}

		engine := transform.NewEngine(db, cfg.Platform.Name, cfg.Platform.URL)
		run, err := engine.ImportDir(dir)
		if err != nil {
			return err
		}

		fmt.Println("\nImport complete:")
		fmt.Printf("  %s\n", run.Summary())
		for _, e := range run.Errors {
			fmt.Printf("  Error: %s\n", e)
		}
		if run.RecordsFailed > 0 {
			return fmt.Errorf("%d record(s) failed", run.RecordsFailed)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "Record directory (default: <data-dir>/json)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Browse the imported library in a local web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Starting server at http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "novelharvest.db")
	return database.Open(dbPath)
}
