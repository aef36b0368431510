// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	apihttp "github.com/osa030/renify/internal/api/http"
	"github.com/osa030/renify/internal/app/guard"
	"github.com/osa030/renify/internal/app/notification"
	"github.com/osa030/renify/internal/app/playback"
	"github.com/osa030/renify/internal/app/session"
	"github.com/osa030/renify/internal/app/tier"
	"github.com/osa030/renify/internal/domain/track"
	"github.com/osa030/renify/internal/infra/catalog"
	"github.com/osa030/renify/internal/infra/config"
	"github.com/osa030/renify/internal/infra/logger"
)

var (
	app        = kingpin.New("renify-server", "renify voice room music server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-guards command
	listGuardsCmd = app.Command("list-guards", "List available query guards and exit")

	// import command
	importCmd  = app.Command("import", "Import a track library file into the catalog and exit")
	importPath = importCmd.Arg("file", "Library YAML file").Required().String()
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listGuardsCmd.FullCommand() {
		printGuards()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	// Re-init with config-file log settings; CLI flags keep precedence.
	_ = logger.Init(resolveLoggerConfig(cfg, *verbose, *logfile))

	if command == importCmd.FullCommand() {
		if err := importLibrary(cfg, *importPath); err != nil {
			zlog.Fatal().Msgf("Import failed: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	guards, err := buildGuardChain(cfg)
	if err != nil {
		return fmt.Errorf("invalid guard config: %w", err)
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer cat.Close()

	table, err := cfg.TierTable()
	if err != nil {
		return fmt.Errorf("invalid tier table: %w", err)
	}
	policy := tier.NewStaticPolicy(cfg.Tiers.Default, table)

	notifier := notification.NewManager()
	backend := playback.NewScheduler()

	sessionMgr := session.NewManager(session.Config{
		IdleTimeout:   cfg.IdleTimeout(),
		RateWindow:    cfg.RateWindow(),
		RateMaxCalls:  cfg.RateLimit.MaxCalls,
		SweepInterval: cfg.SweepInterval(),
	}, backend, cat, policy, guards, notifier)

	handler := apihttp.NewHandler(sessionMgr, notifier)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.Router(),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the session manager first to disconnect active rooms
	sessionMgr.Close()
	notifier.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// resolveLoggerConfig merges the config file's log settings with the CLI
// flags; a flag that was given wins over the file.
func resolveLoggerConfig(cfg *config.Config, verbose bool, logfile string) logger.Config {
	lc := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	if verbose {
		lc.Level = "debug"
	}
	if logfile != "" {
		lc.Output = logfile
		lc.File = logfile
	}
	return lc
}

// guardOrder fixes the chain order; registry maps iterate randomly.
var guardOrder = []string{"query_length", "control_chars"}

// buildGuardChain assembles the enabled guards with their validated settings.
func buildGuardChain(cfg *config.Config) (*guard.Chain, error) {
	registry := guard.GetRegistered()
	chain := guard.NewChain()

	for _, name := range guardOrder {
		if !cfg.IsGuardEnabled(name) {
			zlog.Info().Msgf("guard disabled: name=%s", name)
			continue
		}
		factory, exists := registry[name]
		if !exists {
			return nil, fmt.Errorf("unknown guard: %s", name)
		}
		g := factory()
		if err := g.ValidateConfig(cfg.GuardSettings(name)); err != nil {
			return nil, fmt.Errorf("guard %s: %w", name, err)
		}
		chain.Add(g)
	}
	return chain, nil
}

// printGuards prints available query guards.
func printGuards() {
	fmt.Println("Available Guards:")
	for name, factory := range guard.GetRegistered() {
		g := factory()
		codes := strings.Join(g.ReturnCodes(), ", ")
		fmt.Printf("  %-20s [codes: %s]\n", name, codes)
	}
}

// libraryFile is the import file format: flat tracks plus named playlists.
type libraryFile struct {
	Tracks    []libraryTrack `yaml:"tracks"`
	Playlists []struct {
		Name   string         `yaml:"name"`
		Tracks []libraryTrack `yaml:"tracks"`
	} `yaml:"playlists"`
}

type libraryTrack struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	URI         string `yaml:"uri"`
	DurationSec int64  `yaml:"duration_sec"`
}

func (lt libraryTrack) toTrack() track.Track {
	return track.Track{
		Title:    lt.Title,
		Author:   lt.Author,
		URI:      lt.URI,
		Duration: time.Duration(lt.DurationSec) * time.Second,
		Source:   "catalog",
	}
}

// importLibrary loads a YAML library file into the catalog.
func importLibrary(cfg *config.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read library file: %w", err)
	}

	var lib libraryFile
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return fmt.Errorf("failed to parse library file: %w", err)
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer cat.Close()

	ctx := context.Background()
	for _, lt := range lib.Tracks {
		if _, err := cat.AddTrack(ctx, lt.toTrack()); err != nil {
			return fmt.Errorf("failed to import track %q: %w", lt.Title, err)
		}
	}
	for _, lp := range lib.Playlists {
		pl := track.Playlist{Name: lp.Name}
		for _, lt := range lp.Tracks {
			pl.Tracks = append(pl.Tracks, lt.toTrack())
		}
		if err := cat.AddPlaylist(ctx, pl); err != nil {
			return fmt.Errorf("failed to import playlist %q: %w", lp.Name, err)
		}
	}

	zlog.Info().Msgf("Library imported: tracks=%d playlists=%d", len(lib.Tracks), len(lib.Playlists))
	return nil
}
