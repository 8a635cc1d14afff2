package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/engine"
	"github.com/gabrielcapilla/sdrtune/internal/logger"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
	"github.com/gabrielcapilla/sdrtune/internal/services/backend"
	"github.com/gabrielcapilla/sdrtune/internal/services/config"
	"github.com/gabrielcapilla/sdrtune/internal/services/devices"
	"github.com/gabrielcapilla/sdrtune/internal/services/remote"
	"github.com/gabrielcapilla/sdrtune/internal/services/storage"
	"github.com/gabrielcapilla/sdrtune/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
)

type options struct {
	configPath string
	sim        bool
	headless   bool
	exportPath string
	importPath string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config.yml (default: user config dir)")
	flag.BoolVar(&opts.sim, "sim", false, "use the simulated backend instead of real receivers")
	flag.BoolVar(&opts.headless, "headless", false, "run without the terminal UI, serving only the remote API")
	flag.StringVar(&opts.exportPath, "export", "", "write saved stations to a YAML file and exit")
	flag.StringVar(&opts.importPath, "import", "", "read saved stations from a YAML file and exit")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "sdrtune: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfgService := config.NewViperConfigService(opts.configPath)
	cfg, err := cfgService.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	logFile, err := logger.Init(cfg.Log.Level, cfg.Log.Path)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger.Log.Info().Str("config", cfgService.ConfigFile()).Msg("Configuration loaded")

	store, err := storage.NewBboltStore(cfg.Storage.Path)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Error initializing storage")
		return err
	}
	defer store.Close()

	if opts.exportPath != "" || opts.importPath != "" {
		return transferStations(store, opts)
	}

	if opts.headless && cfg.Remote.Listen == "" {
		return errors.New("headless mode needs remote.listen to be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be := newBackend(cfg, opts.sim)
	defer be.Close()

	eng := engine.New(engine.Deps{
		Backend: be,
		Devices: devices.NewSource(cfg.Devices),
		Store:   store,
		Config:  cfg,
		Log:     logger.Log,
	})
	metaLog := logger.Component("metadata")
	eng.OnMetadata(func(kind domain.Kind, metadata map[string]string) {
		metaLog.Debug().Stringer("kind", kind).Interface("metadata", metadata).Msg("Metadata")
	})

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	if cfg.Remote.Listen != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := remote.NewServer(eng, store, cfg.Remote, logger.Log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Log.Error().Err(err).Msg("Remote API stopped")
			}
		}()
	}

	if opts.headless {
		logger.Log.Info().Msg("Running headless")
		<-ctx.Done()
	} else if err := runUI(ctx, eng, store); err != nil {
		return err
	}

	stop()
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Log.Info().Msg("Shutting down")
	return nil
}

func newBackend(cfg domain.Config, sim bool) ports.Backend {
	if sim || cfg.Backend.Mode == "sim" {
		logger.Log.Info().Dur("delay", cfg.Backend.SimDelay).Msg("Using simulated backend")
		return backend.NewSim(cfg.Backend.SimDelay)
	}
	return backend.NewSidecar(cfg.Backend)
}

func runUI(ctx context.Context, eng *engine.Engine, store ports.StationStore) error {
	snaps, unsubscribe := eng.Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(ui.InitialModel(eng, store, snaps), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}

func transferStations(store *storage.BboltStore, opts options) error {
	if opts.importPath != "" {
		f, err := os.Open(opts.importPath)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := store.Import(f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d stations from %s\n", n, opts.importPath)
	}

	if opts.exportPath != "" {
		f, err := os.Create(opts.exportPath)
		if err != nil {
			return err
		}
		if err := store.Export(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("Exported stations to %s\n", opts.exportPath)
	}
	return nil
}
