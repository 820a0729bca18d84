package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/livemap/internal/brush"
	"github.com/udisondev/livemap/internal/config"
	"github.com/udisondev/livemap/internal/console"
	"github.com/udisondev/livemap/internal/editor"
	"github.com/udisondev/livemap/internal/journal"
	"github.com/udisondev/livemap/internal/live"
	"github.com/udisondev/livemap/internal/otbm"
)

const (
	ConfigPath  = "config/liveserver.yaml"
	PalettePath = "config/palette.yaml"

	dispatcherQueueSize = 1024
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	interactive := flag.Bool("console", false, "read editor commands and chat from stdin")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-console] <map.otbm>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		return errors.New("map file required")
	}
	mapPath := flag.Arg(0)

	cfgPath := ConfigPath
	if p := os.Getenv("LIVEMAP_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadLiveServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, logCloser := cfg.Log.NewLogger(os.Stdout)
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("live server starting", "log_level", cfg.Log.Level, "bind", cfg.BindAddress, "port", cfg.Port)

	doc, err := otbm.LoadFile(mapPath)
	if err != nil {
		return fmt.Errorf("loading map: %w", err)
	}

	palettePath := PalettePath
	if p := os.Getenv("LIVEMAP_PALETTE"); p != "" {
		palettePath = p
	}
	palette, err := brush.LoadPalette(palettePath)
	if err != nil {
		return fmt.Errorf("loading palette: %w", err)
	}

	var tab live.LogTab = live.NewSlogTab(nil)
	var recorder *journal.Recorder
	store, err := journal.Open(ctx, cfg.Journal)
	switch {
	case errors.Is(err, journal.ErrDisabled):
		slog.Info("session journal disabled")
	case err != nil:
		return fmt.Errorf("opening journal: %w", err)
	default:
		defer store.Close()
		recorder = journal.NewRecorder(store, journal.NewSession(doc.Name(), cfg.Name), tab, journal.DefaultRecorderBuffer)
		tab = recorder
	}

	d := live.NewDispatcher(dispatcherQueueSize)
	srv, err := live.NewServer(cfg, doc, d, tab)
	if err != nil {
		return fmt.Errorf("creating live server: %w", err)
	}
	session := editor.NewSession(doc, srv.Queue(), cfg.Undo, srv, palette)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	if recorder != nil {
		g.Go(func() error { return recorder.Run(gctx) })
	}

	if *interactive {
		con := &console.Console{
			Do:      d.Do,
			Session: func() *editor.Session { return session },
			Say: func(text string) error {
				srv.BroadcastChat(cfg.Name, text)
				return nil
			},
			Save: func(path string) error {
				if err := otbm.SaveFile(doc, path); err != nil {
					return err
				}
				slog.Info("map saved", "path", path)
				return nil
			},
			Who: func() []string {
				var names []string
				for _, p := range srv.Clients() {
					names = append(names, p.Name)
				}
				return names
			},
			Out: os.Stdout,
		}
		// stdin blocks without honouring ctx, so the console stays out of the group.
		go func() {
			if err := con.Run(gctx, os.Stdin); err != nil {
				slog.Error("console stopped", "error", err)
			}
		}()
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("live server stopped")
	return nil
}
