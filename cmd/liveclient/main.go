package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/livemap/internal/brush"
	"github.com/udisondev/livemap/internal/config"
	"github.com/udisondev/livemap/internal/console"
	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/editor"
	"github.com/udisondev/livemap/internal/live"
	"github.com/udisondev/livemap/internal/world"
)

const (
	ConfigPath  = "config/liveclient.yaml"
	PalettePath = "config/palette.yaml"

	dispatcherQueueSize = 1024

	// initialView is mirrored right after the host describes its map.
	initialView = 64
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

// terminal is the client's UI: status lines and alerts go to the log,
// and MapReady opens an editor session on the mirrored map.
type terminal struct {
	live.NopNotifier

	client  *live.Client
	cfg     config.LiveClient
	palette *brush.Palette
	session *editor.Session
}

func (t *terminal) MapReady(doc *world.Map) {
	t.session = editor.NewSession(doc, t.client.Queue(), t.cfg.Undo, nil, t.palette)
	slog.Info("map ready", "name", doc.Name(), "width", doc.Width(), "height", doc.Height())
	if err := t.client.RequestViewport(0, 0, initialView-1, initialView-1, constants.GroundLayer); err != nil {
		slog.Warn("requesting initial view", "error", err)
	}
}

func (t *terminal) SetStatus(text string) {
	slog.Info("status", "text", text)
}

func (t *terminal) Alert(title, text string) {
	slog.Warn(title, "text", text)
}

func (t *terminal) SwitchVersion(version uint32) error {
	slog.Info("host uses another client version", "from", t.cfg.ClientVersion, "to", version)
	return nil
}

func (t *terminal) Closed() {
	t.session = nil
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("LIVEMAP_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadLiveClient(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, logCloser := cfg.Log.NewLogger(os.Stderr)
	defer logCloser.Close()
	slog.SetDefault(logger)

	palettePath := PalettePath
	if p := os.Getenv("LIVEMAP_PALETTE"); p != "" {
		palettePath = p
	}
	palette, err := brush.LoadPalette(palettePath)
	if err != nil {
		return fmt.Errorf("loading palette: %w", err)
	}

	d := live.NewDispatcher(dispatcherQueueSize)
	ui := &terminal{cfg: cfg, palette: palette}
	client, err := live.NewClient(cfg, d, ui, live.NewSlogTab(nil))
	if err != nil {
		return fmt.Errorf("creating live client: %w", err)
	}
	ui.client = client

	if err := client.Connect(ctx); err != nil {
		return err
	}

	// the session ending stops the dispatcher too
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error {
		defer stop()
		return client.Run(gctx)
	})

	con := &console.Console{
		Do:      d.Do,
		Session: func() *editor.Session { return ui.session },
		Say:     client.SendChat,
		View: func(x1, y1, x2, y2, z int) error {
			if ui.session == nil {
				return console.ErrNotReady
			}
			return client.RequestViewport(x1, y1, x2, y2, z)
		},
		Out: os.Stdout,
	}
	// stdin blocks without honouring ctx, so the console stays out of the group.
	go func() {
		if err := con.Run(gctx, os.Stdin); err != nil {
			slog.Error("console stopped", "error", err)
		}
	}()

	if err := g.Wait(); err != nil {
		if errors.Is(err, live.ErrKicked) {
			return fmt.Errorf("kicked from live session: %w", err)
		}
		return err
	}
	slog.Info("live client stopped")
	return nil
}
