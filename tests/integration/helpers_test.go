package integration

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/livemap/internal/config"
	"github.com/udisondev/livemap/internal/editor"
	"github.com/udisondev/livemap/internal/journal"
	"github.com/udisondev/livemap/internal/live"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/testutil"
	"github.com/udisondev/livemap/internal/world"
)

// schemaCounter provides unique schema names for parallel suites.
var schemaCounter atomic.Uint32

// acquireSchema creates an isolated PostgreSQL schema and returns DSN with search_path.
// Schema is automatically dropped via t.Cleanup.
func acquireSchema(t testing.TB) string {
	t.Helper()
	ctx := context.Background()

	schemaName := fmt.Sprintf("test_%d", schemaCounter.Add(1))

	conn, err := pgx.Connect(ctx, sharedPGBaseDSN)
	if err != nil {
		t.Fatalf("connect to shared postgres: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE SCHEMA "+schemaName); err != nil {
		t.Fatalf("create schema %s: %v", schemaName, err)
	}

	t.Cleanup(func() {
		cleanCtx := context.Background()
		cleanConn, err := pgx.Connect(cleanCtx, sharedPGBaseDSN)
		if err != nil {
			t.Logf("cleanup: connect failed: %v", err)
			return
		}
		defer cleanConn.Close(cleanCtx)
		if _, err := cleanConn.Exec(cleanCtx, "DROP SCHEMA "+schemaName+" CASCADE"); err != nil {
			t.Logf("cleanup: drop schema %s: %v", schemaName, err)
		}
	})

	sep := "&"
	if !strings.Contains(sharedPGBaseDSN, "?") {
		sep = "?"
	}
	return sharedPGBaseDSN + sep + "search_path=" + schemaName
}

// runBackground runs fn until the test ends and waits for it on cleanup.
func runBackground(t *testing.T, fn func(ctx context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Logf("background task: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("background task did not stop")
		}
	})
}

func startDispatcher(t *testing.T) *live.Dispatcher {
	t.Helper()
	d := live.NewDispatcher(256)
	runBackground(t, d.Run)
	return d
}

// host is a live server with a journal and the host's own editor session.
type host struct {
	srv      *live.Server
	d        *live.Dispatcher
	session  *editor.Session
	recorder *journal.Recorder
	addr     string
	wsURL    string
}

func startHost(t *testing.T, store journal.Store) *host {
	t.Helper()

	cfg := testutil.ServerConfig()
	doc := testutil.NewMap(t)
	d := startDispatcher(t)

	rec := journal.NewRecorder(store, journal.NewSession(doc.Name(), cfg.Name), live.NewSlogTab(nil), 0)
	runBackground(t, rec.Run)

	srv, err := live.NewServer(cfg, doc, d, rec)
	require.NoError(t, err)

	ln, addr := testutil.ListenTCP(t)
	runBackground(t, func(ctx context.Context) error { return srv.Serve(ctx, ln) })

	wsCtx, cancel := context.WithCancel(context.Background())
	ts := httptest.NewServer(srv.WebSocketHandler(wsCtx))
	t.Cleanup(ts.Close)
	t.Cleanup(cancel)

	return &host{
		srv:      srv,
		d:        d,
		session:  editor.NewSession(doc, srv.Queue(), cfg.Undo, srv, nil),
		recorder: rec,
		addr:     addr,
		wsURL:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/live",
	}
}

func (h *host) do(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, h.d.Do(testutil.ContextWithTimeout(t, 5*time.Second), fn))
}

// editorUI opens an editor session as soon as the host describes its map.
type editorUI struct {
	live.NopNotifier

	client *live.Client
	undo   config.Undo
	ready  chan struct{}

	mu       sync.Mutex
	session  *editor.Session
	statuses []string
}

func (u *editorUI) MapReady(doc *world.Map) {
	u.mu.Lock()
	u.session = editor.NewSession(doc, u.client.Queue(), u.undo, nil, nil)
	u.mu.Unlock()
	close(u.ready)
}

func (u *editorUI) SetStatus(text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statuses = append(u.statuses, text)
}

func (u *editorUI) Statuses() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.statuses...)
}

// peer is a connected client editor.
type peer struct {
	c  *live.Client
	d  *live.Dispatcher
	ui *editorUI
}

func joinHost(t *testing.T, h *host, name string, websocket bool) *peer {
	t.Helper()

	cfg := testutil.ClientConfig(t, h.addr)
	cfg.Name = name
	cfg.Undo.StackingDelay = 0
	if websocket {
		cfg.WebSocketURL = h.wsURL
	}

	p := &peer{d: startDispatcher(t), ui: &editorUI{undo: cfg.Undo, ready: make(chan struct{})}}
	c, err := live.NewClient(cfg, p.d, p.ui, nil)
	require.NoError(t, err)
	p.c = c
	p.ui.client = c

	require.NoError(t, c.Connect(testutil.ContextWithTimeout(t, 5*time.Second)))
	runBackground(t, c.Run)

	select {
	case <-p.ui.ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s: timeout waiting for server hello", name)
	}
	p.do(t, func() { require.NoError(t, c.RequestViewport(0, 0, 15, 15, 7)) })
	p.waitTile(t, model.Pos(7, 7, 7), func(tile *model.Tile) bool {
		return tile != nil && tile.Ground != nil
	})
	return p
}

func (p *peer) do(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, p.d.Do(testutil.ContextWithTimeout(t, 5*time.Second), fn))
}

// edit runs fn with the peer's editor session on its dispatcher.
func (p *peer) edit(t *testing.T, fn func(s *editor.Session)) {
	t.Helper()
	p.do(t, func() {
		p.ui.mu.Lock()
		s := p.ui.session
		p.ui.mu.Unlock()
		fn(s)
	})
}

func (p *peer) waitTile(t *testing.T, pos model.Position, check func(*model.Tile) bool) {
	t.Helper()
	testutil.WaitFor(t, func() bool {
		var ok bool
		p.do(t, func() { ok = check(p.c.Map().Tile(pos)) })
		return ok
	}, 5*time.Second)
}

func (h *host) waitTile(t *testing.T, pos model.Position, check func(*model.Tile) bool) {
	t.Helper()
	testutil.WaitFor(t, func() bool {
		var ok bool
		h.do(t, func() { ok = check(h.srv.Map().Tile(pos)) })
		return ok
	}, 5*time.Second)
}

func groundIs(id uint16) func(*model.Tile) bool {
	return func(tile *model.Tile) bool {
		return tile != nil && tile.Ground != nil && tile.Ground.ID == id
	}
}
