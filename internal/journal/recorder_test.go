package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/livemap/internal/live"
	"github.com/udisondev/livemap/internal/testutil"
)

// paneLog collects what the recorder forwards.
type paneLog struct {
	mu       sync.Mutex
	messages []string
	chats    []string
	peers    int
	closed   int
}

func (p *paneLog) Message(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, text)
}

func (p *paneLog) Chat(speaker, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chats = append(p.chats, speaker+": "+text)
}

func (p *paneLog) UpdateClientList(peers []live.PeerInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers = len(peers)
}

func (p *paneLog) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

func (p *paneLog) Peers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peers
}

type recorded struct {
	Kind  Kind
	Actor string
	Text  string
}

func summarize(entries []Entry) []recorded {
	out := make([]recorded, len(entries))
	for i, e := range entries {
		out[i] = recorded{Kind: e.Kind, Actor: e.Actor, Text: e.Text}
	}
	return out
}

// runRecorder starts Run and returns a stop func that waits for it.
func runRecorder(t *testing.T, r *Recorder) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(10 * time.Second):
				t.Fatal("recorder did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func TestRecorder_JournalsAndForwards(t *testing.T) {
	store := openSQLite(t)
	pane := &paneLog{}
	sess := NewSession("test map", "host")
	r := NewRecorder(store, sess, pane, 0)
	stop := runRecorder(t, r)

	r.Message("server started")
	r.Chat("alice", "hi")
	r.UpdateClientList([]live.PeerInfo{{ID: 1, Name: "alice", Remote: "10.0.0.1:4000"}})
	r.UpdateClientList([]live.PeerInfo{
		{ID: 1, Name: "alice", Remote: "10.0.0.1:4000"},
		{ID: 2, Name: "bob", Remote: "10.0.0.2:4000"},
	})
	r.UpdateClientList([]live.PeerInfo{{ID: 2, Name: "bob", Remote: "10.0.0.2:4000"}})
	r.Kicked("mallory", "Wrong password.")
	r.Disconnect()
	r.Disconnect()

	// StartSession finishes before the first entry is taken off the buffer.
	testutil.WaitFor(t, func() bool { return len(r.ch) == 0 }, 5*time.Second)
	stop()

	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	entries, err := store.Entries(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []recorded{
		{KindMessage, "", "server started"},
		{KindChat, "alice", "hi"},
		{KindJoin, "alice", "10.0.0.1:4000"},
		{KindJoin, "bob", "10.0.0.2:4000"},
		{KindLeave, "alice", ""},
		{KindKick, "mallory", "Wrong password."},
		{KindMessage, "", "session closed"},
	}, summarize(entries))

	sessions, err := store.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "test map", sessions[0].MapName)
	assert.False(t, sessions[0].EndedAt.IsZero(), "session must be closed")

	pane.mu.Lock()
	defer pane.mu.Unlock()
	assert.Equal(t, []string{"server started", "mallory was kicked: Wrong password."}, pane.messages)
	assert.Equal(t, []string{"alice: hi"}, pane.chats)
	assert.Equal(t, 1, pane.peers)
	assert.Equal(t, 1, pane.closed)
}

func TestRecorder_NilNext(t *testing.T) {
	store := openSQLite(t)
	r := NewRecorder(store, NewSession("m", "h"), nil, 4)
	stop := runRecorder(t, r)

	r.Chat("alice", "solo")
	r.Kicked("bob", "Server is full.")
	testutil.WaitFor(t, func() bool { return len(r.ch) == 0 }, 5*time.Second)
	stop()

	entries, err := store.Entries(testutil.ContextWithTimeout(t, 5*time.Second), r.Session().ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	r := NewRecorder(nil, NewSession("m", "h"), nil, 2)

	for range 5 {
		r.Message("spam")
	}
	assert.Len(t, r.ch, 2)
}

func TestRecorder_LiveSession(t *testing.T) {
	store := openSQLite(t)
	pane := &paneLog{}

	d := live.NewDispatcher(64)
	dctx, dcancel := context.WithCancel(context.Background())
	ddone := make(chan struct{})
	go func() {
		defer close(ddone)
		_ = d.Run(dctx)
	}()
	t.Cleanup(func() {
		dcancel()
		<-ddone
	})

	r := NewRecorder(store, NewSession("test map", "host"), pane, 0)
	stop := runRecorder(t, r)

	srv, err := live.NewServer(testutil.ServerConfig(), testutil.NewMap(t), d, r)
	require.NoError(t, err)
	ln, addr := testutil.ListenTCP(t)
	sctx, scancel := context.WithCancel(context.Background())
	sdone := make(chan error, 1)
	go func() { sdone <- srv.Serve(sctx, ln) }()
	t.Cleanup(func() {
		scancel()
		<-sdone
	})

	// A wrong password is kicked and journaled under the remote address.
	bad := testutil.ClientConfig(t, addr)
	bad.Name = "mallory"
	bad.Password = "wrong"
	mallory, err := live.NewClient(bad, d, nil, nil)
	require.NoError(t, err)
	require.NoError(t, mallory.Connect(testutil.ContextWithTimeout(t, 5*time.Second)))
	require.ErrorIs(t, mallory.Run(context.Background()), live.ErrKicked)

	good := testutil.ClientConfig(t, addr)
	good.Name = "alice"
	alice, err := live.NewClient(good, d, nil, nil)
	require.NoError(t, err)
	require.NoError(t, alice.Connect(testutil.ContextWithTimeout(t, 5*time.Second)))
	adone := make(chan error, 1)
	go func() { adone <- alice.Run(context.Background()) }()

	testutil.WaitFor(t, func() bool { return pane.Peers() == 1 }, 5*time.Second)
	require.NoError(t, d.Do(testutil.ContextWithTimeout(t, 2*time.Second), func() {
		require.NoError(t, alice.SendChat("hello"))
	}))
	testutil.WaitFor(t, func() bool {
		pane.mu.Lock()
		defer pane.mu.Unlock()
		return len(pane.chats) == 1
	}, 5*time.Second)

	alice.Close()
	require.NoError(t, <-adone)
	testutil.WaitFor(t, func() bool { return pane.Peers() == 0 }, 5*time.Second)
	testutil.WaitFor(t, func() bool { return len(r.ch) == 0 }, 5*time.Second)
	stop()

	entries, err := store.Entries(testutil.ContextWithTimeout(t, 5*time.Second), r.Session().ID)
	require.NoError(t, err)

	var kinds []recorded
	for _, e := range summarize(entries) {
		if e.Kind == KindMessage {
			continue
		}
		if e.Kind == KindJoin {
			e.Text = "" // ephemeral peer address
		}
		kinds = append(kinds, e)
	}
	require.Len(t, kinds, 4)
	assert.Equal(t, KindKick, kinds[0].Kind)
	assert.Equal(t, "Wrong password.", kinds[0].Text)
	assert.Equal(t, recorded{KindJoin, "alice", ""}, kinds[1])
	assert.Equal(t, recorded{KindChat, "alice", "hello"}, kinds[2])
	assert.Equal(t, recorded{KindLeave, "alice", ""}, kinds[3])
}
