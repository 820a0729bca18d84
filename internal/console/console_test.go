package console

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/brush"
	"github.com/udisondev/livemap/internal/config"
	"github.com/udisondev/livemap/internal/editor"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/testutil"
)

func inline(_ context.Context, fn func()) error {
	fn()
	return nil
}

func newConsole(t *testing.T) (*Console, *editor.Session, *bytes.Buffer) {
	t.Helper()
	doc := testutil.NewMap(t)
	undo := config.DefaultUndo()
	undo.StackingDelay = 0
	s := editor.NewSession(doc, action.NewQueue(doc, undo), undo, nil, nil)
	s.SetRand(rand.New(rand.NewPCG(1, 2)))

	out := &bytes.Buffer{}
	return &Console{
		Do:      inline,
		Session: func() *editor.Session { return s },
		Out:     out,
	}, s, out
}

func hasItem(tile *model.Tile, id uint16) bool {
	for _, it := range tile.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func TestConsole_DrawAndUndo(t *testing.T) {
	c, s, out := newConsole(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "/draw dirt 0 0 2 1 7"))
	assert.Contains(t, out.String(), "draw dirt: 6 changes")
	assert.Equal(t, uint16(103), s.Map().Tile(model.Pos(2, 1, 7)).Ground.ID)

	require.NoError(t, c.Exec(ctx, "/DRAW Fir Tree 3 3 7"))
	assert.True(t, hasItem(s.Map().Tile(model.Pos(3, 3, 7)), 2700))

	require.NoError(t, c.Exec(ctx, "/undo"))
	assert.False(t, hasItem(s.Map().Tile(model.Pos(3, 3, 7)), 2700))
	require.NoError(t, c.Exec(ctx, "/undo"))
	assert.Equal(t, uint16(100), s.Map().Tile(model.Pos(2, 1, 7)).Ground.ID)

	out.Reset()
	require.NoError(t, c.Exec(ctx, "/undo"))
	assert.Equal(t, "nothing to undo\n", out.String())

	require.NoError(t, c.Exec(ctx, "/redo"))
	assert.Equal(t, uint16(103), s.Map().Tile(model.Pos(0, 0, 7)).Ground.ID)
}

func TestConsole_EraseMultiWordBrush(t *testing.T) {
	c, s, _ := newConsole(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "/draw stone wall 1 1 3 1 7"))
	require.NoError(t, c.Exec(ctx, "/erase stone wall 1 1 3 1 7"))
	for x := 1; x <= 3; x++ {
		assert.Empty(t, s.Map().Tile(model.Pos(x, 1, 7)).Items)
	}
}

func TestConsole_Tools(t *testing.T) {
	c, s, out := newConsole(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "/wp Depot North 5 5 7"))
	assert.Equal(t, model.Pos(5, 5, 7), s.Map().Waypoint("depot north").Pos)
	require.NoError(t, c.Exec(ctx, "/unwp depot north"))
	assert.Nil(t, s.Map().Waypoint("depot north"))
	assert.Error(t, c.Exec(ctx, "/unwp depot north"))

	require.NoError(t, c.Exec(ctx, "/zone nologout on 0 0 1 0 7"))
	assert.Contains(t, out.String(), "on 2 tiles")
	assert.NotZero(t, s.Map().Tile(model.Pos(1, 0, 7)).Flags&model.FlagNoLogout)

	require.NoError(t, c.Exec(ctx, "/exit 1 3 4 7"))
	assert.Equal(t, model.Pos(3, 4, 7), s.Map().House(1).Exit)

	require.NoError(t, c.Exec(ctx, "/replace 100 4526"))
	assert.Contains(t, out.String(), "replaced")
	assert.Equal(t, uint16(4526), s.Map().Tile(model.Pos(7, 7, 7)).Ground.ID)

	require.NoError(t, c.Exec(ctx, "/clear 0 0 7 7 7"))
	assert.Contains(t, out.String(), "cleared 64 tiles")
	assert.True(t, s.Map().Tile(model.Pos(0, 0, 7)).Empty())
}

func TestConsole_Errors(t *testing.T) {
	c, _, _ := newConsole(t)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"/teleport", "unknown command"},
		{"/draw", "usage: /draw"},
		{"/draw lava 1 1 7", `unknown brush "lava"`},
		{"/clear 0 0 1 7", "usage: /clear"},
		{"/clear 0 0 1000 1000 7", "exceeds"},
		{"/zone pz maybe 0 0 1 1 7", "usage: /zone"},
		{"/replace 0 5", "usage: /replace"},
		{"/door 1 1 7", "nothing changed"},
		{"/draw grass 10 10 256", "floor 256 out of range"},
		{"/draw grass 0 0 1 1 16", "floor 16 out of range"},
		{"/clear 0 0 1 1 300", "floor 300 out of range"},
		{"/door 1 1 16", "floor 16 out of range"},
		{"/wp Temple 1 1 99", "floor 99 out of range"},
		{"/exit 1 5 4 256", "floor 256 out of range"},
		{"/zone pz on 0 0 1 1 16", "floor 16 out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			err := c.Exec(ctx, tt.line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.ErrorIs(t, c.Exec(ctx, "hello"), ErrUnavailable)
	assert.ErrorIs(t, c.Exec(ctx, "/save map.otbm"), ErrUnavailable)
	assert.ErrorIs(t, c.Exec(ctx, "/view 0 0 1 1 7"), ErrUnavailable)
	assert.NoError(t, c.Exec(ctx, "   "))
	assert.NoError(t, c.Exec(ctx, "/"))
}

func TestConsole_NotReady(t *testing.T) {
	c := &Console{Do: inline, Out: &bytes.Buffer{}}
	assert.ErrorIs(t, c.Exec(context.Background(), "/undo"), ErrNotReady)
	assert.ErrorIs(t, c.Exec(context.Background(), "/brushes"), ErrNotReady)
}

func TestConsole_Hooks(t *testing.T) {
	c, _, out := newConsole(t)
	ctx := context.Background()

	var said, saved []string
	var viewed [][5]int
	c.Say = func(text string) error { said = append(said, text); return nil }
	c.Save = func(path string) error { saved = append(saved, path); return nil }
	c.View = func(x1, y1, x2, y2, z int) error {
		viewed = append(viewed, [5]int{x1, y1, x2, y2, z})
		return nil
	}
	c.Who = func() []string { return []string{"alice", "bob"} }

	require.NoError(t, c.Exec(ctx, "  hi there "))
	require.NoError(t, c.Exec(ctx, "/save out.otbm.gz"))
	require.NoError(t, c.Exec(ctx, "/view 0 0 31 31 7"))
	require.NoError(t, c.Exec(ctx, "/who"))
	assert.ErrorContains(t, c.Exec(ctx, "/view 0 0 31 31 16"), "floor 16 out of range")

	assert.Equal(t, []string{"hi there"}, said)
	assert.Equal(t, []string{"out.otbm.gz"}, saved)
	assert.Equal(t, [][5]int{{0, 0, 31, 31, 7}}, viewed)
	assert.Contains(t, out.String(), "2 connected: alice, bob")
}

func TestConsole_DispatcherError(t *testing.T) {
	c, _, _ := newConsole(t)
	stopped := errors.New("dispatcher stopped")
	c.Do = func(context.Context, func()) error { return stopped }
	assert.ErrorIs(t, c.Exec(context.Background(), "/undo"), stopped)
}

func TestConsole_RunPrintsErrorsAndContinues(t *testing.T) {
	c, s, out := newConsole(t)

	input := strings.Join([]string{
		"/help",
		"/brushes",
		"/nope",
		"/draw sea 0 0 7",
	}, "\n")
	require.NoError(t, c.Run(context.Background(), strings.NewReader(input)))

	assert.Contains(t, out.String(), "/draw <brush>")
	assert.Contains(t, out.String(), "stone wall")
	assert.Contains(t, out.String(), `error: unknown command "nope"`)
	assert.Equal(t, uint16(4608), s.Map().Tile(model.Pos(0, 0, 7)).Ground.ID)
	assert.Equal(t, brush.DefaultPalette().Len(), len(s.Palette().Names()))
}
