// Package console is the line-oriented front end of the live tools.
//
// Lines starting with "/" are editor commands, anything else is chat.
// Commands run on the document dispatcher through Do.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/udisondev/livemap/internal/brush"
	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/editor"
	"github.com/udisondev/livemap/internal/model"
)

// ErrNotReady is returned for editor commands before a map is loaded.
var ErrNotReady = errors.New("no map loaded")

// ErrUnavailable is returned for commands the current tool does not offer.
var ErrUnavailable = errors.New("command not available")

// Console executes commands against an editor session.
// Session, Say, Save and View are optional.
type Console struct {
	// Do runs fn on the document dispatcher.
	Do func(ctx context.Context, fn func()) error
	// Session returns the current session or nil.
	Session func() *editor.Session
	// Say sends a chat line.
	Say func(text string) error
	// Save writes the map to path.
	Save func(path string) error
	// View mirrors the given area from the host.
	View func(x1, y1, x2, y2, z int) error
	// Who lists connected peers.
	Who func() []string

	Out io.Writer
}

type command struct {
	usage string
	run   func(c *Console, s *editor.Session, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"undo":    {"/undo", (*Console).undo},
		"redo":    {"/redo", (*Console).redo},
		"draw":    {"/draw <brush> x y z | x1 y1 x2 y2 z", (*Console).draw},
		"erase":   {"/erase <brush> x y z | x1 y1 x2 y2 z", (*Console).erase},
		"clear":   {"/clear x1 y1 x2 y2 z", (*Console).clear},
		"replace": {"/replace <from> <to>", (*Console).replace},
		"door":    {"/door x y z", (*Console).door},
		"wp":      {"/wp <name> x y z", (*Console).waypoint},
		"unwp":    {"/unwp <name>", (*Console).unwaypoint},
		"exit":    {"/exit <house> x y z", (*Console).houseExit},
		"zone":    {"/zone pz|nopvp|nologout|pvp on|off x1 y1 x2 y2 z", (*Console).zone},
		"brushes": {"/brushes", nil},
		"save":    {"/save <path>", nil},
		"view":    {"/view x1 y1 x2 y2 z", nil},
		"who":     {"/who", nil},
		"help":    {"/help", nil},
	}
}

// Run executes every line read from r until EOF or ctx is cancelled.
// Command errors are printed, not returned.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.Exec(ctx, sc.Text()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(c.Out, "error: %v\n", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading console: %w", err)
	}
	return nil
}

// Exec runs one line.
func (c *Console) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if c.Say == nil {
			return fmt.Errorf("chat: %w", ErrUnavailable)
		}
		return c.onDispatcher(ctx, func() error { return c.Say(line) })
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	slog.Debug("console command", "name", name, "args", args)

	switch name {
	case "help":
		c.help()
		return nil
	case "save":
		if c.Save == nil {
			return fmt.Errorf("save: %w", ErrUnavailable)
		}
		if len(args) != 1 {
			return usageError("save")
		}
		return c.onDispatcher(ctx, func() error { return c.Save(args[0]) })
	case "view":
		if c.View == nil {
			return fmt.Errorf("view: %w", ErrUnavailable)
		}
		v, err := ints(args, 5)
		if err != nil {
			return usageError("view")
		}
		if err := checkFloor(v[4]); err != nil {
			return err
		}
		return c.onDispatcher(ctx, func() error { return c.View(v[0], v[1], v[2], v[3], v[4]) })
	case "who":
		if c.Who == nil {
			return fmt.Errorf("who: %w", ErrUnavailable)
		}
		var names []string
		if err := c.Do(ctx, func() { names = c.Who() }); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "%d connected: %s\n", len(names), strings.Join(names, ", "))
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try /help", name)
	}
	return c.onDispatcher(ctx, func() error {
		s := c.session()
		if s == nil {
			return ErrNotReady
		}
		if name == "brushes" {
			c.brushes(s)
			return nil
		}
		return cmd.run(c, s, args)
	})
}

func (c *Console) onDispatcher(ctx context.Context, fn func() error) error {
	var err error
	if derr := c.Do(ctx, func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

func (c *Console) session() *editor.Session {
	if c.Session == nil {
		return nil
	}
	return c.Session()
}

func (c *Console) help() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(c.Out, commands[name].usage)
	}
	fmt.Fprintln(c.Out, "anything else is sent as chat")
}

func (c *Console) brushes(s *editor.Session) {
	for _, name := range s.Palette().Names() {
		b, _ := s.Palette().Brush(name)
		fmt.Fprintf(c.Out, "%-16s %s\n", name, b.Kind())
	}
}

func (c *Console) undo(s *editor.Session, _ []string) error {
	if !s.Undo() {
		fmt.Fprintln(c.Out, "nothing to undo")
	}
	return nil
}

func (c *Console) redo(s *editor.Session, _ []string) error {
	if !s.Redo() {
		fmt.Fprintln(c.Out, "nothing to redo")
	}
	return nil
}

func (c *Console) draw(s *editor.Session, args []string) error {
	return c.stroke(s, "draw", args, s.Draw)
}

func (c *Console) erase(s *editor.Session, args []string) error {
	return c.stroke(s, "erase", args, s.Erase)
}

func (c *Console) stroke(s *editor.Session, name string, args []string, apply func(b brush.Brush, positions []model.Position) (int, error)) error {
	brushName, area, err := brushArea(args)
	if errors.Is(err, errMissingArea) {
		return usageError(name)
	}
	if err != nil {
		return err
	}
	b, err := s.Brush(brushName)
	if err != nil {
		return err
	}
	n, err := apply(b, area)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%s %s: %s changes\n", name, b.Name(), humanize.Comma(int64(n)))
	return nil
}

func (c *Console) clear(s *editor.Session, args []string) error {
	v, err := ints(args, 5)
	if err != nil {
		return usageError("clear")
	}
	area, err := rect(v[0], v[1], v[2], v[3], v[4])
	if err != nil {
		return err
	}
	n := s.Clear(area)
	fmt.Fprintf(c.Out, "cleared %s tiles\n", humanize.Comma(int64(n)))
	return nil
}

func (c *Console) replace(s *editor.Session, args []string) error {
	v, err := ints(args, 2)
	if err != nil || v[0] == 0 || v[1] == 0 {
		return usageError("replace")
	}
	n, err := s.ReplaceItems(uint16(v[0]), uint16(v[1]))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "replaced %s items\n", humanize.Comma(int64(n)))
	return nil
}

func (c *Console) door(s *editor.Session, args []string) error {
	v, err := ints(args, 3)
	if err != nil {
		return usageError("door")
	}
	pos, err := position(v[0], v[1], v[2])
	if err != nil {
		return err
	}
	return s.SwitchDoor(pos)
}

func (c *Console) waypoint(s *editor.Session, args []string) error {
	if len(args) < 4 {
		return usageError("wp")
	}
	v, err := ints(args[len(args)-3:], 3)
	if err != nil {
		return usageError("wp")
	}
	pos, err := position(v[0], v[1], v[2])
	if err != nil {
		return err
	}
	return s.PlaceWaypoint(strings.Join(args[:len(args)-3], " "), pos)
}

func (c *Console) unwaypoint(s *editor.Session, args []string) error {
	if len(args) == 0 {
		return usageError("unwp")
	}
	name := strings.Join(args, " ")
	if !s.RemoveWaypoint(name) {
		return fmt.Errorf("no waypoint %q", name)
	}
	return nil
}

func (c *Console) houseExit(s *editor.Session, args []string) error {
	v, err := ints(args, 4)
	if err != nil || v[0] <= 0 {
		return usageError("exit")
	}
	pos, err := position(v[1], v[2], v[3])
	if err != nil {
		return err
	}
	return s.SetHouseExit(uint32(v[0]), pos)
}

var zoneFlags = map[string]model.MapFlags{
	"pz":       model.FlagProtectionZone,
	"nopvp":    model.FlagNoPVP,
	"nologout": model.FlagNoLogout,
	"pvp":      model.FlagPVPZone,
}

func (c *Console) zone(s *editor.Session, args []string) error {
	if len(args) != 7 {
		return usageError("zone")
	}
	flag, ok := zoneFlags[strings.ToLower(args[0])]
	if !ok {
		return usageError("zone")
	}
	var on bool
	switch strings.ToLower(args[1]) {
	case "on":
		on = true
	case "off":
	default:
		return usageError("zone")
	}
	v, err := ints(args[2:], 5)
	if err != nil {
		return usageError("zone")
	}
	area, err := rect(v[0], v[1], v[2], v[3], v[4])
	if err != nil {
		return err
	}
	n := s.SetZone(area, flag, on)
	fmt.Fprintf(c.Out, "zone %s %s on %s tiles\n", args[0], args[1], humanize.Comma(int64(n)))
	return nil
}

func usageError(name string) error {
	return fmt.Errorf("usage: %s", commands[name].usage)
}

func ints(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		if v < 0 || v > 0xFFFF {
			return nil, fmt.Errorf("argument %d out of range", i+1)
		}
		out[i] = v
	}
	return out, nil
}

// brushArea splits "<brush name> x y z" or "<brush name> x1 y1 x2 y2 z".
// Brush names may contain spaces.
func brushArea(args []string) (string, []model.Position, error) {
	for _, n := range []int{5, 3} {
		if len(args) <= n {
			continue
		}
		v, err := ints(args[len(args)-n:], n)
		if err != nil {
			continue
		}
		name := strings.Join(args[:len(args)-n], " ")
		if n == 3 {
			pos, err := position(v[0], v[1], v[2])
			if err != nil {
				return "", nil, err
			}
			return name, []model.Position{pos}, nil
		}
		area, err := rect(v[0], v[1], v[2], v[3], v[4])
		return name, area, err
	}
	return "", nil, errMissingArea
}

var errMissingArea = errors.New("missing brush or area")

// checkFloor rejects z outside 0..15.
func checkFloor(z int) error {
	if z >= constants.MapLayers {
		return fmt.Errorf("floor %d out of range 0..%d", z, constants.MapLayers-1)
	}
	return nil
}

func position(x, y, z int) (model.Position, error) {
	if err := checkFloor(z); err != nil {
		return model.Position{}, err
	}
	return model.Pos(x, y, z), nil
}

// maxArea limits one rectangle command.
const maxArea = 1 << 16

// rect lists the positions of a rectangle on floor z, corners in any order.
func rect(x1, y1, x2, y2, z int) ([]model.Position, error) {
	if err := checkFloor(z); err != nil {
		return nil, err
	}
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	if n := (x2 - x1 + 1) * (y2 - y1 + 1); n > maxArea {
		return nil, fmt.Errorf("area of %s tiles exceeds %s", humanize.Comma(int64(n)), humanize.Comma(maxArea))
	}
	out := make([]model.Position, 0, (x2-x1+1)*(y2-y1+1))
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			out = append(out, model.Pos(x, y, z))
		}
	}
	return out, nil
}
