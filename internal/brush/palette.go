package brush

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PaletteFile is the YAML layout of a brush palette.
type PaletteFile struct {
	Grounds []struct {
		Name  string       `yaml:"name"`
		Items []ItemChance `yaml:"items"`
	} `yaml:"grounds"`

	Walls []struct {
		Name  string    `yaml:"name"`
		Items WallItems `yaml:"items"`
	} `yaml:"walls"`

	Doors []struct {
		Name       string    `yaml:"name"`
		Wall       string    `yaml:"wall"`
		Horizontal DoorItems `yaml:"horizontal"`
		Vertical   DoorItems `yaml:"vertical"`
		Open       bool      `yaml:"open"`
	} `yaml:"doors"`

	Doodads []struct {
		Name      string   `yaml:"name"`
		Items     []uint16 `yaml:"items"`
		OnNothing bool     `yaml:"on_nothing"`
	} `yaml:"doodads"`

	Creatures []struct {
		Name      string        `yaml:"name"`
		SpawnTime time.Duration `yaml:"spawn_time"`
		NPC       bool          `yaml:"npc"`
		AutoSpawn bool          `yaml:"auto_spawn"`
	} `yaml:"creatures"`
}

// Palette is the set of named brushes available to a session.
// Names are case-insensitive.
type Palette struct {
	brushes map[string]Brush
	doors   []*Door
}

// NewPalette creates an empty palette.
func NewPalette() *Palette {
	return &Palette{brushes: make(map[string]Brush)}
}

// Add registers b under its name, replacing a brush with the same name.
func (p *Palette) Add(b Brush) {
	p.brushes[strings.ToLower(b.Name())] = b
	if d, ok := b.(*Door); ok {
		p.doors = append(p.doors, d)
	}
}

// Brush returns a brush by name.
func (p *Palette) Brush(name string) (Brush, bool) {
	b, ok := p.brushes[strings.ToLower(name)]
	return b, ok
}

// Len returns the number of brushes.
func (p *Palette) Len() int { return len(p.brushes) }

// Names returns the registered brush names in sorted order.
func (p *Palette) Names() []string {
	names := make([]string, 0, len(p.brushes))
	for name := range p.brushes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Doors returns every door brush in registration order.
func (p *Palette) Doors() []*Door { return p.doors }

// Build converts the file layout into brushes. Doors must name a wall
// declared in the same file.
func (f PaletteFile) Build() (*Palette, error) {
	p := NewPalette()
	for _, g := range f.Grounds {
		p.Add(NewGround(g.Name, g.Items))
	}

	walls := make(map[string]*Wall, len(f.Walls))
	for _, w := range f.Walls {
		wall := NewWall(w.Name, w.Items)
		walls[strings.ToLower(w.Name)] = wall
		p.Add(wall)
	}
	for _, d := range f.Doors {
		wall, ok := walls[strings.ToLower(d.Wall)]
		if !ok {
			return nil, fmt.Errorf("door %q: unknown wall %q", d.Name, d.Wall)
		}
		p.Add(NewDoor(d.Name, wall, d.Horizontal, d.Vertical, d.Open))
	}

	for _, d := range f.Doodads {
		p.Add(NewDoodad(d.Name, d.Items, d.OnNothing))
	}
	for _, c := range f.Creatures {
		p.Add(NewCreature(c.Name, c.SpawnTime, c.NPC, c.AutoSpawn))
	}
	return p, nil
}

// LoadPalette reads a palette from a YAML file.
// If the file doesn't exist, returns DefaultPalette.
func LoadPalette(path string) (*Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPalette(), nil
		}
		return nil, fmt.Errorf("reading palette %s: %w", path, err)
	}

	var f PaletteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing palette %s: %w", path, err)
	}
	p, err := f.Build()
	if err != nil {
		return nil, fmt.Errorf("building palette %s: %w", path, err)
	}

	slog.Info("loaded brush palette", "path", path, "brushes", p.Len())
	return p, nil
}

// DefaultPalette returns the built-in brushes.
func DefaultPalette() *Palette {
	p := NewPalette()
	p.Add(NewGround("grass", []ItemChance{{ID: 4526, Chance: 60}, {ID: 4527, Chance: 10}, {ID: 4528, Chance: 10}}))
	p.Add(NewGround("dirt", []ItemChance{{ID: 103, Chance: 1}}))
	p.Add(NewGround("sea", []ItemChance{{ID: 4608, Chance: 1}}))
	p.Add(NewGround("cave", []ItemChance{{ID: 351, Chance: 1}}))

	stone := NewWall("stone wall", WallItems{Pole: 1050, Horizontal: 1049, Vertical: 1048, Corner: 1051})
	p.Add(stone)
	p.Add(NewDoor("stone door", stone,
		DoorItems{Closed: 1210, Open: 1211},
		DoorItems{Closed: 1213, Open: 1214},
		false))

	p.Add(NewDoodad("fir tree", []uint16{2700}, false))
	p.Add(NewDoodad("stone pile", []uint16{1285, 1294}, false))

	p.Add(NewCreature("Rat", time.Minute, false, true))
	p.Add(NewCreature("Sam", time.Minute, true, true))
	return p
}
