package otbm

import (
	"bufio"
	"bytes"
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"

	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/world"
)

var fileIdentifier = [4]byte{'O', 'T', 'B', 'M'}

// IsCompressedPath reports whether path names a gzip-compressed map.
func IsCompressedPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".otgz")
}

// LoadFile reads a .otbm or .otgz map. The map is named after the file.
func LoadFile(path string) (*world.Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening map %s: %w", path, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m, err := Load(f, name)
	if err != nil {
		return nil, fmt.Errorf("loading map %s: %w", path, err)
	}

	if st, err := f.Stat(); err == nil {
		slog.Info("map loaded",
			"path", path,
			"size", humanize.Bytes(uint64(st.Size())),
			"tiles", humanize.Comma(int64(m.TileCount())),
			"houses", len(m.Houses()),
			"dimensions", fmt.Sprintf("%dx%d", m.Width(), m.Height()))
	}
	return m, nil
}

// Load reads a map from r. Gzip input is detected by its magic bytes.
func Load(r io.Reader, name string) (*world.Map, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading map data: %w", err)
	}
	return decodeMap(data, name)
}

func decodeMap(data []byte, name string) (*world.Map, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("file too short: %w", ErrMalformedNode)
	}
	if !bytes.Equal(data[:4], fileIdentifier[:]) && !bytes.Equal(data[:4], []byte{0, 0, 0, 0}) {
		return nil, fmt.Errorf("unknown file identifier %x: %w", data[:4], ErrMalformedNode)
	}

	root, _, err := Parse(data[4:])
	if err != nil {
		return nil, fmt.Errorf("parsing root node: %w", err)
	}

	r := root.Reader()
	version, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("root header: %w", err)
	}
	if version > constants.MapFileVersion {
		return nil, fmt.Errorf("unsupported map version %d", version)
	}
	width, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("root header: %w", err)
	}
	height, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("root header: %w", err)
	}
	itemsMajor, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("root header: %w", err)
	}

	m := world.New(name, int(width), int(height))
	m.SetClientVersion(itemsMajor)

	if len(root.Children) == 0 || root.Children[0].Type != NodeMapData {
		return nil, fmt.Errorf("missing map data node: %w", ErrMalformedNode)
	}
	mapData := root.Children[0]
	if err := readMapData(m, mapData); err != nil {
		return nil, err
	}
	return m, nil
}

func readMapData(m *world.Map, n *Node) error {
	r := n.Reader()
	for r.Remaining() > 0 {
		attr, _ := r.ReadU8()
		switch attr {
		case AttrDescription:
			desc, err := r.ReadString()
			if err != nil {
				return fmt.Errorf("map description: %w", err)
			}
			m.SetDescription(desc)
		default:
			return fmt.Errorf("unknown map attribute %d: %w", attr, ErrMalformedNode)
		}
	}

	for _, child := range n.Children {
		var err error
		switch child.Type {
		case NodeTileArea:
			err = readTileArea(m, child)
		case NodeTowns:
			err = readTowns(m, child)
		case NodeWaypoints:
			err = readWaypoints(m, child)
		case NodeHouses:
			err = readHouses(m, child)
		default:
			slog.Warn("skipping unknown map node", "type", child.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readTileArea(m *world.Map, n *Node) error {
	base, err := n.Reader().ReadPosition()
	if err != nil {
		return fmt.Errorf("tile area header: %w", err)
	}
	for _, child := range n.Children {
		t, err := ReadTile(child, CoordsAreaOffset, base)
		if err != nil {
			return err
		}
		m.SetTile(t)
	}
	return nil
}

func readTowns(m *world.Map, n *Node) error {
	for _, child := range n.Children {
		if child.Type != NodeTown {
			continue
		}
		r := child.Reader()
		id, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("town id: %w", err)
		}
		name, err := r.ReadString()
		if err != nil {
			return fmt.Errorf("town %d name: %w", id, err)
		}
		temple, err := r.ReadPosition()
		if err != nil {
			return fmt.Errorf("town %d temple: %w", id, err)
		}
		m.AddTown(&model.Town{ID: id, Name: name, Temple: temple})
	}
	return nil
}

func readWaypoints(m *world.Map, n *Node) error {
	for _, child := range n.Children {
		if child.Type != NodeWaypoint {
			continue
		}
		r := child.Reader()
		name, err := r.ReadString()
		if err != nil {
			return fmt.Errorf("waypoint name: %w", err)
		}
		pos, err := r.ReadPosition()
		if err != nil {
			return fmt.Errorf("waypoint %q position: %w", name, err)
		}
		m.SwapWaypoint(name, pos, true)
	}
	return nil
}

func readHouses(m *world.Map, n *Node) error {
	for _, child := range n.Children {
		if child.Type != NodeHouse {
			continue
		}
		h, err := ReadHouse(child.Reader())
		if err != nil {
			return err
		}
		m.AddHouse(h)
	}
	return nil
}

// ReadHouse reads house props: u32 id, string name, u32 town, u32 rent, u8 has exit, position exit.
func ReadHouse(r *PropReader) (*model.House, error) {
	h := &model.House{}
	var err error
	if h.ID, err = r.ReadU32(); err != nil {
		return nil, fmt.Errorf("house id: %w", err)
	}
	if h.Name, err = r.ReadString(); err != nil {
		return nil, fmt.Errorf("house %d name: %w", h.ID, err)
	}
	if h.TownID, err = r.ReadU32(); err != nil {
		return nil, fmt.Errorf("house %d town: %w", h.ID, err)
	}
	if h.Rent, err = r.ReadU32(); err != nil {
		return nil, fmt.Errorf("house %d rent: %w", h.ID, err)
	}
	hasExit, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("house %d exit flag: %w", h.ID, err)
	}
	h.HasExit = hasExit != 0
	if h.Exit, err = r.ReadPosition(); err != nil {
		return nil, fmt.Errorf("house %d exit: %w", h.ID, err)
	}
	return h, nil
}

// SaveFile writes m to path, gzip-compressed when the extension is .otgz.
// The file is written to a temporary name first and renamed into place.
func SaveFile(m *world.Map, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	var w io.Writer = f
	var zw *gzip.Writer
	if IsCompressedPath(path) {
		zw = gzip.NewWriter(f)
		w = zw
	}

	err = Save(w, m)
	if zw != nil {
		if cerr := zw.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing gzip stream: %w", cerr)
		}
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing %s: %w", tmp, cerr)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	slog.Info("map saved", "path", path, "tiles", humanize.Comma(int64(m.TileCount())))
	return nil
}

type areaKey struct {
	x, y uint16
	z    uint8
}

// Save writes m as an uncompressed map stream.
func Save(out io.Writer, m *world.Map) error {
	w := NewWriter(64 * 1024)

	w.StartNode(NodeRoot)
	w.WriteU32(constants.MapFileVersion)
	w.WriteU16(uint16(m.Width()))
	w.WriteU16(uint16(m.Height()))
	w.WriteU32(m.ClientVersion())
	w.WriteU32(0)

	w.StartNode(NodeMapData)
	if m.Description() != "" {
		w.WriteU8(AttrDescription)
		if err := w.WriteString(m.Description()); err != nil {
			return fmt.Errorf("map description: %w", err)
		}
	}

	areas := make(map[areaKey][]*model.Tile)
	m.Tiles(func(t *model.Tile) bool {
		if t.Empty() && t.HouseID == 0 && t.Flags == 0 {
			return true
		}
		key := areaKey{x: t.Pos.X &^ (constants.TileAreaSize - 1), y: t.Pos.Y &^ (constants.TileAreaSize - 1), z: t.Pos.Z}
		areas[key] = append(areas[key], t)
		return true
	})
	keys := make([]areaKey, 0, len(areas))
	for k := range areas {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b areaKey) int {
		return cmp.Or(cmp.Compare(a.z, b.z), cmp.Compare(a.x, b.x), cmp.Compare(a.y, b.y))
	})

	for _, k := range keys {
		w.StartNode(NodeTileArea)
		w.WritePosition(model.Position{X: k.x, Y: k.y, Z: k.z})
		for _, t := range areas[k] {
			if err := WriteTile(w, t, CoordsAreaOffset); err != nil {
				return err
			}
		}
		w.EndNode()
	}

	w.StartNode(NodeTowns)
	for _, town := range m.Towns() {
		w.StartNode(NodeTown)
		w.WriteU32(town.ID)
		if err := w.WriteString(town.Name); err != nil {
			return fmt.Errorf("town %d: %w", town.ID, err)
		}
		w.WritePosition(town.Temple)
		w.EndNode()
	}
	w.EndNode()

	w.StartNode(NodeWaypoints)
	for _, wp := range m.Waypoints() {
		w.StartNode(NodeWaypoint)
		if err := w.WriteString(wp.Name); err != nil {
			return fmt.Errorf("waypoint: %w", err)
		}
		w.WritePosition(wp.Pos)
		w.EndNode()
	}
	w.EndNode()

	w.StartNode(NodeHouses)
	for _, h := range m.Houses() {
		w.StartNode(NodeHouse)
		if err := WriteHouse(w, h); err != nil {
			return err
		}
		w.EndNode()
	}
	w.EndNode()

	w.EndNode() // map data
	w.EndNode() // root

	if _, err := out.Write(fileIdentifier[:]); err != nil {
		return fmt.Errorf("writing identifier: %w", err)
	}
	if _, err := out.Write(w.Bytes()); err != nil {
		return fmt.Errorf("writing nodes: %w", err)
	}
	return nil
}

// WriteHouse writes the props read by ReadHouse.
func WriteHouse(w *Writer, h *model.House) error {
	w.WriteU32(h.ID)
	if err := w.WriteString(h.Name); err != nil {
		return fmt.Errorf("house %d name: %w", h.ID, err)
	}
	w.WriteU32(h.TownID)
	w.WriteU32(h.Rent)
	w.WriteU8(boolByte(h.HasExit))
	w.WritePosition(h.Exit)
	return nil
}
