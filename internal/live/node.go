package live

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/otbm"
	"github.com/udisondev/livemap/internal/protocol"
	"github.com/udisondev/livemap/internal/world"
)

// writeNode appends a NODE record for the floors of leaf selected by floorMask.
// floorMask must lie within one half (surface or underground).
//
// Layout: u32 node id, u16 floors, then per floor a u16 tile mask and, when
// the mask is non-zero, a string holding the masked tiles in index order.
func writeNode(m *protocol.Message, w *otbm.Writer, leaf *world.Leaf, floorMask uint16) error {
	underground := floorMask&constants.UndergroundFloorMask != 0
	id := leaf.ID(underground)
	floors := leaf.FloorMask() & floorMask

	m.WriteType(protocol.Node)
	m.WriteU32(id)
	m.WriteU16(floors)

	tiles := make([]*model.Tile, 0, constants.TilesPerFloor)
	for z := range constants.MapLayers {
		if floors&(1<<z) == 0 {
			continue
		}
		f := leaf.Floor(z)
		mask := f.TileMask()
		m.WriteU16(mask)
		if mask == 0 {
			continue
		}

		tiles = tiles[:0]
		for i := range constants.TilesPerFloor {
			if mask&(1<<i) != 0 {
				tiles = append(tiles, f.Tile(i))
			}
		}
		data, err := otbm.EncodeTiles(w, tiles, otbm.CoordsNone)
		if err != nil {
			return fmt.Errorf("encoding node %d floor %d: %w", id, z, err)
		}
		if err := m.WriteBytes(data); err != nil {
			return fmt.Errorf("node %d floor %d: %w", id, z, err)
		}
	}
	return nil
}

// nodeFloor is one floor of a received NODE record.
type nodeFloor struct {
	z    int
	mask uint16
	data []byte
}

// nodeRecord is a parsed NODE record. data slices alias the message.
type nodeRecord struct {
	id     uint32
	floors []nodeFloor
}

// readNode parses a NODE payload without touching the document.
func readNode(r *protocol.Reader) (nodeRecord, error) {
	var n nodeRecord
	id, err := r.ReadU32()
	if err != nil {
		return n, fmt.Errorf("node id: %w", err)
	}
	n.id = id

	floors, err := r.ReadU16()
	if err != nil {
		return n, fmt.Errorf("node %d floors: %w", id, err)
	}
	n.floors = make([]nodeFloor, 0, bits.OnesCount16(floors))
	for z := range constants.MapLayers {
		if floors&(1<<z) == 0 {
			continue
		}
		f := nodeFloor{z: z}
		if f.mask, err = r.ReadU16(); err != nil {
			return n, fmt.Errorf("node %d floor %d mask: %w", id, z, err)
		}
		if f.mask != 0 {
			if f.data, err = r.ReadBytes(); err != nil {
				return n, fmt.Errorf("node %d floor %d tiles: %w", id, z, err)
			}
		}
		n.floors = append(n.floors, f)
	}
	return n, nil
}

// nodeChanges turns a received floor into tile changes on a. Positions not
// in the mask become empty tiles. Undecodable floors are skipped.
func nodeChanges(a *action.Action, ndx, ndy int, f nodeFloor) {
	baseX := ndx * constants.LeafSize
	baseY := ndy * constants.LeafSize
	posAt := func(i int) model.Position {
		return model.Pos(baseX+i/constants.LeafSize, baseY+i%constants.LeafSize, f.z)
	}

	var nodes []*otbm.Node
	if f.mask != 0 {
		var err error
		nodes, err = otbm.DecodeTileNodes(f.data)
		if err != nil {
			slog.Warn("skipping undecodable floor", "ndx", ndx, "ndy", ndy, "z", f.z, "error", err)
			return
		}
		if len(nodes) != bits.OnesCount16(f.mask) {
			slog.Warn("skipping floor with mismatched tile count",
				"ndx", ndx, "ndy", ndy, "z", f.z,
				"mask", bits.OnesCount16(f.mask), "tiles", len(nodes))
			return
		}
	}

	next := 0
	for i := range constants.TilesPerFloor {
		pos := posAt(i)
		if f.mask&(1<<i) == 0 {
			a.AddChange(action.NewTileChange(model.NewTile(pos)))
			continue
		}
		n := nodes[next]
		next++
		t, err := otbm.ReadTile(n, otbm.CoordsNone, pos)
		if err != nil {
			slog.Warn("skipping undecodable tile", "pos", pos, "error", err)
			continue
		}
		a.AddChange(action.NewTileChange(t))
	}
}
