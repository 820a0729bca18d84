package otbm

import (
	"fmt"

	"github.com/udisondev/livemap/internal/model"
)

// EncodeTiles writes tiles as children of an implicit root: the stream has no
// leading root NodeStart but ends with the root NodeEnd.
func EncodeTiles(w *Writer, tiles []*model.Tile, coords TileCoords) ([]byte, error) {
	w.Reset()
	for _, t := range tiles {
		if err := WriteTile(w, t, coords); err != nil {
			return nil, err
		}
	}
	w.EndNode()
	return w.Bytes(), nil
}

// DecodeTileNodes parses a stream produced by EncodeTiles.
func DecodeTileNodes(data []byte) ([]*Node, error) {
	nodes, err := ParseChildren(data)
	if err != nil {
		return nil, fmt.Errorf("parsing tile stream: %w", err)
	}
	return nodes, nil
}
