package world

import "github.com/udisondev/livemap/internal/constants"

// EncodeNodeID packs node coordinates and the underground flag:
//
//	id = ndx<<18 | ndy<<4 | underground
//
// ndx and ndy are tile coordinates divided by the leaf size and must fit in 14 bits.
func EncodeNodeID(ndx, ndy int, underground bool) uint32 {
	id := uint32(ndx&constants.NodeCoordMask)<<18 | uint32(ndy&constants.NodeCoordMask)<<4
	if underground {
		id |= 1
	}
	return id
}

// DecodeNodeID is the inverse of EncodeNodeID.
func DecodeNodeID(id uint32) (ndx, ndy int, underground bool) {
	ndx = int(id>>18) & constants.NodeCoordMask
	ndy = int(id>>4) & constants.NodeCoordMask
	underground = id&1 != 0
	return ndx, ndy, underground
}

// NodeCoords converts a tile coordinate pair to node coordinates.
func NodeCoords(x, y int) (ndx, ndy int) {
	return x >> constants.LeafShift, y >> constants.LeafShift
}

// FloorMask returns the floors half selected by underground.
func FloorMask(underground bool) uint16 {
	if underground {
		return constants.UndergroundFloorMask
	}
	return constants.SurfaceFloorMask
}
