package constants

// Map Geometry Constants
const (
	// MapLayers is the number of floors (z 0..15)
	MapLayers = 16

	// GroundLayer is the sea level floor; floors above it (z <= 7) are surface
	GroundLayer = 7

	// MapMaxWidth is the largest accepted map width in tiles
	MapMaxWidth = 65000

	// MapMaxHeight is the largest accepted map height in tiles
	MapMaxHeight = 65000

	// MapMaxLayer is the highest floor index
	MapMaxLayer = 15
)

// Spatial Index Constants
//
// Leaves hold 4x4 tiles per floor; the tree fans out 4x4 per level,
// so the root cell spans 65536 tiles per axis.
const (
	// LeafSize is the number of tiles per leaf side
	LeafSize = 4

	// LeafShift is log2(LeafSize)
	LeafShift = 2

	// TilesPerFloor is the number of tiles in one leaf floor
	TilesPerFloor = LeafSize * LeafSize

	// RootCellSize is the tile span of one root child
	RootCellSize = 16384

	// NodeCoordBits is the width of ndx/ndy in a packed node id
	NodeCoordBits = 14

	// NodeCoordMask masks one node coordinate
	NodeCoordMask = 1<<NodeCoordBits - 1
)

// Floor Mask Constants
const (
	// SurfaceFloorMask selects floors 0..7
	SurfaceFloorMask = 0x00FF

	// UndergroundFloorMask selects floors 8..15
	UndergroundFloorMask = 0xFF00
)

// Map File Constants
const (
	// TileAreaSize is the side of one TILE_AREA node in map files
	TileAreaSize = 256

	// MapFileVersion is the map file structure version written by SaveFile
	MapFileVersion = 2
)
