package model

import "image"

// TileReference identifies one network fetch and the position at which its
// decoded pixels belong in the target raster. Position is a pixel offset,
// never a tile index. Once produced it is immutable.
type TileReference struct {
	URL      string
	Position image.Point
}

// Tile pairs a TileReference with its decoded pixel buffer. Width/height
// come from Img.Bounds(); callers must clip at the right/bottom edges of
// the owning ZoomLevel before pasting (see Canvas implementations).
type Tile struct {
	Ref TileReference
	Img image.Image
}

func (t Tile) Width() int  { return t.Img.Bounds().Dx() }
func (t Tile) Height() int { return t.Img.Bounds().Dy() }
