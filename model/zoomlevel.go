package model

import (
	"context"
	"iter"
)

// ZoomLevel is one pyramid level of a zoomable image: a resolution and a
// finite, lazily-enumerated tile grid. Dimensions may be unknown (a custom
// YAML tile set that declares no width/height).
//
// A ZoomLevel is consumed by exactly one call to Tiles; any metadata the
// enumeration needs should live in closures captured when the ZoomLevel was
// built, not in mutable fields read concurrently by the pipeline.
type ZoomLevel interface {
	Name() string
	// Dimensions reports the level's pixel size. ok is false when the size
	// is not known (a custom YAML tile set without width/height).
	Dimensions() (w, h int, ok bool)
	// Tiles lazily yields every TileReference of this level. Implementations
	// must not pre-materialise large tile sets; they yield on demand as the
	// pipeline ranges over the sequence. A non-nil error terminates the
	// sequence.
	Tiles(ctx context.Context) iter.Seq2[TileReference, error]
	// PostProcess runs format-specific per-tile transforms on the raw tile
	// bytes, before they are decoded as an image. Only Google Arts & Culture
	// decryption is implemented; PFF tiles, like every other format's, are
	// returned unchanged.
	PostProcess(ref TileReference, data []byte) ([]byte, error)
	// HTTPHeaders are merged into every tile request for this level; user
	// supplied -H headers override these on key collision.
	HTTPHeaders() map[string]string
}

// ZoomableImage is the result of a successful probe: a title and the set of
// zoom levels the format exposes. Immutable once produced.
type ZoomableImage struct {
	Title  string
	Levels []ZoomLevel
}

// Input is what a Dezoomer's Probe receives: the original URI plus, once the
// registry has fetched it on the dezoomer's behalf, the bytes of a requested
// manifest/metadata resource.
type Input struct {
	URI  string
	Data []byte // non-nil once NeedsData has been satisfied
}
