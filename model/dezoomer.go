package model

import "context"

// Dezoomer is the polymorphic protocol adapter of §4.1/§4.2: stateless
// across invocations, named, and able to turn an Input into a ZoomableImage
// or ask the caller for more data.
type Dezoomer interface {
	Name() string
	Probe(ctx context.Context, in Input) (*ZoomableImage, error)
}

// Canvas is the write-once, streaming sink of §4.5. AddTile may be called
// concurrently and in arbitrary order; Finalize must run exactly once, after
// every AddTile call has returned.
type Canvas interface {
	AddTile(ctx context.Context, t Tile) error
	Finalize(ctx context.Context) error
}

// TileCache maps a tile URL to its raw response body on disk. Entries are
// write-once; a cache hit short-circuits the HTTP fetch entirely.
type TileCache interface {
	Get(url string) ([]byte, bool, error)
	Put(url string, body []byte) error
}
