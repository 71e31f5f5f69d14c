package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"iter"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dezoomify/model"
	"dezoomify/pkg/httpclient"
)

func onePixelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// oneTileLevel is a model.ZoomLevel with a single tile at url.
type oneTileLevel struct {
	url string
}

func (l *oneTileLevel) Name() string                 { return "one-tile" }
func (l *oneTileLevel) Dimensions() (int, int, bool) { return 1, 1, true }
func (l *oneTileLevel) PostProcess(_ model.TileReference, data []byte) ([]byte, error) {
	return data, nil
}
func (l *oneTileLevel) HTTPHeaders() map[string]string { return nil }
func (l *oneTileLevel) Tiles(ctx context.Context) iter.Seq2[model.TileReference, error] {
	return func(yield func(model.TileReference, error) bool) {
		yield(model.TileReference{URL: l.url, Position: image.Point{}}, nil)
	}
}

func newLevel(url string) model.ZoomLevel {
	return &oneTileLevel{url: url}
}

type stubCanvas struct {
	tiles []model.Tile
}

func (c *stubCanvas) AddTile(_ context.Context, t model.Tile) error {
	c.tiles = append(c.tiles, t)
	return nil
}
func (c *stubCanvas) Finalize(context.Context) error { return nil }

func TestRunRetriesThenSucceeds(t *testing.T) {
	body := onePixelPNG(t)
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	level := newLevel(srv.URL)
	client := httpclient.New(httpclient.Options{Timeout: 5 * time.Second})
	canvas := &stubCanvas{}

	stats, err := Run(context.Background(), level, nil, canvas, client, nil, Config{
		Parallelism: 1,
		Retries:     2,
		RetryDelay:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Succeeded)
	assert.EqualValues(t, 0, stats.Failed)
	assert.EqualValues(t, 3, attempts.Load())
	require.Len(t, canvas.tiles, 1)
}

func TestRunExhaustsRetriesAndFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	level := newLevel(srv.URL)
	client := httpclient.New(httpclient.Options{Timeout: 5 * time.Second})
	canvas := &stubCanvas{}

	stats, err := Run(context.Background(), level, nil, canvas, client, nil, Config{
		Parallelism: 1,
		Retries:     1,
		RetryDelay:  5 * time.Millisecond,
	})
	assert.ErrorIs(t, err, model.ErrNoTileDownloaded)
	assert.EqualValues(t, 0, stats.Succeeded)
	assert.EqualValues(t, 1, stats.Failed)
}

func TestRunSkipsNetworkOnCacheHit(t *testing.T) {
	body := onePixelPNG(t)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(body)
	}))
	defer srv.Close()

	level := newLevel(srv.URL)
	client := httpclient.New(httpclient.Options{Timeout: 5 * time.Second})

	cache := &memTileCache{entries: map[string][]byte{srv.URL: body}}
	canvas := &stubCanvas{}

	stats, err := Run(context.Background(), level, nil, canvas, client, cache, Config{Parallelism: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Succeeded)
	assert.EqualValues(t, 0, requests.Load())
}

type memTileCache struct {
	entries map[string][]byte
}

func (c *memTileCache) Get(url string) ([]byte, bool, error) {
	body, ok := c.entries[url]
	return body, ok, nil
}
func (c *memTileCache) Put(url string, body []byte) error {
	c.entries[url] = body
	return nil
}
