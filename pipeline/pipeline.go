// Package pipeline is the bounded-concurrency fetcher of §4.4: it turns a
// ZoomLevel into a stream of decoded tiles handed to a Canvas, with retries,
// exponential backoff, an optional tile cache, and a hard cap on in-flight
// requests. Concurrency is grounded on pkg/queue.ConcurrentQueue; the
// per-tile state machine follows §4.8 (Pending -> InFlight -> Retrying |
// Decoding | PermanentFailure -> Pasted | Dropped).
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"dezoomify/model"
	"dezoomify/pkg/httpclient"
	"dezoomify/pkg/logging"
	"dezoomify/pkg/queue"
)

// Config bounds resource use per §6 flags.
type Config struct {
	Parallelism int
	Retries     int
	RetryDelay  time.Duration
	Logger      *logging.Logger // nil falls back to the unconditional stdlib logger
}

// Stats summarises a completed run for the caller to report or log.
type Stats struct {
	Succeeded int64
	Failed    int64
}

// Run drives level's tile iterator through fetch -> decode -> post-process
// -> AddTile, at most cfg.Parallelism at a time, until the level is
// exhausted or the context is cancelled. It returns model.ErrNoTileDownloaded
// if every tile permanently failed (§4.4 aggregate failure rule); partial
// success is not itself an error.
func Run(ctx context.Context, level model.ZoomLevel, headers map[string]string, canvas model.Canvas, client *httpclient.Client, cache model.TileCache, cfg Config) (Stats, error) {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	q := queue.NewConcurrentQueue(cfg.Parallelism)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stats Stats
	var canvasErr atomic.Pointer[error]
	var mu sync.Mutex // serialises AddTile per §4.5/§5 ("canvas requires internal serialisation")

	for ref, iterErr := range level.Tiles(ctx) {
		if iterErr != nil {
			cancel()
			return stats, fmt.Errorf("enumerate tiles: %w", iterErr)
		}
		if ctx.Err() != nil {
			break
		}

		ref := ref
		q.Go(func() {
			tile, err := fetchDecodeAndPostProcess(ctx, ref, headers, level, client, cache, cfg)
			if err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				warnf(cfg.Logger, "pipeline: tile %s permanently failed: %v", ref.URL, err)
				return
			}

			mu.Lock()
			addErr := canvas.AddTile(ctx, tile)
			mu.Unlock()

			if addErr != nil {
				var ce *model.CanvasError
				if errors.As(addErr, &ce) {
					canvasErr.Store(&addErr)
					cancel() // canvas errors are fatal and abort the run (§4.4, §7)
					return
				}
				atomic.AddInt64(&stats.Failed, 1)
				warnf(cfg.Logger, "pipeline: tile %s rejected by canvas: %v", ref.URL, addErr)
				return
			}
			atomic.AddInt64(&stats.Succeeded, 1)
		})
	}
	q.Wait()

	if p := canvasErr.Load(); p != nil {
		return stats, *p
	}
	if stats.Succeeded == 0 && stats.Failed > 0 {
		return stats, model.ErrNoTileDownloaded
	}
	return stats, nil
}

// fetchDecodeAndPostProcess implements the six-step per-tile contract of
// §4.4: cache lookup, HTTP GET with merged headers, retry with exponential
// backoff on retryable network errors, cache write-through, post-process,
// decode.
func fetchDecodeAndPostProcess(ctx context.Context, ref model.TileReference, headers map[string]string, level model.ZoomLevel, client *httpclient.Client, cache model.TileCache, cfg Config) (model.Tile, error) {
	merged := mergeHeaders(level.HTTPHeaders(), headers)

	body, fromCache, err := fetchWithCacheAndRetry(ctx, ref.URL, merged, client, cache, cfg)
	if err != nil {
		return model.Tile{}, err
	}
	if !fromCache && cache != nil {
		if err := cache.Put(ref.URL, body); err != nil {
			warnf(cfg.Logger, "pipeline: tile cache write failed for %s: %v", ref.URL, err)
		}
	}

	body, err = level.PostProcess(ref, body)
	if err != nil {
		return model.Tile{}, fmt.Errorf("post-process: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return model.Tile{}, &model.DecodeError{Kind: model.DecodeCorrupt, Err: err}
	}

	return model.Tile{Ref: ref, Img: img}, nil
}

func fetchWithCacheAndRetry(ctx context.Context, url string, headers map[string]string, client *httpclient.Client, cache model.TileCache, cfg Config) (body []byte, fromCache bool, err error) {
	if cache != nil {
		if cached, ok, cerr := cache.Get(url); cerr == nil && ok {
			return cached, true, nil
		}
	}

	retries := cfg.Retries
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 0; ; attempt++ {
		body, err = client.Fetch(ctx, url, headers)
		if err == nil {
			return body, false, nil
		}
		netErr := httpclient.AsNetworkError(err)
		if attempt >= retries || !netErr.Retryable() {
			return nil, false, netErr
		}
		// Exponential backoff: delay before attempt k (k>=1) is
		// retry_delay * 2^(k-1) (§8 invariant 6).
		wait := delay << attempt
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// warnf logs through cfg.Logger when one was supplied, falling back to the
// teacher's own unconditional log.Printf when it wasn't (e.g. existing
// tests that build a bare Config).
func warnf(l *logging.Logger, format string, args ...any) {
	if l != nil {
		l.Warnf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// mergeHeaders applies dezoomer-supplied headers first, then lets
// user-supplied headers override on key collision (§4.2).
func mergeHeaders(dezoomerHeaders, userHeaders map[string]string) map[string]string {
	merged := make(map[string]string, len(dezoomerHeaders)+len(userHeaders))
	for k, v := range dezoomerHeaders {
		merged[k] = v
	}
	for k, v := range userHeaders {
		merged[k] = v
	}
	return merged
}
