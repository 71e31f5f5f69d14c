// Command dezoomify is the CLI entrypoint: parse flags/INI config, resolve
// a dezoomer (auto-probe or a forced --dezoomer name), select one zoom
// level, stream its tiles through the pipeline into a canvas chosen by the
// output path's extension, and map the outcome to an exit code.
// Grounded on cmd/bookget.go's init-config -> dispatch -> report flow,
// generalised from bookget's per-site router dispatch to a format registry.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"dezoomify/canvas"
	"dezoomify/config"
	"dezoomify/dezoomer"
	"dezoomify/model"
	"dezoomify/pipeline"
	"dezoomify/pkg/httpclient"
	"dezoomify/pkg/logging"
	"dezoomify/pkg/tilecache"
	"dezoomify/pkg/version"
	"dezoomify/registry"
	"dezoomify/selector"
)

const (
	releaseRepoOwner = "dezoomify-go"
	releaseRepoName  = "dezoomify-go"
)

// exit codes mirror spec.md §6's mapping from outcome to process status.
const (
	exitOK               = 0
	exitRuntimeError     = 1
	exitNoTileDownloaded = 2
	exitUsageError       = 64
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		log.Println(err)
		return exitUsageError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(logging.ParseLevel(cfg.LoggingLevel))

	checkForNewerRelease(logger)

	client := httpclient.New(httpclient.Options{
		ConnectTimeout:     cfg.ConnTimeout,
		Timeout:            cfg.Timeout,
		MaxIdlePerHost:     cfg.MaxIdlePerHost,
		AcceptInvalidCerts: cfg.AcceptInvalidCerts,
		UserAgent:          config.DefaultUserAgent(),
	})

	reg := newRegistry(client, cfg.Headers)

	img, err := probe(ctx, reg, cfg)
	if err != nil {
		logger.Errorf("%v", err)
		return exitRuntimeError
	}

	maxWidth, maxHeight := cfg.MaxWidth, cfg.MaxHeight
	if cfg.Largest {
		// --largest overrides any width/height cap: always take the
		// highest-resolution level.
		maxWidth, maxHeight = 0, 0
	}
	level, err := selector.Select(img, selector.Options{
		MaxWidth:  maxWidth,
		MaxHeight: maxHeight,
	})
	if err != nil {
		logger.Errorf("%v", err)
		return exitUsageError
	}

	var cache model.TileCache
	if cfg.TileCacheDir != "" {
		cache, err = tilecache.New(cfg.TileCacheDir)
		if err != nil {
			logger.Errorf("%v", err)
			return exitRuntimeError
		}
	}

	outPath := cfg.OutFile
	w, h, _ := level.Dimensions()
	if outPath == "" {
		outPath = defaultOutFile(w, h)
	}

	cv, err := newCanvas(outPath, w, h, cfg.Compression)
	if err != nil {
		logger.Errorf("%v", err)
		return exitUsageError
	}

	stats, runErr := pipeline.Run(ctx, level, cfg.Headers, cv, client, cache, pipeline.Config{
		Parallelism: cfg.Parallelism,
		Retries:     cfg.Retries,
		RetryDelay:  cfg.RetryDelay,
		Logger:      logger,
	})
	if runErr != nil {
		logger.Errorf("%v", runErr)
		if runErr == model.ErrNoTileDownloaded {
			return exitNoTileDownloaded
		}
		return exitRuntimeError
	}
	if ctx.Err() != nil {
		// Interrupted by a signal: the canvas is discarded without Finalize.
		logger.Errorf("interrupted: %v", ctx.Err())
		return exitRuntimeError
	}

	if err := cv.Finalize(ctx); err != nil {
		logger.Errorf("%v", err)
		return exitRuntimeError
	}

	logger.Infof("%s: %d tiles downloaded, %d failed, saved to %s", img.Title, stats.Succeeded, stats.Failed, outPath)
	return exitOK
}

// checkForNewerRelease consults the cached/GitHub-sourced release check and
// logs a hint at Info level when a different release exists. It runs
// synchronously at startup; its errors are logged at Debug level and never
// fail the run, since the network may be unreachable or rate-limited.
func checkForNewerRelease(logger *logging.Logger) {
	checker := version.NewChecker(config.Version, releaseRepoOwner, releaseRepoName)
	latest, hasUpdate, err := checker.CheckForUpdate()
	if err != nil {
		logger.Debugf("version check skipped: %v", err)
		return
	}
	if hasUpdate {
		logger.Infof("a newer release is available: %s (current %s)", latest, config.Version)
	}
}

// newRegistry registers every format in priority order: the most
// specific URL/metadata shapes first, the generic doubling-search and
// custom YAML fallbacks last, per registry.Registry's own doc comment.
// client/headers are threaded into both the registry's own NeedsData
// fetches and the two dezoomers that make their own extra requests inside
// Probe, so --timeout/--connect-timeout/--accept-invalid-certs/-H apply
// uniformly everywhere a dezoomer talks HTTP (§4.6).
func newRegistry(client *httpclient.Client, headers map[string]string) *registry.Registry {
	reg := registry.New(client, headers)
	reg.Register(dezoomer.Zoomify{})
	reg.Register(dezoomer.DZI{})
	reg.Register(dezoomer.IIIF{})
	reg.Register(dezoomer.GoogleArtsAndCulture{Client: client, Headers: headers})
	reg.Register(dezoomer.Krpano{})
	reg.Register(dezoomer.IIPImage{})
	reg.Register(dezoomer.NYPL{})
	reg.Register(dezoomer.PFF{})
	reg.Register(dezoomer.CustomYAML{Dispatch: reg.ProbeNamed})
	reg.Register(dezoomer.Generic{Client: client, Headers: headers})
	return reg
}

func probe(ctx context.Context, reg *registry.Registry, cfg *config.Config) (*model.ZoomableImage, error) {
	if cfg.Dezoomer != "" && cfg.Dezoomer != "auto" {
		return reg.ProbeNamed(ctx, cfg.Dezoomer, cfg.InputURI)
	}
	return reg.ProbeAuto(ctx, cfg.InputURI)
}

// largePNGPixelThreshold is the "small" / "large" boundary of spec.md
// §4.5/§6: below it a PNG is small enough to buffer entirely in RAM, at or
// above it the streaming band-buffer canvas keeps peak memory bounded.
const largePNGPixelThreshold = 16_000_000 // roughly a 4000x4000 image

// newCanvas picks a canvas variant from outPath's extension (spec.md §4.5:
// "three variants, chosen from the output path extension"): .jpg/.jpeg
// always needs the in-memory canvas (JPEG encoding requires random pixel
// access); .png buffers in memory below largePNGPixelThreshold and streams
// above it; an extension-less path is treated as a directory and produces
// an IIIF pyramid.
func newCanvas(outPath string, w, h, compression int) (model.Canvas, error) {
	opts := canvas.Options{Width: w, Height: h, OutPath: outPath, Compression: compression}
	switch ext := strings.ToLower(filepath.Ext(outPath)); ext {
	case ".jpg", ".jpeg":
		return canvas.NewMemoryCanvas(opts)
	case ".png":
		if w*h >= largePNGPixelThreshold {
			return canvas.NewStreamingPNGCanvas(opts)
		}
		return canvas.NewMemoryCanvas(opts)
	case "":
		return canvas.NewIIIFPyramidCanvas(opts)
	default:
		return nil, fmt.Errorf("unsupported output extension %q", ext)
	}
}

// defaultOutFile names the output when the user gave none, per spec.md
// §6: "outfile defaults to a JPEG when small and PNG when large/unknown".
func defaultOutFile(w, h int) string {
	if w > 0 && h > 0 && w*h < largePNGPixelThreshold {
		return "dezoomified.jpg"
	}
	return "dezoomified.png"
}
