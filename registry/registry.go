// Package registry implements §4.1/§4.8: the dezoomer registry that
// auto-probes an input against every known format in priority order, or
// dispatches directly to one named format, running the NeedsData loop and
// picking the most informative error when every candidate rejects the
// input. Keyed by format name rather than hostname, this generalises
// router/interface.go's sync.Once-guarded map[string]RouterInit.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dezoomify/model"
	"dezoomify/pkg/httpclient"
)

// Registry holds every known Dezoomer, both by name (for -d/--dezoomer) and
// in a fixed priority order (for auto-probing, most specific format first).
type Registry struct {
	mu      sync.RWMutex
	order   []model.Dezoomer
	byName  map[string]model.Dezoomer
	client  *httpclient.Client
	headers map[string]string
}

// New builds a Registry that fetches NeedsData metadata through client,
// merging headers into every such request, so --timeout/--connect-timeout/
// --accept-invalid-certs/-H apply uniformly to metadata fetches and not just
// the pipeline's own tile fetches (§4.6).
func New(client *httpclient.Client, headers map[string]string) *Registry {
	return &Registry{byName: make(map[string]model.Dezoomer), client: client, headers: headers}
}

// Register appends d to the auto-probe order and indexes it by name.
// Registration order is priority order: call Register for the most
// specific formats first and the generic/custom-YAML fallbacks last.
func (r *Registry) Register(d model.Dezoomer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, d)
	r.byName[d.Name()] = d
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fetchFunc retrieves the bytes of a NeedsData request. Abstracted for
// testing; production callers pass (*Registry).fetch, which goes through
// the configured httpclient.Client.
type fetchFunc func(ctx context.Context, uri string) ([]byte, error)

// ProbeNamed runs exactly one dezoomer, driving its NeedsData loop to
// completion (§4.8).
func (r *Registry) ProbeNamed(ctx context.Context, name, uri string) (*model.ZoomableImage, error) {
	r.mu.RLock()
	d, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &model.DezoomerError{Kind: model.Fatal, Reason: fmt.Sprintf("unknown dezoomer %q", name)}
	}
	return probeOne(ctx, d, uri, r.fetch)
}

// ProbeAuto tries every registered dezoomer in priority order and returns
// the first successful probe. If every candidate rejects the input, it
// returns the single most informative error by DezoomerErrorKind.Rank()
// (§4.1): a NeedsData outranks Fatal, which outranks WrongDezoomer, since a
// dezoomer that asked for more data proved it recognised the input.
func (r *Registry) ProbeAuto(ctx context.Context, uri string) (*model.ZoomableImage, error) {
	r.mu.RLock()
	candidates := make([]model.Dezoomer, len(r.order))
	copy(candidates, r.order)
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, &model.DezoomerError{Kind: model.Fatal, Reason: "no dezoomers registered"}
	}

	var bestErr *model.DezoomerError
	for _, d := range candidates {
		img, err := probeOne(ctx, d, uri, r.fetch)
		if err == nil {
			return img, nil
		}
		de, ok := err.(*model.DezoomerError)
		if !ok {
			de = model.ErrFatal(err.Error(), err)
		}
		if bestErr == nil || de.Kind.Rank() > bestErr.Kind.Rank() {
			bestErr = de
		}
	}
	return nil, bestErr
}

// probeOne drives a single dezoomer's NeedsData loop: Probe may return
// ErrNeedsData(uri) any number of times, each time naming a resource the
// caller must fetch and feed back in Input.Data before re-invoking Probe.
func probeOne(ctx context.Context, d model.Dezoomer, uri string, fetch fetchFunc) (*model.ZoomableImage, error) {
	in := model.Input{URI: uri}
	const maxRounds = 8 // guards against a misbehaving dezoomer looping forever
	for round := 0; ; round++ {
		img, err := d.Probe(ctx, in)
		if err == nil {
			return img, nil
		}
		de, ok := err.(*model.DezoomerError)
		if !ok || de.Kind != model.NeedsData {
			return nil, err
		}
		if round >= maxRounds {
			return nil, model.ErrFatal(fmt.Sprintf("%s: exceeded %d NeedsData rounds", d.Name(), maxRounds), nil)
		}
		data, ferr := fetch(ctx, de.URI)
		if ferr != nil {
			return nil, model.ErrFatal(fmt.Sprintf("fetch %s", de.URI), ferr)
		}
		in = model.Input{URI: uri, Data: data}
	}
}

func (r *Registry) fetch(ctx context.Context, uri string) ([]byte, error) {
	return r.client.Fetch(ctx, uri, r.headers)
}
