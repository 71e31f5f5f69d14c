package selector

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dezoomify/model"
)

type fakeLevel struct {
	name         string
	w, h         int
	dimensionsOK bool
}

func (f *fakeLevel) Name() string                 { return f.name }
func (f *fakeLevel) Dimensions() (int, int, bool) { return f.w, f.h, f.dimensionsOK }
func (f *fakeLevel) Tiles(context.Context) iter.Seq2[model.TileReference, error] {
	return func(func(model.TileReference, error) bool) {}
}
func (f *fakeLevel) PostProcess(model.TileReference, []byte) ([]byte, error) { return nil, nil }
func (f *fakeLevel) HTTPHeaders() map[string]string                          { return nil }

func level(name string, w, h int) *fakeLevel {
	return &fakeLevel{name: name, w: w, h: h, dimensionsOK: true}
}

func TestSelectPicksLargestWithinBound(t *testing.T) {
	img := &model.ZoomableImage{Levels: []model.ZoomLevel{
		level("small", 100, 100),
		level("medium", 500, 500),
		level("large", 2000, 2000),
	}}
	got, err := Select(img, Options{MaxWidth: 1000, MaxHeight: 1000})
	require.NoError(t, err)
	assert.Equal(t, "medium", got.Name())
}

func TestSelectUnboundedPicksLargest(t *testing.T) {
	img := &model.ZoomableImage{Levels: []model.ZoomLevel{
		level("small", 100, 100),
		level("large", 2000, 2000),
	}}
	got, err := Select(img, Options{})
	require.NoError(t, err)
	assert.Equal(t, "large", got.Name())
}

func TestSelectNoLevelFitsBound(t *testing.T) {
	img := &model.ZoomableImage{Levels: []model.ZoomLevel{
		level("large", 2000, 2000),
	}}
	_, err := Select(img, Options{MaxWidth: 100, MaxHeight: 100})
	var cerr *model.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, model.ConfigAmbiguousLevel, cerr.Kind)
}

func TestSelectTieIsAmbiguous(t *testing.T) {
	img := &model.ZoomableImage{Levels: []model.ZoomLevel{
		level("a", 500, 500),
		level("b", 500, 500),
	}}
	_, err := Select(img, Options{})
	var cerr *model.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, model.ConfigAmbiguousLevel, cerr.Kind)
}

func TestSelectUnknownDimensionsAlwaysEligible(t *testing.T) {
	unknown := &fakeLevel{name: "unknown", dimensionsOK: false}
	img := &model.ZoomableImage{Levels: []model.ZoomLevel{unknown}}
	got, err := Select(img, Options{MaxWidth: 10, MaxHeight: 10})
	require.NoError(t, err)
	assert.Equal(t, "unknown", got.Name())
}

func TestSelectNoLevelsAtAll(t *testing.T) {
	_, err := Select(&model.ZoomableImage{}, Options{})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
}
