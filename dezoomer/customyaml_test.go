package dezoomer

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dezoomify/model"
)

const customYAMLFixture = `
variables:
  - name: x
    from: 0
    to: 512
    step: 256
  - name: y
    from: 0
    to: 256
    step: 256
url_template: "https://ex/{{x/256}}_{{y/256}}.jpg"
`

func TestCustomYAMLProbeNeedsData(t *testing.T) {
	_, err := CustomYAML{}.Probe(context.Background(), model.Input{URI: "https://ex/tiles.yaml"})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.NeedsData, derr.Kind)
}

func TestCustomYAMLCartesianProduct(t *testing.T) {
	img, err := CustomYAML{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/tiles.yaml",
		Data: []byte(customYAMLFixture),
	})
	require.NoError(t, err)
	require.Len(t, img.Levels, 1)

	var urls []string
	var positions []image.Point
	for ref, err := range img.Levels[0].Tiles(context.Background()) {
		require.NoError(t, err)
		urls = append(urls, ref.URL)
		positions = append(positions, ref.Position)
	}
	require.Len(t, urls, 6)

	assert.Contains(t, urls, "https://ex/0_0.jpg")
	assert.Contains(t, urls, "https://ex/1_0.jpg")
	assert.Contains(t, urls, "https://ex/2_0.jpg")
	assert.Contains(t, urls, "https://ex/0_1.jpg")
	assert.Contains(t, urls, "https://ex/1_1.jpg")
	assert.Contains(t, urls, "https://ex/2_1.jpg")

	assert.Contains(t, positions, image.Point{X: 512, Y: 256})
}

func TestCustomYAMLConstantVariable(t *testing.T) {
	img, err := CustomYAML{}.Probe(context.Background(), model.Input{
		URI: "https://ex/tiles.yaml",
		Data: []byte(`
variables:
  - name: z
    value: 7
url_template: "https://ex/{{z}}.jpg"
`),
	})
	require.NoError(t, err)

	var urls []string
	for ref, err := range img.Levels[0].Tiles(context.Background()) {
		require.NoError(t, err)
		urls = append(urls, ref.URL)
	}
	assert.Equal(t, []string{"https://ex/7.jpg"}, urls)
}

func TestCustomYAMLMissingURLTemplate(t *testing.T) {
	_, err := CustomYAML{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/tiles.yaml",
		Data: []byte(`variables: []`),
	})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.Fatal, derr.Kind)
}

func TestCustomYAMLDezoomerKeyDispatches(t *testing.T) {
	var gotName, gotURI string
	composed := CustomYAML{Dispatch: func(_ context.Context, name, uri string) (*model.ZoomableImage, error) {
		gotName, gotURI = name, uri
		sub := &rectGrid{name: "sub", width: 10, height: 10, tileW: 10, tileH: 10}
		return &model.ZoomableImage{Title: "sub", Levels: []model.ZoomLevel{sub}}, nil
	}}

	img, err := composed.Probe(context.Background(), model.Input{
		URI: "https://ex/tiles.yaml",
		Data: []byte(`
variables:
  - name: page
    value: 3
url_template: "https://ex/iiif/{{page}}/info.json"
dezoomer: IIIF
`),
	})
	require.NoError(t, err)
	assert.Equal(t, "IIIF", gotName)
	assert.Equal(t, "https://ex/iiif/3/info.json", gotURI)
	require.Len(t, img.Levels, 1)
}

func TestCustomYAMLDezoomerKeyWithoutDispatchIsFatal(t *testing.T) {
	_, err := CustomYAML{}.Probe(context.Background(), model.Input{
		URI: "https://ex/tiles.yaml",
		Data: []byte(`
url_template: "https://ex/iiif/info.json"
dezoomer: IIIF
`),
	})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.Fatal, derr.Kind)
}

func TestCustomYAMLBadRangeDirection(t *testing.T) {
	_, err := CustomYAML{}.Probe(context.Background(), model.Input{
		URI: "https://ex/tiles.yaml",
		Data: []byte(`
variables:
  - name: x
    from: 10
    to: 0
    step: 1
url_template: "https://ex/{{x}}.jpg"
`),
	})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.Fatal, derr.Kind)
}
