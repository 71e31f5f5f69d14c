package dezoomer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dezoomify/model"
)

const zoomifyFixture = `<IMAGE_PROPERTIES WIDTH="600" HEIGHT="400" NUMTILES="9" NUMIMAGES="1" VERSION="1.8" TILESIZE="256" />`

func TestZoomifyProbeNeedsData(t *testing.T) {
	_, err := Zoomify{}.Probe(context.Background(), model.Input{URI: "https://ex/img/ImageProperties.xml"})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.NeedsData, derr.Kind)
}

func TestZoomifyProbeWrongURI(t *testing.T) {
	_, err := Zoomify{}.Probe(context.Background(), model.Input{URI: "https://ex/img/info.json"})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.WrongDezoomer, derr.Kind)
}

func TestZoomifyLevelPyramid(t *testing.T) {
	img, err := Zoomify{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/img/ImageProperties.xml",
		Data: []byte(zoomifyFixture),
	})
	require.NoError(t, err)
	require.Len(t, img.Levels, 3)

	w, h, ok := img.Levels[0].Dimensions()
	require.True(t, ok)
	assert.Equal(t, 150, w)
	assert.Equal(t, 100, h)

	w, h, ok = img.Levels[1].Dimensions()
	require.True(t, ok)
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)

	w, h, ok = img.Levels[2].Dimensions()
	require.True(t, ok)
	assert.Equal(t, 600, w)
	assert.Equal(t, 400, h)
}

func TestZoomifyTopLevelTiles(t *testing.T) {
	img, err := Zoomify{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/img/ImageProperties.xml",
		Data: []byte(zoomifyFixture),
	})
	require.NoError(t, err)
	top := img.Levels[2]

	var refs []model.TileReference
	for ref, err := range top.Tiles(context.Background()) {
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	require.Len(t, refs, 6)

	corner := refs[len(refs)-1]
	assert.Equal(t, 512, corner.Position.X)
	assert.Equal(t, 256, corner.Position.Y)
	assert.Contains(t, corner.URL, "TileGroup0/2-2-1.jpg")
}

func TestZoomifyMissingTileSize(t *testing.T) {
	_, err := Zoomify{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/img/ImageProperties.xml",
		Data: []byte(`<IMAGE_PROPERTIES WIDTH="600" HEIGHT="400" NUMTILES="9" />`),
	})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.Fatal, derr.Kind)
}
