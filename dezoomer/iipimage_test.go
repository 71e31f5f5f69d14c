package dezoomer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dezoomify/model"
)

const iipMetaFixture = "Max-size:800 600\nTile-size:256 256\nResolution-number:2\n"

func TestIIPImageProbeWrongURI(t *testing.T) {
	_, err := IIPImage{}.Probe(context.Background(), model.Input{URI: "https://ex/iip?OBJ=something"})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.WrongDezoomer, derr.Kind)
}

func TestIIPImageProbeNeedsMetadataURL(t *testing.T) {
	_, err := IIPImage{}.Probe(context.Background(), model.Input{URI: "https://ex/iip?FIF=slide.tif"})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.NeedsData, derr.Kind)
	assert.Equal(t, "https://ex/iip?FIF=slide.tif&OBJ=Max-size&OBJ=Tile-size&OBJ=Resolution-number", derr.URI)
}

func TestIIPImageLevelsFromMetadata(t *testing.T) {
	img, err := IIPImage{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/iip?FIF=slide.tif",
		Data: []byte(iipMetaFixture),
	})
	require.NoError(t, err)
	require.Len(t, img.Levels, 2)

	w, h, ok := img.Levels[0].Dimensions()
	require.True(t, ok)
	assert.Equal(t, 400, w)
	assert.Equal(t, 300, h)

	w, h, ok = img.Levels[1].Dimensions()
	require.True(t, ok)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	var urls []string
	for ref, err := range img.Levels[1].Tiles(context.Background()) {
		require.NoError(t, err)
		urls = append(urls, ref.URL)
	}
	assert.Contains(t, urls, "https://ex/iip?FIF=slide.tif&JTL=1,0")
}

func TestIIPImageLevelHalvingFloorsOddDimensions(t *testing.T) {
	img, err := IIPImage{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/iip?FIF=slide.tif",
		Data: []byte("Max-size:801 601\nTile-size:256 256\nResolution-number:2\n"),
	})
	require.NoError(t, err)
	require.Len(t, img.Levels, 2)

	w, h, ok := img.Levels[0].Dimensions()
	require.True(t, ok)
	assert.Equal(t, 400, w)
	assert.Equal(t, 300, h)

	w, h, ok = img.Levels[1].Dimensions()
	require.True(t, ok)
	assert.Equal(t, 801, w)
	assert.Equal(t, 601, h)
}

func TestIIPImageMissingMetadataKey(t *testing.T) {
	_, err := IIPImage{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/iip?FIF=slide.tif",
		Data: []byte("Max-size:800 600\n"),
	})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.Fatal, derr.Kind)
}
