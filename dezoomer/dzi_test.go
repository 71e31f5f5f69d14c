package dezoomer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dezoomify/model"
)

const dziFixture = `<Image TileSize="254" Overlap="1" Format="jpg" xmlns="http://schemas.microsoft.com/deepzoom/2008">
	<Size Width="500" Height="300"/>
</Image>`

func TestDZIProbeNeedsData(t *testing.T) {
	_, err := DZI{}.Probe(context.Background(), model.Input{URI: "https://ex/img.dzi"})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.NeedsData, derr.Kind)
}

func TestDZIProbeWrongURI(t *testing.T) {
	_, err := DZI{}.Probe(context.Background(), model.Input{URI: "https://ex/img.jpg"})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.WrongDezoomer, derr.Kind)
}

func TestDZITopLevelGridAndOverlap(t *testing.T) {
	img, err := DZI{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/img.dzi",
		Data: []byte(dziFixture),
	})
	require.NoError(t, err)
	require.NotEmpty(t, img.Levels)

	top := img.Levels[0]
	w, h, ok := top.Dimensions()
	require.True(t, ok)
	assert.Equal(t, 500, w)
	assert.Equal(t, 300, h)

	var refs []model.TileReference
	for ref, err := range top.Tiles(context.Background()) {
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	require.Len(t, refs, 4)

	// (col=1, row=0): overlap shifts the leading edge left by Overlap px so
	// it abuts the previous tile instead of double-covering it.
	tile10 := refs[1]
	assert.Equal(t, 253, tile10.Position.X)
	assert.Equal(t, 0, tile10.Position.Y)
	assert.Contains(t, tile10.URL, "_files/")
	assert.Contains(t, tile10.URL, "/1_0.jpg")
}

func TestDZIPyramidReachesThumbnail(t *testing.T) {
	img, err := DZI{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/img.dzi",
		Data: []byte(dziFixture),
	})
	require.NoError(t, err)

	last := img.Levels[len(img.Levels)-1]
	w, h, ok := last.Dimensions()
	require.True(t, ok)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
}

func TestDZIMissingSize(t *testing.T) {
	_, err := DZI{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/img.dzi",
		Data: []byte(`<Image TileSize="254" Overlap="1" Format="jpg"/>`),
	})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.Fatal, derr.Kind)
}
