package dezoomer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dezoomify/model"
)

const krpanoFixture = `<krpano>
	<image tilesize="256" baseindex="0">
		<level tiledimagewidth="512" tiledimageheight="256">
			<flat url="tiles/l1_%0004x_%0004y.jpg"/>
		</level>
	</image>
</krpano>`

func TestKrpanoProbeNeedsData(t *testing.T) {
	_, err := Krpano{}.Probe(context.Background(), model.Input{URI: "https://ex/pano/tour.xml"})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.NeedsData, derr.Kind)
}

func TestKrpanoFlatTileURLs(t *testing.T) {
	img, err := Krpano{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/pano/tour.xml",
		Data: []byte(krpanoFixture),
	})
	require.NoError(t, err)
	require.Len(t, img.Levels, 1)

	lvl := img.Levels[0]
	w, h, ok := lvl.Dimensions()
	require.True(t, ok)
	assert.Equal(t, 512, w)
	assert.Equal(t, 256, h)

	var urls []string
	for ref, err := range lvl.Tiles(context.Background()) {
		require.NoError(t, err)
		urls = append(urls, ref.URL)
	}
	require.Len(t, urls, 2)
	assert.Contains(t, urls, "https://ex/pano/tiles/l1_0000_0000.jpg")
	assert.Contains(t, urls, "https://ex/pano/tiles/l1_0001_0000.jpg")
}

func TestKrpanoCubeExpandsSixSides(t *testing.T) {
	fixture := `<krpano>
		<image tilesize="256">
			<level tiledimagewidth="256" tiledimageheight="256">
				<cube url="tiles/%s_%0004x_%0004y.jpg"/>
			</level>
		</image>
	</krpano>`
	img, err := Krpano{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/pano/tour.xml",
		Data: []byte(fixture),
	})
	require.NoError(t, err)
	assert.Len(t, img.Levels, 6)
}

func TestKrpanoNotKrpanoXML(t *testing.T) {
	_, err := Krpano{}.Probe(context.Background(), model.Input{
		URI:  "https://ex/pano/tour.xml",
		Data: []byte(`<not-krpano/>`),
	})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.WrongDezoomer, derr.Kind)
}
