package dezoomer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dezoomify/model"
)

func TestNYPLItemPageNeedsConfig(t *testing.T) {
	_, err := NYPL{}.Probe(context.Background(), model.Input{
		URI: "https://digitalcollections.nypl.org/items/abc123",
	})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.NeedsData, derr.Kind)
	assert.Equal(t, "https://access.nypl.org/image.php/abc123/tiles/config.js", derr.URI)
}

func TestNYPLProbeWrongURI(t *testing.T) {
	_, err := NYPL{}.Probe(context.Background(), model.Input{URI: "https://ex/unrelated"})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.WrongDezoomer, derr.Kind)
}

func TestNYPLLevelFromConfig(t *testing.T) {
	img, err := NYPL{}.Probe(context.Background(), model.Input{
		URI:  "https://access.nypl.org/image.php/abc123/tiles/config.js",
		Data: []byte(`{"configs": {"0": {"size": {"width": "2000", "height": "1500"}, "tilesize": "256"}}}`),
	})
	require.NoError(t, err)
	require.Len(t, img.Levels, 1)

	w, h, ok := img.Levels[0].Dimensions()
	require.True(t, ok)
	assert.Equal(t, 2000, w)
	assert.Equal(t, 1500, h)

	var urls []string
	for ref, err := range img.Levels[0].Tiles(context.Background()) {
		require.NoError(t, err)
		urls = append(urls, ref.URL)
	}
	assert.Contains(t, urls, "https://access.nypl.org/image.php/abc123/tiles/0/12/0_0.png")
}

// TestNYPLSecondRoundKeepsItemPageURI reproduces the shape
// registry.probeOne actually produces: in.URI stays pinned to the
// original item-page URL on the second round, only in.Data changes.
func TestNYPLSecondRoundKeepsItemPageURI(t *testing.T) {
	img, err := NYPL{}.Probe(context.Background(), model.Input{
		URI:  "https://digitalcollections.nypl.org/items/abc123",
		Data: []byte(`{"configs": {"0": {"size": {"width": "2000", "height": "1500"}, "tilesize": "256"}}}`),
	})
	require.NoError(t, err)
	require.Len(t, img.Levels, 1)

	var urls []string
	for ref, err := range img.Levels[0].Tiles(context.Background()) {
		require.NoError(t, err)
		urls = append(urls, ref.URL)
	}
	assert.Contains(t, urls, "https://access.nypl.org/image.php/abc123/tiles/0/12/0_0.png")
}

func TestNYPLMissingConfigEntry(t *testing.T) {
	_, err := NYPL{}.Probe(context.Background(), model.Input{
		URI:  "https://access.nypl.org/image.php/abc123/tiles/config.js",
		Data: []byte(`{"configs": {}}`),
	})
	var derr *model.DezoomerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.Fatal, derr.Kind)
}
