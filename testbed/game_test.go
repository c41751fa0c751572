package testbed

import (
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/vireo/engine/assets"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerAlbedo(t *testing.T) {
	g := NewTestGame("")
	img, err := g.loadAlbedo()
	require.NoError(t, err)
	assert.Equal(t, assets.PixelFormatRGBA8Srgb, img.Format)
	assert.Equal(t, uint32(checkerSize), img.Width)

	require.NoError(t, img.GenerateMips())
	assert.Equal(t, assets.FullMipCount(checkerSize, checkerSize), img.MipLevels)
	require.NoError(t, img.Validate())
}

func TestMissingTexture(t *testing.T) {
	g := NewTestGame(filepath.Join(t.TempDir(), "nope.png"))
	_, err := g.loadAlbedo()
	assert.ErrorIs(t, err, core.ErrNotFound)
}
