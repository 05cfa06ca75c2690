package tiler

import (
	"context"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeSource(t *testing.T, dir, name string, width, height int) {
	t.Helper()
	img := imaging.New(width, height, color.White)
	require.NoError(t, imaging.Save(img, filepath.Join(dir, name)))
}

func testJob(dir string, minZoom, maxZoom int) *models.TilingJob {
	return &models.TilingJob{
		ID:      "job-1",
		Type:    models.JobTypeTile,
		MapID:   7,
		Image:   "source.png",
		Dir:     dir,
		MinZoom: minZoom,
		MaxZoom: maxZoom,
	}
}

func TestGenerate_TileLayout(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "source.png", 600, 300)

	gen := NewGenerator(testLogger())
	require.NoError(t, gen.Generate(context.Background(), testJob(dir, 0, 1)))

	// Zoom 0: single 256px canvas, one tile.
	assert.FileExists(t, filepath.Join(dir, "0", "0", "0.png"))

	// Zoom 1: 512px canvas, image fits to 512x256 -> two columns, one row.
	assert.FileExists(t, filepath.Join(dir, "1", "0", "0.png"))
	assert.FileExists(t, filepath.Join(dir, "1", "1", "0.png"))
	assert.NoFileExists(t, filepath.Join(dir, "1", "0", "1.png"))
	assert.NoFileExists(t, filepath.Join(dir, "1", "2", "0.png"))
}

func TestGenerate_TilesAreFixedSize(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "source.png", 600, 300)

	gen := NewGenerator(testLogger())
	require.NoError(t, gen.Generate(context.Background(), testJob(dir, 1, 1)))

	// Edge tile is padded out to the full tile size.
	tile, err := imaging.Open(filepath.Join(dir, "1", "1", "0.png"))
	require.NoError(t, err)
	assert.Equal(t, TileSize, tile.Bounds().Dx())
	assert.Equal(t, TileSize, tile.Bounds().Dy())
}

func TestGenerate_Rerunnable(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "source.png", 300, 300)

	gen := NewGenerator(testLogger())
	job := testJob(dir, 0, 0)
	require.NoError(t, gen.Generate(context.Background(), job))
	require.NoError(t, gen.Generate(context.Background(), job))

	assert.FileExists(t, filepath.Join(dir, "0", "0", "0.png"))
}

func TestGenerate_CorruptSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "source.png"), []byte("junk"), 0644))

	gen := NewGenerator(testLogger())
	err := gen.Generate(context.Background(), testJob(dir, 0, 1))

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrImageProcessing)
	assert.False(t, utils.IsRetryable(err))
}

func TestGenerate_MissingSource(t *testing.T) {
	gen := NewGenerator(testLogger())
	err := gen.Generate(context.Background(), testJob(t.TempDir(), 0, 0))

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrImageProcessing)
}

func TestGenerate_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "source.png", 64, 64)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := NewGenerator(testLogger())
	err := gen.Generate(ctx, testJob(dir, 0, 3))
	assert.ErrorIs(t, err, context.Canceled)
}
