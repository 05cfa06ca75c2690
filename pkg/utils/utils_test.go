package utils

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketName(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		input  string
		want   string
	}{
		{"plain", "maps_ts_", "7", "maps_ts_7"},
		{"spaces", "maps_ts_", " middle earth ", "maps_ts_middle_earth"},
		{"slashes", "maps_ts_", "a/b", "maps_ts_a_b"},
		{"escaped", "maps_ts_", "50%", "maps_ts_50%25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketName(tt.prefix, tt.input))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"map.png", "map.png"},
		{"a map.jpg", "a map.jpg"},
		{`bad<>:"/\|?*name.png`, "bad_name.png"},
		{"___x___", "x"},
		{"///", "untitled"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.input), "input: %q", tt.input)
	}
}

func TestTileGlobs(t *testing.T) {
	globs := TileGlobs("/tmp/tiles", 2, 4)
	assert.Equal(t, []string{
		filepath.Join("/tmp/tiles", "2", "*", "*.png"),
		filepath.Join("/tmp/tiles", "3", "*", "*.png"),
		filepath.Join("/tmp/tiles", "4", "*", "*.png"),
	}, globs)

	single := TileGlobs("/tmp/tiles", 3, 3)
	assert.Len(t, single, 1)
}

func TestGetMapBoundaries(t *testing.T) {
	// Full-canvas image at zoom 0: 256x256 source covers the whole world.
	b := GetMapBoundaries(256, 256, 0)
	assert.InDelta(t, 90.0, b.North, 1e-9)
	assert.InDelta(t, 180.0, b.East, 1e-9)
	assert.Equal(t, -90.0, b.South)
	assert.Equal(t, -180.0, b.West)

	// Half-canvas image reaches the equator/prime-meridian.
	h := GetMapBoundaries(128, 128, 0)
	assert.InDelta(t, 0.0, h.North, 1e-9)
	assert.InDelta(t, 0.0, h.East, 1e-9)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "None"},
		{"fetch 404", fmt.Errorf("%w: status 404 Not Found", ErrFetch), "FetchError_HTTP404"},
		{"fetch other", fmt.Errorf("%w: connection refused", ErrFetch), "FetchError"},
		{"image", fmt.Errorf("%w: decoding source", ErrImageProcessing), "ImageProcessingError"},
		{"optimize", fmt.Errorf("%w: exit status 1", ErrOptimization), "OptimizationError"},
		{"upload", fmt.Errorf("%w: PUT failed", ErrUpload), "UploadError"},
		{"upload auth", fmt.Errorf("%w: status 403 Forbidden", ErrUpload), "UploadError_Auth"},
		{"persistence", fmt.Errorf("%w: update tile_set", ErrPersistence), "PersistenceError"},
		{"map gone", ErrMapGone, "MapGone"},
		{"config", fmt.Errorf("%w: min_zoom", ErrConfigValidation), "Config_Validation"},
		{"unknown", errors.New("mystery"), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(fmt.Errorf("%w: corrupt png", ErrImageProcessing)))
	assert.True(t, IsRetryable(fmt.Errorf("%w: exit status 1", ErrOptimization)))
	assert.True(t, IsRetryable(fmt.Errorf("%w: status 500", ErrUpload)))
	assert.True(t, IsRetryable(fmt.Errorf("%w: timeout", ErrPersistence)))
}
