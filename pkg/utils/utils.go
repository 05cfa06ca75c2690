package utils

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// BucketName builds the deterministic object-store bucket name for a tile set.
// Spaces and slashes in the name collapse to underscores so the result is safe
// as a single path segment.
func BucketName(bucketPrefix, name string) string {
	cleaned := strings.NewReplacer(" ", "_", "/", "_").Replace(strings.TrimSpace(name))
	return url.PathEscape(bucketPrefix + cleaned)
}

// TileGlobs returns one glob pattern per zoom level in [minZoom, maxZoom],
// matching every tile file of that level under dir ({zoom}/{x}/{y}.png).
// Go's filepath.Glob has no brace-range syntax, so ranges expand to one
// pattern per level.
func TileGlobs(dir string, minZoom, maxZoom int) []string {
	globs := make([]string, 0, maxZoom-minZoom+1)
	for z := minZoom; z <= maxZoom; z++ {
		globs = append(globs, filepath.Join(dir, fmt.Sprintf("%d", z), "*", "*.png"))
	}
	return globs
}

// LatLng is a geographic coordinate pair
type LatLng struct {
	Lat float64
	Lng float64
}

// MapBounds are the corner coordinates the viewer fits a custom image into
type MapBounds struct {
	North float64
	East  float64
	South float64
	West  float64
}

// GetMapBoundaries computes the LatLng bounding box of a custom image placed
// on the lower-left corner of the zoom-level-maxZoom map canvas. The canvas at
// level n is 2^(n+8) pixels square (256px tiles).
func GetMapBoundaries(width, height, maxZoom int) MapBounds {
	size := float64(int64(1) << uint(maxZoom+8))
	const maxLat, maxLon = 90.0, 180.0
	return MapBounds{
		North: float64(height)/(size/(maxLat*2)) - maxLat,
		East:  float64(width)/(size/(maxLon*2)) - maxLon,
		South: -maxLat,
		West:  -maxLon,
	}
}
