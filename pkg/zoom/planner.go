package zoom

import (
	"math/bits"

	"interactive-maps/pkg/models"
)

// tileSizeExponent is the base tile-size exponent: tiles are 256px (2^8)
// squares, so the zoom-level-n canvas is 2^(n+8) pixels wide.
const tileSizeExponent = 8

// Config holds the planner's tunables, taken from the tiling section of the
// app config.
type Config struct {
	MinZoom        int // Floor for generated zoom levels
	MaxZoom        int // Global cap regardless of image resolution
	FirstBatchSize int // Number of levels above MinZoom generated eagerly
}

// MaxZoomLevel returns the deepest zoom level worth generating for an image
// of the given dimensions, capped at maxZoomCap. Beyond
// ceil(log2(max(w,h))) - 8 every tile would just be an upscaled duplicate of
// the level below.
func MaxZoomLevel(width, height, maxZoomCap int) int {
	size := width
	if height > size {
		size = height
	}
	if size < 1 {
		size = 1
	}
	// ceil(log2(size)) for size >= 1
	ceilLog2 := bits.Len(uint(size - 1))
	level := ceilLog2 - tileSizeExponent
	if level > maxZoomCap {
		level = maxZoomCap
	}
	return level
}

// Plan partitions the zoom levels of an image into tiling batches: one
// high-priority first batch starting at MinZoom, then one single-level
// low-priority batch per remaining level up to the target max zoom.
//
// Pure and deterministic; the target never exceeds cfg.MaxZoom and is
// monotonically non-decreasing in max(width, height).
func Plan(width, height int, cfg Config) models.ZoomPlan {
	target := MaxZoomLevel(width, height, cfg.MaxZoom)
	if target < cfg.MinZoom {
		// Image too small to support anything beyond the floor; a single
		// first-batch range at MinZoom is still generated.
		target = cfg.MinZoom
	}

	firstMax := cfg.MinZoom + cfg.FirstBatchSize
	if firstMax > target {
		firstMax = target
	}

	plan := models.ZoomPlan{TargetMaxZoom: target}
	plan.Batches = append(plan.Batches, models.ZoomBatch{
		MinZoom:  cfg.MinZoom,
		MaxZoom:  firstMax,
		Priority: models.PriorityHigh,
	})
	for level := firstMax + 1; level <= target; level++ {
		plan.Batches = append(plan.Batches, models.ZoomBatch{
			MinZoom:  level,
			MaxZoom:  level,
			Priority: models.PriorityLow,
		})
	}
	return plan
}
