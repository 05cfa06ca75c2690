package tiler

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

// TileSize is the edge length of a rendered tile in pixels
const TileSize = 256

// Generator renders 256px map tiles from a source image for a range of zoom
// levels. Output layout under the job directory is {zoom}/{x}/{y}.png, the
// same path shape the viewer requests from the tile host.
type Generator struct {
	log *logrus.Logger
}

// NewGenerator creates a new Generator instance
func NewGenerator(log *logrus.Logger) *Generator {
	return &Generator{log: log}
}

// Generate renders all tiles for job's [MinZoom, MaxZoom] range from the
// fetched source image in job.Dir. Output files are overwritten if present, so
// a retried job can safely re-run this stage. Decode failures wrap
// utils.ErrImageProcessing; write failures wrap utils.ErrFilesystem.
func (g *Generator) Generate(ctx context.Context, job *models.TilingJob) error {
	jobLog := g.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"map_id":   job.MapID,
		"min_zoom": job.MinZoom,
		"max_zoom": job.MaxZoom,
	})

	src, err := imaging.Open(filepath.Join(job.Dir, job.Image))
	if err != nil {
		return fmt.Errorf("%w: opening source image '%s': %w", utils.ErrImageProcessing, job.Image, err)
	}

	for zoom := job.MinZoom; zoom <= job.MaxZoom; zoom++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		count, err := g.renderLevel(src, zoom, job.Dir)
		if err != nil {
			return err
		}
		jobLog.WithFields(logrus.Fields{"zoom": zoom, "tiles": count}).Debug("Zoom level rendered")
	}

	jobLog.Info("Tile generation complete")
	return nil
}

// renderLevel scales the source to the zoom level's canvas and cuts it into
// tiles. At zoom z the canvas is 2^z tiles on a side; the image is fit inside
// preserving aspect ratio, and edge tiles are padded with transparency.
func (g *Generator) renderLevel(src image.Image, zoom int, dir string) (int, error) {
	canvas := TileSize << uint(zoom)

	scaled := imaging.Fit(src, canvas, canvas, imaging.Lanczos)
	bounds := scaled.Bounds()

	cols := (bounds.Dx() + TileSize - 1) / TileSize
	rows := (bounds.Dy() + TileSize - 1) / TileSize

	count := 0
	for x := 0; x < cols; x++ {
		colDir := filepath.Join(dir, strconv.Itoa(zoom), strconv.Itoa(x))
		if err := os.MkdirAll(colDir, 0755); err != nil {
			return count, fmt.Errorf("%w: creating tile dir '%s': %w", utils.ErrFilesystem, colDir, err)
		}

		for y := 0; y < rows; y++ {
			region := image.Rect(x*TileSize, y*TileSize, (x+1)*TileSize, (y+1)*TileSize)
			crop := imaging.Crop(scaled, region)

			tile := imaging.New(TileSize, TileSize, color.Transparent)
			tile = imaging.Paste(tile, crop, image.Pt(0, 0))

			dest := filepath.Join(colDir, strconv.Itoa(y)+".png")
			if err := imaging.Save(tile, dest); err != nil {
				return count, fmt.Errorf("%w: writing tile '%s': %w", utils.ErrFilesystem, dest, err)
			}
			count++
		}
	}
	return count, nil
}
