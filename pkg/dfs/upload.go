package dfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

// UploadTiles pushes every tile in job's zoom range to bucket, preserving the
// {zoom}/{x}/{y}.png layout. PUTs run with bounded concurrency; the first
// failure cancels the rest of the batch. A job whose Uploaded flag is set is
// skipped (the stage finished on a previous attempt). On success the flag is
// set on the job; persisting it is the caller's responsibility.
func (c *Client) UploadTiles(ctx context.Context, job *models.TilingJob, bucket string) error {
	jobLog := c.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"map_id":   job.MapID,
		"bucket":   bucket,
		"min_zoom": job.MinZoom,
		"max_zoom": job.MaxZoom,
	})

	if job.Uploaded {
		jobLog.Info("Tiles already uploaded on a previous attempt, skipping")
		return nil
	}

	if err := c.EnsureBucket(ctx, bucket); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	concurrency := c.cfg.UploadConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	group.SetLimit(concurrency)

	var total int64
	for _, pattern := range utils.TileGlobs(job.Dir, job.MinZoom, job.MaxZoom) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("%w: bad tile glob '%s': %w", utils.ErrFilesystem, pattern, err)
		}

		for _, tile := range matches {
			tile := tile
			group.Go(func() error {
				rel, err := filepath.Rel(job.Dir, tile)
				if err != nil {
					return fmt.Errorf("%w: resolving tile path '%s': %w", utils.ErrFilesystem, tile, err)
				}
				object := bucket + "/" + filepath.ToSlash(rel)

				err = c.put(groupCtx, object, "image/png", func() (io.ReadCloser, error) {
					return os.Open(tile)
				})
				if err != nil {
					return err
				}
				atomic.AddInt64(&total, 1)
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return err
	}

	job.Uploaded = true
	jobLog.WithField("tiles", atomic.LoadInt64(&total)).Info("Tile upload complete")
	return nil
}

// TileURLTemplate returns the public Leaflet-style URL template for a tile
// set's bucket on host, e.g. "http://tiles.example.com/maps_foo/{z}/{x}/{y}.png".
// The viewer page hands this straight to L.tileLayer.
func TileURLTemplate(host, bucket string) string {
	return "http://" + host + "/" + bucket + "/{z}/{x}/{y}.png"
}
