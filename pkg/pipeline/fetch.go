package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/fetch"
	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
	"interactive-maps/pkg/zoom"
)

// FetchHandler processes a fetch job: download the source image, probe its
// dimensions, plan the zoom batches and enqueue one tile job per batch. The
// first batch goes out high priority so the map becomes viewable quickly.
func (p *Pipeline) FetchHandler(ctx context.Context, job *models.TilingJob) error {
	jobLog := p.log.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"map_id":    job.MapID,
		"image_url": job.ImageURL,
	})

	if gone, err := p.mapGone(ctx, job.MapID); err != nil {
		return err
	} else if gone {
		jobLog.Info("Map deleted before fetch ran, dropping job")
		return nil
	}

	if job.Dir == "" {
		job.Dir = filepath.Join(p.cfg.TmpDir, job.ID)
	}

	name, err := p.images.Download(ctx, job.ImageURL, job.Dir)
	if err != nil {
		return err
	}
	job.Image = name

	width, height, err := fetch.ProbeDimensions(filepath.Join(job.Dir, name))
	if err != nil {
		return err
	}
	job.Width = width
	job.Height = height

	if err := p.queue.Save(job); err != nil {
		jobLog.Errorf("Failed to checkpoint fetched image details: %v", err)
	}

	plan := zoom.Plan(width, height, zoom.Config{
		MinZoom:        p.cfg.Tiling.MinZoom,
		MaxZoom:        p.cfg.Tiling.MaxZoom,
		FirstBatchSize: p.cfg.Tiling.FirstBatchZoomLevels,
	})

	planLog := jobLog.WithFields(logrus.Fields{
		"width":           width,
		"height":          height,
		"target_max_zoom": plan.TargetMaxZoom,
		"batches":         len(plan.Batches),
	})
	if first := plan.FirstBatch(); first != nil {
		// The map becomes viewable once this level is uploaded.
		planLog = planLog.WithField("first_batch_max_zoom", first.MaxZoom)
	}
	planLog.Info("Source image fetched, zoom plan ready")

	for i, batch := range plan.Batches {
		tileJob := &models.TilingJob{
			Type:          models.JobTypeTile,
			Priority:      batch.Priority,
			MapID:         job.MapID,
			TileSetID:     job.TileSetID,
			Name:          job.Name,
			Image:         job.Image,
			Dir:           job.Dir,
			MinZoom:       batch.MinZoom,
			MaxZoom:       batch.MaxZoom,
			TargetMaxZoom: plan.TargetMaxZoom,
			Width:         width,
			Height:        height,
			FirstBatch:    i == 0,
		}
		if err := p.queue.Enqueue(tileJob); err != nil {
			return fmt.Errorf("enqueueing tile job for zoom [%d, %d]: %w", batch.MinZoom, batch.MaxZoom, err)
		}
	}
	return nil
}

// mapGone reports whether the owning map has been deleted. A missing row and
// a soft-deleted row are the same from the pipeline's view: stop working.
func (p *Pipeline) mapGone(ctx context.Context, mapID int64) (bool, error) {
	m, err := p.store.GetMap(ctx, mapID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return m.Deleted, nil
}
