package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/purge"
	"interactive-maps/pkg/utils"
	"interactive-maps/pkg/zoom"
)

// TileHandler processes one tile job: generate, optimize, upload, clean up,
// then record the finished levels in the database. Stages run sequentially
// and short-circuit on the first error; the persisted Optimized/Uploaded
// flags let a retried job resume past stages that already succeeded.
func (p *Pipeline) TileHandler(ctx context.Context, job *models.TilingJob) error {
	jobLog := p.log.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"map_id":      job.MapID,
		"tile_set_id": job.TileSetID,
		"min_zoom":    job.MinZoom,
		"max_zoom":    job.MaxZoom,
		"first_batch": job.FirstBatch,
	})

	if gone, err := p.mapGone(ctx, job.MapID); err != nil {
		return err
	} else if gone {
		jobLog.Info("Map deleted mid-pipeline, dropping job and cleaning up")
		p.removeWorkDir(job)
		return nil
	}

	// Generating over already-optimized tiles would undo the optipng pass, so
	// generation only runs while both stage flags are clear.
	if !job.Optimized && !job.Uploaded {
		if err := p.tiles.Generate(ctx, job); err != nil {
			return err
		}
	} else {
		jobLog.Debug("Skipping tile generation, later stage already completed")
	}

	if p.cfg.Tiling.OptimizeEnabled() && !job.Uploaded {
		if err := p.optimizer.Optimize(ctx, job); err != nil {
			return err
		}
		if err := p.queue.Save(job); err != nil {
			jobLog.Errorf("Failed to checkpoint optimized flag: %v", err)
		}
	}

	if p.cfg.Tiling.UploadEnabled() {
		bucket := utils.BucketName(p.cfg.Swift.BucketPrefix+p.cfg.Swift.TileSetPrefix, job.Name)
		if err := p.uploader.UploadTiles(ctx, job, bucket); err != nil {
			return err
		}
		if err := p.queue.Save(job); err != nil {
			jobLog.Errorf("Failed to checkpoint uploaded flag: %v", err)
		}
	}

	// Local tiles are no longer needed once uploaded. Cleanup failures leave
	// stray temp files, not a broken map, so they only log.
	p.removeTileDirs(job)

	levels := zoom.FromRange(job.MinZoom, job.MaxZoom)
	if job.FirstBatch {
		if err := p.store.CompleteFirstBatch(ctx, job.TileSetID, job.Width, job.Height, levels.Value()); err != nil {
			return err
		}
		// The map just became publicly listable; drop any cached "processing"
		// responses.
		p.purger.Purge(purge.MapKey(job.MapID), "firstBatchCompleted")
	} else {
		if err := p.store.AddTileSetZoomLevels(ctx, job.TileSetID, levels.Value()); err != nil {
			return err
		}
	}

	p.maybeFinishWorkDir(ctx, job, jobLog)

	jobLog.Info("Tile batch complete")
	return nil
}

// removeTileDirs deletes the job's generated zoom-level directories
func (p *Pipeline) removeTileDirs(job *models.TilingJob) {
	for level := job.MinZoom; level <= job.MaxZoom; level++ {
		dir := filepath.Join(job.Dir, strconv.Itoa(level))
		if err := os.RemoveAll(dir); err != nil {
			p.log.WithField("job_id", job.ID).Warnf("Failed to remove tile dir '%s': %v", dir, err)
		}
	}
}

// removeWorkDir deletes the job's whole working directory
func (p *Pipeline) removeWorkDir(job *models.TilingJob) {
	if job.Dir == "" {
		return
	}
	if err := os.RemoveAll(job.Dir); err != nil {
		p.log.WithField("job_id", job.ID).Warnf("Failed to remove working dir '%s': %v", job.Dir, err)
	}
}

// maybeFinishWorkDir removes the shared working directory (source image
// included) once the stored bit-field shows every planned level present. The
// check runs after this job's own levels are recorded, so whichever batch
// finishes last sees the complete field and does the removal.
func (p *Pipeline) maybeFinishWorkDir(ctx context.Context, job *models.TilingJob, jobLog *logrus.Entry) {
	ts, err := p.store.GetTileSet(ctx, job.TileSetID)
	if err != nil {
		jobLog.Warnf("Could not check tile set completion for cleanup: %v", err)
		return
	}
	if zoom.Bits(ts.MaxZoom).MaxContiguous(p.cfg.Tiling.MinZoom) >= job.TargetMaxZoom {
		jobLog.Debug("All planned zoom levels stored, removing working directory")
		p.removeWorkDir(job)
	}
}
