package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

// compensationTimeout bounds the DB work done from the failure callback,
// which runs outside any job context.
const compensationTimeout = 30 * time.Second

// EnqueueFetch creates and enqueues the fetch job that starts the pipeline
// for a newly created map.
func (p *Pipeline) EnqueueFetch(mapID, tileSetID int64, name, imageURL string) error {
	return p.queue.Enqueue(&models.TilingJob{
		Type:      models.JobTypeFetch,
		Priority:  models.PriorityHigh,
		MapID:     mapID,
		TileSetID: tileSetID,
		Name:      name,
		ImageURL:  imageURL,
	})
}

// HandleFailure is the queue's permanent-failure callback.
//
// Failure policy is asymmetric by batch position: a failed fetch or first
// batch means the map never had viewable tiles, so the map row is deleted and
// the tile set marked failed rather than leaving a dead entry in listings. A
// failed later batch only costs deeper zoom levels on an already-working map,
// so it is logged and the map left alone.
func (p *Pipeline) HandleFailure(job *models.TilingJob, err error) {
	failLog := p.log.WithFields(logrus.Fields{
		"job_id":         job.ID,
		"job_type":       job.Type,
		"map_id":         job.MapID,
		"tile_set_id":    job.TileSetID,
		"first_batch":    job.FirstBatch,
		"error_category": utils.CategorizeError(err),
	})

	beforeFirstBatch := job.Type == models.JobTypeFetch || (job.Type == models.JobTypeTile && job.FirstBatch)
	if !beforeFirstBatch {
		failLog.Error("Later tile batch permanently failed, map keeps its available zoom levels")
		return
	}

	failLog.Error("Pipeline failed before first batch, removing map")

	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	if dbErr := p.store.FailTileSet(ctx, job.TileSetID); dbErr != nil {
		failLog.Errorf("Compensation: failed to mark tile set failed: %v", dbErr)
	}
	if dbErr := p.store.DeleteMap(ctx, job.MapID); dbErr != nil {
		failLog.Errorf("Compensation: failed to delete map: %v", dbErr)
	}
	p.removeWorkDir(job)
}
