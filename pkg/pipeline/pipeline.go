package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/config"
	"interactive-maps/pkg/models"
)

// ImageDownloader fetches the source image into a working directory
type ImageDownloader interface {
	Download(ctx context.Context, imageURL, dir string) (string, error)
}

// TileGenerator renders the tiles for a job's zoom range
type TileGenerator interface {
	Generate(ctx context.Context, job *models.TilingJob) error
}

// TileOptimizer recompresses a job's generated tiles
type TileOptimizer interface {
	Optimize(ctx context.Context, job *models.TilingJob) error
}

// TileUploader pushes a job's tiles to the object store
type TileUploader interface {
	UploadTiles(ctx context.Context, job *models.TilingJob, bucket string) error
}

// MapStore is the slice of the relational store the pipeline needs
type MapStore interface {
	GetMap(ctx context.Context, id int64) (*models.Map, error)
	DeleteMap(ctx context.Context, id int64) error
	GetTileSet(ctx context.Context, id int64) (*models.TileSet, error)
	FailTileSet(ctx context.Context, id int64) error
	AddTileSetZoomLevels(ctx context.Context, id int64, levels uint32) error
	CompleteFirstBatch(ctx context.Context, id int64, width, height int, levels uint32) error
}

// JobQueue is the slice of the queue the pipeline needs: spawning follow-up
// jobs and checkpointing stage flags.
type JobQueue interface {
	Enqueue(job *models.TilingJob) error
	Save(job *models.TilingJob) error
}

// Purger invalidates cached map responses, tagged with the operation that
// triggered the purge.
type Purger interface {
	Purge(key, caller string)
}

// Pipeline wires the tiling stages together: the fetch handler turns a source
// image into planned tile jobs, the tile handler drives one zoom range
// through generate, optimize, upload, cleanup and the database update.
type Pipeline struct {
	cfg       *config.AppConfig
	store     MapStore
	queue     JobQueue
	images    ImageDownloader
	tiles     TileGenerator
	optimizer TileOptimizer
	uploader  TileUploader
	purger    Purger
	log       *logrus.Logger
}

// New creates a Pipeline instance
func New(
	cfg *config.AppConfig,
	store MapStore,
	jobQueue JobQueue,
	images ImageDownloader,
	tiles TileGenerator,
	optimizer TileOptimizer,
	uploader TileUploader,
	purger Purger,
	logger *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		queue:     jobQueue,
		images:    images,
		tiles:     tiles,
		optimizer: optimizer,
		uploader:  uploader,
		purger:    purger,
		log:       logger,
	}
}
