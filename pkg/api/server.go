package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/config"
	"interactive-maps/pkg/health"
	"interactive-maps/pkg/mapstore"
	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

// MapStore is the persistence surface the API serves from
type MapStore interface {
	CreateMapWithTileSet(ctx context.Context, m *models.Map, ts *models.TileSet) error
	CreateMap(ctx context.Context, m *models.Map) error
	GetMap(ctx context.Context, id int64) (*models.Map, error)
	ListMaps(ctx context.Context, filter mapstore.MapFilter) ([]models.Map, error)
	UpdateMapTitle(ctx context.Context, id int64, title string) error
	DeleteMap(ctx context.Context, id int64) error

	GetTileSet(ctx context.Context, id int64) (*models.TileSet, error)
	FindTileSetByName(ctx context.Context, name string) (*models.TileSet, error)

	CreatePOI(ctx context.Context, p *models.POI) error
	GetPOI(ctx context.Context, id int64) (*models.POI, error)
	ListPOIs(ctx context.Context, mapID int64) ([]models.POI, error)
	UpdatePOI(ctx context.Context, p *models.POI) error
	DeletePOI(ctx context.Context, id int64) error

	CreatePOICategory(ctx context.Context, c *models.POICategory) error
	ListPOICategories(ctx context.Context, mapID int64) ([]models.POICategory, error)
	UpdatePOICategory(ctx context.Context, c *models.POICategory) error
	DeletePOICategory(ctx context.Context, id int64) error
}

// PipelineStarter kicks off tiling for a newly created map
type PipelineStarter interface {
	EnqueueFetch(mapID, tileSetID int64, name, imageURL string) error
}

// Purger invalidates cached map responses after edits, tagged with the
// operation that triggered the purge.
type Purger interface {
	Purge(key, caller string)
}

// Server is the HTTP API: map/POI/category CRUD, the heartbeat endpoint and
// the map viewer page.
type Server struct {
	store    MapStore
	pipeline PipelineStarter
	checker  *health.Checker
	purger   Purger
	cfg      *config.AppConfig
	log      *logrus.Logger
}

// NewServer creates a Server instance
func NewServer(
	store MapStore,
	pipeline PipelineStarter,
	checker *health.Checker,
	purger Purger,
	cfg *config.AppConfig,
	logger *logrus.Logger,
) *Server {
	return &Server{
		store:    store,
		pipeline: pipeline,
		checker:  checker,
		purger:   purger,
		cfg:      cfg,
		log:      logger,
	}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/heartbeat", s.heartbeat)
	router.GET("/maps/:id/render", s.renderMap)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/maps", s.createMap)
		v1.GET("/maps", s.listMaps)
		v1.GET("/maps/:id", s.getMap)
		v1.PUT("/maps/:id", s.updateMap)
		v1.DELETE("/maps/:id", s.deleteMap)

		v1.GET("/tile_sets/:id", s.getTileSet)

		v1.POST("/maps/:id/pois", s.createPOI)
		v1.GET("/maps/:id/pois", s.listPOIs)
		v1.GET("/pois/:id", s.getPOI)
		v1.PUT("/pois/:id", s.updatePOI)
		v1.DELETE("/pois/:id", s.deletePOI)

		v1.POST("/maps/:id/poi_categories", s.createPOICategory)
		v1.GET("/maps/:id/poi_categories", s.listPOICategories)
		v1.PUT("/poi_categories/:id", s.updatePOICategory)
		v1.DELETE("/poi_categories/:id", s.deletePOICategory)
	}
	return router
}

// requestLogger logs each request through the application logger
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		entry := s.log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
		})
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
		} else {
			entry.Debug("Request handled")
		}
	}
}

// heartbeat reports service health. WARNING still answers 200 so plain HTTP
// monitors only page on CRITICAL; the body carries the exact severity.
func (s *Server) heartbeat(c *gin.Context) {
	report := s.checker.Check(c.Request.Context())
	status := http.StatusOK
	if report.Severity() >= health.SeverityCritical {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// abortWithError maps store/pipeline errors to HTTP status codes
func (s *Server) abortWithError(c *gin.Context, err error) {
	c.Error(err)
	switch {
	case errors.Is(err, utils.ErrNotFound), errors.Is(err, utils.ErrMapGone):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.log.WithField("error_category", utils.CategorizeError(err)).Errorf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
