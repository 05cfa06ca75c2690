package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/mapstore"
	"interactive-maps/pkg/models"
	"interactive-maps/pkg/purge"
	"interactive-maps/pkg/utils"
)

type createMapRequest struct {
	Title     string `json:"title" binding:"required"`
	CityID    int64  `json:"city_id" binding:"required"`
	ImageURL  string `json:"image_url"`
	CreatedBy string `json:"created_by"`
}

type createMapResponse struct {
	Map     *models.Map     `json:"map"`
	TileSet *models.TileSet `json:"tile_set"`
	Reused  bool            `json:"tile_set_reused"`
}

// createMap creates a map. If a tile set with the same name already exists
// the finished tiles are reused and no pipeline runs; otherwise a new tile
// set starts in "processing" and a fetch job is enqueued.
func (s *Server) createMap(c *gin.Context) {
	var req createMapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m := &models.Map{Title: req.Title, CityID: req.CityID, CreatedBy: req.CreatedBy}

	// Reuse path: same image already tiled for another map.
	existing, err := s.store.FindTileSetByName(c.Request.Context(), req.Title)
	if err == nil && existing.Status == models.TileSetStatusOK {
		m.TileSetID = existing.ID
		if err := s.store.CreateMap(c.Request.Context(), m); err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, createMapResponse{Map: m, TileSet: existing, Reused: true})
		return
	}
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		s.abortWithError(c, err)
		return
	}

	if req.ImageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_url is required for a new tile set"})
		return
	}

	ts := &models.TileSet{
		Name:      req.Title,
		Image:     req.ImageURL,
		MinZoom:   s.cfg.Tiling.MinZoom,
		CreatedBy: req.CreatedBy,
	}
	if err := s.store.CreateMapWithTileSet(c.Request.Context(), m, ts); err != nil {
		s.abortWithError(c, err)
		return
	}

	if err := s.pipeline.EnqueueFetch(m.ID, ts.ID, ts.Name, req.ImageURL); err != nil {
		// The rows exist but no pipeline will fill them; surface the failure
		// rather than leaving a map stuck in processing forever.
		s.log.WithFields(logrus.Fields{"map_id": m.ID}).Errorf("Failed to enqueue fetch job: %v", err)
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, createMapResponse{Map: m, TileSet: ts, Reused: false})
}

func (s *Server) listMaps(c *gin.Context) {
	filter := mapstore.MapFilter{}
	if cityID, err := strconv.ParseInt(c.Query("city_id"), 10, 64); err == nil {
		filter.CityID = cityID
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil {
		filter.Offset = offset
	}
	filter.IncludeAll = c.Query("all") == "true"

	maps, err := s.store.ListMaps(c.Request.Context(), filter)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if maps == nil {
		maps = []models.Map{}
	}
	c.JSON(http.StatusOK, gin.H{"items": maps, "total": len(maps)})
}

func (s *Server) getMap(c *gin.Context) {
	id, ok := s.paramID(c)
	if !ok {
		return
	}
	m, err := s.store.GetMap(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if m.Deleted {
		s.abortWithError(c, fmt.Errorf("%w: map %d is deleted", utils.ErrMapGone, id))
		return
	}

	ts, err := s.store.GetTileSet(c.Request.Context(), m.TileSetID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"map": m, "tile_set": ts})
}

type updateMapRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) updateMap(c *gin.Context) {
	id, ok := s.paramID(c)
	if !ok {
		return
	}
	var req updateMapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.UpdateMapTitle(c.Request.Context(), id, req.Title); err != nil {
		s.abortWithError(c, err)
		return
	}
	s.purger.Purge(purge.MapKey(id), "mapUpdated")
	c.JSON(http.StatusOK, gin.H{"id": id, "title": req.Title})
}

func (s *Server) deleteMap(c *gin.Context) {
	id, ok := s.paramID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteMap(c.Request.Context(), id); err != nil {
		s.abortWithError(c, err)
		return
	}
	s.purger.Purge(purge.MapKey(id), "mapDeleted")
	c.Status(http.StatusNoContent)
}

func (s *Server) getTileSet(c *gin.Context) {
	id, ok := s.paramID(c)
	if !ok {
		return
	}
	ts, err := s.store.GetTileSet(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ts)
}

// paramID parses the :id path parameter, answering 400 on garbage
func (s *Server) paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
