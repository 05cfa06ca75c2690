package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/purge"
)

type poiRequest struct {
	Name        string  `json:"name" binding:"required"`
	CategoryID  int64   `json:"poi_category_id" binding:"required"`
	Description string  `json:"description"`
	Link        string  `json:"link"`
	Photo       string  `json:"photo"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	CreatedBy   string  `json:"created_by"`
}

func (s *Server) createPOI(c *gin.Context) {
	mapID, ok := s.paramID(c)
	if !ok {
		return
	}
	var req poiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poi := &models.POI{
		Name:        req.Name,
		MapID:       mapID,
		CategoryID:  req.CategoryID,
		Description: req.Description,
		Link:        req.Link,
		Photo:       req.Photo,
		Lat:         req.Lat,
		Lon:         req.Lon,
		CreatedBy:   req.CreatedBy,
	}
	if err := s.store.CreatePOI(c.Request.Context(), poi); err != nil {
		s.abortWithError(c, err)
		return
	}
	s.purger.Purge(purge.MapKey(mapID), "mapPoiCreated")
	c.JSON(http.StatusCreated, poi)
}

func (s *Server) listPOIs(c *gin.Context) {
	mapID, ok := s.paramID(c)
	if !ok {
		return
	}
	pois, err := s.store.ListPOIs(c.Request.Context(), mapID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if pois == nil {
		pois = []models.POI{}
	}
	c.JSON(http.StatusOK, gin.H{"items": pois, "total": len(pois)})
}

func (s *Server) getPOI(c *gin.Context) {
	id, ok := s.paramID(c)
	if !ok {
		return
	}
	poi, err := s.store.GetPOI(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, poi)
}

func (s *Server) updatePOI(c *gin.Context) {
	id, ok := s.paramID(c)
	if !ok {
		return
	}
	existing, err := s.store.GetPOI(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	var req poiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing.Name = req.Name
	existing.CategoryID = req.CategoryID
	existing.Description = req.Description
	existing.Link = req.Link
	existing.Photo = req.Photo
	existing.Lat = req.Lat
	existing.Lon = req.Lon
	existing.UpdatedBy = req.CreatedBy

	if err := s.store.UpdatePOI(c.Request.Context(), existing); err != nil {
		s.abortWithError(c, err)
		return
	}
	s.purger.Purge(purge.MapKey(existing.MapID), "mapPoiUpdated")
	c.JSON(http.StatusOK, existing)
}

func (s *Server) deletePOI(c *gin.Context) {
	id, ok := s.paramID(c)
	if !ok {
		return
	}
	poi, err := s.store.GetPOI(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if err := s.store.DeletePOI(c.Request.Context(), id); err != nil {
		s.abortWithError(c, err)
		return
	}
	s.purger.Purge(purge.MapKey(poi.MapID), "mapPoiDeleted")
	c.Status(http.StatusNoContent)
}

type poiCategoryRequest struct {
	Name      string `json:"name" binding:"required"`
	Marker    string `json:"marker"`
	CreatedBy string `json:"created_by"`
}

func (s *Server) createPOICategory(c *gin.Context) {
	mapID, ok := s.paramID(c)
	if !ok {
		return
	}
	var req poiCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category := &models.POICategory{
		Name:      req.Name,
		MapID:     mapID,
		Marker:    req.Marker,
		CreatedBy: req.CreatedBy,
	}
	if err := s.store.CreatePOICategory(c.Request.Context(), category); err != nil {
		s.abortWithError(c, err)
		return
	}
	s.purger.Purge(purge.MapKey(mapID), "poiCategoryCreated")
	c.JSON(http.StatusCreated, category)
}

func (s *Server) listPOICategories(c *gin.Context) {
	mapID, ok := s.paramID(c)
	if !ok {
		return
	}
	categories, err := s.store.ListPOICategories(c.Request.Context(), mapID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if categories == nil {
		categories = []models.POICategory{}
	}
	c.JSON(http.StatusOK, gin.H{"items": categories, "total": len(categories)})
}

func (s *Server) updatePOICategory(c *gin.Context) {
	id, ok := s.paramID(c)
	if !ok {
		return
	}
	var req poiCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category := &models.POICategory{ID: id, Name: req.Name, Marker: req.Marker}
	if err := s.store.UpdatePOICategory(c.Request.Context(), category); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (s *Server) deletePOICategory(c *gin.Context) {
	id, ok := s.paramID(c)
	if !ok {
		return
	}
	if err := s.store.DeletePOICategory(c.Request.Context(), id); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
