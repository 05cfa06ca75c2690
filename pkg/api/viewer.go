package api

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"interactive-maps/pkg/dfs"
	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
	"interactive-maps/pkg/zoom"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var viewerTemplate = template.Must(template.ParseFS(templateFS, "templates/viewer.tmpl"))

// viewerData is the template payload for the Leaflet map page
type viewerData struct {
	Map        *models.Map
	TileSet    *models.TileSet
	POIs       []models.POI
	Categories []models.POICategory
	TileURL    string
	MinZoom    int
	MaxZoom    int
	Bounds     utils.MapBounds
	Processing bool
}

// renderMap serves the interactive viewer page for one map. Tiles are loaded
// straight from the public tile host; the page only needs the map metadata.
// A map still tiling renders a holding page.
func (s *Server) renderMap(c *gin.Context) {
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

	data := viewerData{
		Map:        m,
		TileSet:    ts,
		Processing: ts.Status != models.TileSetStatusOK,
	}

	if !data.Processing {
		pois, err := s.store.ListPOIs(c.Request.Context(), id)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		categories, err := s.store.ListPOICategories(c.Request.Context(), id)
		if err != nil {
			s.abortWithError(c, err)
			return
		}

		// The viewer only offers gap-free zoom levels; deeper levels appear
		// as their low-priority batches finish.
		maxZoom := zoom.Bits(ts.MaxZoom).MaxContiguous(ts.MinZoom)
		if maxZoom < ts.MinZoom {
			maxZoom = ts.MinZoom
		}

		bucket := utils.BucketName(s.cfg.Swift.BucketPrefix+s.cfg.Swift.TileSetPrefix, ts.Name)
		data.POIs = pois
		data.Categories = categories
		data.TileURL = dfs.TileURLTemplate(s.cfg.Swift.DFSHost, bucket)
		data.MinZoom = ts.MinZoom
		data.MaxZoom = maxZoom
		data.Bounds = utils.GetMapBoundaries(ts.Width, ts.Height, maxZoom)
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Surrogate-Key", "map-"+c.Param("id"))
	if err := viewerTemplate.Execute(c.Writer, data); err != nil {
		s.log.Errorf("Failed to render viewer for map %d: %v", id, err)
	}
}
