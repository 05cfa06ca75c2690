package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interactive-maps/pkg/config"
	"interactive-maps/pkg/health"
	"interactive-maps/pkg/mapstore"
	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
	"interactive-maps/pkg/zoom"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- fakes ---

type memStore struct {
	maps       map[int64]*models.Map
	tileSets   map[int64]*models.TileSet
	pois       map[int64]*models.POI
	categories map[int64]*models.POICategory
	nextID     int64
}

func newMemStore() *memStore {
	return &memStore{
		maps:       make(map[int64]*models.Map),
		tileSets:   make(map[int64]*models.TileSet),
		pois:       make(map[int64]*models.POI),
		categories: make(map[int64]*models.POICategory),
		nextID:     100,
	}
}

func (f *memStore) id() int64 { f.nextID++; return f.nextID }

func (f *memStore) CreateMapWithTileSet(ctx context.Context, m *models.Map, ts *models.TileSet) error {
	ts.ID = f.id()
	ts.Status = models.TileSetStatusProcessing
	f.tileSets[ts.ID] = ts
	m.ID = f.id()
	m.TileSetID = ts.ID
	f.maps[m.ID] = m
	return nil
}

func (f *memStore) CreateMap(ctx context.Context, m *models.Map) error {
	m.ID = f.id()
	f.maps[m.ID] = m
	return nil
}

func (f *memStore) GetMap(ctx context.Context, id int64) (*models.Map, error) {
	if m, ok := f.maps[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: map %d", utils.ErrNotFound, id)
}

func (f *memStore) ListMaps(ctx context.Context, filter mapstore.MapFilter) ([]models.Map, error) {
	var out []models.Map
	for _, m := range f.maps {
		if m.Deleted {
			continue
		}
		if filter.CityID != 0 && m.CityID != filter.CityID {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *memStore) UpdateMapTitle(ctx context.Context, id int64, title string) error {
	m, ok := f.maps[id]
	if !ok || m.Deleted {
		return fmt.Errorf("%w: map %d", utils.ErrNotFound, id)
	}
	m.Title = title
	return nil
}

func (f *memStore) DeleteMap(ctx context.Context, id int64) error {
	if m, ok := f.maps[id]; ok {
		m.Deleted = true
	}
	return nil
}

func (f *memStore) GetTileSet(ctx context.Context, id int64) (*models.TileSet, error) {
	if ts, ok := f.tileSets[id]; ok {
		return ts, nil
	}
	return nil, fmt.Errorf("%w: tile set %d", utils.ErrNotFound, id)
}

func (f *memStore) FindTileSetByName(ctx context.Context, name string) (*models.TileSet, error) {
	for _, ts := range f.tileSets {
		if ts.Name == name {
			return ts, nil
		}
	}
	return nil, fmt.Errorf("%w: tile set '%s'", utils.ErrNotFound, name)
}

func (f *memStore) CreatePOI(ctx context.Context, p *models.POI) error {
	p.ID = f.id()
	f.pois[p.ID] = p
	return nil
}

func (f *memStore) GetPOI(ctx context.Context, id int64) (*models.POI, error) {
	if p, ok := f.pois[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: poi %d", utils.ErrNotFound, id)
}

func (f *memStore) ListPOIs(ctx context.Context, mapID int64) ([]models.POI, error) {
	var out []models.POI
	for _, p := range f.pois {
		if p.MapID == mapID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *memStore) UpdatePOI(ctx context.Context, p *models.POI) error {
	if _, ok := f.pois[p.ID]; !ok {
		return fmt.Errorf("%w: poi %d", utils.ErrNotFound, p.ID)
	}
	f.pois[p.ID] = p
	return nil
}

func (f *memStore) DeletePOI(ctx context.Context, id int64) error {
	if _, ok := f.pois[id]; !ok {
		return fmt.Errorf("%w: poi %d", utils.ErrNotFound, id)
	}
	delete(f.pois, id)
	return nil
}

func (f *memStore) CreatePOICategory(ctx context.Context, c *models.POICategory) error {
	c.ID = f.id()
	f.categories[c.ID] = c
	return nil
}

func (f *memStore) ListPOICategories(ctx context.Context, mapID int64) ([]models.POICategory, error) {
	var out []models.POICategory
	for _, c := range f.categories {
		if c.MapID == mapID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *memStore) UpdatePOICategory(ctx context.Context, c *models.POICategory) error {
	if _, ok := f.categories[c.ID]; !ok {
		return fmt.Errorf("%w: poi category %d", utils.ErrNotFound, c.ID)
	}
	f.categories[c.ID] = c
	return nil
}

func (f *memStore) DeletePOICategory(ctx context.Context, id int64) error {
	if _, ok := f.categories[id]; !ok {
		return fmt.Errorf("%w: poi category %d", utils.ErrNotFound, id)
	}
	delete(f.categories, id)
	return nil
}

type fakeStarter struct {
	calls []string
	err   error
}

func (f *fakeStarter) EnqueueFetch(mapID, tileSetID int64, name, imageURL string) error {
	f.calls = append(f.calls, fmt.Sprintf("%d:%d:%s", mapID, tileSetID, name))
	return f.err
}

type fakePurger struct {
	keys    []string
	callers []string
}

func (f *fakePurger) Purge(key, caller string) {
	f.keys = append(f.keys, key)
	f.callers = append(f.callers, caller)
}

type fakeDepth struct{ depth int }

func (f fakeDepth) Depth() int { return f.depth }

type fakePing struct{ err error }

func (f fakePing) Ping(ctx context.Context) error { return f.err }

// --- harness ---

type apiHarness struct {
	router  *gin.Engine
	store   *memStore
	starter *fakeStarter
	purger  *fakePurger
	dbPing  *fakePing
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := newMemStore()
	starter := &fakeStarter{}
	purger := &fakePurger{}
	ping := &fakePing{}

	cfg := &config.AppConfig{
		Tiling: config.TilingConfig{MinZoom: 0, MaxZoom: 9},
		Swift:  config.SwiftConfig{BucketPrefix: "maps_", TileSetPrefix: "ts_", DFSHost: "tiles.example.com"},
	}
	checker := health.NewChecker(fakeDepth{depth: 1}, ping, health.Thresholds{QueueWarn: 10, QueueCrit: 20}, logger)
	server := NewServer(store, starter, checker, purger, cfg, logger)

	return &apiHarness{router: server.Router(), store: store, starter: starter, purger: purger, dbPing: ping}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) seedMap(status models.TileSetStatus) (*models.Map, *models.TileSet) {
	ts := &models.TileSet{
		ID:      10,
		Name:    "seed map",
		Width:   1024,
		Height:  512,
		MaxZoom: zoom.FromRange(0, 2).Value(),
		Status:  status,
	}
	h.store.tileSets[ts.ID] = ts
	m := &models.Map{ID: 1, Title: "seed map", CityID: 5, TileSetID: ts.ID}
	h.store.maps[m.ID] = m
	return m, ts
}

// --- heartbeat ---

func TestHeartbeat_OK(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodGet, "/heartbeat", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.SeverityOK, report.Severity())
	assert.Equal(t, 1, report.QueueDepth)
}

func TestHeartbeat_DatabaseDown(t *testing.T) {
	h := newAPIHarness(t)
	h.dbPing.err = errors.New("connection refused")

	rec := h.do(t, http.MethodGet, "/heartbeat", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.SeverityCritical, report.Severity())
}

// --- maps ---

func TestCreateMap_NewTileSetStartsPipeline(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/maps", gin.H{
		"title":     "new dungeon",
		"city_id":   5,
		"image_url": "http://img.example.com/d.png",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createMapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Reused)
	assert.Equal(t, models.TileSetStatusProcessing, resp.TileSet.Status)
	require.Len(t, h.starter.calls, 1)
}

func TestCreateMap_ReusesFinishedTileSet(t *testing.T) {
	h := newAPIHarness(t)
	_, ts := h.seedMap(models.TileSetStatusOK)

	rec := h.do(t, http.MethodPost, "/api/v1/maps", gin.H{
		"title":   ts.Name,
		"city_id": 9,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createMapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Reused)
	assert.Equal(t, ts.ID, resp.Map.TileSetID)
	assert.Empty(t, h.starter.calls, "reused tile sets must not re-run the pipeline")
}

func TestCreateMap_ValidationErrors(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/maps", gin.H{"city_id": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing title")

	rec = h.do(t, http.MethodPost, "/api/v1/maps", gin.H{"title": "no image", "city_id": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "new tile set requires image_url")
}

func TestGetMap(t *testing.T) {
	h := newAPIHarness(t)
	m, _ := h.seedMap(models.TileSetStatusOK)

	rec := h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/maps/%d", m.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"seed map"`)

	rec = h.do(t, http.MethodGet, "/api/v1/maps/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/maps/garbage", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMap_DeletedIs404(t *testing.T) {
	h := newAPIHarness(t)
	m, _ := h.seedMap(models.TileSetStatusOK)
	m.Deleted = true

	rec := h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/maps/%d", m.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMap_PurgesCache(t *testing.T) {
	h := newAPIHarness(t)
	m, _ := h.seedMap(models.TileSetStatusOK)

	rec := h.do(t, http.MethodPut, fmt.Sprintf("/api/v1/maps/%d", m.ID), gin.H{"title": "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", h.store.maps[m.ID].Title)
	assert.Equal(t, []string{"map-1"}, h.purger.keys)
	assert.Equal(t, []string{"mapUpdated"}, h.purger.callers)
}

func TestDeleteMap(t *testing.T) {
	h := newAPIHarness(t)
	m, _ := h.seedMap(models.TileSetStatusOK)

	rec := h.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/maps/%d", m.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, h.store.maps[m.ID].Deleted)
	assert.Equal(t, []string{"map-1"}, h.purger.keys)
	assert.Equal(t, []string{"mapDeleted"}, h.purger.callers)
}

func TestListMaps(t *testing.T) {
	h := newAPIHarness(t)
	h.seedMap(models.TileSetStatusOK)

	rec := h.do(t, http.MethodGet, "/api/v1/maps?city_id=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = h.do(t, http.MethodGet, "/api/v1/maps?city_id=777", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}

// --- POIs ---

func TestPOILifecycle(t *testing.T) {
	h := newAPIHarness(t)
	m, _ := h.seedMap(models.TileSetStatusOK)

	rec := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/maps/%d/poi_categories", m.ID), gin.H{"name": "Quests"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var category models.POICategory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &category))

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/maps/%d/pois", m.ID), gin.H{
		"name":            "Boss Room",
		"poi_category_id": category.ID,
		"lat":             -12.5,
		"lon":             40.25,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var poi models.POI
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poi))
	assert.Equal(t, m.ID, poi.MapID)

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/maps/%d/pois", m.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Boss Room")

	rec = h.do(t, http.MethodPut, fmt.Sprintf("/api/v1/pois/%d", poi.ID), gin.H{
		"name":            "Hidden Boss Room",
		"poi_category_id": category.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/pois/%d", poi.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.store.pois)

	// Every edit purged the map's cached responses, attributed to the
	// operation that made it.
	assert.GreaterOrEqual(t, len(h.purger.keys), 4)
	assert.Equal(t, []string{"poiCategoryCreated", "mapPoiCreated", "mapPoiUpdated", "mapPoiDeleted"}, h.purger.callers)
}

func TestCreatePOI_UnknownMapStillValidates(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/maps/1/pois", gin.H{"lat": 1.0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- viewer ---

func TestRenderMap_ServesLeafletPage(t *testing.T) {
	h := newAPIHarness(t)
	m, _ := h.seedMap(models.TileSetStatusOK)
	h.store.pois[500] = &models.POI{ID: 500, MapID: m.ID, Name: "Boss Room", Lat: 1, Lon: 2}

	rec := h.do(t, http.MethodGet, fmt.Sprintf("/maps/%d/render", m.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "leaflet")
	assert.Contains(t, body, "tiles.example.com/maps_ts_seed_map/{z}/{x}/{y}.png")
	assert.Contains(t, body, "Boss Room")
	assert.Equal(t, "map-1", rec.Header().Get("Surrogate-Key"))
}

func TestRenderMap_ProcessingHoldingPage(t *testing.T) {
	h := newAPIHarness(t)
	m, _ := h.seedMap(models.TileSetStatusProcessing)

	rec := h.do(t, http.MethodGet, fmt.Sprintf("/maps/%d/render", m.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "still being processed")
}
