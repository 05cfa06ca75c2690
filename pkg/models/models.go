package models

import "time"

// Map is a persisted map entity. A Map becomes publicly listable only once its
// TileSet has reached status "ok".
type Map struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CityID    int64     `json:"city_id"` // Owning-site identifier
	TileSetID int64     `json:"tile_set_id"`
	CreatedBy string    `json:"created_by"`
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
	Deleted   bool      `json:"deleted"`
}

// TileSet is the tiled base layer a Map renders against.
//
// MaxZoom is a packed bit-field: bit n set means "zoom level n has been
// generated and uploaded". Partial availability is the normal state while the
// low-priority batches are still running. See pkg/zoom for the bitset ops.
type TileSet struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Type        string        `json:"type"` // "custom" (image-derived) or "geo"
	Image       string        `json:"image"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	MinZoom     int           `json:"min_zoom"`
	MaxZoom     uint32        `json:"max_zoom"` // Zoom-level bit-field
	Status      TileSetStatus `json:"status"`
	CreatedBy   string        `json:"created_by"`
	CreatedOn   time.Time     `json:"created_on"`
	Attribution string        `json:"attribution,omitempty"`
	Subdomains  string        `json:"subdomains,omitempty"`
}

// POI is a point of interest pinned onto a Map
type POI struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	MapID       int64     `json:"map_id"`
	CategoryID  int64     `json:"poi_category_id"`
	Description string    `json:"description,omitempty"`
	Link        string    `json:"link,omitempty"`
	Photo       string    `json:"photo,omitempty"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	CreatedBy   string    `json:"created_by"`
	CreatedOn   time.Time `json:"created_on"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
	UpdatedOn   time.Time `json:"updated_on"`
}

// POICategory groups POIs on a Map and carries the marker styling
type POICategory struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	MapID     int64     `json:"map_id"`
	Marker    string    `json:"marker,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedOn time.Time `json:"created_on"`
}

// TilingJob is the queue-owned unit of pipeline work. One job covers either the
// initial image fetch (JobTypeFetch) or a contiguous zoom range
// (JobTypeTile).
//
// Optimized and Uploaded are per-stage completion flags persisted on the job
// record: stages are not transactional, so a retried job must skip expensive
// work that already succeeded.
type TilingJob struct {
	ID          string   `json:"id"`
	Type        JobType  `json:"type"`
	Priority    Priority `json:"priority"`
	State       JobState `json:"state"`
	Attempts    int      `json:"attempts"`
	MaxAttempts int      `json:"max_attempts"`

	MapID     int64  `json:"map_id"`
	TileSetID int64  `json:"tile_set_id"`
	Name      string `json:"name"` // Tile set name, for logs and purge keys

	ImageURL string `json:"image_url,omitempty"` // Source image URL (fetch jobs)
	Image    string `json:"image,omitempty"`     // Local source file name once fetched
	Dir      string `json:"dir,omitempty"`       // Temp working directory owned by this job

	MinZoom       int  `json:"min_zoom"`
	MaxZoom       int  `json:"max_zoom"`
	TargetMaxZoom int  `json:"target_max_zoom,omitempty"` // Plan's final level, gates working-dir cleanup
	Width         int  `json:"width"`
	Height        int  `json:"height"`
	FirstBatch    bool `json:"first_batch"`

	Optimized bool `json:"optimized"`
	Uploaded  bool `json:"uploaded"`

	CreatedAt time.Time `json:"created_at"`
	LastError string    `json:"last_error,omitempty"` // Categorized error from the last failed attempt
}

// ZoomBatch is one planned zoom range with its dispatch priority
type ZoomBatch struct {
	MinZoom  int
	MaxZoom  int
	Priority Priority
}

// ZoomPlan is the ordered output of the zoom planner: the first-batch range
// followed by one single-level range per remaining zoom level.
type ZoomPlan struct {
	TargetMaxZoom int
	Batches       []ZoomBatch
}

// FirstBatch returns the high-priority batch of the plan, or nil if the plan
// is empty.
func (p *ZoomPlan) FirstBatch() *ZoomBatch {
	if len(p.Batches) == 0 {
		return nil
	}
	return &p.Batches[0]
}
