package mapstore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

const mapColumns = `id, title, city_id, tile_set_id, created_by, created_on, updated_on, deleted`

// CreateMapWithTileSet inserts a new tile set in "processing" status and a map
// referencing it, atomically. The returned map and tile set carry their
// assigned IDs.
func (s *Store) CreateMapWithTileSet(ctx context.Context, m *models.Map, ts *models.TileSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: starting transaction: %w", utils.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	if ts.Type == "" {
		ts.Type = "custom"
	}
	if ts.Status == models.TileSetStatusUnset {
		ts.Status = models.TileSetStatusProcessing
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO tile_set (name, type, image, min_zoom, status, created_by, attribution, subdomains)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_on`,
		ts.Name, ts.Type, ts.Image, ts.MinZoom, string(ts.Status), ts.CreatedBy, ts.Attribution, ts.Subdomains,
	).Scan(&ts.ID, &ts.CreatedOn)
	if err != nil {
		return fmt.Errorf("%w: inserting tile set '%s': %w", utils.ErrPersistence, ts.Name, err)
	}

	m.TileSetID = ts.ID
	err = tx.QueryRow(ctx,
		`INSERT INTO map (title, city_id, tile_set_id, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_on, updated_on`,
		m.Title, m.CityID, m.TileSetID, m.CreatedBy,
	).Scan(&m.ID, &m.CreatedOn, &m.UpdatedOn)
	if err != nil {
		return fmt.Errorf("%w: inserting map '%s': %w", utils.ErrPersistence, m.Title, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing map creation: %w", utils.ErrPersistence, err)
	}

	s.log.WithFields(logrus.Fields{"map_id": m.ID, "tile_set_id": ts.ID, "title": m.Title}).Info("Map created")
	return nil
}

// CreateMap inserts a map that reuses an existing tile set
func (s *Store) CreateMap(ctx context.Context, m *models.Map) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO map (title, city_id, tile_set_id, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_on, updated_on`,
		m.Title, m.CityID, m.TileSetID, m.CreatedBy,
	).Scan(&m.ID, &m.CreatedOn, &m.UpdatedOn)
	if err != nil {
		return fmt.Errorf("%w: inserting map '%s': %w", utils.ErrPersistence, m.Title, err)
	}
	return nil
}

// GetMap loads a map by ID, including soft-deleted rows. Callers that must
// not act on deleted maps check the Deleted flag.
func (s *Store) GetMap(ctx context.Context, id int64) (*models.Map, error) {
	var m models.Map
	err := s.pool.QueryRow(ctx,
		`SELECT `+mapColumns+` FROM map WHERE id = $1`, id,
	).Scan(&m.ID, &m.Title, &m.CityID, &m.TileSetID, &m.CreatedBy, &m.CreatedOn, &m.UpdatedOn, &m.Deleted)
	if err != nil {
		return nil, wrapRowErr(err, "map", id)
	}
	return &m, nil
}

// MapFilter narrows ListMaps results
type MapFilter struct {
	CityID     int64 // 0 = all sites
	IncludeAll bool  // Include maps whose tile set is not "ok" yet
	Limit      int
	Offset     int
}

// ListMaps returns non-deleted maps, newest first. Unless IncludeAll is set,
// only maps whose tile set has reached "ok" are returned: a map with no
// viewable tiles is not worth listing.
func (s *Store) ListMaps(ctx context.Context, filter MapFilter) ([]models.Map, error) {
	query, args := buildListMapsQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing maps: %w", utils.ErrPersistence, err)
	}
	defer rows.Close()

	var maps []models.Map
	for rows.Next() {
		var m models.Map
		if err := rows.Scan(&m.ID, &m.Title, &m.CityID, &m.TileSetID, &m.CreatedBy, &m.CreatedOn, &m.UpdatedOn, &m.Deleted); err != nil {
			return nil, fmt.Errorf("%w: scanning map row: %w", utils.ErrPersistence, err)
		}
		maps = append(maps, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating map rows: %w", utils.ErrPersistence, err)
	}
	return maps, nil
}

func buildListMapsQuery(filter MapFilter) (string, []any) {
	query := `SELECT m.id, m.title, m.city_id, m.tile_set_id, m.created_by, m.created_on, m.updated_on, m.deleted
		 FROM map m JOIN tile_set ts ON ts.id = m.tile_set_id
		 WHERE NOT m.deleted`
	args := []any{}

	if !filter.IncludeAll {
		query += ` AND ts.status = 'ok'`
	}
	if filter.CityID != 0 {
		args = append(args, filter.CityID)
		query += fmt.Sprintf(` AND m.city_id = $%d`, len(args))
	}
	query += ` ORDER BY m.created_on DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	return query, args
}

// UpdateMapTitle renames a map. Updating a deleted map is a no-op.
func (s *Store) UpdateMapTitle(ctx context.Context, id int64, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE map SET title = $2, updated_on = now() WHERE id = $1 AND NOT deleted`,
		id, title)
	if err != nil {
		return fmt.Errorf("%w: updating map %d: %w", utils.ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: map %d", utils.ErrNotFound, id)
	}
	return nil
}

// DeleteMap soft-deletes a map. Already-deleted maps are a no-op so that
// pipeline compensation and user deletes can race without errors.
func (s *Store) DeleteMap(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE map SET deleted = TRUE, updated_on = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting map %d: %w", utils.ErrPersistence, id, err)
	}
	s.log.WithField("map_id", id).Info("Map deleted")
	return nil
}
