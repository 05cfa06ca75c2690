package mapstore

import (
	"context"
	"fmt"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

const poiColumns = `id, name, map_id, poi_category_id, description, link, photo, lat, lon, created_by, created_on, updated_by, updated_on`

// CreatePOI inserts a new point of interest
func (s *Store) CreatePOI(ctx context.Context, p *models.POI) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO poi (name, map_id, poi_category_id, description, link, photo, lat, lon, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_on, updated_on`,
		p.Name, p.MapID, p.CategoryID, p.Description, p.Link, p.Photo, p.Lat, p.Lon, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedOn, &p.UpdatedOn)
	if err != nil {
		return fmt.Errorf("%w: inserting poi '%s': %w", utils.ErrPersistence, p.Name, err)
	}
	return nil
}

// GetPOI loads a point of interest by ID
func (s *Store) GetPOI(ctx context.Context, id int64) (*models.POI, error) {
	var p models.POI
	err := s.pool.QueryRow(ctx,
		`SELECT `+poiColumns+` FROM poi WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.MapID, &p.CategoryID, &p.Description, &p.Link, &p.Photo,
		&p.Lat, &p.Lon, &p.CreatedBy, &p.CreatedOn, &p.UpdatedBy, &p.UpdatedOn)
	if err != nil {
		return nil, wrapRowErr(err, "poi", id)
	}
	return &p, nil
}

// ListPOIs returns all POIs on a map
func (s *Store) ListPOIs(ctx context.Context, mapID int64) ([]models.POI, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+poiColumns+` FROM poi WHERE map_id = $1 ORDER BY id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing pois for map %d: %w", utils.ErrPersistence, mapID, err)
	}
	defer rows.Close()

	var pois []models.POI
	for rows.Next() {
		var p models.POI
		if err := rows.Scan(&p.ID, &p.Name, &p.MapID, &p.CategoryID, &p.Description, &p.Link,
			&p.Photo, &p.Lat, &p.Lon, &p.CreatedBy, &p.CreatedOn, &p.UpdatedBy, &p.UpdatedOn); err != nil {
			return nil, fmt.Errorf("%w: scanning poi row: %w", utils.ErrPersistence, err)
		}
		pois = append(pois, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating poi rows: %w", utils.ErrPersistence, err)
	}
	return pois, nil
}

// UpdatePOI rewrites the mutable fields of a POI
func (s *Store) UpdatePOI(ctx context.Context, p *models.POI) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE poi SET name = $2, poi_category_id = $3, description = $4, link = $5,
		     photo = $6, lat = $7, lon = $8, updated_by = $9, updated_on = now()
		 WHERE id = $1`,
		p.ID, p.Name, p.CategoryID, p.Description, p.Link, p.Photo, p.Lat, p.Lon, p.UpdatedBy)
	if err != nil {
		return fmt.Errorf("%w: updating poi %d: %w", utils.ErrPersistence, p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: poi %d", utils.ErrNotFound, p.ID)
	}
	return nil
}

// DeletePOI removes a point of interest
func (s *Store) DeletePOI(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM poi WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting poi %d: %w", utils.ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: poi %d", utils.ErrNotFound, id)
	}
	return nil
}

const categoryColumns = `id, name, map_id, marker, created_by, created_on`

// CreatePOICategory inserts a new POI category
func (s *Store) CreatePOICategory(ctx context.Context, c *models.POICategory) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO poi_category (name, map_id, marker, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_on`,
		c.Name, c.MapID, c.Marker, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedOn)
	if err != nil {
		return fmt.Errorf("%w: inserting poi category '%s': %w", utils.ErrPersistence, c.Name, err)
	}
	return nil
}

// ListPOICategories returns all POI categories on a map
func (s *Store) ListPOICategories(ctx context.Context, mapID int64) ([]models.POICategory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+categoryColumns+` FROM poi_category WHERE map_id = $1 ORDER BY id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing poi categories for map %d: %w", utils.ErrPersistence, mapID, err)
	}
	defer rows.Close()

	var categories []models.POICategory
	for rows.Next() {
		var c models.POICategory
		if err := rows.Scan(&c.ID, &c.Name, &c.MapID, &c.Marker, &c.CreatedBy, &c.CreatedOn); err != nil {
			return nil, fmt.Errorf("%w: scanning poi category row: %w", utils.ErrPersistence, err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating poi category rows: %w", utils.ErrPersistence, err)
	}
	return categories, nil
}

// UpdatePOICategory renames a category or swaps its marker icon
func (s *Store) UpdatePOICategory(ctx context.Context, c *models.POICategory) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE poi_category SET name = $2, marker = $3 WHERE id = $1`,
		c.ID, c.Name, c.Marker)
	if err != nil {
		return fmt.Errorf("%w: updating poi category %d: %w", utils.ErrPersistence, c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: poi category %d", utils.ErrNotFound, c.ID)
	}
	return nil
}

// DeletePOICategory removes a category and, via FK cascade, its POIs
func (s *Store) DeletePOICategory(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM poi_category WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting poi category %d: %w", utils.ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: poi category %d", utils.ErrNotFound, id)
	}
	return nil
}
