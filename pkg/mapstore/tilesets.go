package mapstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

const tileSetColumns = `id, name, type, image, width, height, min_zoom, max_zoom, status, created_by, created_on, attribution, subdomains`

// GetTileSet loads a tile set by ID
func (s *Store) GetTileSet(ctx context.Context, id int64) (*models.TileSet, error) {
	return s.scanTileSet(s.pool.QueryRow(ctx,
		`SELECT `+tileSetColumns+` FROM tile_set WHERE id = $1`, id), id)
}

// FindTileSetByName returns the tile set with the given name, or
// utils.ErrNotFound. Map creation uses this to reuse an already-tiled image
// instead of running the pipeline again.
func (s *Store) FindTileSetByName(ctx context.Context, name string) (*models.TileSet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tileSetColumns+` FROM tile_set WHERE name = $1`, name)

	ts, err := s.scanTileSet(row, 0)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, fmt.Errorf("%w: tile set '%s'", utils.ErrNotFound, name)
		}
		return nil, err
	}
	return ts, nil
}

func (s *Store) scanTileSet(row pgx.Row, id int64) (*models.TileSet, error) {
	var ts models.TileSet
	var status string
	var maxZoom int64
	err := row.Scan(&ts.ID, &ts.Name, &ts.Type, &ts.Image, &ts.Width, &ts.Height,
		&ts.MinZoom, &maxZoom, &status, &ts.CreatedBy, &ts.CreatedOn, &ts.Attribution, &ts.Subdomains)
	if err != nil {
		return nil, wrapRowErr(err, "tile set", id)
	}
	ts.Status = models.TileSetStatus(status)
	ts.MaxZoom = uint32(maxZoom)
	return &ts, nil
}

// AddTileSetZoomLevels ORs levels into the tile set's zoom bit-field. The OR
// is done in the database so concurrent batch completions commute regardless
// of order.
func (s *Store) AddTileSetZoomLevels(ctx context.Context, id int64, levels uint32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tile_set SET max_zoom = max_zoom | $2 WHERE id = $1`,
		id, int64(levels))
	if err != nil {
		return fmt.Errorf("%w: adding zoom levels to tile set %d: %w", utils.ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: tile set %d", utils.ErrNotFound, id)
	}
	return nil
}

// CompleteFirstBatch records the first generated batch: source dimensions,
// the batch's zoom bits, and the processing -> ok status flip that makes the
// owning map publicly listable. Already-ok tile sets only gain zoom bits.
func (s *Store) CompleteFirstBatch(ctx context.Context, id int64, width, height int, levels uint32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tile_set
		 SET width = $2, height = $3, max_zoom = max_zoom | $4,
		     status = CASE WHEN status = 'processing' THEN 'ok' ELSE status END
		 WHERE id = $1`,
		id, width, height, int64(levels))
	if err != nil {
		return fmt.Errorf("%w: completing first batch for tile set %d: %w", utils.ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: tile set %d", utils.ErrNotFound, id)
	}

	s.log.WithFields(logrus.Fields{"tile_set_id": id, "width": width, "height": height}).
		Info("Tile set first batch complete, status ok")
	return nil
}

// FailTileSet marks a tile set permanently failed. Only "processing" tile
// sets transition; a set that already served traffic keeps its status.
func (s *Store) FailTileSet(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tile_set SET status = 'failed' WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return fmt.Errorf("%w: failing tile set %d: %w", utils.ErrPersistence, id, err)
	}
	s.log.WithField("tile_set_id", id).Warn("Tile set marked failed")
	return nil
}
