package mapstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/utils"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store is the relational persistence layer for maps, tile sets, POIs and
// POI categories, backed by PostgreSQL via pgx.
type Store struct {
	pool *pgxpool.Pool
	db   *sql.DB // database/sql bridge, needed for migrations
	log  *logrus.Logger
}

// NewStore connects to the database at dsn and applies any pending schema
// migrations before returning.
func NewStore(ctx context.Context, dsn string, log *logrus.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to database: %w", utils.ErrPersistence, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: pinging database: %w", utils.ErrPersistence, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db, log); err != nil {
		db.Close()
		pool.Close()
		return nil, err
	}

	log.Info("Map store initialized, migrations applied.")
	return &Store{pool: pool, db: db, log: log}, nil
}

// Close releases the connection pool
func (s *Store) Close() {
	s.db.Close()
	s.pool.Close()
}

// Ping verifies database connectivity, for health checks
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrPersistence, err)
	}
	return nil
}

func runMigrations(db *sql.DB, log *logrus.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%w: setting migration dialect: %w", utils.ErrPersistence, err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			log.Debug("No migrations to apply.")
			return nil
		}
		return fmt.Errorf("%w: applying migrations: %w", utils.ErrPersistence, err)
	}
	return nil
}

// wrapRowErr maps pgx row errors onto the store's sentinel errors
func wrapRowErr(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", utils.ErrNotFound, what, id)
	}
	return fmt.Errorf("%w: loading %s %d: %w", utils.ErrPersistence, what, id, err)
}
