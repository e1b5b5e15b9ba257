// Package backend opens the store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"classroll/internal/attendance"
	"classroll/internal/config"
	"classroll/internal/store"
	"classroll/internal/store/csvfile"
	"classroll/internal/store/sqlstore"
)

// Stores is an opened backend.
type Stores struct {
	Roster   attendance.RosterStore
	Sessions attendance.SessionStore
	// Healthy is nil for backends with nothing to ping.
	Healthy func(ctx context.Context) bool
	db      *store.DB
}

// Close releases the database connection, if any.
func (s *Stores) Close() error {
	return s.db.Close()
}

// OpenDB connects to the SQL database of a sql backend.
func OpenDB(ctx context.Context, cfg config.App) (*store.DB, sqlstore.Dialect, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		return db, sqlstore.Postgres, err
	case config.StoreSQLite:
		db, err := store.NewSQLite(ctx, cfg.SQLitePath)
		return db, sqlstore.SQLite, err
	default:
		return nil, "", fmt.Errorf("store backend %q is not SQL", cfg.StoreBackend)
	}
}

// Open prepares the configured backend. SQL backends are migrated first.
func Open(ctx context.Context, cfg config.App, log zerolog.Logger) (*Stores, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		m := attendance.NewMemoryStore()
		log.Warn().Msg("using in-memory store; attendance is lost on exit")
		return &Stores{Roster: m, Sessions: m}, nil

	case config.StoreCSV:
		s, err := csvfile.New(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		log.Info().Str("dir", s.Dir()).Msg("using csv store")
		return &Stores{Roster: s, Sessions: s}, nil

	case config.StorePostgres, config.StoreSQLite:
		db, dialect, err := OpenDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := sqlstore.Migrate(db.Client, dialect); err != nil {
			_ = db.Close()
			return nil, err
		}
		s := sqlstore.New(db.Client, dialect)
		log.Info().Str("dialect", string(dialect)).Msg("using sql store")
		return &Stores{Roster: s, Sessions: s, Healthy: s.Healthy, db: db}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
