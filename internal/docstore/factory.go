package docstore

import (
	"context"
	"fmt"

	"peerhub/internal/infra/docstore/memory"
	"peerhub/internal/infra/docstore/postgres"
	"peerhub/internal/infra/docstore/sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Driver     Driver
	SQLitePath string
	DSN        string
	Options    Options
}

// Open returns the Store described by cfg. An empty driver selects memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(cfg.Options), nil
	case DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath, cfg.Options)
	case DriverPostgres:
		return postgres.Open(ctx, cfg.DSN, cfg.Options)
	default:
		return nil, fmt.Errorf("unknown docstore driver %q", cfg.Driver)
	}
}
