package storage

import (
	"context"
	"fmt"
	"os"
)

// Driver names accepted by Open
const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures a backend
type Options struct {
	Driver   string
	DataDir  string
	Postgres PostgresOptions
}

// Open returns the Store for the configured driver
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverBolt, "":
		if opts.DataDir == "" {
			return nil, fmt.Errorf("bolt driver requires a data directory")
		}
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return NewBoltStore(opts.DataDir)
	case DriverPostgres:
		if opts.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres driver requires a connection URL")
		}
		return NewPostgresStore(ctx, opts.Postgres)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
