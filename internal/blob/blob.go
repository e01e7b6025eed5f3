// Package blob re-exports the archive abstractions and selects a backend
// from configuration. Only this package imports the infra backends.
package blob

import (
	"context"
	"fmt"

	"peerhub/internal/blob/core"
	"peerhub/internal/infra/blob/fs"
	memorystore "peerhub/internal/infra/blob/memory"
	infraS3 "peerhub/internal/infra/blob/s3"
)

type (
	// Driver identifies an archive backend.
	Driver = core.Driver
	// PutOptions configures a write.
	PutOptions = core.PutOptions
	// Info describes a stored object.
	Info = core.Info
	// Store is a write-once object archive.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists     = core.ErrExists
	ErrNotFound   = core.ErrNotFound
	ErrInvalidKey = core.ErrInvalidKey
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	// Root is the directory of the filesystem backend.
	Root string
	S3   S3Config
}

// Open returns the backend selected by cfg. The filesystem backend is the
// default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.Root)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
