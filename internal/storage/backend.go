package storage

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when no value is stored under a key.
var ErrNotFound = errors.New("storage: key not found")

// Backend is a durable key-value store holding whole snapshot blobs.
// Put replaces the value under a key in a single step; readers never
// observe a partially written value.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Kind names a Backend implementation.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindRedis  Kind = "redis"
	KindFile   Kind = "file"
	KindMemory Kind = "memory"
)

// Options selects and configures a Backend.
type Options struct {
	Kind  Kind
	DSN   string // sqlite
	Dir   string // file
	Redis RedisOptions
}

// Open creates the Backend described by opts.
func Open(ctx context.Context, opts Options) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch opts.Kind {
	case KindSQLite, "":
		b, err = OpenSQLite(ctx, opts.DSN)
	case KindRedis:
		b, err = OpenRedis(ctx, opts.Redis)
	case KindFile:
		b, err = OpenFile(opts.Dir)
	case KindMemory:
		b = NewMemory()
	default:
		err = errors.Errorf("unknown storage backend %q", opts.Kind)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
