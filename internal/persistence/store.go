package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Store is the durable record store
type Store interface {
	Load(ctx context.Context) ([]*types.Record, error)
	Save(ctx context.Context, records []*types.Record) error
	// GetLastIgnOffTime returns the zero time when ignition-off was never recorded
	GetLastIgnOffTime(ctx context.Context) (time.Time, error)
	SetLastIgnOffTime(ctx context.Context, t time.Time) error
	Close() error
}

// Open creates the store selected by configuration
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileStore(cfg.Path, cfg.Compress), nil
	case "sqlite":
		return NewSQLiteStore(SQLiteConfig{Path: cfg.Path, WAL: true})
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// RemoveRecord deletes one record from the store
func RemoveRecord(ctx context.Context, s Store, key types.RecordKey) error {
	records, err := s.Load(ctx)
	if err != nil {
		return err
	}
	kept := records[:0]
	found := false
	for _, r := range records {
		if r.Key() == key {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return s.Save(ctx, kept)
}

// cloneRecords deep copies records so stores never alias caller state
func cloneRecords(records []*types.Record) []*types.Record {
	out := make([]*types.Record, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, r.Clone())
		}
	}
	return out
}
