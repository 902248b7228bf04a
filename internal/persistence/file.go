package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

const documentVersion = 1

// document is the on-disk layout of a FileStore
type document struct {
	Version        int             `json:"version"`
	LastIgnOffTime *time.Time      `json:"last_ign_off_time,omitempty"`
	Records        []*types.Record `json:"resume_app_list"`
}

// FileStore persists all records in a single JSON document
type FileStore struct {
	path     string
	compress bool

	mu     sync.Mutex
	cached *document
}

// NewFileStore creates a store writing to path. When compress is set the
// document is gzip encoded; either encoding is accepted on load.
func NewFileStore(path string, compress bool) *FileStore {
	return &FileStore{path: path, compress: compress}
}

// Path returns the document location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads all records. A missing document is an empty store.
func (s *FileStore) Load(ctx context.Context) ([]*types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return cloneRecords(doc.Records), nil
}

// Save replaces the stored record set
func (s *FileStore) Save(ctx context.Context, records []*types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	next := *doc
	next.Records = cloneRecords(records)
	return s.write(&next)
}

// GetLastIgnOffTime returns the stored ignition-off time
func (s *FileStore) GetLastIgnOffTime(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return time.Time{}, err
	}
	if doc.LastIgnOffTime == nil {
		return time.Time{}, nil
	}
	return *doc.LastIgnOffTime, nil
}

// SetLastIgnOffTime stores the ignition-off time
func (s *FileStore) SetLastIgnOffTime(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	next := *doc
	next.LastIgnOffTime = &t
	return s.write(&next)
}

// Close releases the cached document
func (s *FileStore) Close() error {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	return nil
}

// read returns the cached document, loading it on first use. Must hold mu.
func (s *FileStore) read() (*document, error) {
	if s.cached != nil {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.cached = &document{Version: documentVersion}
		return s.cached, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	if isGzip(data) {
		data, err = gunzip(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress store: %w", err)
		}
	}

	doc := &document{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := sonic.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to decode store: %w", err)
		}
	}
	if doc.Version > documentVersion {
		return nil, fmt.Errorf("unsupported store version %d", doc.Version)
	}
	doc.Version = documentVersion
	s.cached = doc
	return doc, nil
}

// write atomically replaces the document on disk. Must hold mu.
func (s *FileStore) write(doc *document) error {
	data, err := sonic.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if s.compress {
		if data, err = gzipBytes(data); err != nil {
			return fmt.Errorf("failed to compress store: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}

	s.cached = doc
	return nil
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
