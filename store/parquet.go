package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/thushara2679/trading-alert/model/candle"
)

// ErrNotFound is returned by Load when no snapshot exists for a key.
var ErrNotFound = errors.New("store: snapshot not found")

// Store persists one bar series per request key.
type Store interface {
	Save(key string, bars []candle.Bar) error
	// Load returns the snapshot and when it was written.
	Load(key string) ([]candle.Bar, time.Time, error)
}

// ParquetStore keeps each snapshot as a parquet file under dir.
type ParquetStore struct {
	dir string
}

// NewParquetStore creates dir if needed.
func NewParquetStore(dir string) (*ParquetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	return &ParquetStore{dir: dir}, nil
}

var unsafeChars = strings.NewReplacer(":", "_", "/", "_", `\`, "_", " ", "_")

func (s *ParquetStore) path(key string) string {
	return filepath.Join(s.dir, unsafeChars.Replace(key)+".parquet")
}

// Save writes bars atomically: readers see the old or the new file, never a
// partial one.
func (s *ParquetStore) Save(key string, bars []candle.Bar) error {
	dst := s.path(key)
	tmp := dst + ".tmp"
	if err := parquet.WriteFile(tmp, bars); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: commit %s: %w", key, err)
	}
	return nil
}

func (s *ParquetStore) Load(key string) ([]candle.Bar, time.Time, error) {
	p := s.path(key)
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: stat %s: %w", key, err)
	}

	bars, err := parquet.ReadFile[candle.Bar](p)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: read %s: %w", key, err)
	}
	return bars, fi.ModTime(), nil
}
