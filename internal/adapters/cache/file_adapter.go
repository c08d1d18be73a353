package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/flipscan/arbcheck/internal/domain/providers"
)

// FileAdapter implements the CacheProvider interface over a single JSON
// document on disk. Every write rewrites the whole document through a
// temp file + rename, so readers never observe a partial write. It is
// built for a single process; there is no cross-process locking.
type FileAdapter struct {
	path string
}

// NewFileAdapter creates a new file-backed cache adapter
func NewFileAdapter(path string) providers.CacheProvider {
	return &FileAdapter{path: path}
}

// Get retrieves a value from cache
func (a *FileAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entries := a.load()
	raw, ok := entries[key]
	if !ok {
		return nil, false, nil
	}
	return raw, true, nil
}

// Set stores a value in cache, replacing any prior entry wholesale
func (a *FileAdapter) Set(ctx context.Context, key string, value []byte) error {
	entries := a.load()
	entries[key] = json.RawMessage(value)
	return a.store(entries)
}

// Delete removes a value from cache
func (a *FileAdapter) Delete(ctx context.Context, key string) error {
	entries := a.load()
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return a.store(entries)
}

// load reads the full cache document. A missing or unreadable file is an
// empty cache, never an error: a corrupt cache only costs re-fetches.
func (a *FileAdapter) load() map[string]json.RawMessage {
	data, err := os.ReadFile(a.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", a.path).Msg("cache file unreadable, starting empty")
		}
		return map[string]json.RawMessage{}
	}

	entries := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Str("path", a.path).Msg("cache file corrupt, starting empty")
		return map[string]json.RawMessage{}
	}
	return entries
}

// store atomically replaces the cache document on disk.
func (a *FileAdapter) store(entries map[string]json.RawMessage) error {
	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(a.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache temp file: %w", err)
	}

	if err := os.Rename(tmpName, a.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
