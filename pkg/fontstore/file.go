package fontstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/matzehuels/keyforge/pkg/errors"
)

// FileStore keeps fonts as files in a directory.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a store in baseDir, creating it if needed. If
// baseDir is empty it defaults to ~/.config/keyforge/fonts.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "keyforge", "fonts")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create font dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Path returns the font directory.
func (s *FileStore) Path() string {
	return s.baseDir
}

// List returns the fonts in the directory, by name.
func (s *FileStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read font dir: %w", err)
	}
	var out []Info
	for _, e := range entries {
		if e.IsDir() || errors.ValidateFontName(e.Name()) != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Name: e.Name(), Size: info.Size(), Source: "file", Modified: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get reads a font.
func (s *FileStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := errors.ValidateFontName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.baseDir, name))
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFontNotFound, "font not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	return data, nil
}

// Put writes a font, replacing any existing font of the same name.
func (s *FileStore) Put(ctx context.Context, name string, data []byte) error {
	if err := errors.ValidateFontName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(filepath.Join(s.baseDir, name), data, 0o644); err != nil {
		return fmt.Errorf("write font: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
