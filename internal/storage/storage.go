package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// MemoryCapacity is the size reported for in-memory stores.
const MemoryCapacity = 4 << 20

// Store is the device-facing file store. Paths are slash separated and rooted at "/".
type Store struct {
	mu     sync.Mutex
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

// NewStore roots a store at dir on the OS filesystem.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage root %s: %w", dir, err)
	}
	s := NewStoreWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir), logger)
	s.root = dir
	return s, nil
}

// NewMemoryStore returns a store that lives only in memory.
func NewMemoryStore(logger *zap.Logger) *Store {
	return NewStoreWithFs(afero.NewMemMapFs(), logger)
}

func NewStoreWithFs(fs afero.Fs, logger *zap.Logger) *Store {
	return &Store{
		fs:     fs,
		logger: logger.With(zap.String("component", "storage")),
	}
}

func (s *Store) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := afero.Exists(s.fs, clean(name))
	return err == nil && ok
}

// Read returns the file content. A missing file returns an error matching fs.ErrNotExist.
func (s *Store) Read(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := afero.ReadFile(s.fs, clean(name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces the file content, creating parent directories as needed.
func (s *Store) Write(name string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = clean(name)
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, name, []byte(content), 0o644); err != nil {
		s.logger.Error("storage@write failed", zap.String("file", name), zap.Error(err))
		return err
	}
	return nil
}

// WriteReader streams r into the file. A partially written file is removed.
func (s *Store) WriteReader(name string, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = clean(name)
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	if err := afero.WriteReader(s.fs, name, r); err != nil {
		_ = s.fs.Remove(name)
		s.logger.Error("storage@write failed", zap.String("file", name), zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) Append(name string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = clean(name)
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.fs.Remove(clean(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// IsDir reports whether name is an existing directory.
func (s *Store) IsDir(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := afero.IsDir(s.fs, clean(name))
	return err == nil && ok
}

// List returns the paths of the files inside dir, sorted. Subdirectories are
// descended depth levels deep.
func (s *Store) List(dir string, depth int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var files []string
	if err := s.list(clean(dir), depth, &files); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (s *Store) list(dir string, depth int, files *[]string) error {
	infos, err := afero.ReadDir(s.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, info := range infos {
		name := path.Join(dir, info.Name())
		if !info.IsDir() {
			*files = append(*files, name)
			continue
		}
		if depth > 0 {
			if err := s.list(name, depth-1, files); err != nil {
				return err
			}
		}
	}
	return nil
}

// FreeSpace returns the bytes still available. Memory stores report what is left
// of MemoryCapacity.
func (s *Store) FreeSpace() (uint64, error) {
	if s.root != "" {
		var st unix.Statfs_t
		if err := unix.Statfs(s.root, &st); err != nil {
			return 0, fmt.Errorf("statfs %s: %w", s.root, err)
		}
		return st.Bavail * uint64(st.Bsize), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var used uint64
	err := afero.Walk(s.fs, "/", func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			used += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if used >= MemoryCapacity {
		return 0, nil
	}
	return MemoryCapacity - used, nil
}

// Wipe removes everything in the store.
func (s *Store) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := s.fs.RemoveAll(path.Join("/", info.Name())); err != nil {
			return err
		}
	}
	s.logger.Warn("storage@wipe done", zap.Int("entries", len(infos)))
	return nil
}

func clean(name string) string {
	return path.Clean("/" + name)
}
