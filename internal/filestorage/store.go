// Package filestorage implements storage.Storage on top of a directory, one
// file per key. Writes are atomic (temp file plus rename), so a crash never
// leaves a half-written cache document behind. Watch reports changes made by
// other processes so in-memory mirrors can be dropped.
package filestorage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/storage"
)

const itemExt = ".item"

// Store keeps each key in its own file under dir.
type Store struct {
	dir string

	mu sync.Mutex
	// last remembers what this process wrote, so Watch can ignore its own
	// changes. A nil value marks a key this process removed.
	last map[string]*string
}

var _ storage.Storage = (*Store)(nil)

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestorage: create %s: %w", dir, err)
	}
	return &Store{dir: dir, last: make(map[string]*string)}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+itemExt)
}

func keyFromPath(p string) (string, bool) {
	name := filepath.Base(p)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, itemExt) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, itemExt))
	if err != nil {
		return "", false
	}
	return key, true
}

// GetItem reads the file for key.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("filestorage: read %s: %w", key, err)
	}
	return string(data), true, nil
}

// SetItem atomically replaces the file for key.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filestorage: write %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestorage: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestorage: write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestorage: write %s: %w", key, err)
	}
	s.last[key] = &value
	return nil
}

// RemoveItem deletes the file for key.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestorage: remove %s: %w", key, err)
	}
	s.last[key] = nil
	return nil
}

// isOwn reports whether the current state of key is what this process left
// behind.
func (s *Store) isOwn(key string, removed bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, known := s.last[key]
	if !known {
		return false
	}
	if removed {
		return last == nil
	}
	if last == nil {
		return false
	}
	data, err := os.ReadFile(s.path(key))
	return err == nil && string(data) == *last
}

// Watch calls onChange whenever a key is written or removed by someone other
// than this store. It returns once the watch is established; watching stops
// when ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func(key string)) error {
	logger := ctxlog.FromContext(ctx).With("dir", s.dir)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filestorage: watch %s: %w", s.dir, err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("filestorage: watch %s: %w", s.dir, err)
	}
	logger.Debug("Watching storage directory.")

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("Storage watch stopped.")
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				key, ok := keyFromPath(ev.Name)
				if !ok {
					continue
				}
				removed := ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
				if !removed && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if s.isOwn(key, removed) {
					continue
				}
				logger.Info("Storage item changed externally.", "key", key, "op", ev.Op.String())
				onChange(key)
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Storage watcher error.", "error", werr)
			}
		}
	}()
	return nil
}
