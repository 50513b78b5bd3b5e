package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/fsutil"
)

// Load discovers manifest files under paths and merges what the loaders
// read from them. Directories are walked recursively; paths that do not
// exist are skipped. Files are dispatched by extension.
func Load(ctx context.Context, loaders []Loader, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	byExt := make(map[string]Loader)
	var exts []string
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			ext = strings.ToLower(ext)
			byExt[ext] = l
			exts = append(exts, ext)
		}
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("no manifest loaders configured")
	}

	files, err := discover(paths, exts)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered manifest files.", "count", len(files))

	model := &Model{}
	for _, file := range files {
		l := byExt[strings.ToLower(filepath.Ext(file))]
		m, err := l.LoadFile(ctx, file)
		if err != nil {
			return nil, err
		}
		if err := model.Merge(m); err != nil {
			return nil, fmt.Errorf("merging %s: %w", file, err)
		}
	}

	logger.Debug("Manifest loading complete.", "files", len(files), "remotes", len(model.Remotes))
	return model, nil
}

func discover(paths, exts []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		files, err := fsutil.FindFilesByExtension(path, exts...)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				all = append(all, f)
			}
		}
	}
	return all, nil
}

// Merge folds other into m. Singleton sections from other replace those of
// m; remotes accumulate, and a remote declared twice for the same caller is
// an error.
func (m *Model) Merge(other *Model) error {
	if other == nil {
		return nil
	}
	if other.Storage != nil {
		m.Storage = other.Storage
	}
	if other.Executor != nil {
		m.Executor = other.Executor
	}
	if other.Federated != nil {
		m.Federated = other.Federated
	}
	if other.DevServer != nil {
		m.DevServer = other.DevServer
	}

	for _, r := range other.Remotes {
		for _, existing := range m.Remotes {
			if existing.Name == r.Name && existing.Caller == r.Caller {
				return fmt.Errorf("remote %q (caller %q) is declared more than once", r.Name, r.Caller)
			}
		}
		m.Remotes = append(m.Remotes, r)
	}
	return nil
}
