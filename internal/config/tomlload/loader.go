// Package tomlload reads TOML manifests into the agnostic config model.
package tomlload

import (
	"context"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/specialistvlad/scriptloader/internal/config"
	"github.com/specialistvlad/scriptloader/internal/ctxlog"
)

// Loader is the TOML implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new TOML manifest loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".toml"}
}

// LoadFile implements config.Loader. Remotes are declared as [[remote]]
// tables; unknown keys are rejected.
func (l *Loader) LoadFile(ctx context.Context, path string) (*config.Model, error) {
	ctxlog.FromContext(ctx).Debug("Parsing TOML manifest.", "file", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc config.Document
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}

	model, err := doc.Model()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}
