package config

import "context"

// Loader is the interface for a format-specific manifest loader.
type Loader interface {
	// Extensions lists the file extensions this loader owns, with the dot.
	Extensions() []string
	// LoadFile reads one manifest and translates it into the agnostic model.
	LoadFile(ctx context.Context, path string) (*Model, error)
}
