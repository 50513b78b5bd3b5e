package resolver

import (
	"context"
	"strings"

	"github.com/specialistvlad/scriptloader/internal/locator"
)

const (
	containerExt = ".container.bundle"
	// DefaultChunkExt is appended to chunk URLs whose template carries [ext].
	DefaultChunkExt = ".chunk.bundle"
)

// FederatedConfig maps Module Federation containers to URL templates.
// Templates may contain [name], replaced with the script id, and [ext],
// replaced with the container or chunk extension.
type FederatedConfig struct {
	Containers map[string]string
	// Chunks optionally overrides the template used for chunks requested by
	// a container.
	Chunks   map[string]string
	ChunkExt string
}

// URLResolver returns the URL for a script, or false when no container
// matches.
type URLResolver func(scriptID, caller string) (string, bool)

// NewFederatedURLResolver builds a URLResolver. The caller's container is
// consulted first, then the container named after the script itself.
func NewFederatedURLResolver(cfg FederatedConfig) URLResolver {
	chunkExt := cfg.ChunkExt
	if chunkExt == "" {
		chunkExt = DefaultChunkExt
	}

	resolvers := make(map[string]URLResolver, len(cfg.Containers))
	for key, tmpl := range cfg.Containers {
		chunkTmpl, ok := cfg.Chunks[key]
		if !ok {
			chunkTmpl = tmpl
		}
		resolvers[key] = func(scriptID, caller string) (string, bool) {
			if scriptID == key {
				url := strings.ReplaceAll(tmpl, "[name]", scriptID)
				return strings.ReplaceAll(url, "[ext]", containerExt), true
			}
			if caller == key {
				url := strings.ReplaceAll(chunkTmpl, "[name]", scriptID)
				if strings.Contains(url, "[ext]") {
					return strings.ReplaceAll(url, "[ext]", "") + chunkExt, true
				}
				return url, true
			}
			return "", false
		}
	}

	return func(scriptID, caller string) (string, bool) {
		if caller != "" {
			if r, ok := resolvers[caller]; ok {
				return r(scriptID, caller)
			}
		}
		if r, ok := resolvers[scriptID]; ok {
			return r(scriptID, caller)
		}
		return "", false
	}
}

// Federated adapts a federated URL resolver into a resolver Func. Every
// produced locator is a copy of base with its URL set.
func Federated(cfg FederatedConfig, base locator.ScriptLocator) Func {
	urlFor := NewFederatedURLResolver(cfg)
	return func(_ context.Context, scriptID, caller, _ string) (*locator.ScriptLocator, error) {
		url, ok := urlFor(scriptID, caller)
		if !ok {
			return nil, nil
		}
		l := base
		l.URL = url
		return &l, nil
	}
}
