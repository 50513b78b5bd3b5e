// Package hclload reads HCL manifests into the agnostic config model.
package hclload

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/scriptloader/internal/config"
	"github.com/specialistvlad/scriptloader/internal/ctxlog"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL manifest loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".hcl"}
}

// fileRoot decodes every top-level block a manifest may carry.
type fileRoot struct {
	Storage   *storageBlock   `hcl:"storage,block"`
	Executor  *executorBlock  `hcl:"executor,block"`
	Remotes   []*remoteBlock  `hcl:"remote,block"`
	Federated *federatedBlock `hcl:"federated,block"`
	DevServer *devServerBlock `hcl:"dev_server,block"`
	Remain    hcl.Body        `hcl:",remain"`
}

type storageBlock struct {
	Kind      string `hcl:"kind"`
	Dir       string `hcl:"dir,optional"`
	Namespace string `hcl:"namespace,optional"`
}

type executorBlock struct {
	Root          string `hcl:"root"`
	AssetsDir     string `hcl:"assets_dir,optional"`
	PublicKeyFile string `hcl:"public_key_file,optional"`
}

type remoteBlock struct {
	Name         string         `hcl:"name,label"`
	Caller       string         `hcl:"caller,optional"`
	Priority     int            `hcl:"priority,optional"`
	URL          string         `hcl:"url"`
	Method       string         `hcl:"method,optional"`
	Query        string         `hcl:"query,optional"`
	Headers      hcl.Expression `hcl:"headers,optional"`
	Body         *string        `hcl:"body,optional"`
	Timeout      string         `hcl:"timeout,optional"`
	Retry        int            `hcl:"retry,optional"`
	RetryDelay   string         `hcl:"retry_delay,optional"`
	Cache        *bool          `hcl:"cache,optional"`
	Absolute     bool           `hcl:"absolute,optional"`
	Verify       string         `hcl:"verify_signature,optional"`
	ShouldUpdate *policyBlock   `hcl:"should_update,block"`
}

type policyBlock struct {
	Engine     string `hcl:"engine,optional"`
	Expression string `hcl:"expression"`
}

type federatedBlock struct {
	Priority   int            `hcl:"priority,optional"`
	Containers hcl.Expression `hcl:"containers,optional"`
	Chunks     hcl.Expression `hcl:"chunks,optional"`
	ChunkExt   string         `hcl:"chunk_ext,optional"`
	Headers    hcl.Expression `hcl:"headers,optional"`
}

type devServerBlock struct {
	URL       string `hcl:"url"`
	Namespace string `hcl:"namespace,optional"`
}

// LoadFile implements config.Loader.
func (l *Loader) LoadFile(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx).With("file", path)
	logger.Debug("Parsing HCL manifest.")

	hclFile, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	model, err := l.translate(ctx, &root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("HCL manifest translated.", "remotes", len(model.Remotes))
	return model, nil
}
