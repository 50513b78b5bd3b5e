package hclload

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/scriptloader/internal/config"
	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

func (l *Loader) translate(ctx context.Context, root *fileRoot) (*config.Model, error) {
	model := &config.Model{}

	if s := root.Storage; s != nil {
		model.Storage = &config.Storage{Kind: s.Kind, Dir: s.Dir, Namespace: s.Namespace}
	}
	if e := root.Executor; e != nil {
		model.Executor = &config.Executor{Root: e.Root, AssetsDir: e.AssetsDir, PublicKeyFile: e.PublicKeyFile}
	}
	if d := root.DevServer; d != nil {
		model.DevServer = &config.DevServer{URL: d.URL, Namespace: d.Namespace}
	}

	if f := root.Federated; f != nil {
		fed := &config.Federated{Priority: f.Priority, ChunkExt: f.ChunkExt}
		var err error
		if fed.Containers, err = stringMap(ctx, f.Containers, "containers"); err != nil {
			return nil, fmt.Errorf("federated: %w", err)
		}
		if fed.Chunks, err = stringMap(ctx, f.Chunks, "chunks"); err != nil {
			return nil, fmt.Errorf("federated: %w", err)
		}
		if fed.Headers, err = stringMap(ctx, f.Headers, "headers"); err != nil {
			return nil, fmt.Errorf("federated: %w", err)
		}
		model.Federated = fed
	}

	for _, r := range root.Remotes {
		remote, err := translateRemote(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("remote %q: %w", r.Name, err)
		}
		model.Remotes = append(model.Remotes, remote)
	}
	return model, nil
}

func translateRemote(ctx context.Context, r *remoteBlock) (*config.Remote, error) {
	headers, err := stringMap(ctx, r.Headers, "headers")
	if err != nil {
		return nil, err
	}
	timeout, err := config.ParseDuration(r.Timeout)
	if err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}
	delay, err := config.ParseDuration(r.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("retry_delay: %w", err)
	}

	out := &config.Remote{
		Name:       r.Name,
		Caller:     r.Caller,
		Priority:   r.Priority,
		URL:        r.URL,
		Method:     r.Method,
		Query:      r.Query,
		Headers:    headers,
		Body:       r.Body,
		Timeout:    timeout,
		Retry:      r.Retry,
		RetryDelay: delay,
		Cache:      r.Cache,
		Absolute:   r.Absolute,
		Verify:     r.Verify,
	}
	if p := r.ShouldUpdate; p != nil {
		out.Policy = &config.Policy{Engine: p.Engine, Expression: p.Expression}
	}
	return out, nil
}

// stringMap evaluates an optional map attribute. Attributes that were not
// written, or are null, yield a nil map.
func stringMap(ctx context.Context, expr hcl.Expression, attrName string) (map[string]string, error) {
	if !isExprDefined(ctx, expr, attrName) {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: %w", attrName, diags)
	}
	if val.IsNull() {
		return nil, nil
	}

	conv, err := convert.Convert(val, cty.Map(cty.String))
	if err != nil {
		return nil, fmt.Errorf("%s must be a map of strings: %w", attrName, err)
	}
	var out map[string]string
	if err := gocty.FromCtyValue(conv, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", attrName, err)
	}
	return out, nil
}

// isExprDefined reports whether an optional attribute was present in the
// source. The decoder fills omitted attributes with zero-width expressions,
// so a nil check alone is not enough.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	defined := rng.End.Byte > rng.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", rng.String(),
		"is_defined", defined,
	)
	return defined
}
