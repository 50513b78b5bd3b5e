// Package nativeexec is the Go executor behind the script manager. It
// downloads remote bundles over HTTP, keeps them under a scripts directory
// keyed by uniqueId, optionally verifies their code signature, and evaluates
// them in an embedded JavaScript runtime.
package nativeexec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/scripterr"
	"resty.dev/v3"
)

const (
	scriptsDirName = "scripts"
	bundleSuffix   = ".script.bundle"
)

// Executor satisfies manager.Executor. It is safe for concurrent use;
// evaluations are serialized.
type Executor struct {
	scriptsDir string
	assetsDir  string
	client     *resty.Client
	verifier   *verifier
	rt         *runtime
}

type options struct {
	assetsDir    string
	publicKeyPEM []byte
}

// Option configures an Executor.
type Option func(*options)

// WithAssetsDir sets the directory that relative file:// locators are read
// from. It defaults to the root directory.
func WithAssetsDir(dir string) Option {
	return func(o *options) { o.assetsDir = dir }
}

// WithPublicKey sets the PEM encoded RSA key used to verify signed bundles.
func WithPublicKey(pem []byte) Option {
	return func(o *options) { o.publicKeyPEM = pem }
}

// New creates an Executor storing downloads under root/scripts.
func New(root string, opts ...Option) (*Executor, error) {
	o := options{assetsDir: root}
	for _, opt := range opts {
		opt(&o)
	}
	v, err := newVerifier(o.publicKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Executor{
		scriptsDir: filepath.Join(root, scriptsDirName),
		assetsDir:  o.assetsDir,
		client:     resty.New(),
		verifier:   v,
		rt:         newRuntime(),
	}, nil
}

// Close releases the HTTP client.
func (e *Executor) Close() error {
	return e.client.Close()
}

// ScriptsDir is where downloaded bundles are kept.
func (e *Executor) ScriptsDir() string { return e.scriptsDir }

// Registered returns the names scripts announced through
// __scriptloader.register, in evaluation order.
func (e *Executor) Registered() []string { return e.rt.Registered() }

// Global returns the exported value of a global defined by evaluated scripts.
func (e *Executor) Global(name string) any { return e.rt.Global(name) }

// LoadScript downloads the script when l.Fetch is set, or when no cached
// copy exists, and evaluates it.
func (e *Executor) LoadScript(ctx context.Context, scriptID string, l *locator.Normalized) error {
	logger := ctxlog.FromContext(ctx).With("script_id", scriptID, "unique_id", l.UniqueID)

	switch scheme(l.URL) {
	case "http", "https":
		var bundle []byte
		var err error
		if !l.Fetch {
			bundle, err = e.readBundle(l.UniqueID)
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("Cached script is missing, downloading it.")
			} else if err != nil {
				return scripterr.NewNative(scripterr.ScriptEvalFailure, err, "cannot read cached script %s", l.UniqueID)
			}
		}
		if bundle == nil {
			if bundle, err = e.downloadAndCache(ctx, l); err != nil {
				return err
			}
		}
		return e.evaluate(scriptID, l, bundle)

	case "file":
		content, err := os.ReadFile(e.filePath(l))
		if err != nil {
			return scripterr.NewNative(scripterr.ScriptEvalFailure, err, "cannot read %s", l.URL)
		}
		bundle, err := e.verifier.check(l.VerifyScriptSignature, content)
		if err != nil {
			return scripterr.NewNative(scripterr.CodeSigningFailure, err, "the bundle verification failed for %s", l.URL)
		}
		return e.evaluate(scriptID, l, bundle)

	default:
		return scripterr.NewNative(scripterr.UnsupportedScheme, nil, "scheme in URL %q is not supported", l.URL)
	}
}

// PrefetchScript downloads and caches a remote script without evaluating
// it. Nothing happens when the cache decided no fetch is needed.
func (e *Executor) PrefetchScript(ctx context.Context, scriptID string, l *locator.Normalized) error {
	if !l.Fetch {
		ctxlog.FromContext(ctx).Debug("Script already prefetched.", "script_id", scriptID, "unique_id", l.UniqueID)
		return nil
	}
	switch scheme(l.URL) {
	case "http", "https":
		_, err := e.downloadAndCache(ctx, l)
		return err
	default:
		return scripterr.NewNative(scripterr.UnsupportedScheme, nil, "scheme in URL %q is not supported", l.URL)
	}
}

// InvalidateScripts deletes the cached bundles of ids. An empty ids removes
// the whole scripts directory.
func (e *Executor) InvalidateScripts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		if err := os.RemoveAll(e.scriptsDir); err != nil {
			return scripterr.NewNative(scripterr.ScriptInvalidationFailure, err, "cannot invalidate scripts")
		}
		return nil
	}

	var errs []error
	for _, id := range ids {
		if err := os.Remove(e.bundlePath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return scripterr.NewNative(scripterr.ScriptInvalidationFailure, errors.Join(errs...), "cannot invalidate some of the scripts")
	}
	ctxlog.FromContext(ctx).Debug("Cached scripts removed.", "count", len(ids))
	return nil
}

func (e *Executor) evaluate(scriptID string, l *locator.Normalized, bundle []byte) error {
	if len(bundle) == 0 {
		return scripterr.NewNative(scripterr.ScriptEvalFailure, nil, "script %s is empty", l.UniqueID)
	}
	if err := e.rt.evaluate(scriptID, l.UniqueID, l.URL, bundle); err != nil {
		return scripterr.NewNative(scripterr.ScriptEvalFailure, err, "script %s threw during evaluation", l.UniqueID)
	}
	return nil
}

func (e *Executor) bundlePath(uniqueID string) string {
	return filepath.Join(e.scriptsDir, uniqueID+bundleSuffix)
}

func (e *Executor) readBundle(uniqueID string) ([]byte, error) {
	return os.ReadFile(e.bundlePath(uniqueID))
}

func (e *Executor) ensureScriptsDir() error {
	return os.MkdirAll(e.scriptsDir, 0o755)
}

// filePath maps a file:// locator to a path. Absolute locators are used
// as-is; others are relative to the assets directory.
func (e *Executor) filePath(l *locator.Normalized) string {
	p := strings.TrimPrefix(l.URL, "file://")
	if l.Absolute {
		return filepath.FromSlash(p)
	}
	return filepath.Join(e.assetsDir, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

func scheme(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
