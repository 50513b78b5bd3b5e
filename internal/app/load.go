package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/scriptloader/internal/config"
	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/filestorage"
	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/manager"
	"github.com/specialistvlad/scriptloader/internal/memstorage"
	"github.com/specialistvlad/scriptloader/internal/nativeexec"
	"github.com/specialistvlad/scriptloader/internal/policy"
	"github.com/specialistvlad/scriptloader/internal/resolver"
	"github.com/specialistvlad/scriptloader/internal/storage"
)

const (
	storageMemory = "memory"
	storageFile   = "file"
	federatedKey  = "federated"
)

// wire builds storage, the executor and the manager from the manifest.
func (a *App) wire(ctx context.Context) error {
	root := a.root()

	st, err := buildStorage(a.manifest.Storage, root)
	if err != nil {
		return err
	}
	a.storage = st

	exec, err := buildExecutor(a.manifest.Executor, root)
	if err != nil {
		return err
	}
	a.executor = exec

	var opts []manager.Option
	opts = append(opts, manager.WithStorage(st), manager.WithLogger(a.logger))
	if s := a.manifest.Storage; s != nil && s.Namespace != "" {
		opts = append(opts, manager.WithCacheNamespace(s.Namespace))
	}
	mgr, err := manager.New(exec, opts...)
	if err != nil {
		return err
	}
	a.manager = mgr

	if err := a.registerRemotes(ctx); err != nil {
		return err
	}
	a.registerFederated(ctx)
	a.observeEvents()
	return nil
}

// root is the executor working directory: the -root flag, then the
// manifest, then a directory under the system temp dir.
func (a *App) root() string {
	if a.config.Root != "" {
		return a.config.Root
	}
	if e := a.manifest.Executor; e != nil && e.Root != "" {
		return e.Root
	}
	return filepath.Join(os.TempDir(), "scriptloader")
}

func buildStorage(s *config.Storage, root string) (storage.Storage, error) {
	if s == nil {
		return memstorage.New(), nil
	}
	switch s.Kind {
	case "", storageMemory:
		return memstorage.New(), nil
	case storageFile:
		dir := s.Dir
		if dir == "" {
			dir = filepath.Join(root, "cache")
		}
		return filestorage.New(dir)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", s.Kind)
	}
}

func buildExecutor(e *config.Executor, root string) (*nativeexec.Executor, error) {
	var opts []nativeexec.Option
	if e != nil {
		if e.AssetsDir != "" {
			opts = append(opts, nativeexec.WithAssetsDir(e.AssetsDir))
		}
		if e.PublicKeyFile != "" {
			pem, err := os.ReadFile(e.PublicKeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read public key: %w", err)
			}
			opts = append(opts, nativeexec.WithPublicKey(pem))
		}
	}
	return nativeexec.New(root, opts...)
}

// registerRemotes turns each remote section into a static resolver. The key
// makes a remote redeclared for another caller a separate resolver.
func (a *App) registerRemotes(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for _, r := range a.manifest.Remotes {
		l, err := remoteLocator(r)
		if err != nil {
			return fmt.Errorf("remote %q: %w", r.Name, err)
		}
		fn, err := resolver.NewStatic(resolver.Static{
			Name:    r.Name,
			Match:   r.Name,
			Caller:  r.Caller,
			Locator: l,
		})
		if err != nil {
			return err
		}
		key := a.manager.AddResolver(fn, resolver.WithPriority(r.Priority), resolver.WithKey("remote:"+r.Name+"@"+r.Caller))
		logger.Debug("Registered remote resolver.", "key", key, "priority", r.Priority)
	}
	return nil
}

func remoteLocator(r *config.Remote) (locator.ScriptLocator, error) {
	l := locator.ScriptLocator{
		URL:                   r.URL,
		Method:                locator.Method(r.Method),
		Query:                 locator.QueryString(r.Query),
		Headers:               r.Headers,
		Timeout:               r.Timeout,
		Retry:                 r.Retry,
		RetryDelay:            r.RetryDelay,
		Cache:                 r.Cache,
		Absolute:              r.Absolute,
		VerifyScriptSignature: locator.VerifyMode(r.Verify),
	}
	if r.Body != nil {
		l.Body = locator.BodyString(*r.Body)
	}
	if p := r.Policy; p != nil {
		fn, err := policy.Compile(policy.Engine(p.Engine), p.Expression)
		if err != nil {
			return l, err
		}
		l.ShouldUpdateScript = fn
	}
	return l, nil
}

func (a *App) registerFederated(ctx context.Context) {
	f := a.manifest.Federated
	if f == nil || len(f.Containers) == 0 {
		return
	}
	fn := resolver.Federated(resolver.FederatedConfig{
		Containers: f.Containers,
		Chunks:     f.Chunks,
		ChunkExt:   f.ChunkExt,
	}, locator.ScriptLocator{Headers: f.Headers})
	a.manager.AddResolver(fn, resolver.WithPriority(f.Priority), resolver.WithKey(federatedKey))
	ctxlog.FromContext(ctx).Debug("Registered federated resolver.", "containers", len(f.Containers))
}

// observeEvents mirrors manager events into the debug log.
func (a *App) observeEvents() {
	a.manager.Hooks().Events.Tap("app-log", func(ctx context.Context, ev manager.Event) error {
		attrs := []any{"event", ev.Kind, "script_id", ev.ScriptID, "caller", ev.Caller}
		if len(ev.IDs) > 0 {
			attrs = append(attrs, "ids", ev.IDs)
		}
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
		}
		ctxlog.FromContext(ctx).Debug("Script manager event.", attrs...)
		return nil
	})
}
