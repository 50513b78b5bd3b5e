package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/devsync"
	"github.com/specialistvlad/scriptloader/internal/filestorage"
	"github.com/specialistvlad/scriptloader/internal/locator"
)

// resolution is the JSON document printed by the resolve command.
type resolution struct {
	ScriptID string              `json:"scriptId"`
	Caller   string              `json:"caller,omitempty"`
	UniqueID string              `json:"uniqueId"`
	Locator  *locator.Normalized `json:"locator"`
}

// Run executes the configured command.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	mgr := a.manager
	caller := a.config.Caller

	switch a.config.Command {
	case CommandResolve:
		script, err := mgr.ResolveScript(ctx, a.config.Args[0], caller, "")
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(resolution{
			ScriptID: script.ScriptID,
			Caller:   script.Caller,
			UniqueID: script.UniqueID(),
			Locator:  &script.Locator,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode resolution: %w", err)
		}
		fmt.Fprintln(a.resultW, string(out))

	case CommandLoad:
		a.logger.Info("▶️ Loading script.", "script_id", a.config.Args[0], "caller", caller)
		if err := mgr.LoadScript(ctx, a.config.Args[0], caller); err != nil {
			return err
		}

	case CommandPrefetch:
		if err := mgr.PrefetchScript(ctx, a.config.Args[0], caller); err != nil {
			return err
		}
		a.logger.Info("✅ Script prefetched.", "script_id", a.config.Args[0], "caller", caller)

	case CommandInvalidate:
		var ids []string
		if len(a.config.Args) > 0 {
			ids = a.config.Args
		}
		if err := mgr.InvalidateScripts(ctx, ids); err != nil {
			return err
		}
		a.logger.Info("Scripts invalidated.", "ids", ids)

	case CommandWatch:
		return a.watch(ctx)

	default:
		return fmt.Errorf("unknown command %q", a.config.Command)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// watch serves the health check, follows external cache changes and the
// dev server until ctx is done.
func (a *App) watch(ctx context.Context) error {
	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	if store, ok := a.storage.(*filestorage.Store); ok {
		cacheKey := a.manager.Cache().Key()
		err := store.Watch(ctx, func(key string) {
			if key == cacheKey {
				a.logger.Info("Cache document changed on disk, reloading.")
				a.manager.Cache().Reset()
			}
		})
		if err != nil {
			return err
		}
	}

	if url, ns := a.devServer(); url != "" {
		client, err := devsync.New(url, ns, a.manager)
		if err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to dev server: %w", err)
		}
		defer client.Close()
	}

	a.logger.Info("🚀 Watching for script changes.")
	<-ctx.Done()
	a.logger.Info("🏁 Watch stopped.")
	return nil
}

func (a *App) devServer() (url, namespace string) {
	if d := a.manifest.DevServer; d != nil {
		url, namespace = d.URL, d.Namespace
	}
	if a.config.DevServerURL != "" {
		url = a.config.DevServerURL
	}
	return url, namespace
}
