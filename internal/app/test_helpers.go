package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/scriptloader/internal/testutil"
)

// SetupAppTest writes manifest into a temporary manifest.hcl, points the
// config at it and a temporary root, and creates an App logging at debug
// level into the returned buffer.
func SetupAppTest(t *testing.T, cfg Config, manifest string) (*App, *testutil.SafeBuffer) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.hcl")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	cfg.ConfigPath = path
	if cfg.Root == "" {
		cfg.Root = filepath.Join(dir, "root")
	}
	cfg.LogLevel = "debug"

	logBuffer := &testutil.SafeBuffer{}
	testApp := NewApp(logBuffer, &cfg)

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv(testutil.LogsEnv) == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
