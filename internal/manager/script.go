package manager

import "github.com/specialistvlad/scriptloader/internal/locator"

// Script is a resolved script ready to be handed to an executor.
type Script struct {
	ScriptID string
	Caller   string
	// Cache reports whether the locator allows reusing a downloaded copy.
	Cache   bool
	Locator locator.Normalized
}

func newScript(scriptID, caller string, n *locator.Normalized) *Script {
	return &Script{ScriptID: scriptID, Caller: caller, Cache: n.Cache, Locator: *n}
}

// UniqueID is the cache and dedup key of the script.
func (s *Script) UniqueID() string { return s.Locator.UniqueID }

// Fetch reports whether the executor must download the script again.
func (s *Script) Fetch() bool { return s.Locator.Fetch }
