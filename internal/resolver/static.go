package resolver

import (
	"context"
	"fmt"
	"maps"
	"path"
	"strings"

	"github.com/specialistvlad/scriptloader/internal/locator"
)

// Static describes a resolver declared in a manifest: scripts whose id
// matches Match (a path.Match glob, "*" when empty) and, if set, whose caller
// equals Caller resolve to Locator. The placeholders [name] and [caller] in
// the locator URL are substituted.
type Static struct {
	Name    string
	Match   string
	Caller  string
	Locator locator.ScriptLocator
}

// NewStatic validates s and returns its resolver function.
func NewStatic(s Static) (Func, error) {
	pattern := s.Match
	if pattern == "" {
		pattern = "*"
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("remote %q: invalid match pattern %q: %w", s.Name, pattern, err)
	}
	if s.Locator.URL == "" {
		return nil, fmt.Errorf("remote %q: url is required", s.Name)
	}

	return func(_ context.Context, scriptID, caller, _ string) (*locator.ScriptLocator, error) {
		if s.Caller != "" && s.Caller != caller {
			return nil, nil
		}
		if ok, _ := path.Match(pattern, scriptID); !ok {
			return nil, nil
		}
		l := s.Locator
		l.URL = strings.NewReplacer("[name]", scriptID, "[caller]", caller).Replace(l.URL)
		l.Headers = maps.Clone(s.Locator.Headers)
		return &l, nil
	}, nil
}
