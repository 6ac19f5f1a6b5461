package guard

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Allowlist matches a request's declared origin against configured patterns.
// A pattern may contain "*" as a glob wildcard; the single pattern "*" allows
// every origin. An absent origin is only allowed under the universal
// wildcard.
type Allowlist struct {
	allowAll bool
	exact    map[string]struct{}
	globs    []glob.Glob
}

// NewAllowlist compiles the given patterns. Patterns without a wildcard are
// matched exactly.
func NewAllowlist(patterns []string) (*Allowlist, error) {
	a := &Allowlist{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			continue
		case p == "*":
			a.allowAll = true
		case strings.Contains(p, "*"):
			g, err := glob.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("invalid origin pattern %q: %w", p, err)
			}
			a.globs = append(a.globs, g)
		default:
			a.exact[p] = struct{}{}
		}
	}
	return a, nil
}

// Allowed reports whether origin passes the allowlist.
func (a *Allowlist) Allowed(origin string) bool {
	if a.allowAll {
		return true
	}
	if origin == "" {
		return false
	}
	if _, ok := a.exact[origin]; ok {
		return true
	}
	for _, g := range a.globs {
		if g.Match(origin) {
			return true
		}
	}
	return false
}
