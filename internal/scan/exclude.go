package scan

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/user/portage/internal/model"
)

// defaultExclusions is the fixed catalog of automatic rules: caches,
// logs and backup archives that are pointless to migrate.
func defaultExclusions() []model.ExclusionPattern {
	auto := func(pattern, reason string) model.ExclusionPattern {
		return model.ExclusionPattern{Pattern: pattern, Reason: reason, Automatic: true, Enabled: true}
	}
	return []model.ExclusionPattern{
		auto("**/cache/**", "cache directory"),
		auto("**/.cache/**", "cache directory"),
		auto("**/tmp/**", "temporary files"),
		auto("**/node_modules/**", "dependency cache, reinstallable"),
		auto("**/*.log", "log file"),
		auto("**/*.log.*", "rotated log file"),
		auto("**/*.bak", "backup file"),
		auto("**/backup*.tar.gz", "backup archive"),
		auto("**/backup*.zip", "backup archive"),
		auto("**/*.sql.gz", "database dump"),
		auto("**/error_log", "server error log"),
	}
}

// matcher evaluates a merged pattern set against relative paths.
type matcher struct {
	patterns []model.ExclusionPattern
}

// newMatcher merges the automatic catalog with caller-supplied custom
// patterns. Disabled patterns stay in the list for reporting but never
// match.
func newMatcher(custom []model.ExclusionPattern) *matcher {
	return &matcher{patterns: append(defaultExclusions(), custom...)}
}

// Match reports whether any enabled pattern matches the path, relative
// to the scan root.
func (m *matcher) Match(rel string) bool {
	rel = strings.TrimPrefix(rel, "/")
	base := path.Base(rel)
	for _, p := range m.patterns {
		if !p.Enabled {
			continue
		}
		if ok, err := doublestar.Match(p.Pattern, rel); err == nil && ok {
			return true
		}
		// Bare patterns like "*.zip" are matched against the name.
		if !strings.Contains(p.Pattern, "/") {
			if ok, err := doublestar.Match(p.Pattern, base); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// Patterns returns the merged pattern list for the scan result.
func (m *matcher) Patterns() []model.ExclusionPattern {
	return m.patterns
}
