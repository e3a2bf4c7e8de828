// Package semverselect implements the SemVer candidate-selection algorithm
// of spec.md §4.5: filter a resolver's candidate tag list by a dependency's
// version predicate, sort descending, and pick the first match.
package semverselect

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/osdeverr/rebs/internal/depstring"
	"github.com/osdeverr/rebs/internal/errs"
)

// Select filters candidates (raw tag strings) by the predicate dep.VersionKind
// against dep.Parsed, sorts the survivors descending, and returns the
// highest-ranked tag. Invalid SemVer candidate strings are silently dropped.
// An empty survivor set fails with DependencyException.
func Select(dep *depstring.TargetDependency, candidates []string) (string, error) {
	if dep.VersionKind == depstring.RawTag {
		return dep.Version, nil
	}
	if dep.Parsed == nil {
		return "", errs.Dependency("", "dependency %q has no valid required SemVer to select against", dep.Raw)
	}

	type candidate struct {
		raw string
		ver *semver.Version
	}

	var matched []candidate
	for _, raw := range candidates {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if predicateMatches(dep.VersionKind, dep.Parsed, v) {
			matched = append(matched, candidate{raw: raw, ver: v})
		}
	}

	if len(matched) == 0 {
		return "", errs.Dependency("", "no candidate version of %q satisfies %s%s", dep.Name, dep.VersionKind, dep.Version)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ver.GreaterThan(matched[j].ver)
	})

	return matched[0].raw, nil
}

func predicateMatches(kind depstring.VersionKind, required, candidate *semver.Version) bool {
	switch kind {
	case depstring.Eq:
		return candidate.Equal(required)
	case depstring.Gt:
		return candidate.GreaterThan(required)
	case depstring.Ge:
		return candidate.GreaterThan(required) || candidate.Equal(required)
	case depstring.Lt:
		return candidate.LessThan(required)
	case depstring.Le:
		return candidate.LessThan(required) || candidate.Equal(required)
	case depstring.SameMinor:
		return (candidate.GreaterThan(required) || candidate.Equal(required)) &&
			candidate.Major() == required.Major() && candidate.Minor() == required.Minor()
	case depstring.SameMajor:
		return (candidate.GreaterThan(required) || candidate.Equal(required)) &&
			candidate.Major() == required.Major()
	default:
		return false
	}
}

// CacheKey builds the version-cache key for a resolved dependency, per
// spec.md §4.5: "ns:name<kind><version>". The operator is embedded literally
// so that e.g. ">1.2.3" and "<1.2.3" never collide (Open Question #3).
func CacheKey(dep *depstring.TargetDependency) string {
	ns := dep.Ns
	return ns + ":" + dep.Name + dep.VersionKind.String() + dep.Version
}

// Cache is a simple in-memory store of resolved (dep-kind-version) -> concrete
// tag. It does no file I/O itself; Entries/LoadEntries let a caller (e.g.
// internal/versioncache) persist it across runs.
type Cache struct {
	entries map[string]string
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Lookup returns the previously-chosen tag for dep, if any.
func (c *Cache) Lookup(dep *depstring.TargetDependency) (string, bool) {
	v, ok := c.entries[CacheKey(dep)]
	return v, ok
}

// Store records the chosen tag for dep.
func (c *Cache) Store(dep *depstring.TargetDependency, tag string) {
	c.entries[CacheKey(dep)] = tag
}

// Entries returns a copy of the cache's raw key->tag map, for persisting
// to the on-disk version cache of spec.md §6.6.
func (c *Cache) Entries() map[string]string {
	out := make(map[string]string, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// LoadEntries seeds the cache from a previously-persisted key->tag map,
// without discarding entries already resolved this run.
func (c *Cache) LoadEntries(entries map[string]string) {
	for k, v := range entries {
		if _, exists := c.entries[k]; !exists {
			c.entries[k] = v
		}
	}
}

// Resolve consults the cache first, then falls back to Select over
// candidates, storing the result for future lookups.
func (c *Cache) Resolve(dep *depstring.TargetDependency, candidates func() ([]string, error)) (string, error) {
	if tag, ok := c.Lookup(dep); ok {
		return tag, nil
	}

	list, err := candidates()
	if err != nil {
		return "", err
	}

	tag, err := Select(dep, list)
	if err != nil {
		return "", err
	}

	c.Store(dep, tag)
	return tag, nil
}
