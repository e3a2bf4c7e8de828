package cfgresolve

import (
	"sort"
	"strings"

	"github.com/osdeverr/rebs/internal/errs"
)

// Categories is the parameterized set of conditional-key categories
// spec.md §4.2 names as typical: arch, platform, config, target-type,
// host-platform, load-context, runtime, cxxenv. Callers may extend this
// list (e.g. a language provider registering its own category) but this
// is the default the engine ships with.
var DefaultCategories = []string{
	"arch", "platform", "config", "target-type",
	"host-platform", "load-context", "runtime", "cxxenv",
}

// Context maps a category name to the current build context's value for
// it, e.g. {"arch": "x64", "platform": "windows.msvc", "config": "debug"}.
type Context map[string]string

// CacheKey returns a deterministic string encoding of ctx's contents,
// suitable as a map key for per-context caches (e.g. Target.ResolvedConfig):
// two Contexts with the same key/value pairs always produce the same key
// regardless of map iteration order.
func (c Context) CacheKey() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c[k])
		b.WriteByte(';')
	}
	return b.String()
}

const unsupportedSentinel = "unsupported"

// Flatten recursively resolves every conditional key in cfg against ctx,
// merging matched subtrees into the result in document order and
// recursing into non-conditional map values so nested conditionals are
// flattened too. It returns a ConfigException if a matched selector's
// value is the literal sentinel string "unsupported".
func Flatten(cfg *Map, ctx Context, categories []string) (*Map, error) {
	if cfg == nil {
		return NewMap(), nil
	}

	result := NewMap()
	for _, key := range cfg.Keys() {
		value, _ := cfg.Get(key)

		if category, selector, ok := parseConditionalKey(key, categories); ok {
			current := ctx[category]
			if !selectorMatches(selector, current) {
				continue
			}

			if s, isStr := value.(string); isStr && s == unsupportedSentinel {
				return nil, errs.Config("", "configuration %s.%s is unsupported", category, selector)
			}

			var toMerge *Map
			switch v := value.(type) {
			case *Map:
				flattened, err := Flatten(v, ctx, categories)
				if err != nil {
					return nil, err
				}
				toMerge = flattened
			default:
				// A conditional key guarding a non-map scalar has no
				// substructure to merge; the match is still consumed
				// (the key disappears) but contributes nothing.
				continue
			}

			result = Merge(result, toMerge)
			continue
		}

		// Non-conditional key: recurse into map values to resolve any
		// nested conditionals, then fold the (possibly-flattened) value
		// into the result under its own key.
		switch v := value.(type) {
		case *Map:
			flattened, err := Flatten(v, ctx, categories)
			if err != nil {
				return nil, err
			}
			result = Merge(result, singleKeyMap(key, flattened))
		default:
			result = Merge(result, singleKeyMap(key, value))
		}
	}

	return result, nil
}

// parseConditionalKey splits a key of the form "category.selector" for one
// of the given categories. Category names never contain '.', so splitting
// on the first '.' after a known category prefix is unambiguous.
func parseConditionalKey(key string, categories []string) (category, selector string, ok bool) {
	for _, cat := range categories {
		prefix := cat + "."
		if strings.HasPrefix(key, prefix) {
			return cat, key[len(prefix):], true
		}
	}
	return "", "", false
}

// selectorMatches evaluates a "|"-separated, optionally "!"-negated
// selector term list against the context's current value for the
// category. "any" always matches. A term otherwise matches by exact value
// or by dotted prefix (selector "windows" matches value "windows.msvc").
func selectorMatches(selector, value string) bool {
	for _, raw := range strings.Split(selector, "|") {
		term := strings.TrimSpace(raw)
		negate := strings.HasPrefix(term, "!")
		if negate {
			term = term[1:]
		}

		matched := term == "any" || value == term || strings.HasPrefix(value, term+".")
		if negate {
			matched = !matched
		}
		if matched {
			return true
		}
	}
	return false
}

// LeafOnlyKeys are the top-level keys that are taken from the leaf
// target's own flattened config only, never inherited from ancestors
// (spec.md §4.2 "Full resolution").
var LeafOnlyKeys = []string{"deps", "actions", "tasks"}

// ResolveChain flattens and fold-merges an ancestor chain (root-first,
// leaf last) into a single resolved Map, per spec.md §4.2's "Full
// resolution": each ancestor's raw config is flattened independently
// against ctx and merged in root-to-leaf order, then the leaf-only keys
// are overwritten with the leaf's own flattened values (dropping whatever
// the ancestor merge produced for them, including absence).
func ResolveChain(ancestorsRootFirst []*Map, ctx Context, categories []string) (*Map, error) {
	result := NewMap()
	var leafFlattened *Map

	for i, cfg := range ancestorsRootFirst {
		flattened, err := Flatten(cfg, ctx, categories)
		if err != nil {
			return nil, err
		}
		result = Merge(result, flattened)
		if i == len(ancestorsRootFirst)-1 {
			leafFlattened = flattened
		}
	}

	for _, key := range LeafOnlyKeys {
		result.Delete(key)
		if leafFlattened != nil {
			if v, ok := leafFlattened.Get(key); ok {
				result.Set(key, v)
			}
		}
	}

	return result, nil
}
