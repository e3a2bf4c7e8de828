package cfgresolve

import "strings"

// overridePrefix is the literal key prefix that forces a verbatim subtree
// replacement. Resolves spec.md §9's open question on the strip width: the
// original strips `sizeof "override."` (10 bytes, counting a C string's
// implicit NUL); we strip exactly the 9-byte literal prefix.
const overridePrefix = "override."

func hasOverride(key string) bool {
	return strings.HasPrefix(key, overridePrefix)
}

func stripOverride(key string) string {
	return key[len(overridePrefix):]
}

// Merge folds source onto target per spec.md §4.2's merge semantics:
//   - scalars: source replaces target
//   - maps: per-key recursive merge
//   - sequences: source is concatenated onto target
//   - a source key prefixed "override." replaces the target subtree
//     verbatim (the override.-stripped key), skipping further recursion.
//
// Neither argument is mutated; the result is a new Map.
func Merge(target, source *Map) *Map {
	result := NewMap()
	if target != nil {
		result = target.Clone()
	}
	if source == nil {
		return result
	}

	for _, key := range source.Keys() {
		value, _ := source.Get(key)

		if hasOverride(key) {
			result.Set(stripOverride(key), cloneValue(value))
			continue
		}

		existing, has := result.Get(key)
		if !has {
			result.Set(key, cloneValue(value))
			continue
		}

		switch sv := value.(type) {
		case *Map:
			if ev, ok := existing.(*Map); ok {
				result.Set(key, Merge(ev, sv))
			} else {
				result.Set(key, sv.Clone())
			}
		case []Value:
			if ev, ok := existing.([]Value); ok {
				merged := make([]Value, 0, len(ev)+len(sv))
				merged = append(merged, ev...)
				for _, e := range sv {
					merged = append(merged, cloneValue(e))
				}
				result.Set(key, merged)
			} else {
				out := make([]Value, len(sv))
				for i, e := range sv {
					out[i] = cloneValue(e)
				}
				result.Set(key, out)
			}
		default:
			result.Set(key, value)
		}
	}

	return result
}
