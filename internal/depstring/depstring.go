// Package depstring parses dependency strings of the form
// "[ns:]name[ @|==|<|<=|>|>=|~|^ version] [filter, filter ...]" into
// structured TargetDependency records, per spec.md §4.4.
package depstring

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/errs"
)

// VersionKind identifies the SemVer predicate a depstring requested.
type VersionKind int

const (
	RawTag VersionKind = iota
	Eq
	Gt
	Ge
	Lt
	Le
	SameMinor
	SameMajor
)

func (k VersionKind) String() string {
	switch k {
	case Eq:
		return "=="
	case Gt:
		return ">"
	case Ge:
		return ">="
	case Lt:
		return "<"
	case Le:
		return "<="
	case SameMinor:
		return "~"
	case SameMajor:
		return "^"
	default:
		return "@"
	}
}

var operatorKinds = map[string]VersionKind{
	"@":  RawTag,
	"==": Eq,
	">":  Gt,
	">=": Ge,
	"<":  Lt,
	"<=": Le,
	"~":  SameMinor,
	"^":  SameMajor,
}

// orderedOperators is tried longest-first so ">=" isn't mis-split as ">".
var orderedOperators = []string{"==", ">=", "<=", ">", "<", "~", "^", "@"}

// TargetDependency is a parsed dependency record, per spec.md §3.
type TargetDependency struct {
	Raw                 string
	Ns                  string
	Name                string
	Version             string
	VersionKind         VersionKind
	Parsed              *semver.Version // non-nil iff VersionKind != RawTag and Version parses as SemVer
	Filters             []string
	ExtraConfig         *cfgresolve.Map
	ExtraConfigHash     string
	ExtraConfigDataHash string

	Resolved []string // target module references populated at resolution time
}

var depstringPattern = regexp.MustCompile(`^\s*(?:([A-Za-z0-9_\-]+):)?([A-Za-z0-9_\-./]+)\s*(.*?)\s*$`)

// Parse parses a bare depstring (no extra_config) into a TargetDependency.
func Parse(raw string) (*TargetDependency, error) {
	trimmed := strings.TrimSpace(raw)
	m := depstringPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, errs.Dependency("", "malformed dependency string %q", raw)
	}

	dep := &TargetDependency{
		Raw:         raw,
		Ns:          m[1],
		Name:        m[2],
		VersionKind: RawTag,
	}

	rest := strings.TrimSpace(m[3])

	filterStart := strings.IndexByte(rest, '[')
	versionPart := rest
	filterPart := ""
	if filterStart >= 0 {
		versionPart = strings.TrimSpace(rest[:filterStart])
		filterEnd := strings.LastIndexByte(rest, ']')
		if filterEnd < filterStart {
			return nil, errs.Dependency("", "unterminated filter list in dependency string %q", raw)
		}
		filterPart = rest[filterStart+1 : filterEnd]
	}

	if versionPart != "" {
		kind, version, err := parseVersionClause(versionPart)
		if err != nil {
			return nil, errs.DependencyWrap("", err, "invalid version clause in dependency string %q", raw)
		}
		dep.VersionKind = kind
		dep.Version = version

		if kind != RawTag {
			if v, err := semver.NewVersion(version); err == nil {
				dep.Parsed = v
			}
		}
	}

	if filterPart != "" {
		for _, f := range strings.Split(filterPart, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				dep.Filters = append(dep.Filters, f)
			}
		}
	}

	return dep, nil
}

// parseVersionClause splits "@1.2.3", "== 1.2.3", "^1.2" etc. into a
// VersionKind and the bare version string.
func parseVersionClause(clause string) (VersionKind, string, error) {
	clause = strings.TrimSpace(clause)
	for _, op := range orderedOperators {
		if strings.HasPrefix(clause, op) {
			version := strings.TrimSpace(clause[len(op):])
			if version == "" {
				return RawTag, "", fmt.Errorf("missing version after operator %q", op)
			}
			return operatorKinds[op], version, nil
		}
	}
	// No recognized operator prefix: the whole clause is a RawTag version.
	return RawTag, clause, nil
}

// ParseMapForm parses a single-key map depnode {depstring: extra_config},
// tagging the resulting dependency's extra_config and hashes. ownerModule is
// the module of the target that declares the dependency, used (per spec.md
// §4.4) as the extra_config_hash seed so each dependent gets its own variant.
func ParseMapForm(key string, extraConfig *cfgresolve.Map, ownerModule string) (*TargetDependency, error) {
	dep, err := Parse(key)
	if err != nil {
		return nil, err
	}
	dep.ExtraConfig = extraConfig
	dep.ExtraConfigHash = hashString(ownerModule)
	dep.ExtraConfigDataHash = hashMap(extraConfig)
	return dep, nil
}

func hashString(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum64())
}

// hashMap produces a stable hash of a cfgresolve.Map's serialized shape,
// independent of the map's internal pointer identity.
func hashMap(m *cfgresolve.Map) string {
	if m == nil {
		return hashString("")
	}
	h := fnv.New64a()
	writeMapHash(h, m)
	return fmt.Sprintf("%x", h.Sum64())
}

func writeMapHash(h hashWriter, m *cfgresolve.Map) {
	for _, k := range m.Keys() {
		_, _ = h.Write([]byte(k))
		v, _ := m.Get(k)
		writeValueHash(h, v)
	}
}

func writeValueHash(h hashWriter, v cfgresolve.Value) {
	switch t := v.(type) {
	case *cfgresolve.Map:
		writeMapHash(h, t)
	case []cfgresolve.Value:
		for _, e := range t {
			writeValueHash(h, e)
		}
	default:
		_, _ = h.Write([]byte(fmt.Sprintf("%v", t)))
	}
}

type hashWriter interface {
	Write([]byte) (int, error)
}

// DedupKey returns the (raw, extra_config_hash) key spec.md §4.3 uses to
// deduplicate a target's loaded dependency list.
func (d *TargetDependency) DedupKey() string {
	return d.Raw + "\x00" + d.ExtraConfigHash
}

// IsCutout reports whether filter f is a path-cutout (leading "/") rather
// than a subtarget selector.
func IsCutout(f string) bool {
	return strings.HasPrefix(f, "/")
}

// CutoutFilter returns the first cutout filter's path (without the leading
// "/"), if any.
func (d *TargetDependency) CutoutFilter() (string, bool) {
	for _, f := range d.Filters {
		if IsCutout(f) {
			return strings.TrimPrefix(f, "/"), true
		}
	}
	return "", false
}

// SubtargetFilters returns the filters that are not cutouts, in order.
func (d *TargetDependency) SubtargetFilters() []string {
	var out []string
	for _, f := range d.Filters {
		if !IsCutout(f) {
			out = append(out, f)
		}
	}
	return out
}
