// Package varscope implements the hierarchical, namespace-qualified
// variable scope tree described in spec.md §4.1.
package varscope

import (
	"os"
	"strings"
	"sync"

	"github.com/osdeverr/rebs/internal/errs"
)

// Provider is a read-only key→string lookup, satisfied by both a Scope
// (registered under a namespace alias) and any other namespace source
// such as EnvNamespace.
type Provider interface {
	Get(key string) (string, bool)
}

// Context is the process-wide namespace→provider mapping a Scope resolves
// `${ns:name}` references against.
type Context struct {
	mu         sync.RWMutex
	namespaces map[string]Provider
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{namespaces: make(map[string]Provider)}
}

// Register binds a namespace name to a provider, replacing any prior binding.
func (c *Context) Register(name string, p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.namespaces[name] = p
}

// Unregister removes a namespace binding. Safe to call even if never registered.
func (c *Context) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.namespaces, name)
}

// Lookup returns the provider bound to name, if any.
func (c *Context) Lookup(name string) (Provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.namespaces[name]
	return p, ok
}

// Scope is a local name→value map with an optional parent to fall back to
// on miss, and an optional alias under which it is registered in its
// owning Context so `${alias:key}` resolves into it from anywhere.
type Scope struct {
	mu     sync.RWMutex
	ctx    *Context
	alias  string
	parent Provider
	local  map[string]string
}

// NewScope creates a scope under ctx. If alias is non-empty the scope
// registers itself in ctx under that name; callers MUST call Close (typically
// via defer) to deregister on every exit path, per spec.md §9's
// exception-safe scope destruction requirement.
func NewScope(ctx *Context, alias string, parent Provider) *Scope {
	s := &Scope{ctx: ctx, alias: alias, parent: parent, local: make(map[string]string)}
	if alias != "" && ctx != nil {
		ctx.Register(alias, s)
	}
	return s
}

// Close deregisters the scope from its context, if it was registered.
func (s *Scope) Close() {
	if s.alias != "" && s.ctx != nil {
		s.ctx.Unregister(s.alias)
	}
}

// Set stores a value in the scope's local map.
func (s *Scope) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[key] = value
}

// Get looks up key locally, then in the parent chain.
func (s *Scope) Get(key string) (string, bool) {
	s.mu.RLock()
	v, ok := s.local[key]
	s.mu.RUnlock()
	if ok {
		return v, true
	}
	if s.parent != nil {
		return s.parent.Get(key)
	}
	return "", false
}

// ResolveLocal looks up key, failing with a VarSubstitutionException if
// absent, then resolves any `${...}` references within the stored value.
func (s *Scope) ResolveLocal(key string) (string, error) {
	v, ok := s.Get(key)
	if !ok {
		return "", errs.VarSubstitution("unknown local variable %q", key)
	}
	return s.Resolve(v)
}

// lookup resolves a possibly-namespaced variable reference. An empty ns
// means "this scope's own chain" per spec.md §4.1 ("ns defaults to the
// enclosing local scope").
func (s *Scope) lookup(ns, name string) (string, bool) {
	if ns == "" {
		return s.Get(name)
	}
	if s.ctx == nil {
		return "", false
	}
	p, ok := s.ctx.Lookup(ns)
	if !ok {
		return "", false
	}
	return p.Get(name)
}

// Resolve performs a single left-to-right pass over template, replacing
// every `${[ns:]name[ | fallback]}` occurrence. Nested variables (inside a
// resolved value or a fallback) are expanded depth-first, eagerly, by
// recursing into Resolve on the replacement text — not deferred to set-time.
func (s *Scope) Resolve(template string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(template) {
		if strings.HasPrefix(template[i:], "${") {
			end, err := matchingBrace(template, i+2)
			if err != nil {
				return "", err
			}
			inner := template[i+2 : end]
			resolved, err := s.resolveExpr(inner)
			if err != nil {
				return "", err
			}
			out.WriteString(resolved)
			i = end + 1
			continue
		}
		out.WriteByte(template[i])
		i++
	}
	return out.String(), nil
}

// matchingBrace returns the index of the `}` matching the `${` whose body
// starts at from, honoring nested `${...}` occurrences inside it (so a
// fallback clause may itself contain a variable reference).
func matchingBrace(s string, from int) (int, error) {
	depth := 1
	i := from
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], "${"):
			depth++
			i += 2
		case s[i] == '}':
			depth--
			if depth == 0 {
				return i, nil
			}
			i++
		default:
			i++
		}
	}
	return 0, errs.VarSubstitution("unterminated ${...} in template")
}

// splitTopLevel splits body on the first top-level '|' (i.e. one not
// nested inside a further ${...}), returning the fallback flag.
func splitTopLevel(body string) (head, fallback string, hasFallback bool) {
	depth := 0
	for i := 0; i < len(body); i++ {
		switch {
		case strings.HasPrefix(body[i:], "${"):
			depth++
			i++
		case body[i] == '}':
			if depth > 0 {
				depth--
			}
		case body[i] == '|' && depth == 0:
			return body[:i], body[i+1:], true
		}
	}
	return body, "", false
}

func splitNs(ref string) (ns, name string) {
	if idx := strings.IndexByte(ref, ':'); idx >= 0 {
		return ref[:idx], ref[idx+1:]
	}
	return "", ref
}

func (s *Scope) resolveExpr(body string) (string, error) {
	head, fallback, hasFallback := splitTopLevel(body)
	head = strings.TrimSpace(head)
	ns, name := splitNs(head)

	if value, ok := s.lookup(ns, name); ok {
		return s.Resolve(value)
	}

	if !hasFallback {
		return "", errs.VarSubstitution("unknown variable %s", refString(ns, name))
	}

	fallback = strings.TrimSpace(fallback)
	if strings.HasPrefix(fallback, "$") {
		redirectNs, redirectName := splitNs(fallback[1:])
		if value, ok := s.lookup(redirectNs, redirectName); ok {
			return s.Resolve(value)
		}
		return "", errs.VarSubstitution(
			"unknown variable %s (fallback redirect %s also unknown)",
			refString(ns, name), refString(redirectNs, redirectName))
	}

	return s.Resolve(fallback)
}

func refString(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + ":" + name
}

// EnvNamespace backs the `env:` namespace (spec.md §6.7): a read-only
// provider over process environment variables.
type EnvNamespace struct{}

// Get looks up an environment variable.
func (EnvNamespace) Get(key string) (string, bool) {
	return os.LookupEnv(key)
}
