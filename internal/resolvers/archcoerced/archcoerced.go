// Package archcoerced implements the "arch-coerced" resolver namespace:
// given an already-resolved Target whose build:arch differs from the
// dependent's, it produces a distinct Target at the same path with
// arch/platform/configuration overridden, memoized by (dep-module, arch).
package archcoerced

import (
	"github.com/osdeverr/rebs/internal/target"
)

// Resolver creates arch-variant clones of already-loaded targets.
type Resolver struct {
	memo map[string]*target.Target
}

// New builds an empty arch-coercion resolver.
func New() *Resolver {
	return &Resolver{memo: make(map[string]*target.Target)}
}

// ResolveCoerced returns the arch-coerced variant of existing for the arch
// recorded on from's build scope, creating and memoizing it on first use.
func (r *Resolver) ResolveCoerced(from *target.Target, existing *target.Target) (*target.Target, error) {
	arch, _ := from.BuildScope.Get("arch")
	platform, _ := from.BuildScope.Get("platform")
	configuration, _ := from.BuildScope.Get("configuration")

	module := "arch-coerced." + arch + "." + existing.Module
	if cached, ok := r.memo[module]; ok {
		return cached, nil
	}

	cfg := existing.Config.Clone()
	cfg.Set("arch", arch)
	cfg.Set("platform", platform)
	cfg.Set("configuration", configuration)

	coerced := target.New(existing.Path, existing.Name, existing.Type, cfg, existing.Parent)
	coerced.Module = module

	r.memo[module] = coerced
	return coerced, nil
}
