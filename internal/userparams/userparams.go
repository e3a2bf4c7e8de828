// Package userparams implements the re.user.yml round-trip and the
// install/default-tag.txt bookkeeping of spec.md §6.6. Grounded on
// internal/yamlconfig for the document shape and internal/state.FileManager
// for the "load missing means defaults, save creates parents" persistence
// idiom, run through afero for testability.
package userparams

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/yamlconfig"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// FileName is the cached-context-parameters file a target directory may carry.
const FileName = "re.user.yml"

// Params is a target's cached context parameters (e.g. a previously chosen
// arch/platform/config triplet), loaded from and saved back to re.user.yml.
type Params struct {
	mu     sync.Mutex
	fs     afero.Fs
	loader *yamlconfig.Loader
	path   string
	values map[string]string
}

// New creates Params rooted at dir/re.user.yml.
func New(fs afero.Fs, loader *yamlconfig.Loader, dir string) *Params {
	return &Params{fs: fs, loader: loader, path: filepath.Join(dir, FileName), values: make(map[string]string)}
}

// Load reads re.user.yml, if present, flattening it into a flat string map
// (spec.md's "cached context parameters" are scalar key/value pairs).
func (p *Params) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loader.Exists(p.path) {
		return nil
	}

	cfg, err := p.loader.LoadFile(p.path)
	if err != nil {
		return err
	}

	values := make(map[string]string)
	for _, key := range cfg.Keys() {
		v, _ := cfg.Get(key)
		s, ok := v.(string)
		if !ok {
			continue
		}
		values[key] = s
	}
	p.values = values
	return nil
}

// Save writes the current parameters back to re.user.yml in sorted-key
// document order, creating the parent directory if needed.
func (p *Params) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.fs.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return errs.LoadWrap("", err, "failed to create directory for %s", p.path)
	}

	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Value: p.values[k]},
		)
	}

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{node}}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errs.LoadWrap("", err, "failed to marshal %s", p.path)
	}

	if err := afero.WriteFile(p.fs, p.path, data, 0o644); err != nil {
		return errs.LoadWrap("", err, "failed to write %s", p.path)
	}
	return nil
}

// Get returns a cached parameter's value.
func (p *Params) Get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok
}

// Set records a parameter's value.
func (p *Params) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// AsContext converts the cached parameters into a cfgresolve.Context,
// letting a cached arch/platform/config triplet drive re-resolution
// without re-prompting.
func (p *Params) AsContext(categories []string) cfgresolve.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx := make(cfgresolve.Context, len(categories))
	for _, c := range categories {
		if v, ok := p.values[c]; ok {
			ctx[c] = v
		}
	}
	return ctx
}

// DefaultTagName is the per-package install marker recording the tag
// installed globally most recently (spec.md §6.6 "install/default-tag.txt").
const DefaultTagName = "default-tag.txt"

// ReadDefaultTag reads the default-tag marker for an installed package
// directory, if present.
func ReadDefaultTag(fs afero.Fs, installDir, pkg string) (string, bool, error) {
	path := filepath.Join(installDir, pkg, DefaultTagName)
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return "", false, errs.LoadWrap("", err, "failed to stat %s", path)
	}
	if !exists {
		return "", false, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", false, errs.LoadWrap("", err, "failed to read %s", path)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// WriteDefaultTag records tag as pkg's most-recently-installed version.
func WriteDefaultTag(fs afero.Fs, installDir, pkg, tag string) error {
	dir := filepath.Join(installDir, pkg)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errs.LoadWrap("", err, "failed to create %s", dir)
	}
	path := filepath.Join(dir, DefaultTagName)
	if err := afero.WriteFile(fs, path, []byte(tag+"\n"), 0o644); err != nil {
		return errs.LoadWrap("", err, "failed to write %s", path)
	}
	return nil
}
