// Package yamlconfig loads re.yml-style documents from the filesystem and
// converts them into cfgresolve.Map trees, preserving mapping-key order so
// that cfgresolve's deterministic flatten/merge guarantees hold all the way
// back to the document on disk.
package yamlconfig

import (
	"fmt"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Loader reads YAML documents through an afero filesystem, so callers can
// swap in an in-memory fs for tests or layer a read-only overlay in
// production the way the rest of the engine does for source trees.
type Loader struct {
	Fs afero.Fs
}

// NewLoader builds a Loader backed by fs. A nil fs defaults to the OS
// filesystem.
func NewLoader(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{Fs: fs}
}

// LoadFile reads path and parses it into a *cfgresolve.Map.
func (l *Loader) LoadFile(path string) (*cfgresolve.Map, error) {
	data, err := afero.ReadFile(l.Fs, path)
	if err != nil {
		return nil, errs.LoadWrap("", err, "failed to read %s", path)
	}
	return Parse(data, path)
}

// Exists reports whether path exists and is a regular file.
func (l *Loader) Exists(path string) bool {
	info, err := l.Fs.Stat(path)
	return err == nil && !info.IsDir()
}

// Parse decodes raw YAML bytes into a *cfgresolve.Map. path is used only to
// annotate error messages.
func Parse(data []byte, path string) (*cfgresolve.Map, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, errs.LoadWrap("", err, "failed to parse yaml in %s", path)
	}

	if len(node.Content) == 0 {
		return cfgresolve.NewMap(), nil
	}

	root := node.Content[0]
	value, err := nodeToValue(root, path)
	if err != nil {
		return nil, err
	}

	m, ok := value.(*cfgresolve.Map)
	if !ok {
		return nil, errs.Load("", "top-level document in %s must be a mapping", path)
	}
	return m, nil
}

func nodeToValue(n *yaml.Node, path string) (cfgresolve.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return cfgresolve.NewMap(), nil
		}
		return nodeToValue(n.Content[0], path)

	case yaml.MappingNode:
		m := cfgresolve.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			valNode := n.Content[i+1]

			val, err := nodeToValue(valNode, path)
			if err != nil {
				return nil, err
			}
			m.Set(keyNode.Value, val)
		}
		return m, nil

	case yaml.SequenceNode:
		seq := make([]cfgresolve.Value, 0, len(n.Content))
		for _, item := range n.Content {
			val, err := nodeToValue(item, path)
			if err != nil {
				return nil, err
			}
			seq = append(seq, val)
		}
		return seq, nil

	case yaml.ScalarNode:
		return scalarValue(n), nil

	case yaml.AliasNode:
		return nodeToValue(n.Alias, path)

	default:
		return nil, errs.Load("", "unsupported yaml node kind in %s", path)
	}
}

func scalarValue(n *yaml.Node) cfgresolve.Value {
	var v interface{}
	if err := n.Decode(&v); err != nil {
		return n.Value
	}
	switch v.(type) {
	case string, bool, int, float64:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
