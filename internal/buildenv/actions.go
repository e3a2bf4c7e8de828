package buildenv

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/target"
	"github.com/spf13/afero"
)

// Action is a single {type -> data} entry from a target's "actions" list,
// per spec.md §4.6.
type Action struct {
	Type string
	Data *cfgresolve.Map
	On   []string
}

// ParseActions reads the "actions" key of cfg, supporting both the flat
// sequence form (applied at the default phase) and the phase-name -> list
// map form.
func ParseActions(cfg *cfgresolve.Map, defaultPhase string) (map[string][]Action, error) {
	result := make(map[string][]Action)
	raw, ok := cfg.Get("actions")
	if !ok {
		return result, nil
	}

	switch v := raw.(type) {
	case []cfgresolve.Value:
		actions, err := parseActionList(v)
		if err != nil {
			return nil, err
		}
		result[defaultPhase] = actions

	case *cfgresolve.Map:
		for _, phase := range v.Keys() {
			val, _ := v.Get(phase)
			seq, ok := val.([]cfgresolve.Value)
			if !ok {
				continue
			}
			actions, err := parseActionList(seq)
			if err != nil {
				return nil, err
			}
			result[phase] = actions
		}

	default:
		return nil, errs.Config("", "actions must be a sequence or a phase-name map")
	}

	return result, nil
}

func parseActionList(seq []cfgresolve.Value) ([]Action, error) {
	var out []Action
	for _, entry := range seq {
		m, ok := entry.(*cfgresolve.Map)
		if !ok || m.Len() == 0 {
			return nil, errs.Config("", "action list entries must be single-key maps")
		}

		var on []string
		if onVal, ok := m.Get("on"); ok {
			switch o := onVal.(type) {
			case string:
				on = []string{o}
			case []cfgresolve.Value:
				for _, e := range o {
					if s, ok := e.(string); ok {
						on = append(on, s)
					}
				}
			}
		}

		for _, key := range m.Keys() {
			if key == "on" {
				continue
			}
			data, _ := m.Get(key)
			dataMap, _ := data.(*cfgresolve.Map)
			out = append(out, Action{Type: key, Data: dataMap, On: on})
		}
	}
	return out, nil
}

// RunActions executes every action in actions that applies to phase (an
// action with no "on" restriction applies to every phase).
func (e *Environment) RunActions(t *target.Target, actions []Action, phase string) error {
	for _, a := range actions {
		if !appliesToPhase(a, phase) {
			continue
		}
		if err := e.runAction(t, a); err != nil {
			return err
		}
	}
	return nil
}

func appliesToPhase(a Action, phase string) bool {
	if len(a.On) == 0 {
		return true
	}
	for _, p := range a.On {
		if p == phase {
			return true
		}
	}
	return false
}

func (e *Environment) runAction(t *target.Target, a Action) error {
	switch a.Type {
	case "copy":
		return e.actionCopy(t, a.Data)
	case "copy-to-deps":
		return e.actionCopyToDeps(t, a.Data)
	case "run":
		return e.actionRun(t, a.Data)
	case "shell-run", "command":
		return e.actionShellRun(t, a.Data)
	case "install":
		return e.actionInstall(t, a.Data)
	default:
		return errs.Config(t.Module, "unknown action type %q", a.Type)
	}
}

func (e *Environment) resolvePath(t *target.Target, raw string) string {
	if t.BuildScope != nil {
		if resolved, err := t.BuildScope.Resolve(raw); err == nil {
			return resolved
		}
	}
	return raw
}

func (e *Environment) artifactDir(t *target.Target) string {
	dir, _ := t.BuildScope.Get("artifact-dir")
	if dir == "" {
		dir = filepath.Join(t.Path, "out")
	}
	return dir
}

func (e *Environment) actionCopy(t *target.Target, data *cfgresolve.Map) error {
	from, _ := data.GetString("from")
	to, _ := data.GetString("to")

	from = e.resolvePath(t, from)
	to = e.resolvePath(t, to)

	if !filepath.IsAbs(from) {
		from = filepath.Join(t.Path, from)
	}
	if !filepath.IsAbs(to) {
		to = filepath.Join(e.artifactDir(t), to)
	}

	return copyPath(e.Fs, from, to)
}

func (e *Environment) actionCopyToDeps(t *target.Target, data *cfgresolve.Map) error {
	from, _ := data.GetString("from")
	to, _ := data.GetString("to")
	from = e.resolvePath(t, from)
	if !filepath.IsAbs(from) {
		from = filepath.Join(t.Path, from)
	}

	for _, dependent := range t.Dependents() {
		dest := to
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(e.artifactDir(dependent), dest)
		}
		if err := copyPath(e.Fs, from, dest); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) actionRun(t *target.Target, data *cfgresolve.Map) error {
	cmdLine, _ := data.GetString("cmd")
	cmdLine = e.resolvePath(t, cmdLine)

	parts := strings.Fields(cmdLine)
	if len(parts) == 0 {
		return errs.Config(t.Module, "run action has no command")
	}

	result, err := e.Exec.RunIn(t.Path, parts[0], parts[1:]...)
	if err != nil {
		return errs.ProcessRun(t.Module, err, "run action %q failed to start", cmdLine)
	}
	if result.ExitCode != 0 {
		return errs.ProcessRun(t.Module, nil, "run action %q exited %d: %s", cmdLine, result.ExitCode, result.Stderr)
	}
	return nil
}

func (e *Environment) actionShellRun(t *target.Target, data *cfgresolve.Map) error {
	cmdLine, _ := data.GetString("cmd")
	cmdLine = e.resolvePath(t, cmdLine)

	result, err := e.Exec.RunIn(t.Path, "sh", "-c", cmdLine)
	if err != nil {
		return errs.ProcessRun(t.Module, err, "shell-run action %q failed to start", cmdLine)
	}
	if result.ExitCode != 0 {
		return errs.ProcessRun(t.Module, nil, "shell-run action %q exited %d: %s", cmdLine, result.ExitCode, result.Stderr)
	}
	return nil
}

func (e *Environment) actionInstall(t *target.Target, data *cfgresolve.Map) error {
	artifactDir := e.artifactDir(t)

	if toList, ok := data.GetSequence("to"); ok {
		for _, v := range toList {
			dest, _ := v.(string)
			dest = e.resolvePath(t, dest)
			if err := e.Fs.MkdirAll(dest, 0o755); err != nil {
				return errs.LoadWrap(t.Module, err, "failed to create install path %s", dest)
			}
			if err := copyPath(e.Fs, artifactDir, dest); err != nil {
				return err
			}
		}
	}

	if toFile, ok := data.GetString("to-file"); ok {
		dest := e.resolvePath(t, toFile)
		if err := copyPath(e.Fs, artifactDir, dest); err != nil {
			return err
		}
	}

	return nil
}

func copyPath(fs afero.Fs, from, to string) error {
	info, err := fs.Stat(from)
	if err != nil {
		return errs.LoadWrap("", err, "copy source %s does not exist", from)
	}

	if !info.IsDir() {
		return copyFile(fs, from, to, info)
	}

	entries, err := afero.ReadDir(fs, from)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(to, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyPath(fs, filepath.Join(from, entry.Name()), filepath.Join(to, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(fs afero.Fs, from, to string, info os.FileInfo) error {
	data, err := afero.ReadFile(fs, from)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fs, to, data, info.Mode())
}
