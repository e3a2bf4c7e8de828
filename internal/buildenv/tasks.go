package buildenv

import (
	"fmt"

	"github.com/osdeverr/rebs/internal/cfgresolve"
	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/target"
)

// Task is a structured task declaration from a target's "tasks" map
// (spec.md §4.6 "Structured tasks").
type Task struct {
	Name    string
	Stages  map[string][]Action
	Deps    []string
	Always  bool
	Silent  bool
}

// ParseTasks reads the "tasks" key of cfg.
func ParseTasks(cfg *cfgresolve.Map) (map[string]*Task, error) {
	result := make(map[string]*Task)
	raw, ok := cfg.GetMap("tasks")
	if !ok {
		return result, nil
	}

	for _, name := range raw.Keys() {
		val, _ := raw.Get(name)
		body, ok := val.(*cfgresolve.Map)
		if !ok {
			return nil, errs.Config("", "task %q must be a map", name)
		}

		task := &Task{Name: name, Stages: make(map[string][]Action)}
		task.Always = body.GetBool("run", false)
		task.Silent = body.GetBool("silent", false)

		if depsVal, ok := body.GetSequence("deps"); ok {
			for _, d := range depsVal {
				if s, ok := d.(string); ok {
					task.Deps = append(task.Deps, s)
				}
			}
		}

		for _, stage := range body.Keys() {
			if stage == "deps" || stage == "run" || stage == "silent" {
				continue
			}
			stageVal, _ := body.Get(stage)
			seq, ok := stageVal.([]cfgresolve.Value)
			if !ok {
				continue
			}
			actions, err := parseActionList(seq)
			if err != nil {
				return nil, err
			}
			task.Stages[stage] = actions
		}

		result[name] = task
	}

	return result, nil
}

// taskMemoKey is the at-most-once memoization key of spec.md §4.6:
// "<module> / <name> [<stage>]".
func taskMemoKey(module, name, stage string) string {
	return fmt.Sprintf("%s / %s [%s]", module, name, stage)
}

// TaskRunner executes structured tasks at most once per (target, task,
// stage) for the lifetime of a single invocation.
type TaskRunner struct {
	env *Environment
	ran map[string]bool
}

// NewTaskRunner builds a TaskRunner bound to env.
func NewTaskRunner(env *Environment) *TaskRunner {
	return &TaskRunner{env: env, ran: make(map[string]bool)}
}

// Run executes task's stage for t, first running its declared deps (looked
// up by name across t's current dependency set), skipping any
// (module, name, stage) already run this invocation.
func (r *TaskRunner) Run(t *target.Target, tasksByTarget map[*target.Target]map[string]*Task, task *Task, stage string) error {
	key := taskMemoKey(t.Module, task.Name, stage)
	if r.ran[key] {
		return nil
	}
	r.ran[key] = true

	depSet, err := r.env.CollectDependencySet(t)
	if err != nil {
		return err
	}

	for _, depName := range task.Deps {
		for _, depTarget := range depSet {
			tasks := tasksByTarget[depTarget]
			if depTask, ok := tasks[depName]; ok {
				if err := r.Run(depTarget, tasksByTarget, depTask, stage); err != nil {
					return err
				}
			}
		}
	}

	actions, ok := task.Stages[stage]
	if !ok {
		return nil
	}
	return r.env.RunActions(t, actions, stage)
}
