// Package errs implements the error taxonomy of spec.md §7. Each exception
// kind carries the offending target's module (when known) and a captured
// call stack, realizing the language-neutral "tagged error values bubbled
// through return types, with stack-trace capture attached at the throw
// site" design from spec.md §9.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the taxonomy's exception types.
type Kind string

const (
	KindLoad                Kind = "LoadException"
	KindConfig              Kind = "ConfigException"
	KindDependency           Kind = "DependencyException"
	KindUncachedDependency   Kind = "UncachedDependencyException"
	KindBuild                Kind = "BuildException"
	KindProcessRun            Kind = "ProcessRunException"
	KindVarSubstitution       Kind = "VarSubstitutionException"
)

// ExitCode returns the process exit code convention from spec.md §7:
// 5 for UncachedDependencyException, 1 for everything else.
func (k Kind) ExitCode() int {
	if k == KindUncachedDependency {
		return 5
	}
	return 1
}

// Exception is the common shape of every error in the taxonomy.
type Exception struct {
	Kind   Kind
	Module string // the involved target's module, if any
	Msg    string
	cause  error
	stack  error // carries the pkg/errors stack trace
}

func (e *Exception) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("%s: %s (target %s)", e.Kind, e.Msg, e.Module)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As.
func (e *Exception) Unwrap() error { return e.cause }

// StackTrace exposes the filtered stack frame list the driver prints
// alongside the error kind, message, and module (spec.md §7 "User-visible behavior").
func (e *Exception) StackTrace() []uintptr {
	type tracer interface{ StackTrace() errors.StackTrace }
	if t, ok := e.stack.(tracer); ok {
		frames := t.StackTrace()
		out := make([]uintptr, len(frames))
		for i, f := range frames {
			out[i] = uintptr(f)
		}
		return out
	}
	return nil
}

func newException(kind Kind, module string, cause error, format string, args ...interface{}) *Exception {
	msg := fmt.Sprintf(format, args...)
	e := &Exception{Kind: kind, Module: module, Msg: msg, cause: cause}
	if cause != nil {
		e.stack = errors.WithStack(cause)
	} else {
		e.stack = errors.New(msg)
	}
	return e
}

// Load builds a LoadException.
func Load(module string, format string, args ...interface{}) *Exception {
	return newException(KindLoad, module, nil, format, args...)
}

// LoadWrap builds a LoadException wrapping a lower-level cause.
func LoadWrap(module string, cause error, format string, args ...interface{}) *Exception {
	return newException(KindLoad, module, cause, format, args...)
}

// Config builds a ConfigException.
func Config(module string, format string, args ...interface{}) *Exception {
	return newException(KindConfig, module, nil, format, args...)
}

// Dependency builds a DependencyException.
func Dependency(module string, format string, args ...interface{}) *Exception {
	return newException(KindDependency, module, nil, format, args...)
}

// DependencyWrap builds a DependencyException wrapping a lower-level cause.
func DependencyWrap(module string, cause error, format string, args ...interface{}) *Exception {
	return newException(KindDependency, module, cause, format, args...)
}

// UncachedDependency builds an UncachedDependencyException.
func UncachedDependency(module string, format string, args ...interface{}) *Exception {
	return newException(KindUncachedDependency, module, nil, format, args...)
}

// Build builds a BuildException.
func Build(module string, format string, args ...interface{}) *Exception {
	return newException(KindBuild, module, nil, format, args...)
}

// ProcessRun builds a ProcessRunException.
func ProcessRun(module string, cause error, format string, args ...interface{}) *Exception {
	return newException(KindProcessRun, module, cause, format, args...)
}

// VarSubstitution builds a VarSubstitutionException.
func VarSubstitution(format string, args ...interface{}) *Exception {
	return newException(KindVarSubstitution, "", nil, format, args...)
}

// Is reports whether err is an *Exception of the given kind.
func Is(err error, kind Kind) bool {
	var e *Exception
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
