package app

import (
	"encoding/json"

	"github.com/spf13/afero"

	"github.com/osdeverr/rebs/internal/assembler"
	"github.com/osdeverr/rebs/internal/errs"
)

// writeBuildDesc serializes desc as indented JSON, the interchange format
// an external build executor reads (spec.md §4.7's "path-keyed JSON meta
// record" is part of this same structure).
func writeBuildDesc(fs afero.Fs, path string, desc *assembler.BuildDesc) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return errs.Build("", "failed to marshal build description: %v", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return errs.Build("", "failed to write build description to %s: %v", path, err)
	}
	return nil
}
