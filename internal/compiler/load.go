package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/tracemon/internal/ir"
)

// LoadResult contains the monitors compiled from a specs directory.
type LoadResult struct {
	Monitors  []MonitorSource
	CUEValue  cue.Value // the raw CUE value for additional processing
	FileCount int
}

// MonitorSource is a monitor's CUE value and its label.
type MonitorSource struct {
	Label string
	Value cue.Value
}

// LoadDir loads every CUE file in dir as one instance and returns the
// monitor values under the top-level "monitor" struct, in declaration
// order. Compilation is left to the caller so it can choose between
// failing fast and collecting errors.
func LoadDir(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("specs directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	result := &LoadResult{CUEValue: value, FileCount: len(files)}
	monitors := value.LookupPath(cue.ParsePath("monitor"))
	if !monitors.Exists() {
		return result, nil
	}
	iter, err := monitors.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		result.Monitors = append(result.Monitors, MonitorSource{
			Label: iter.Selector().Unquoted(),
			Value: iter.Value(),
		})
	}
	return result, nil
}

// CompileDir loads, compiles and validates every monitor in dir. It
// stops at the first compile error. Validation problems come back
// together as a *SetError.
func CompileDir(dir string) ([]ir.MonitorSpec, error) {
	res, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	if len(res.Monitors) == 0 {
		return nil, fmt.Errorf("no monitors found in %s", dir)
	}

	specs := make([]ir.MonitorSpec, 0, len(res.Monitors))
	for _, src := range res.Monitors {
		spec, err := CompileMonitor(src.Value)
		if err != nil {
			return nil, fmt.Errorf("monitor %s: %w", src.Label, err)
		}
		specs = append(specs, *spec)
	}

	if errs := ValidateSet(specs); len(errs) > 0 {
		return nil, &SetError{Errors: errs}
	}
	return specs, nil
}

// SetError carries every validation error of a spec set.
type SetError struct {
	Errors []ValidationError
}

func (e *SetError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e.Errors[0].Error(), len(e.Errors)-1)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
