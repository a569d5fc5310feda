package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/tracemon/internal/compiler"
	"github.com/roach88/tracemon/internal/ir"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the monitors compiled from a specs directory.
type LoadResult struct {
	Monitors  []ir.MonitorSpec
	Warnings  []compiler.Warning
	FileCount int
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs compiles and validates every monitor under dir. A nil result
// means the directory itself could not be loaded. Otherwise the result
// holds whatever compiled, and errs holds compile and validation errors.
func LoadSpecs(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	loaded, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, []error{convertCompileError(err, ErrCodeLoadFailed)}
	}

	result := &LoadResult{FileCount: loaded.FileCount}
	var errs []error
	for _, src := range loaded.Monitors {
		spec, err := compiler.CompileMonitor(src.Value)
		if err != nil {
			errs = append(errs, convertCompileError(err, ErrCodeGeneric))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Monitors = append(result.Monitors, *spec)
	}

	if len(result.Monitors) == 0 && len(errs) == 0 {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: "no monitors found in specs"}}
	}

	// A partially compiled set would report bogus hierarchy errors.
	if len(errs) > 0 {
		return result, errs
	}

	for _, v := range compiler.ValidateSet(result.Monitors) {
		errs = append(errs, &LoadError{Code: v.Code, Field: v.Field, Message: v.Message})
		if mode == LoadModeFailFast {
			return result, errs
		}
	}
	result.Warnings = compiler.Warnings(result.Monitors)
	return result, errs
}

// compileSpecs loads a specs directory and fails on any error.
func compileSpecs(dir string) ([]ir.MonitorSpec, error) {
	res, errs := LoadSpecs(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return res.Monitors, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, fallback string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Field:   compileErr.Field,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: fallback, Message: err.Error()}
}

// Error code constants shared by every command. Validation codes
// (E1xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeBadTrace    = "E008" // Trace file unreadable
	ErrCodeDatabase    = "E009" // Database error
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "state" || field == "states" || field == "initial":
		return compiler.ErrMonitorNoStates
	case field == "scope":
		return compiler.ErrInvalidScopeMode
	case field == "value":
		return compiler.ErrFloatForbidden
	case strings.HasSuffix(field, ".kind"):
		return compiler.ErrInvalidKind
	case strings.HasSuffix(field, ".goto"), strings.HasSuffix(field, ".event"):
		return compiler.ErrInvalidTransition
	case strings.HasSuffix(field, ".fact"), strings.HasSuffix(field, ".where"):
		return compiler.ErrInvalidFactPattern
	case strings.HasPrefix(field, "invariant"):
		return compiler.ErrInvalidInvariant
	default:
		return ErrCodeGeneric
	}
}
