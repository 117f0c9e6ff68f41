package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/glyph/internal/compiler"
	"github.com/roach88/glyph/internal/ir"
)

// LoadMode controls how errors are handled during catalog loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading a catalog.
type LoadResult struct {
	Catalog   *ir.Catalog
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during catalog loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadCatalog loads and compiles the CUE catalog at path, a directory or a
// single .cue file.
// If mode is LoadModeFailFast, returns on first compile error.
// If mode is LoadModeCollectAll, collects every compile error; the result
// then holds the sections that did compile.
// A nil result means nothing could be loaded at all.
func LoadCatalog(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog: %v", err)}}
	}

	fileCount := 1
	if info.IsDir() {
		files, err := compiler.FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(files) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		fileCount = len(files)
	}

	value, err := compiler.BuildValue(path)
	if err != nil {
		code := ErrCodeLoadFailed
		if errors.Is(err, compiler.ErrBuild) {
			code = ErrCodeBuildFailed
		}
		return nil, []error{&LoadError{Code: code, Message: err.Error()}}
	}

	result := &LoadResult{CUEValue: value, FileCount: fileCount}

	var errs []error
	if mode == LoadModeFailFast {
		catalog, err := compiler.CompileCatalog(value)
		if err != nil {
			return result, []error{convertCompileError(err)}
		}
		result.Catalog = catalog
	} else {
		catalog, compileErrs := compiler.CompileCatalogAll(value)
		result.Catalog = catalog
		for _, err := range compileErrs {
			errs = append(errs, convertCompileError(err))
		}
	}

	if result.Catalog != nil && len(result.Catalog.Effects) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeEmpty, Message: "no effects found in catalog"})
	}
	return result, errs
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Field + ": " + compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants shared by every CLI command. Catalog validation uses
// the compiler's E2xx codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeEmpty       = "E008" // Catalog has no effects
	ErrCodeUsage       = "E009" // Bad flag value or unknown effect/variable
	ErrCodeStore       = "E010" // Database error
	ErrCodeCheckFailed = "E011" // A limitation check failed
	ErrCodeTestFailed  = "E012" // A scenario failed
)

// MapFieldToErrorCode maps a compiler error field to the validation code
// covering the same field.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "max_level":
		return compiler.ErrInvalidMaxLevel
	case "tiers":
		return compiler.ErrInvalidTier
	case "interval":
		return compiler.ErrInvalidInterval
	case "priority", "event", "handle":
		return compiler.ErrInvalidListener
	case "slots":
		return compiler.ErrInvalidSlot
	case "capacity", "max_coexist":
		return compiler.ErrInvalidCapacity
	default:
		return ErrCodeGeneric
	}
}
