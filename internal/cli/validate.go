package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/glyph/internal/compiler"
	"github.com/roach88/glyph/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog>",
		Short: "Validate an effect catalog",
		Long: `Validate a CUE effect catalog without producing output.

Compiles every rarity, target, group and effect, checks references,
tier keys, formulas, slots and listener declarations, and reports
cycles among nested variables and effect dependencies as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := LoadCatalog(path, LoadModeCollectAll)
	if loadResult == nil {
		return outputLoadError(formatter, loadErrors[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	validationErrors, warnings := validateCatalog(loadResult, loadErrors, formatter)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, warnings)
}

// validateCatalog merges compile errors with semantic validation of the
// sections that compiled, and runs cycle analysis on a valid catalog.
func validateCatalog(result *LoadResult, loadErrors []error, formatter *OutputFormatter) ([]compiler.ValidationError, []compiler.CycleWarning) {
	var all []compiler.ValidationError
	for _, err := range loadErrors {
		all = append(all, loadErrorToValidation(err))
	}

	if result.Catalog == nil {
		return all, nil
	}
	for _, e := range result.Catalog.Effects {
		formatter.VerboseLog("Validating effect: %s", e.ID)
	}
	all = append(all, compiler.Validate(result.Catalog)...)
	if len(all) > 0 {
		return all, nil
	}
	return nil, compiler.AnalyzeCycles(*result.Catalog)
}

func loadErrorToValidation(err error) compiler.ValidationError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return compiler.ValidationError{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    lineOf(loadErr),
		}
	}
	return compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric}
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, warnings []compiler.CycleWarning) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings})
	}

	fmt.Fprintln(formatter.Writer, "✓ Catalog valid")
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w.Message)
	}
	return nil
}

// outputLoadError reports an error that stopped loading before any
// compilation. These are command-level errors (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message := ErrCodeGeneric, err.Error()
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code, message = loadErr.Code, loadErr.Message
	}
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.JSON() {
		result := ValidationResult{Valid: false, Errors: errs}
		if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// loadValidCatalog loads a catalog for commands that need a usable one:
// compile errors and validation errors are both fatal.
func loadValidCatalog(formatter *OutputFormatter, path string) (*ir.Catalog, error) {
	loadResult, loadErrors := LoadCatalog(path, LoadModeCollectAll)
	if loadResult == nil {
		return nil, outputLoadError(formatter, loadErrors[0])
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	if errs, _ := validateCatalog(loadResult, loadErrors, formatter); len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "invalid catalog", outputValidationErrors(formatter, errs))
	}
	return loadResult.Catalog, nil
}

// ValidateCatalog validates the catalog at path.
// This is a helper function for external callers.
func ValidateCatalog(path string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadCatalog(path, LoadModeCollectAll)
	if loadResult == nil {
		return nil, loadErrors[0]
	}
	errs, _ := validateCatalog(loadResult, loadErrors, &OutputFormatter{Verbose: false})
	return errs, nil
}
