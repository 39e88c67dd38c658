package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                        `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Cascades []compiler.CascadeWarning  `json:"cascades,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-path>",
		Short: "Validate rules without writing output",
		Long: `Validate CUE form declarations and reactions.

Checks that every reaction's trigger kind is declared by its form, that
every field a reaction reads or writes exists, and that every write is
supported by the target field's type. Reactions whose writes land on
fields emitting their own events are reported as cascades: the engine
never re-dispatches from inside a reaction, so those chains stop after
the first hop. Cascades are informational and do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, rulesPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadSpecs(rulesPath, LoadModeCollectAll)
	if loadResult == nil {
		return outputLoadFailure(formatter, loadErrors[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, rulesPath)

	result := validateAll(loadResult, loadErrors, formatter)
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// validateAll converts compile errors to validation errors, validates every
// form against its reactions and collects cascade reports.
func validateAll(loadResult *LoadResult, loadErrors []error, formatter *OutputFormatter) ValidationResult {
	var result ValidationResult

	for _, err := range loadErrors {
		result.Errors = append(result.Errors, loadErrorToValidation(err))
	}

	claimed := make(map[string]bool, len(loadResult.Reactions))
	for _, form := range loadResult.Forms {
		formatter.VerboseLog("Validating form: %s", form.Name)
		reactions := reactionsFor(loadResult.Forms, form, loadResult.Reactions)
		for _, r := range reactions {
			claimed[r.ID] = true
		}
		result.Errors = append(result.Errors, compiler.Validate(form, reactions)...)
		result.Cascades = append(result.Cascades, compiler.AnalyzeCascades(form, reactions)...)
	}

	// With several forms a reaction no form declares a trigger for would
	// otherwise go unchecked.
	if len(loadResult.Forms) > 1 {
		for _, r := range loadResult.Reactions {
			if !claimed[r.ID] {
				result.Errors = append(result.Errors, compiler.ValidationError{
					Field:   "reaction." + r.ID,
					Message: fmt.Sprintf("trigger kind %q is not declared by any form", r.On),
					Code:    compiler.ErrUndeclaredTrigger,
				})
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func loadErrorToValidation(err error) compiler.ValidationError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		ve := compiler.ValidationError{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
		}
		if loadErr.Pos.IsValid() {
			ve.Line = loadErr.Pos.Line()
		}
		return ve
	}
	return compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ All rules valid")
	writeCascades(formatter.Writer, result.Cascades)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	failure := fmt.Sprintf("validation failed with %d error(s)", len(errs))

	if formatter.IsJSON() {
		// Validation failures = exit code 1 (test/validation failure)
		return formatter.Result(result, &CLIError{Code: errs[0].Code, Message: errs[0].Message}, ExitFailure)
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	writeCascades(formatter.Writer, result.Cascades)

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, failure)
}

func writeCascades(w io.Writer, cascades []compiler.CascadeWarning) {
	if len(cascades) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Cascades:")
	for _, c := range cascades {
		fmt.Fprintf(w, "  [%s] %s: %s\n", c.Level, strings.Join(c.Path, " -> "), c.Message)
	}
}

// ValidateRules validates the rules under path without producing output.
// Returns the error that stopped loading, if any.
func ValidateRules(path string) (ValidationResult, error) {
	loadResult, loadErrors := LoadSpecs(path, LoadModeCollectAll)
	if loadResult == nil {
		return ValidationResult{}, loadErrors[0]
	}
	silent := &OutputFormatter{Format: "text", Writer: io.Discard}
	return validateAll(loadResult, loadErrors, silent), nil
}

