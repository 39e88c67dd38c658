package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled forms and reactions.
type CompilationResult struct {
	Forms     []ir.FormSpec     `json:"forms"`
	Reactions []ir.ReactionSpec `json:"reactions"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	FormCount     int
	ReactionCount int
	TotalFields   int
	TotalKinds    int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <rules-path>",
		Short: "Compile CUE rules to canonical form and reaction specs",
		Long: `Compile CUE form declarations and reactions to their JSON form.

<rules-path> is a directory holding one CUE package or a single .cue file.
Every form.<name> and reaction.<id> is compiled; all errors are reported.

Examples:
  formsync compile ./rules
  formsync compile ./rules/order.cue -o order.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, rulesPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadSpecs(rulesPath, LoadModeCollectAll)

	// Handle load errors (path not found, no files, etc.)
	if loadResult == nil {
		return outputLoadFailure(formatter, loadErrors[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, rulesPath)
	for _, form := range loadResult.Forms {
		formatter.VerboseLog("Compiled form: %s", form.Name)
	}
	for _, reaction := range loadResult.Reactions {
		formatter.VerboseLog("Compiled reaction: %s", reaction.ID)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{
		Forms:     loadResult.Forms,
		Reactions: loadResult.Reactions,
	}
	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeSpecsToFile(result, opts.Output); err != nil {
			return formatter.Fail(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{
		FormCount:     len(result.Forms),
		ReactionCount: len(result.Reactions),
	}
	for _, form := range result.Forms {
		stats.TotalFields += len(form.Fields)
		stats.TotalKinds += len(form.Kinds)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d form(s), %d reaction(s)\n\n", stats.FormCount, stats.ReactionCount)

	if len(result.Forms) > 0 {
		fmt.Fprintln(w, "Forms:")
		for _, form := range result.Forms {
			fmt.Fprintf(w, "  %s: %d field(s), %d kind(s)\n", form.Name, len(form.Fields), len(form.Kinds))
		}
		fmt.Fprintln(w)
	}

	if len(result.Reactions) > 0 {
		fmt.Fprintln(w, "Reactions:")
		for _, r := range result.Reactions {
			writes := make([]string, len(r.Writes))
			for i, t := range r.Writes {
				writes[i] = t.String()
			}
			fmt.Fprintf(w, "  %s: %s -> %s (%s)\n", r.ID, r.On, strings.Join(writes, ", "), r.Transform)
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote specs to %s\n", outputFile)
	}
	return nil
}

// outputLoadFailure reports an error that stopped loading altogether.
func outputLoadFailure(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return formatter.Fail(loadErr.Code, loadErr.Message)
	}
	return formatter.Fail(ErrCodeGeneric, err.Error())
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	failure := fmt.Sprintf("compilation failed with %d error(s)", len(errs))

	if formatter.IsJSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		first := cliErrors[0]
		// Compilation errors are command-level errors (exit code 2)
		return formatter.Result(cliErrors, &first, ExitCommandError)
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, failure)
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeSpecsToFile writes the compilation result as indented JSON.
func writeSpecsToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling specs: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
