package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/formsync/internal/compiler"
	"github.com/roach88/formsync/internal/harness"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/orderform"
	"github.com/roach88/formsync/internal/session"
)

// LoadMode controls how errors are handled during rule loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the forms and reactions declared under a path.
type LoadResult struct {
	Forms     []ir.FormSpec
	Reactions []ir.ReactionSpec
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during rule loading.
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

// LoadSpecs loads and compiles CUE rules from a directory (one CUE package)
// or a single .cue file.
// If mode is LoadModeFailFast, returns on first compile error.
// If mode is LoadModeCollectAll, collects all errors.
// A nil result means nothing could be loaded.
func LoadSpecs(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules path: %v", err)}}
	}

	var (
		value     cue.Value
		fileCount int
		loadErr   error
	)
	if info.IsDir() {
		value, fileCount, loadErr = loadDir(path)
	} else {
		value, fileCount, loadErr = loadFile(path)
	}
	if loadErr != nil {
		return nil, []error{loadErr}
	}

	res, compileErrs := compiler.Compile(value, mode == LoadModeFailFast)
	result := &LoadResult{CUEValue: value, FileCount: fileCount}
	if res != nil {
		result.Forms = res.Forms
		result.Reactions = res.Reactions
	}

	errs := make([]error, 0, len(compileErrs))
	for _, err := range compileErrs {
		errs = append(errs, convertCompileError(err))
	}
	return result, errs
}

func loadDir(dir string) (cue.Value, int, error) {
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, len(cueFiles), nil
}

func loadFile(path string) (cue.Value, int, error) {
	if filepath.Ext(path) != ".cue" {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	value := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, 1, nil
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

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: err.Error(),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// RuleSet is one form and the reactions that drive it.
type RuleSet struct {
	Form      ir.FormSpec
	Reactions []ir.ReactionSpec
	// Source is the CUE text the rules were compiled from. Empty means the
	// built-in order form.
	Source string
}

// LoadRuleSet reads a single .cue rules file. An empty path or
// "builtin:order" selects the built-in order form.
func LoadRuleSet(path, formName string) (*RuleSet, error) {
	if path == "" || path == harness.RulesOrder {
		return ParseRuleSet(path, "", formName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading rules: %v", err)}
	}
	if len(data) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("empty rules file: %s", path)}
	}
	return ParseRuleSet(path, string(data), formName)
}

// ParseRuleSet compiles and validates CUE rules text. Empty source selects
// the built-in order form. The journal stores source so a session can be
// rebuilt exactly as it ran.
func ParseRuleSet(filename, source, formName string) (*RuleSet, error) {
	if source == "" {
		if formName != "" && formName != orderform.FormName {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("built-in rules declare form %q, not %q", orderform.FormName, formName)}
		}
		return &RuleSet{Form: orderform.Form(), Reactions: orderform.ReactionSpecs()}, nil
	}

	res, errs := compiler.CompileString(filename, source)
	if len(errs) > 0 {
		return nil, convertCompileError(errs[0])
	}
	form, err := res.Form(formName)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	reactions := reactionsFor(res.Forms, form, res.Reactions)
	if verrs := compiler.Validate(form, reactions); len(verrs) > 0 {
		return nil, &LoadError{Code: verrs[0].Code, Message: verrs[0].Error()}
	}
	return &RuleSet{Form: form, Reactions: reactions, Source: source}, nil
}

// Builtin reports whether the rule set is the built-in order form.
func (r *RuleSet) Builtin() bool {
	return r.Source == ""
}

// Build creates a session. The built-in order form runs its Go reactions;
// compiled rules run through the declarative transforms.
func (r *RuleSet) Build(cfg session.Config) (*session.Session, error) {
	if r.Builtin() {
		return orderform.New(cfg)
	}
	return session.BuildFromSpecs(r.Form, r.Reactions, cfg)
}

// reactionsFor returns the reactions belonging to form. With a single form
// every reaction belongs to it; otherwise a reaction belongs to the forms
// declaring its trigger kind.
func reactionsFor(forms []ir.FormSpec, form ir.FormSpec, reactions []ir.ReactionSpec) []ir.ReactionSpec {
	if len(forms) <= 1 {
		return reactions
	}
	var out []ir.ReactionSpec
	for _, r := range reactions {
		if form.HasKind(r.On) {
			out = append(out, r)
		}
	}
	return out
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Journal open/read error
	ErrCodeInput       = "E009" // Malformed run input
)

// MapFieldToErrorCode maps a compiler error field to the validation code of
// the same family.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "field":
		return compiler.ErrFormNoFields
	case "kinds":
		return compiler.ErrFormNoKinds
	case "type":
		return compiler.ErrUnknownFieldType
	case "value":
		return compiler.ErrInvalidInitial
	case "on":
		return compiler.ErrUndeclaredTrigger
	case "writes":
		return compiler.ErrReactionNoWrites
	default:
		return ErrCodeGeneric
	}
}
