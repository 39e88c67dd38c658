package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/formsync/internal/queryir"
)

// RulesOrder selects the built-in order form with its Go rules.
const RulesOrder = "builtin:order"

// Scenario defines a conformance test scenario.
// Scenarios drive a form session through a sequence of changes and assert
// on the resulting dispatch trace and final field states.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is RulesOrder or a path to a CUE file declaring the form and
	// its reactions. Paths are relative to the scenario base path.
	Rules string `yaml:"rules"`

	// Form names the form to use when the CUE file declares several.
	Form string `yaml:"form,omitempty"`

	// Session is an optional fixed session ID for deterministic tests.
	// If empty, defaults to "test-session-default".
	Session string `yaml:"session,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one external trigger. Exactly one of Change or Emit is set.
type Step struct {
	// Change sets the value of a field, which emits the field's bound kind.
	Change string `yaml:"change,omitempty"`

	// Emit dispatches a kind directly, as a replayed event would.
	Emit string `yaml:"emit,omitempty"`

	// Source is the emitting field (used by emit).
	Source string `yaml:"source,omitempty"`

	// Value is the new field value or event payload.
	Value any `yaml:"value"`

	// ExpectError names the error class the step must fail with:
	// configuration, unknown_field, reentrant, value, dispatch, or any.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "field_state": Check a field's value/enabled/required
	// - "reload_count": Check how many times a field reloaded
	// - "trace_contains": Check a kind (and optionally a write) appears
	// - "trace_order": Check kinds appear in order
	// - "trace_count": Check a kind (or a write) appears exactly N times
	// - "journal_row": Query a journal table and verify expected columns
	Type string `yaml:"type"`

	// Field is the field ID (field_state, reload_count, and the write
	// filter of trace_contains/trace_count).
	Field string `yaml:"field,omitempty"`

	// Kind is the event kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Attr narrows a write filter to one attribute.
	Attr string `yaml:"attr,omitempty"`

	// Kinds is the expected kind order (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	// Table is the journal table (journal_row).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (journal_row).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected values. Subset match.
	// field_state keys: value, enabled, required.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertFieldState    = "field_state"
	AssertReloadCount   = "reload_count"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertJournalRow    = "journal_row"
)

// Error classes accepted by Step.ExpectError.
const (
	ErrorConfiguration = "configuration"
	ErrorUnknownField  = "unknown_field"
	ErrorReentrant     = "reentrant"
	ErrorValue         = "value"
	ErrorDispatch      = "dispatch"
	ErrorAny           = "any"
)

var errorClasses = map[string]bool{
	ErrorConfiguration: true,
	ErrorUnknownField:  true,
	ErrorReentrant:     true,
	ErrorValue:         true,
	ErrorDispatch:      true,
	ErrorAny:           true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the rules path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve the rules path BEFORE validation
	if scenario.Rules != RulesOrder && !filepath.IsAbs(scenario.Rules) && basePath != "" {
		scenario.Rules = filepath.Join(basePath, scenario.Rules)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML with strict field validation
// (catches typos like "assertion:" vs "assertions:"). The result is not
// validated.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Rules == "" {
		return fmt.Errorf("rules is required (%q or a CUE file path)", RulesOrder)
	}
	if s.Rules != RulesOrder {
		if _, err := os.Stat(s.Rules); os.IsNotExist(err) {
			return fmt.Errorf("rules file not found: %s", s.Rules)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch {
		case step.Change == "" && step.Emit == "":
			return fmt.Errorf("steps[%d]: change or emit is required", i)
		case step.Change != "" && step.Emit != "":
			return fmt.Errorf("steps[%d]: change and emit are mutually exclusive", i)
		case step.Emit != "" && step.Source == "":
			return fmt.Errorf("steps[%d]: source is required for emit", i)
		}
		if step.ExpectError != "" && !errorClasses[step.ExpectError] {
			return fmt.Errorf("steps[%d]: unknown expect_error %q", i, step.ExpectError)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFieldState:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for field_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for field_state", index)
		}
		for k := range a.Expect {
			switch k {
			case "value", "enabled", "required":
			default:
				return fmt.Errorf("assertions[%d]: unknown field_state key %q", index, k)
			}
		}
	case AssertReloadCount:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for reload_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for reload_count", index)
		}
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" && a.Field == "" {
			return fmt.Errorf("assertions[%d]: kind or field is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertJournalRow:
		if !queryir.IsTable(a.Table) {
			return fmt.Errorf("assertions[%d]: table must be one of sessions, dispatches, mutations", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for journal_row", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
