package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/formsync/internal/field"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/session"
)

// Command is one external trigger fed to a session by the run command.
// Exactly one of Change or Emit is set; Emit also needs Source.
type Command struct {
	Change string `yaml:"change,omitempty" json:"change,omitempty"`
	Emit   string `yaml:"emit,omitempty" json:"emit,omitempty"`
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
	Value  any    `yaml:"value" json:"value"`
}

func (c Command) validate() error {
	switch {
	case c.Change != "" && c.Emit != "":
		return errors.New("change and emit are mutually exclusive")
	case c.Change == "" && c.Emit == "":
		return errors.New("one of change or emit is required")
	case c.Emit != "" && c.Source == "":
		return errors.New("emit requires source")
	}
	return nil
}

// String renders the command for text output.
func (c Command) String() string {
	if c.Change != "" {
		return fmt.Sprintf("change %s = %v", c.Change, c.Value)
	}
	return fmt.Sprintf("emit %s from %s = %v", c.Emit, c.Source, c.Value)
}

// Apply runs the command against s. A value that cannot be converted is a
// field.ValueError, like any other rejected value.
func (c Command) Apply(s *session.Session) error {
	target := c.Change
	if target == "" {
		target = c.Source
	}
	v, err := ir.FromNative(c.Value)
	if err != nil {
		return &field.ValueError{Field: ir.FieldID(target), Message: err.Error()}
	}
	if c.Change != "" {
		return s.Change(ir.FieldID(c.Change), v)
	}
	return s.Emit(ir.NewEvent(ir.FieldID(c.Source), ir.EventKind(c.Emit), v))
}

// isJSONLines reports whether path holds one JSON command per line.
func isJSONLines(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return true
	}
	return false
}

// ReadCommandsFile reads commands from path, or stdin for "-".
// .jsonl and .ndjson files hold one JSON object per line; anything else is
// YAML holding a list of commands, in one or more documents.
func ReadCommandsFile(path string, stdin io.Reader) ([]Command, error) {
	var r io.Reader = stdin
	if path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		r = bytes.NewReader(data)
	}
	if isJSONLines(path) {
		return ReadJSONLines(r)
	}
	return ReadCommandsYAML(r)
}

// ReadCommandsYAML decodes every YAML document in r as a list of commands.
func ReadCommandsYAML(r io.Reader) ([]Command, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var all []Command
	for doc := 0; ; doc++ {
		var cmds []Command
		err := decoder.Decode(&cmds)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		for i, c := range cmds {
			if err := c.validate(); err != nil {
				return nil, fmt.Errorf("document %d, command %d: %w", doc, i, err)
			}
		}
		all = append(all, cmds...)
	}
	return all, nil
}

// ReadJSONLines decodes one command per non-blank line. Numbers keep their
// literal form so integers are not widened to floats.
func ReadJSONLines(r io.Reader) ([]Command, error) {
	var all []Command
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		decoder := json.NewDecoder(strings.NewReader(text))
		decoder.DisallowUnknownFields()
		decoder.UseNumber()
		var c Command
		if err := decoder.Decode(&c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		all = append(all, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return all, nil
}
