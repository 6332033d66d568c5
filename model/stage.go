package model

import (
	"fmt"
	"strings"
)

// FieldDef maps a semantic field name to a zero-based column position.
type FieldDef struct {
	Name     string `json:"name" yaml:"name"`
	Index    int    `json:"index" yaml:"index"`
	Header   string `json:"header,omitempty" yaml:"header"`     // expected header text, checked at startup when set
	Date     bool   `json:"date,omitempty" yaml:"date"`         // normalised to DD/MM/YYYY
	File     bool   `json:"file,omitempty" yaml:"file"`         // holds an uploaded file URL
	Required bool   `json:"required,omitempty" yaml:"required"` // must be present before first completion
	Group    string `json:"group,omitempty" yaml:"group"`       // independently editable column group
	ReadOnly bool   `json:"read_only,omitempty" yaml:"read_only"`
}

// StageColumnMap describes one workflow stage's slice of the shared sheet.
type StageColumnMap struct {
	Name             string     `json:"name" yaml:"name"`
	Title            string     `json:"title" yaml:"title"`
	Sheet            string     `json:"sheet" yaml:"sheet"`
	HeaderRows       int        `json:"header_rows" yaml:"header_rows"`
	TriggerColumn    int        `json:"trigger_column" yaml:"trigger_column"`
	CompletionColumn int        `json:"completion_column" yaml:"completion_column"`
	Width            int        `json:"width" yaml:"width"`
	Fields           []FieldDef `json:"fields" yaml:"fields"`
}

// Validate checks the structural invariants of the column map.
func (s *StageColumnMap) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stage name is required")
	}
	if s.Sheet == "" {
		return fmt.Errorf("stage %s: sheet is required", s.Name)
	}
	if s.HeaderRows < 0 {
		return fmt.Errorf("stage %s: header_rows must not be negative", s.Name)
	}
	if s.TriggerColumn == s.CompletionColumn {
		return fmt.Errorf("stage %s: trigger and completion columns must differ", s.Name)
	}
	if s.TriggerColumn < 0 || s.TriggerColumn >= s.Width {
		return fmt.Errorf("stage %s: trigger column %d outside width %d", s.Name, s.TriggerColumn, s.Width)
	}
	if s.CompletionColumn < 0 || s.CompletionColumn >= s.Width {
		return fmt.Errorf("stage %s: completion column %d outside width %d", s.Name, s.CompletionColumn, s.Width)
	}

	names := make(map[string]bool, len(s.Fields))
	indices := make(map[int]string, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("stage %s: field at column %d has no name", s.Name, f.Index)
		}
		if names[f.Name] {
			return fmt.Errorf("stage %s: duplicate field %q", s.Name, f.Name)
		}
		names[f.Name] = true
		if f.Index < 0 || f.Index >= s.Width {
			return fmt.Errorf("stage %s: field %q column %d outside width %d", s.Name, f.Name, f.Index, s.Width)
		}
		if other, ok := indices[f.Index]; ok {
			return fmt.Errorf("stage %s: fields %q and %q share column %d", s.Name, other, f.Name, f.Index)
		}
		indices[f.Index] = f.Name
	}
	return nil
}

// Field returns the definition of the named field.
func (s *StageColumnMap) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// FieldAt returns the definition of the field stored at column index.
func (s *StageColumnMap) FieldAt(index int) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Index == index {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Editable reports whether callers may write the field directly. The
// trigger and completion columns are never editable.
func (s *StageColumnMap) Editable(f FieldDef) bool {
	return !f.ReadOnly && f.Index != s.TriggerColumn && f.Index != s.CompletionColumn
}

// Groups returns the distinct edit groups declared by the stage in field order.
func (s *StageColumnMap) Groups() []string {
	var groups []string
	seen := map[string]bool{}
	for _, f := range s.Fields {
		if f.Group == "" || seen[f.Group] {
			continue
		}
		seen[f.Group] = true
		groups = append(groups, f.Group)
	}
	return groups
}

// OptionSet names one dropdown source column in a reference sheet.
type OptionSet struct {
	Name       string `json:"name" yaml:"name"`
	Sheet      string `json:"sheet" yaml:"sheet"`
	Column     int    `json:"column" yaml:"column"`
	HeaderRows int    `json:"header_rows" yaml:"header_rows"`
	Dedupe     bool   `json:"dedupe,omitempty" yaml:"dedupe"` // also sorts lexicographically
}

// ColumnName converts a zero-based column index to spreadsheet letters
// (0 -> A, 90 -> CM).
func ColumnName(index int) string {
	if index < 0 {
		return ""
	}
	var b strings.Builder
	n := index + 1
	var letters []byte
	for n > 0 {
		n--
		letters = append(letters, byte('A'+n%26))
		n /= 26
	}
	for i := len(letters) - 1; i >= 0; i-- {
		b.WriteByte(letters[i])
	}
	return b.String()
}
