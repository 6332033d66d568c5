package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AnTengye/solarflow/model"
	"github.com/AnTengye/solarflow/pkg/logger"
)

// Catalogue is the stage and dropdown configuration of the workbook.
type Catalogue struct {
	Stages  []model.StageColumnMap `yaml:"stages"`
	Options []model.OptionSet      `yaml:"options"`
}

// LoadCatalogue reads a stage catalogue from a YAML file. An empty path
// yields the built-in catalogue; a file without options keeps the built-in
// dropdown sources.
func LoadCatalogue(path string) (*Catalogue, error) {
	cat := &Catalogue{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read stages file: %w", err)
		}
		if err := yaml.Unmarshal(data, cat); err != nil {
			return nil, fmt.Errorf("failed to parse stages file: %w", err)
		}
	}
	if len(cat.Stages) == 0 {
		cat.Stages = model.DefaultStages()
	}
	if len(cat.Options) == 0 {
		cat.Options = model.DefaultOptionSets()
	}

	for i := range cat.Stages {
		if err := cat.Stages[i].Validate(); err != nil {
			return nil, err
		}
	}
	for _, o := range cat.Options {
		if o.Name == "" || o.Sheet == "" || o.Column < 0 {
			return nil, fmt.Errorf("option set %q: name, sheet and a non-negative column are required", o.Name)
		}
	}
	return cat, nil
}

// ValidateHeaders compares every field that declares a header with the
// sheet's header row. Comparison is trimmed and case-insensitive.
func ValidateHeaders(header []any, stage *model.StageColumnMap) error {
	serr := &SchemaError{Stage: stage.Name}
	for _, f := range stage.Fields {
		if f.Header == "" {
			continue
		}
		got := strings.TrimSpace(CellString(cellAt(header, f.Index)))
		if !strings.EqualFold(got, strings.TrimSpace(f.Header)) {
			serr.Mismatches = append(serr.Mismatches,
				fmt.Sprintf("column %s (%s): expected %q, found %q", model.ColumnName(f.Index), f.Name, f.Header, got))
		}
	}
	if len(serr.Mismatches) == 0 {
		return nil
	}
	return serr
}

// ValidateSchema fetches each stage sheet once and checks its header row.
// All mismatching stages are reported together.
func (s *WorkflowService) ValidateSchema(ctx context.Context) error {
	fetched := map[string][][]any{}
	var errs []error
	for i := range s.stages {
		stage := &s.stages[i]
		rows, ok := fetched[stage.Sheet]
		if !ok {
			var err error
			rows, err = s.rows.FetchRows(ctx, stage.Sheet)
			if err != nil {
				return fmt.Errorf("failed to fetch %s for header check: %w", stage.Sheet, err)
			}
			fetched[stage.Sheet] = rows
		}
		if stage.HeaderRows == 0 {
			continue
		}
		if err := ValidateHeaders(HeaderRow(rows, stage), stage); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info(ctx, "sheet headers validated", "stages", len(s.stages))
	return nil
}
