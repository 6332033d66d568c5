package service

import (
	"encoding/json"
	"fmt"

	"github.com/AnTengye/solarflow/model"
)

// UpdateRequest is a full-width sparse row write addressed by row index.
type UpdateRequest struct {
	Sheet    string
	RowIndex int // 1-based
	Cells    []model.Cell
}

// BuildUpdatePayload produces a row of exactly width cells where every
// position outside writes is Unchanged. Positions are zero-based column
// indices; values must already be in their sheet form.
func BuildUpdatePayload(sheet string, rowIndex int, writes map[int]string, width int) (*UpdateRequest, error) {
	if rowIndex < 1 {
		return nil, fmt.Errorf("row index must be 1-based, got %d", rowIndex)
	}
	if width <= 0 {
		return nil, fmt.Errorf("row width must be positive, got %d", width)
	}

	cells := make([]model.Cell, width)
	for i := range cells {
		cells[i] = model.Unchanged()
	}
	for index, value := range writes {
		if index < 0 || index >= width {
			return nil, fmt.Errorf("column %d outside row width %d", index, width)
		}
		cells[index] = model.SetTo(value)
	}

	return &UpdateRequest{Sheet: sheet, RowIndex: rowIndex, Cells: cells}, nil
}

// RowData encodes the cells as the JSON array sent in the rowData field.
func (r *UpdateRequest) RowData() (string, error) {
	data, err := json.Marshal(r.Cells)
	if err != nil {
		return "", fmt.Errorf("failed to encode row data: %w", err)
	}
	return string(data), nil
}

// Values returns the cells as a generic row, nil for Unchanged.
func (r *UpdateRequest) Values() []interface{} {
	out := make([]interface{}, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.Any()
	}
	return out
}

// Writes returns the number of cells that carry a value.
func (r *UpdateRequest) Writes() int {
	n := 0
	for _, c := range r.Cells {
		if c.IsSet() {
			n++
		}
	}
	return n
}
