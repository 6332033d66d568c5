package model

import "encoding/json"

// Cell is one position of a row update. A zero Cell leaves the existing
// spreadsheet value untouched; SetTo overwrites it, including with "".
type Cell struct {
	set   bool
	value string
}

// Unchanged returns a cell that the backend skips.
func Unchanged() Cell {
	return Cell{}
}

// SetTo returns a cell that overwrites the existing value.
func SetTo(value string) Cell {
	return Cell{set: true, value: value}
}

// IsSet reports whether the cell carries a value to write.
func (c Cell) IsSet() bool {
	return c.set
}

// Value returns the value to write and whether there is one.
func (c Cell) Value() (string, bool) {
	return c.value, c.set
}

// MarshalJSON encodes Unchanged as null and SetTo(v) as a JSON string.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	return json.Marshal(c.value)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Cell) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Unchanged()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = SetTo(s)
	return nil
}

// Any returns the value in the shape expected by generic JSON encoders:
// nil for Unchanged, the string otherwise.
func (c Cell) Any() interface{} {
	if !c.set {
		return nil
	}
	return c.value
}
