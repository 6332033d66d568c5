package service

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// vizResponse is the legacy visualization-API shape.
type vizResponse struct {
	Table *struct {
		Rows []vizRow `json:"rows"`
	} `json:"table"`
	Values [][]any `json:"values"`
}

type vizRow struct {
	C []*struct {
		V any `json:"v"`
	} `json:"c"`
}

func (r vizRow) values() []any {
	out := make([]any, len(r.C))
	for i, c := range r.C {
		if c != nil {
			out[i] = c.V
		}
	}
	return out
}

// DecodeRows normalises a read-endpoint body into rows of cell values.
// Accepted shapes are {table:{rows:[{c:[{v}]}]}}, a bare array of rows and
// {values:[[...]]}. Bodies wrapped in non-JSON text are retried on the
// substring between the first '{' and the last '}'.
func DecodeRows(body []byte) ([][]any, error) {
	rows, err := decodeRows(body)
	if err == nil {
		return rows, nil
	}

	start := bytes.IndexByte(body, '{')
	end := bytes.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	rows, err = decodeRows(body[start : end+1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return rows, nil
}

func decodeRows(body []byte) ([][]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		rows := make([][]any, 0, len(raw))
		for i, item := range raw {
			row, err := decodeRow(item)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	var resp vizResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, err
	}
	switch {
	case resp.Table != nil:
		rows := make([][]any, len(resp.Table.Rows))
		for i, r := range resp.Table.Rows {
			rows[i] = r.values()
		}
		return rows, nil
	case resp.Values != nil:
		return resp.Values, nil
	}
	return nil, fmt.Errorf("no table, values or row array in body")
}

func decodeRow(item json.RawMessage) ([]any, error) {
	t := bytes.TrimSpace(item)
	if len(t) == 0 || string(t) == "null" {
		return []any{}, nil
	}
	if t[0] == '{' {
		var r vizRow
		if err := json.Unmarshal(t, &r); err != nil {
			return nil, err
		}
		return r.values(), nil
	}
	var row []any
	if err := json.Unmarshal(t, &row); err != nil {
		return nil, err
	}
	return row, nil
}
