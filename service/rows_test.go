package service

import (
	"errors"
	"testing"
)

func TestDecodeRowsShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"visualization table", `{"table":{"rows":[{"c":[{"v":"a"},null,{"v":3}]}]}}`},
		{"bare array", `[["a",null,3]]`},
		{"bare array of viz rows", `[{"c":[{"v":"a"},null,{"v":3}]}]`},
		{"values matrix", `{"values":[["a",null,3]]}`},
		{"wrapped", "/*O_o*/\ngoogle.visualization.Query.setResponse({\"table\":{\"rows\":[{\"c\":[{\"v\":\"a\"},null,{\"v\":3}]}]}});"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := DecodeRows([]byte(tt.body))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(rows) != 1 || len(rows[0]) != 3 {
				t.Fatalf("Unexpected rows %v", rows)
			}
			if rows[0][0] != "a" || rows[0][1] != nil || rows[0][2] != float64(3) {
				t.Errorf("Unexpected cells %v", rows[0])
			}
		})
	}
}

func TestDecodeRowsMalformed(t *testing.T) {
	for _, body := range []string{"", "not json", `{"error":"nope"}`, "<html>{broken</html>", `[1,2]`} {
		_, err := DecodeRows([]byte(body))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("DecodeRows(%q) error = %v, want ErrMalformedPayload", body, err)
		}
	}
}

func TestDecodeRowsEmptyValues(t *testing.T) {
	rows, err := DecodeRows([]byte(`{"values":[]}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}
