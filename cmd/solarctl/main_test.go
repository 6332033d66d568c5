package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const testStages = `
stages:
  - name: order
    title: Order
    sheet: FMS
    header_rows: 1
    trigger_column: 2
    completion_column: 3
    width: 6
    fields:
      - name: enquiry_number
        index: 1
        header: Enquiry
        read_only: true
      - name: actual
        index: 3
        date: true
        read_only: true
      - name: status
        index: 4
        header: Status
        required: true
options:
  - name: order_status
    sheet: Master
    column: 0
    header_rows: 1
`

// newTestEnv starts a fake script endpoint and writes a config that points at it
func newTestEnv(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("sheet") {
		case "FMS":
			w.Write([]byte(`{"values":[["","Enquiry","Planned","Actual","Status"],["","E1","X",""],["","E2","X","01/01/2024 10:00:00","ok"]]}`))
		case "Master":
			w.Write([]byte(`{"values":[["Status"],["Done"],["Hold"]]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	stagesPath := filepath.Join(dir, "stages.yaml")
	if err := os.WriteFile(stagesPath, []byte(testStages), 0644); err != nil {
		t.Fatalf("Failed to write stages: %v", err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("sheet:\n  endpoint: %q\nstages_file: %q\nlog:\n  level: error\n", server.URL, stagesPath)
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStagesCommand(t *testing.T) {
	configPath := newTestEnv(t)

	out, err := run(t, "--config", configPath, "stages")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "order") || !strings.Contains(out, "FMS") {
		t.Errorf("Expected order stage in output, got %q", out)
	}
}

func TestFetchCommand(t *testing.T) {
	configPath := newTestEnv(t)

	out, err := run(t, "--config", configPath, "fetch", "order")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "1 pending, 1 history") {
		t.Errorf("Unexpected summary in %q", out)
	}

	out, err = run(t, "--config", configPath, "fetch", "order", "--json")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, `"enquiry_number": "E2"`) {
		t.Errorf("Expected E2 in JSON output, got %q", out)
	}
}

func TestFetchCommandUnknownStage(t *testing.T) {
	configPath := newTestEnv(t)

	if _, err := run(t, "--config", configPath, "fetch", "billing"); err == nil {
		t.Error("Expected error for unknown stage")
	}
}

func TestOptionsCommand(t *testing.T) {
	configPath := newTestEnv(t)

	out, err := run(t, "--config", configPath, "options", "order_status")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out != "Done\nHold\n" {
		t.Errorf("Unexpected options %q", out)
	}
}

func TestExportCommand(t *testing.T) {
	configPath := newTestEnv(t)
	output := filepath.Join(t.TempDir(), "order.xlsx")

	if _, err := run(t, "--config", configPath, "export", "order", "-o", output); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	f, err := excelize.OpenFile(output)
	if err != nil {
		t.Fatalf("Failed to open export: %v", err)
	}
	defer f.Close()
	if len(f.GetSheetList()) != 2 {
		t.Errorf("Expected Pending and History sheets, got %v", f.GetSheetList())
	}
}

func TestExportCommandShareWithoutMinio(t *testing.T) {
	configPath := newTestEnv(t)
	output := filepath.Join(t.TempDir(), "order.xlsx")

	_, err := run(t, "--config", configPath, "export", "order", "-o", output, "--share")
	if err == nil || !strings.Contains(err.Error(), "minio") {
		t.Errorf("Expected minio error, got %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	configPath := newTestEnv(t)

	out, err := run(t, "--config", configPath, "validate")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "1 stages match") {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestMissingConfig(t *testing.T) {
	if _, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "stages"); err == nil {
		t.Error("Expected error for missing config")
	}
}
