package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/middleware"
	"github.com/AnTengye/solarflow/model"
	"github.com/AnTengye/solarflow/service"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

type fakeSheet struct {
	mu       sync.Mutex
	rows     map[string][][]any
	fetchErr error
	failRows map[int]bool
	updates  []*service.UpdateRequest
}

func (f *fakeSheet) FetchRows(ctx context.Context, sheet string) ([][]any, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.rows[sheet], nil
}

func (f *fakeSheet) UpdateRow(ctx context.Context, req *service.UpdateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	if f.failRows[req.RowIndex] {
		return fmt.Errorf("%w: row %d rejected", service.ErrTransport, req.RowIndex)
	}
	return nil
}

var (
	adminSession = &model.Session{Username: "asha", Role: model.RoleAdmin}
	userSession  = &model.Session{Username: "ravi", Role: model.RoleUser}
)

func testStages() []model.StageColumnMap {
	return []model.StageColumnMap{{
		Name: "order", Title: "Order", Sheet: "FMS", HeaderRows: 1,
		TriggerColumn: 2, CompletionColumn: 3, Width: 6,
		Fields: []model.FieldDef{
			{Name: model.FieldEnquiryNumber, Index: 1, ReadOnly: true},
			{Name: model.FieldPlanned, Index: 2, Date: true, ReadOnly: true},
			{Name: model.FieldActual, Index: 3, Date: true, ReadOnly: true},
			{Name: "status", Index: 4, Required: true, Group: "status"},
			{Name: "due", Index: 5, Date: true, Group: "status"},
		},
	}}
}

func newFakeSheet() *fakeSheet {
	return &fakeSheet{rows: map[string][][]any{
		"FMS": {
			{"", "Enquiry", "Planned", "Actual", "Status", "Due"},
			{"", "E1", "X", "", "", ""},
			{"", "E2", "X", "01/01/2024 10:00:00", "ok", "05/06/2024"},
			{"", "E3", "X", "", "", ""},
		},
		"Master": {{"Status"}, {"Done"}, {"Hold"}},
	}}
}

// newStageRouter wires the stage routes the way main does
func newStageRouter(t *testing.T, sheet *fakeSheet) *gin.Engine {
	t.Helper()
	options := []model.OptionSet{{Name: "order_status", Sheet: "Master", Column: 0, HeaderRows: 1}}
	workflow, err := service.NewWorkflowService(testStages(), options, sheet, sheet, nil,
		service.NewRecordStore(), config.UploadConfig{MaxImageSide: 1600, JPEGQuality: 75})
	if err != nil {
		t.Fatalf("Failed to create workflow: %v", err)
	}
	h := NewStageHandler(workflow)

	router := gin.New()
	api := router.Group("/api", middleware.AuthMiddleware(testAuth))
	api.GET("/stages", h.ListStages)
	api.GET("/stages/:stage", h.GetStage)
	api.GET("/stages/:stage/export", h.Export)
	api.GET("/stages/:stage/records/:id", h.GetRecord)
	api.POST("/stages/:stage/records/:id", h.Submit)
	api.POST("/stages/:stage/bulk", middleware.RequireAdmin(), h.Bulk)
	api.GET("/options/:name", h.Options)
	return router
}

func do(t *testing.T, router *gin.Engine, session *model.Session, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", bearer(t, session))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStageHandlerListStages(t *testing.T) {
	router := newStageRouter(t, newFakeSheet())

	w := do(t, router, userSession, "GET", "/api/stages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Stages  []StageSummary `json:"stages"`
		Options []string       `json:"options"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Stages) != 1 || response.Stages[0].Name != "order" {
		t.Fatalf("Unexpected stages %+v", response.Stages)
	}
	if len(response.Stages[0].Groups) != 1 || response.Stages[0].Groups[0] != "status" {
		t.Errorf("Expected groups [status], got %v", response.Stages[0].Groups)
	}
	if response.Stages[0].Loaded != nil {
		t.Error("Expected no load stats before the stage is fetched")
	}
	if len(response.Options) != 1 || response.Options[0] != "order_status" {
		t.Errorf("Expected options [order_status], got %v", response.Options)
	}

	do(t, router, userSession, "GET", "/api/stages/order", "")
	w = do(t, router, userSession, "GET", "/api/stages", "")
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	loaded := response.Stages[0].Loaded
	if loaded == nil || loaded.Pending != 2 || loaded.History != 1 || loaded.LoadedAt.IsZero() {
		t.Errorf("Expected load stats 2/1, got %+v", loaded)
	}
}

func TestStageHandlerGetStage(t *testing.T) {
	router := newStageRouter(t, newFakeSheet())

	w := do(t, router, userSession, "GET", "/api/stages/order", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var part model.Partition
	if err := json.Unmarshal(w.Body.Bytes(), &part); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(part.Pending) != 2 || len(part.History) != 1 {
		t.Fatalf("Expected 2 pending and 1 history, got %d and %d", len(part.Pending), len(part.History))
	}
	if part.History[0].BusinessKey != "E2" || part.History[0].Fields[model.FieldActual] != "01/01/2024" {
		t.Errorf("Unexpected history record %+v", part.History[0])
	}
}

func TestStageHandlerGetStageSearch(t *testing.T) {
	router := newStageRouter(t, newFakeSheet())

	w := do(t, router, userSession, "GET", "/api/stages/order?q=e3", "")
	var part model.Partition
	if err := json.Unmarshal(w.Body.Bytes(), &part); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(part.Pending) != 1 || part.Pending[0].BusinessKey != "E3" || len(part.History) != 0 {
		t.Errorf("Expected only E3, got %+v", part)
	}
}

func TestStageHandlerGetStageErrors(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		fetchErr       error
		expectedStatus int
		retry          bool
	}{
		{"unknown stage", "/api/stages/nope", nil, http.StatusNotFound, false},
		{"sheet unavailable", "/api/stages/order", service.ErrTransport, http.StatusBadGateway, true},
		{"malformed payload", "/api/stages/order", service.ErrMalformedPayload, http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := newFakeSheet()
			sheet.fetchErr = tt.fetchErr
			router := newStageRouter(t, sheet)

			w := do(t, router, userSession, "GET", tt.path, "")
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if got := strings.Contains(w.Body.String(), `"retry":true`); got != tt.retry {
				t.Errorf("Expected retry=%v in %s", tt.retry, w.Body.String())
			}
		})
	}
}

func TestStageHandlerGetRecord(t *testing.T) {
	router := newStageRouter(t, newFakeSheet())

	w := do(t, router, userSession, "GET", "/api/stages/order/records/"+model.RecordID("FMS", 3), "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		Status string            `json:"status"`
		Inputs map[string]string `json:"inputs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Status != model.StatusHistory {
		t.Errorf("Expected history, got %s", response.Status)
	}
	if response.Inputs["due"] != "2024-06-05" {
		t.Errorf("Expected due input 2024-06-05, got %q", response.Inputs["due"])
	}
	if response.Inputs[model.FieldActual] != "2024-01-01" {
		t.Errorf("Expected actual input 2024-01-01, got %q", response.Inputs[model.FieldActual])
	}
}

func TestStageHandlerSubmit(t *testing.T) {
	sheet := newFakeSheet()
	router := newStageRouter(t, sheet)

	w := do(t, router, userSession, "POST", "/api/stages/order/records/"+model.RecordID("FMS", 2),
		`{"fields":{"status":"Done","due":"2024-07-01"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(sheet.updates) != 1 {
		t.Fatalf("Expected one row update, got %d", len(sheet.updates))
	}
	if v, _ := sheet.updates[0].Cells[5].Value(); v != "01/07/2024" {
		t.Errorf("Expected due written as 01/07/2024, got %q", v)
	}

	var response struct {
		Record model.Record `json:"record"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !response.Record.Completed() {
		t.Error("Expected the record to carry a completion timestamp")
	}
}

func TestStageHandlerSubmitErrors(t *testing.T) {
	tests := []struct {
		name           string
		session        *model.Session
		row            int
		body           string
		expectedStatus int
	}{
		{"missing required", userSession, 2, `{"fields":{"due":"2024-07-01"}}`, http.StatusBadRequest},
		{"read-only field", userSession, 2, `{"fields":{"status":"Done","enquiry_number":"E9"}}`, http.StatusBadRequest},
		{"history edit by user", userSession, 3, `{"fields":{"status":"late"}}`, http.StatusForbidden},
		{"history edit by admin", adminSession, 3, `{"fields":{"status":"late"}}`, http.StatusOK},
		{"unknown record", userSession, 99, `{"fields":{"status":"Done"}}`, http.StatusNotFound},
		{"invalid body", userSession, 2, `not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := newFakeSheet()
			router := newStageRouter(t, sheet)

			w := do(t, router, tt.session, "POST", "/api/stages/order/records/"+model.RecordID("FMS", tt.row), tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus != http.StatusOK && len(sheet.updates) != 0 {
				t.Errorf("Expected no row update, got %d", len(sheet.updates))
			}
		})
	}
}

func TestStageHandlerSubmitValidationProblems(t *testing.T) {
	router := newStageRouter(t, newFakeSheet())

	w := do(t, router, userSession, "POST", "/api/stages/order/records/"+model.RecordID("FMS", 2),
		`{"fields":{"bogus":"1"}}`)

	var response struct {
		Problems []string `json:"problems"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Problems) == 0 {
		t.Errorf("Expected problems in %s", w.Body.String())
	}
}

func TestStageHandlerBulk(t *testing.T) {
	body := fmt.Sprintf(`{"ids":[%q,%q],"fields":{"status":"Done"}}`,
		model.RecordID("FMS", 2), model.RecordID("FMS", 4))

	t.Run("admin", func(t *testing.T) {
		sheet := newFakeSheet()
		router := newStageRouter(t, sheet)

		w := do(t, router, adminSession, "POST", "/api/stages/order/bulk", body)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if len(sheet.updates) != 2 {
			t.Errorf("Expected 2 row updates, got %d", len(sheet.updates))
		}
	})

	t.Run("user", func(t *testing.T) {
		sheet := newFakeSheet()
		router := newStageRouter(t, sheet)

		w := do(t, router, userSession, "POST", "/api/stages/order/bulk", body)
		if w.Code != http.StatusForbidden {
			t.Errorf("Expected status 403, got %d", w.Code)
		}
		if len(sheet.updates) != 0 {
			t.Errorf("Expected no row update, got %d", len(sheet.updates))
		}
	})

	t.Run("partial failure", func(t *testing.T) {
		sheet := newFakeSheet()
		sheet.failRows = map[int]bool{4: true}
		router := newStageRouter(t, sheet)

		w := do(t, router, adminSession, "POST", "/api/stages/order/bulk", body)
		if w.Code != http.StatusBadGateway {
			t.Fatalf("Expected status 502, got %d", w.Code)
		}
		var response struct {
			Failed int  `json:"failed"`
			Total  int  `json:"total"`
			Retry  bool `json:"retry"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if response.Failed != 1 || response.Total != 2 || !response.Retry {
			t.Errorf("Unexpected batch response %+v", response)
		}
		if len(sheet.updates) != 2 {
			t.Errorf("Expected both writes attempted, got %d", len(sheet.updates))
		}
	})
}

func TestStageHandlerExport(t *testing.T) {
	router := newStageRouter(t, newFakeSheet())

	w := do(t, router, userSession, "GET", "/api/stages/order/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "order_") || !strings.Contains(cd, ".xlsx") {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}

	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("Response is not a workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(service.ExportPendingSheet)
	if err != nil {
		t.Fatalf("Failed to read pending sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("Expected header and 2 pending rows, got %d", len(rows))
	}
}

func TestStageHandlerOptions(t *testing.T) {
	router := newStageRouter(t, newFakeSheet())

	w := do(t, router, userSession, "GET", "/api/options/order_status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var response struct {
		Options []string `json:"options"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if strings.Join(response.Options, ",") != "Done,Hold" {
		t.Errorf("Expected [Done Hold], got %v", response.Options)
	}

	w = do(t, router, userSession, "GET", "/api/options/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
