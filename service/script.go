package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/pkg/logger"
)

// ScriptClient talks to the spreadsheet's script endpoint: one GET verb for
// reads and one POST endpoint for row updates and file uploads.
type ScriptClient struct {
	config     *config.SheetConfig
	folderID   string
	httpClient *http.Client
}

// ScriptResponse is the write endpoint's reply.
type ScriptResponse struct {
	Success bool   `json:"success"`
	FileURL string `json:"fileUrl,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewScriptClient(cfg *config.SheetConfig, folderID string) *ScriptClient {
	return &ScriptClient{
		config:   cfg,
		folderID: folderID,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// FetchRows reads one tab: GET <endpoint>?sheet=<tab>&action=fetch
func (s *ScriptClient) FetchRows(ctx context.Context, sheet string) ([][]any, error) {
	q := url.Values{}
	q.Set("sheet", sheet)
	q.Set("action", "fetch")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := s.do(req)
	if err != nil {
		return nil, err
	}

	rows, err := DecodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	logger.Debug(ctx, "sheet fetched", "sheet", sheet, "rows", len(rows))
	return rows, nil
}

// UpdateRow posts action=update with the row as a JSON array string.
func (s *ScriptClient) UpdateRow(ctx context.Context, update *UpdateRequest) error {
	rowData, err := update.RowData()
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("action", "update")
	form.Set("sheetName", update.Sheet)
	form.Set("rowIndex", strconv.Itoa(update.RowIndex))
	form.Set("rowData", rowData)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := s.post(req); err != nil {
		return fmt.Errorf("update %s row %d: %w", update.Sheet, update.RowIndex, err)
	}
	logger.Info(ctx, "row updated", "sheet", update.Sheet, "row_index", update.RowIndex, "cells", update.Writes())
	return nil
}

// Upload posts action=uploadFile as multipart form data and returns the
// stored file's URL.
func (s *ScriptClient) Upload(ctx context.Context, file FileUpload) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ key, value string }{
		{"action", "uploadFile"},
		{"base64Data", EncodeDataURL(file.MimeType, file.Data)},
		{"fileName", file.Name},
		{"mimeType", file.MimeType},
		{"folderId", s.folderID},
	}
	for _, f := range fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return "", fmt.Errorf("failed to build upload form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.post(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", file.Name, err)
	}
	if resp.FileURL == "" {
		return "", fmt.Errorf("upload %s: %w: no file URL returned", file.Name, ErrMalformedPayload)
	}
	return resp.FileURL, nil
}

func (s *ScriptClient) post(req *http.Request) (*ScriptResponse, error) {
	body, err := s.do(req)
	if err != nil {
		return nil, err
	}

	var result ScriptResponse
	if err := decodeEnvelope(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v, body: %s", ErrMalformedPayload, err, truncate(body, 200))
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "endpoint reported failure"
		}
		return nil, fmt.Errorf("%w: %s", ErrTransport, msg)
	}
	return &result, nil
}

func (s *ScriptClient) do(req *http.Request) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

// decodeEnvelope parses a JSON object, retrying on the substring between the
// first '{' and the last '}' when the body carries wrapper text.
func decodeEnvelope(body []byte, v any) error {
	err := json.Unmarshal(body, v)
	if err == nil {
		return nil
	}
	start := bytes.IndexByte(body, '{')
	end := bytes.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return err
	}
	return json.Unmarshal(body[start:end+1], v)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
