package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/pkg/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsClient reads and writes the workbook through the Google Sheets API.
// Unchanged cells are sent as null, which the API skips.
type SheetsClient struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewSheetsClient(ctx context.Context, cfg *config.SheetConfig, opts ...option.ClientOption) (*SheetsClient, error) {
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &SheetsClient{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
	}, nil
}

func quoteSheet(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// FetchRows reads every populated row of the tab.
func (s *SheetsClient) FetchRows(ctx context.Context, sheet string) ([][]any, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, quoteSheet(sheet)).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheet, wrapGoogleError(err))
	}

	rows := make([][]any, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = r
	}
	logger.Debug(ctx, "sheet fetched", "sheet", sheet, "rows", len(rows))
	return rows, nil
}

// UpdateRow writes the row starting at column A of the addressed row.
func (s *SheetsClient) UpdateRow(ctx context.Context, update *UpdateRequest) error {
	rng := fmt.Sprintf("%s!A%d", quoteSheet(update.Sheet), update.RowIndex)
	_, err := s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		rng,
		&sheets.ValueRange{Values: [][]interface{}{update.Values()}},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s row %d: %w", update.Sheet, update.RowIndex, wrapGoogleError(err))
	}
	logger.Info(ctx, "row updated", "sheet", update.Sheet, "row_index", update.RowIndex, "cells", update.Writes())
	return nil
}

func wrapGoogleError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return fmt.Errorf("%w: google api status %d: %s", ErrTransport, gErr.Code, gErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
