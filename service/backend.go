package service

import "context"

// RowSource reads every row of one sheet tab.
type RowSource interface {
	FetchRows(ctx context.Context, sheet string) ([][]any, error)
}

// RowWriter applies one sparse row update.
type RowWriter interface {
	UpdateRow(ctx context.Context, req *UpdateRequest) error
}

// FileStore stores an attachment and returns a stable URL for it.
type FileStore interface {
	Upload(ctx context.Context, file FileUpload) (string, error)
}

// FileUpload is one attachment to store before a row update is sent.
type FileUpload struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}
