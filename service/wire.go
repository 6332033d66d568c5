package service

import (
	"context"
	"fmt"

	"github.com/AnTengye/solarflow/config"
)

type sheetBackend interface {
	RowSource
	RowWriter
}

// Backends holds the clients selected by configuration. Minio is nil
// unless a MinIO endpoint is configured.
type Backends struct {
	Rows   RowSource
	Writer RowWriter
	Files  FileStore
	Minio  *MinioService
}

// NewBackends builds the row and upload backends named in cfg. No network
// call is made.
func NewBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	var sheet sheetBackend
	var script *ScriptClient
	switch cfg.Sheet.Backend {
	case config.BackendScript:
		script = NewScriptClient(&cfg.Sheet, cfg.Uploads.FolderID)
		sheet = script
	case config.BackendSheets:
		client, err := NewSheetsClient(ctx, &cfg.Sheet)
		if err != nil {
			return nil, err
		}
		sheet = client
	default:
		return nil, fmt.Errorf("unknown sheet backend %q", cfg.Sheet.Backend)
	}

	b := &Backends{Rows: sheet, Writer: sheet}
	if cfg.Minio.Endpoint != "" {
		minioSvc, err := NewMinioService(&cfg.Minio)
		if err != nil {
			return nil, err
		}
		b.Minio = minioSvc
	}

	switch cfg.Uploads.Backend {
	case config.BackendScript:
		if script == nil {
			// uploads still go through the script endpoint
			script = NewScriptClient(&cfg.Sheet, cfg.Uploads.FolderID)
		}
		b.Files = script
	case config.BackendMinio:
		if b.Minio == nil {
			return nil, fmt.Errorf("minio uploads need minio.endpoint")
		}
		b.Files = b.Minio
	default:
		return nil, fmt.Errorf("unknown uploads backend %q", cfg.Uploads.Backend)
	}
	return b, nil
}

// NewWorkflow binds a stage catalogue to the backends.
func (b *Backends) NewWorkflow(cat *Catalogue, store *RecordStore, uploads config.UploadConfig) (*WorkflowService, error) {
	return NewWorkflowService(cat.Stages, cat.Options, b.Rows, b.Writer, b.Files, store, uploads)
}
