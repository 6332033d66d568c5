package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/model"
	"github.com/AnTengye/solarflow/pkg/logger"
)

// FileInput is an attachment submitted as a data URL.
type FileInput struct {
	Name    string `json:"name"`
	DataURL string `json:"data_url"`
}

// SubmitInput carries one record's edits. Group restricts the edit to one
// column group; empty means every editable field of the stage.
type SubmitInput struct {
	Group  string               `json:"group"`
	Fields map[string]string    `json:"fields"`
	Files  map[string]FileInput `json:"files"`
}

// WorkflowService drives the pending/history lifecycle of every stage.
type WorkflowService struct {
	stages  []model.StageColumnMap
	options []model.OptionSet
	rows    RowSource
	writer  RowWriter
	files   FileStore
	store   *RecordStore
	uploads config.UploadConfig
	now     func() time.Time
}

// NewWorkflowService validates the stage catalogue and binds it to the
// sheet backend. files may be nil when no stage accepts attachments.
func NewWorkflowService(stages []model.StageColumnMap, options []model.OptionSet, rows RowSource, writer RowWriter, files FileStore, store *RecordStore, uploads config.UploadConfig) (*WorkflowService, error) {
	seen := make(map[string]bool, len(stages))
	for i := range stages {
		if err := stages[i].Validate(); err != nil {
			return nil, err
		}
		if seen[stages[i].Name] {
			return nil, fmt.Errorf("duplicate stage %q", stages[i].Name)
		}
		seen[stages[i].Name] = true
	}
	return &WorkflowService{
		stages:  stages,
		options: options,
		rows:    rows,
		writer:  writer,
		files:   files,
		store:   store,
		uploads: uploads,
		now:     time.Now,
	}, nil
}

// Stages returns the stage catalogue in workflow order.
func (s *WorkflowService) Stages() []model.StageColumnMap {
	return s.stages
}

// Stage looks up a stage by name.
func (s *WorkflowService) Stage(name string) (*model.StageColumnMap, error) {
	for i := range s.stages {
		if s.stages[i].Name == name {
			return &s.stages[i], nil
		}
	}
	return nil, fmt.Errorf("stage %q: %w", name, ErrNotFound)
}

// Load fetches the stage's sheet, partitions it and replaces the stored lists.
func (s *WorkflowService) Load(ctx context.Context, name string) (model.Partition, error) {
	stage, err := s.Stage(name)
	if err != nil {
		return model.Partition{}, err
	}
	rows, err := s.rows.FetchRows(ctx, stage.Sheet)
	if err != nil {
		return model.Partition{}, fmt.Errorf("failed to load stage %s: %w", name, err)
	}

	part := Extract(rows, stage)
	s.store.Replace(stage.Name, part)
	logger.Info(ctx, "stage loaded", "stage", name, "rows", len(rows),
		"pending", len(part.Pending), "history", len(part.History))
	return part, nil
}

// Options returns the values of a named dropdown source.
func (s *WorkflowService) Options(ctx context.Context, name string) ([]string, error) {
	for _, set := range s.options {
		if set.Name != name {
			continue
		}
		rows, err := s.rows.FetchRows(ctx, set.Sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to load options %s: %w", name, err)
		}
		return LoadOptionSet(rows, set), nil
	}
	return nil, fmt.Errorf("option set %q: %w", name, ErrNotFound)
}

// Record returns one record of a stage and whether it is pending or
// history, loading the stage if needed.
func (s *WorkflowService) Record(ctx context.Context, stageName, id string) (*model.Record, string, error) {
	stage, err := s.Stage(stageName)
	if err != nil {
		return nil, "", err
	}
	return s.lookup(ctx, stage, id)
}

// Loaded reports the list sizes and load time of a stage, false if it was
// never loaded.
func (s *WorkflowService) Loaded(name string) (StageStats, bool) {
	return s.store.Stats(name)
}

// OptionSets returns the configured dropdown sources.
func (s *WorkflowService) OptionSets() []model.OptionSet {
	return s.options
}

// edit is the record-independent part of a submit: validated cell writes
// and the attachments to upload before them.
type edit struct {
	group   string
	writes  map[int]string
	changed map[string]string
	uploads []pendingUpload
}

// plan is one validated row write and the record transition that follows it.
type plan struct {
	record      *model.Record
	history     bool
	complete    bool
	writes      map[int]string
	changed     map[string]string
	completedAt string
}

type pendingUpload struct {
	field model.FieldDef
	name  string
	mime  string
	data  []byte
}

// Submit validates and applies one record's edits. A pending record is moved
// to history with a fresh completion timestamp once every required field of
// the stage is filled; a group-scoped submit that leaves required fields of
// other groups empty is written but stays pending. A history record keeps
// its timestamp and only the submitted fields change. Input is validated
// before any network call, and a failed upload aborts the submit without a
// row write.
func (s *WorkflowService) Submit(ctx context.Context, session *model.Session, stageName, id string, in SubmitInput) (*model.Record, error) {
	stage, err := s.Stage(stageName)
	if err != nil {
		return nil, err
	}
	e, err := s.parse(stage, in)
	if err != nil {
		return nil, err
	}
	rec, status, err := s.lookup(ctx, stage, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p, err := s.prepare(stage, rec, status, session, e, now)
	if err != nil {
		return nil, err
	}

	for _, u := range e.uploads {
		url, err := s.upload(ctx, rec, u, now)
		if err != nil {
			logger.Warn(ctx, "upload failed, row not updated", "stage", stage.Name,
				"row", rec.RowIndex, "field", u.field.Name, "error", err)
			return nil, fmt.Errorf("upload %s: %w: %w", u.field.Name, ErrUpload, err)
		}
		p.writes[u.field.Index] = url
		p.changed[u.field.Name] = url
	}

	if err := s.write(ctx, stage, p); err != nil {
		return nil, err
	}
	out, err := s.apply(stage, p)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "record updated", "stage", stage.Name, "row", rec.RowIndex,
		"enquiry", rec.BusinessKey, "completed", p.complete)
	return out, nil
}

// BulkUpdate writes the same fields to every selected record concurrently.
// All updates are attempted; if any fails the whole batch is reported as
// failed and writes that already landed stay in the sheet.
func (s *WorkflowService) BulkUpdate(ctx context.Context, session *model.Session, stageName string, ids []string, fields map[string]string) error {
	if !session.IsAdmin() {
		return fmt.Errorf("bulk update: %w", ErrForbidden)
	}
	stage, err := s.Stage(stageName)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return &ValidationError{Problems: []string{"no records selected"}}
	}
	e, err := s.parse(stage, SubmitInput{Fields: fields})
	if err != nil {
		return err
	}

	now := s.now()
	plans := make([]*plan, 0, len(ids))
	for _, id := range ids {
		rec, status, err := s.lookup(ctx, stage, id)
		if err != nil {
			return err
		}
		p, err := s.prepare(stage, rec, status, session, e, now)
		if err != nil {
			return err
		}
		plans = append(plans, p)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, p := range plans {
		wg.Add(1)
		go func(p *plan) {
			defer wg.Done()
			err := s.write(ctx, stage, p)
			if err == nil {
				_, err = s.apply(stage, p)
			}
			if err != nil {
				logger.Warn(ctx, "bulk item failed", "stage", stage.Name, "row", p.record.RowIndex, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	if failed > 0 {
		return &BatchError{Total: len(plans), Failed: failed}
	}
	logger.Info(ctx, "bulk update applied", "stage", stage.Name, "records", len(plans))
	return nil
}

// lookup finds a record, loading the stage first if it was never fetched.
func (s *WorkflowService) lookup(ctx context.Context, stage *model.StageColumnMap, id string) (*model.Record, string, error) {
	if _, loaded := s.store.Snapshot(stage.Name); !loaded {
		if _, err := s.Load(ctx, stage.Name); err != nil {
			return nil, "", err
		}
	}
	rec, status := s.store.Get(stage.Name, id)
	if rec == nil {
		return nil, "", fmt.Errorf("record %s in stage %s: %w", id, stage.Name, ErrNotFound)
	}
	return rec, status, nil
}

// parse checks everything that does not depend on the target row: group,
// field names, editability, file versus text fields and data URLs.
func (s *WorkflowService) parse(stage *model.StageColumnMap, in SubmitInput) (*edit, error) {
	verr := &ValidationError{}
	if in.Group != "" && !contains(stage.Groups(), in.Group) {
		verr.add("stage %s has no group %q", stage.Name, in.Group)
		return nil, verr
	}

	e := &edit{
		group:   in.Group,
		writes:  make(map[int]string),
		changed: make(map[string]string),
	}
	for name, value := range in.Fields {
		f, ok := s.writable(stage, in.Group, name, verr)
		if !ok {
			continue
		}
		if f.File {
			verr.add("field %s takes a file upload", name)
			continue
		}
		if f.Date {
			value = FromInputDate(value)
		}
		if f.Required && IsEmpty(value) {
			verr.add("%s must not be blank", f.Name)
			continue
		}
		e.writes[f.Index] = value
		e.changed[f.Name] = value
	}

	for _, f := range stage.Fields {
		file, ok := in.Files[f.Name]
		if !ok {
			continue
		}
		if _, ok := s.writable(stage, in.Group, f.Name, verr); !ok {
			continue
		}
		if !f.File {
			verr.add("field %s does not accept files", f.Name)
			continue
		}
		data, mime, err := ParseDataURL(file.DataURL)
		if err != nil {
			verr.add("field %s: %v", f.Name, err)
			continue
		}
		e.uploads = append(e.uploads, pendingUpload{field: f, name: file.Name, mime: mime, data: data})
	}
	for name := range in.Files {
		if _, ok := stage.Field(name); !ok {
			verr.add("unknown field %q", name)
		}
	}
	if len(e.uploads) > 0 && s.files == nil {
		verr.add("file uploads are not configured")
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return e, nil
}

// prepare applies the row-dependent rules to a parsed edit: the admin gate
// on history, required fields and the completion stamp.
func (s *WorkflowService) prepare(stage *model.StageColumnMap, rec *model.Record, status string, session *model.Session, e *edit, now time.Time) (*plan, error) {
	history := status == model.StatusHistory
	if history && !session.IsAdmin() {
		return nil, fmt.Errorf("editing completed records: %w", ErrForbidden)
	}

	p := &plan{
		record:  rec,
		history: history,
		writes:  make(map[int]string, len(e.writes)+2),
		changed: make(map[string]string, len(e.changed)+1),
	}
	for k, v := range e.writes {
		p.writes[k] = v
	}
	for k, v := range e.changed {
		p.changed[k] = v
	}

	verr := &ValidationError{}
	if history {
		if len(p.writes) == 0 && len(e.uploads) == 0 {
			verr.add("nothing to update")
			return nil, verr
		}
		return p, nil
	}

	filled := func(f model.FieldDef) bool {
		if _, ok := p.changed[f.Name]; ok {
			return true
		}
		for _, u := range e.uploads {
			if u.field.Name == f.Name {
				return true
			}
		}
		return !IsEmpty(rec.Fields[f.Name])
	}

	p.complete = true
	for _, f := range stage.Fields {
		if !f.Required || filled(f) {
			continue
		}
		if inScope(stage, f, e.group) {
			verr.add("%s is required", f.Name)
		}
		// required fields of other groups keep the record pending
		p.complete = false
	}
	if !p.complete && len(p.writes) == 0 && len(e.uploads) == 0 {
		verr.add("nothing to update")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	if !p.complete {
		return p, nil
	}

	for _, f := range stage.Fields {
		if f.File && !f.Required && inScope(stage, f, e.group) && !filled(f) {
			p.writes[f.Index] = ""
		}
	}
	p.completedAt = Timestamp(now)
	p.writes[stage.CompletionColumn] = p.completedAt
	if actual, ok := stage.FieldAt(stage.CompletionColumn); ok {
		p.changed[actual.Name] = FormatDisplayDate(p.completedAt)
	}
	return p, nil
}

// writable resolves name to an editable field within group, recording a
// validation problem otherwise.
func (s *WorkflowService) writable(stage *model.StageColumnMap, group, name string, verr *ValidationError) (model.FieldDef, bool) {
	f, ok := stage.Field(name)
	if !ok {
		verr.add("unknown field %q", name)
		return f, false
	}
	if !stage.Editable(f) {
		verr.add("field %s is read-only", name)
		return f, false
	}
	if !inScope(stage, f, group) {
		verr.add("field %s is not in group %s", name, group)
		return f, false
	}
	return f, true
}

func inScope(stage *model.StageColumnMap, f model.FieldDef, group string) bool {
	if !stage.Editable(f) {
		return false
	}
	return group == "" || f.Group == group
}

func (s *WorkflowService) upload(ctx context.Context, rec *model.Record, u pendingUpload, now time.Time) (string, error) {
	data, mime, err := CompressImage(u.data, u.mime, s.uploads.MaxImageSide, s.uploads.JPEGQuality)
	if err != nil {
		return "", err
	}
	name := UploadName(rec.BusinessKey, u.field.Name, u.name, mime, now)
	url, err := s.files.Upload(ctx, FileUpload{Name: name, MimeType: mime, Data: data})
	if err != nil {
		return "", err
	}
	logger.Debug(ctx, "attachment stored", "field", u.field.Name, "name", name,
		"original_size", len(u.data), "size", len(data))
	return url, nil
}

func (s *WorkflowService) write(ctx context.Context, stage *model.StageColumnMap, p *plan) error {
	req, err := BuildUpdatePayload(stage.Sheet, p.record.RowIndex, p.writes, stage.Width)
	if err != nil {
		return err
	}
	if err := s.writer.UpdateRow(ctx, req); err != nil {
		return fmt.Errorf("failed to update row %d: %w", p.record.RowIndex, err)
	}
	return nil
}

func (s *WorkflowService) apply(stage *model.StageColumnMap, p *plan) (*model.Record, error) {
	var (
		rec *model.Record
		err error
	)
	switch {
	case p.history:
		rec, err = s.store.Edit(stage.Name, p.record.ID, p.changed)
	case p.complete:
		rec, err = s.store.Complete(stage.Name, p.record.ID, p.changed, p.completedAt)
	default:
		rec, err = s.store.Amend(stage.Name, p.record.ID, p.changed)
	}
	if errors.Is(err, ErrNotFound) {
		// The stage was reloaded while the write was in flight; the sheet
		// already holds the update.
		out := p.record.Clone()
		for k, v := range p.changed {
			out.Fields[k] = v
		}
		if p.complete {
			out.CompletedAt = p.completedAt
		}
		return out, nil
	}
	return rec, err
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
