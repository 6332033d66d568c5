package service

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AnTengye/solarflow/model"
)

type stageRecords struct {
	pending  []*model.Record
	history  []*model.Record
	loadedAt time.Time
}

// RecordStore keeps the last fetched pending/history lists of every stage.
// Records are rebuilt on every load; the store only carries them between a
// load and the updates that follow it.
type RecordStore struct {
	stages map[string]*stageRecords
	mu     sync.RWMutex
}

var (
	globalStore *RecordStore
	storeOnce   sync.Once
)

func NewRecordStore() *RecordStore {
	return &RecordStore{stages: make(map[string]*stageRecords)}
}

// GetRecordStore returns the process-wide record store
func GetRecordStore() *RecordStore {
	storeOnce.Do(func() {
		globalStore = NewRecordStore()
	})
	return globalStore
}

// Replace swaps in a freshly extracted partition for stage. The store keeps
// its own copies; part stays owned by the caller.
func (s *RecordStore) Replace(stage string, part model.Partition) {
	pending, history := cloneAll(part.Pending), cloneAll(part.History)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stages[stage] = &stageRecords{
		pending:  pending,
		history:  history,
		loadedAt: time.Now(),
	}
	slog.Debug("stage records replaced", "stage", stage,
		"pending", len(part.Pending), "history", len(part.History))
}

// Get returns a copy of the record and whether it is pending or history.
func (s *RecordStore) Get(stage, id string) (*model.Record, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stages[stage]
	if !ok {
		return nil, ""
	}
	if i := indexOf(st.pending, id); i >= 0 {
		return st.pending[i].Clone(), model.StatusPending
	}
	if i := indexOf(st.history, id); i >= 0 {
		return st.history[i].Clone(), model.StatusHistory
	}
	return nil, ""
}

// Snapshot returns copies of the stage's lists and whether it was loaded.
func (s *RecordStore) Snapshot(stage string) (model.Partition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stages[stage]
	if !ok {
		return model.Partition{}, false
	}
	return model.Partition{
		Pending: cloneAll(st.pending),
		History: cloneAll(st.history),
	}, true
}

// Complete moves a pending record to the front of history, applying fields
// and stamping completedAt.
func (s *RecordStore) Complete(stage, id string, fields map[string]string, completedAt string) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stages[stage]
	if !ok {
		return nil, fmt.Errorf("stage %s not loaded: %w", stage, ErrNotFound)
	}
	i := indexOf(st.pending, id)
	if i < 0 {
		return nil, fmt.Errorf("pending record %s: %w", id, ErrNotFound)
	}

	rec := st.pending[i]
	st.pending = append(st.pending[:i:i], st.pending[i+1:]...)
	for k, v := range fields {
		rec.Fields[k] = v
	}
	rec.CompletedAt = completedAt
	st.history = append([]*model.Record{rec}, st.history...)
	return rec.Clone(), nil
}

// Edit replaces only the given fields of a history record. The completion
// timestamp is preserved.
func (s *RecordStore) Edit(stage, id string, fields map[string]string) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stages[stage]
	if !ok {
		return nil, fmt.Errorf("stage %s not loaded: %w", stage, ErrNotFound)
	}
	i := indexOf(st.history, id)
	if i < 0 {
		return nil, fmt.Errorf("history record %s: %w", id, ErrNotFound)
	}

	rec := st.history[i]
	for k, v := range fields {
		rec.Fields[k] = v
	}
	return rec.Clone(), nil
}

// Amend replaces only the given fields of a pending record, which stays
// pending.
func (s *RecordStore) Amend(stage, id string, fields map[string]string) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stages[stage]
	if !ok {
		return nil, fmt.Errorf("stage %s not loaded: %w", stage, ErrNotFound)
	}
	i := indexOf(st.pending, id)
	if i < 0 {
		return nil, fmt.Errorf("pending record %s: %w", id, ErrNotFound)
	}

	rec := st.pending[i]
	for k, v := range fields {
		rec.Fields[k] = v
	}
	return rec.Clone(), nil
}

// StageStats summarises what the store holds for one stage
type StageStats struct {
	Pending  int       `json:"pending"`
	History  int       `json:"history"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Stats reports the stage's list sizes and when it was last loaded.
func (s *RecordStore) Stats(stage string) (StageStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stages[stage]
	if !ok {
		return StageStats{}, false
	}
	return StageStats{Pending: len(st.pending), History: len(st.history), LoadedAt: st.loadedAt}, true
}

func indexOf(records []*model.Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(records []*model.Record) []*model.Record {
	out := make([]*model.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
