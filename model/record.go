package model

import (
	"strconv"

	"github.com/google/uuid"
)

// recordNamespace scopes record identifiers so they never collide with
// request ids or other name-based UUIDs.
var recordNamespace = uuid.MustParse("5b0c3d6e-2f4a-4c61-9a57-1f3e8d2b7c90")

// Record is the field-named projection of one spreadsheet row for one stage
type Record struct {
	ID          string            `json:"id"`
	Sheet       string            `json:"sheet"`
	RowIndex    int               `json:"row_index"`
	BusinessKey string            `json:"enquiry_number"`
	Fields      map[string]string `json:"fields"`
	CompletedAt string            `json:"completed_at,omitempty"`
}

// RecordID derives the stable identifier of the row at rowIndex (1-based)
// in sheet. The same row always maps to the same id across fetches.
func RecordID(sheet string, rowIndex int) string {
	return uuid.NewSHA1(recordNamespace, []byte(sheet+"!"+strconv.Itoa(rowIndex))).String()
}

// Completed reports whether the record carries a completion timestamp.
func (r *Record) Completed() bool {
	return r.CompletedAt != ""
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	out.Fields = make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return &out
}

// Partition holds one stage's records split by the completion column.
type Partition struct {
	Pending []*Record `json:"pending"`
	History []*Record `json:"history"`
}

// Record status names used in API responses
const (
	StatusPending = "pending"
	StatusHistory = "history"
)
