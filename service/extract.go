package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AnTengye/solarflow/model"
)

// IsEmpty reports whether a cell counts as empty: absent, or a string that
// is blank after trimming whitespace. Numeric zero and "0" are not empty.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// CellString renders a decoded cell value as the string the sheet displays.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

func cellAt(row []any, index int) any {
	if index < 0 || index >= len(row) {
		return nil
	}
	return row[index]
}

// Extract projects raw rows onto a stage's column map. Header rows are
// discarded, rows with an empty trigger column are skipped, and the rest are
// split into pending and history by the completion column, keeping source
// order. Short rows never fail: missing cells read as "".
func Extract(rows [][]any, stage *model.StageColumnMap) model.Partition {
	part := model.Partition{
		Pending: []*model.Record{},
		History: []*model.Record{},
	}

	for i, row := range rows {
		if i < stage.HeaderRows {
			continue
		}
		if IsEmpty(cellAt(row, stage.TriggerColumn)) {
			continue
		}

		rec := buildRecord(row, i+1, stage)
		completion := cellAt(row, stage.CompletionColumn)
		if IsEmpty(completion) {
			part.Pending = append(part.Pending, rec)
			continue
		}
		rec.CompletedAt = CellString(completion)
		part.History = append(part.History, rec)
	}
	return part
}

func buildRecord(row []any, rowIndex int, stage *model.StageColumnMap) *model.Record {
	rec := &model.Record{
		ID:       model.RecordID(stage.Sheet, rowIndex),
		Sheet:    stage.Sheet,
		RowIndex: rowIndex,
		Fields:   make(map[string]string, len(stage.Fields)),
	}
	for _, f := range stage.Fields {
		value := CellString(cellAt(row, f.Index))
		if f.Date {
			value = FormatDisplayDate(value)
		}
		rec.Fields[f.Name] = value
	}
	rec.BusinessKey = strings.TrimSpace(rec.Fields[model.FieldEnquiryNumber])
	return rec
}

// HeaderRow returns the last header row of a stage, the row whose cells name
// the stage's columns. It returns nil when the stage has no header rows or
// the sheet is shorter than its header block.
func HeaderRow(rows [][]any, stage *model.StageColumnMap) []any {
	if stage.HeaderRows == 0 || len(rows) < stage.HeaderRows {
		return nil
	}
	return rows[stage.HeaderRows-1]
}
