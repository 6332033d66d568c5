package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/AnTengye/solarflow/middleware"
	"github.com/AnTengye/solarflow/model"
	"github.com/AnTengye/solarflow/pkg/logger"
	"github.com/AnTengye/solarflow/service"
	"github.com/gin-gonic/gin"
)

type StageHandler struct {
	workflow *service.WorkflowService
}

func NewStageHandler(workflow *service.WorkflowService) *StageHandler {
	return &StageHandler{workflow: workflow}
}

// StageSummary describes one stage for the client
type StageSummary struct {
	model.StageColumnMap
	Groups []string            `json:"groups"`
	Loaded *service.StageStats `json:"loaded,omitempty"`
}

// BulkRequest applies the same fields to every selected record
type BulkRequest struct {
	IDs    []string          `json:"ids" binding:"required"`
	Fields map[string]string `json:"fields" binding:"required"`
}

// ListStages returns the stage catalogue in workflow order and the names
// of the dropdown sources.
func (h *StageHandler) ListStages(c *gin.Context) {
	stages := h.workflow.Stages()
	out := make([]StageSummary, 0, len(stages))
	for i := range stages {
		summary := StageSummary{StageColumnMap: stages[i], Groups: stages[i].Groups()}
		if stats, ok := h.workflow.Loaded(stages[i].Name); ok {
			summary.Loaded = &stats
		}
		out = append(out, summary)
	}

	sets := h.workflow.OptionSets()
	options := make([]string, 0, len(sets))
	for _, set := range sets {
		options = append(options, set.Name)
	}
	c.JSON(http.StatusOK, gin.H{"stages": out, "options": options})
}

// GetStage fetches the stage's sheet and returns its pending and history
// lists. An optional q filters both lists by substring.
func (h *StageHandler) GetStage(c *gin.Context) {
	name := c.Param("stage")
	part, err := h.workflow.Load(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		part.Pending = filterRecords(part.Pending, q)
		part.History = filterRecords(part.History, q)
	}
	c.JSON(http.StatusOK, gin.H{
		"stage":   name,
		"pending": part.Pending,
		"history": part.History,
	})
}

// GetRecord returns one record with its date fields in form input format
func (h *StageHandler) GetRecord(c *gin.Context) {
	stage, err := h.workflow.Stage(c.Param("stage"))
	if err != nil {
		respondError(c, err)
		return
	}
	rec, status, err := h.workflow.Record(c.Request.Context(), stage.Name, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	inputs := make(map[string]string)
	for _, f := range stage.Fields {
		if f.Date {
			inputs[f.Name] = service.ToInputDate(rec.Fields[f.Name])
		}
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "status": status, "inputs": inputs})
}

// Export downloads the stage as an xlsx workbook
func (h *StageHandler) Export(c *gin.Context) {
	stage, err := h.workflow.Stage(c.Param("stage"))
	if err != nil {
		respondError(c, err)
		return
	}
	part, err := h.workflow.Load(c.Request.Context(), stage.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	f, filename, err := service.ExportStage(stage, part)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		logger.Error(c.Request.Context(), "failed to write export", "stage", stage.Name, "error", err)
	}
}

// Submit applies one record's edits
func (h *StageHandler) Submit(c *gin.Context) {
	var in service.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	rec, err := h.workflow.Submit(c.Request.Context(), middleware.GetSession(c), c.Param("stage"), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// Bulk writes the same fields to every selected record
func (h *StageHandler) Bulk(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.workflow.BulkUpdate(c.Request.Context(), middleware.GetSession(c), c.Param("stage"), req.IDs, req.Fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(req.IDs)})
}

// Options returns the values of a dropdown source
func (h *StageHandler) Options(c *gin.Context) {
	name := c.Param("name")
	values, err := h.workflow.Options(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "options": values})
}

func filterRecords(records []*model.Record, q string) []*model.Record {
	q = strings.ToLower(q)
	out := make([]*model.Record, 0, len(records))
	for _, r := range records {
		for _, v := range r.Fields {
			if strings.Contains(strings.ToLower(v), q) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
