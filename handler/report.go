package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AnTengye/solarflow/pkg/logger"
	"github.com/AnTengye/solarflow/service"
	"github.com/gin-gonic/gin"
)

// YieldSource builds the weekly yield ranking
type YieldSource interface {
	WeeklyYield(ctx context.Context) (*service.YieldReport, error)
}

type ReportHandler struct {
	reports YieldSource
}

func NewReportHandler(reports YieldSource) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Yield returns the weekly specific-yield ranking, as JSON or with
// format=xlsx as a workbook.
func (h *ReportHandler) Yield(c *gin.Context) {
	report, err := h.reports.WeeklyYield(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") != "xlsx" {
		c.JSON(http.StatusOK, report)
		return
	}

	f, err := service.ExportYield(report)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("yield_%s.xlsx", service.ToInputDate(report.To))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		logger.Error(c.Request.Context(), "failed to write yield export", "error", err)
	}
}
