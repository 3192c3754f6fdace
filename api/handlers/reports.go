package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradefleet/fleet-autoscaler/internal/reporting"
)

type ReportGenerator interface {
	GenerateReport(ctx context.Context, start, end time.Time) (*reporting.Report, error)
	LastReport() *reporting.Report
}

type ReportsHandler struct {
	generator ReportGenerator
}

func NewReportsHandler(generator ReportGenerator) *ReportsHandler {
	return &ReportsHandler{generator: generator}
}

type GenerateReportRequest struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required"`
}

func (h *ReportsHandler) Generate(c *gin.Context) {
	var req GenerateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.generator.GenerateReport(c.Request.Context(), req.Start, req.End)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *ReportsHandler) Latest(c *gin.Context) {
	report := h.generator.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report generated yet"})
		return
	}

	c.JSON(http.StatusOK, report)
}
