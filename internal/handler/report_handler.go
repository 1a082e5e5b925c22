package handler

import (
	"net/http"

	"answer-judge/internal/service"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	store   *service.ItemStore
	reports *service.ReportService
}

func NewReportHandler(store *service.ItemStore, reports *service.ReportService) *ReportHandler {
	return &ReportHandler{store: store, reports: reports}
}

// GetAnalytics 当前数据集的统计快照
func (h *ReportHandler) GetAnalytics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"analytics": service.ComputeAnalytics(h.store.All()),
	})
}

// ExportReport 导出 markdown 报告
func (h *ReportHandler) ExportReport(c *gin.Context) {
	var req service.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.reports.Export(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report": result,
	})
}
