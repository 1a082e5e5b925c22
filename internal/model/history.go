package model

import (
	"time"
)

type HistoryEventType string

const (
	EventDatasetLoaded  HistoryEventType = "dataset_loaded"
	EventItemEvaluated  HistoryEventType = "item_evaluated"
	EventBatchEvaluated HistoryEventType = "batch_evaluated"
	EventReportExported HistoryEventType = "report_exported"
	EventHistoryCleared HistoryEventType = "history_cleared"
)

// HistoryEntry 操作历史（批量评估摘要、数据加载、报告导出等）
type HistoryEntry struct {
	ID        string    `gorm:"type:varchar(36);primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	EventType HistoryEventType `gorm:"type:varchar(32);not null;index" json:"event_type"`
	Details   string           `gorm:"type:text" json:"details"`

	// 批量评估摘要（仅 batch_evaluated）
	RunID          string `gorm:"type:varchar(36);index" json:"run_id,omitempty"`
	Mode           string `gorm:"type:varchar(16)" json:"mode,omitempty"`
	Params         string `gorm:"type:varchar(500)" json:"params,omitempty"`
	ProcessedCount int    `json:"processed_count"`
	TotalCount     int    `json:"total_count"`
	SucceededCount int    `json:"succeeded_count"`
	RejectedCount  int    `json:"rejected_count"`
	ErrorCount     int    `json:"error_count"`
	CancelledCount int    `json:"cancelled_count"`
	DurationMs     int64  `json:"duration_ms"`
	Cancelled      bool   `json:"cancelled"`

	// 报告导出（仅 report_exported）
	ProjectName string `gorm:"type:varchar(200)" json:"project_name,omitempty"`
	TesterName  string `gorm:"type:varchar(200)" json:"tester_name,omitempty"`
	ReportPath  string `gorm:"type:varchar(500)" json:"report_path,omitempty"`
	// 导出时刻的分析快照
	AnalyticsJSON string `gorm:"type:longtext" json:"analytics_json,omitempty"`
}
