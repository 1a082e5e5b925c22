package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"answer-judge/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoryService 持久化操作历史，只保留最近 maxEntries 条
type HistoryService struct {
	db         *gorm.DB
	maxEntries int
}

func NewHistoryService(db *gorm.DB, maxEntries int) *HistoryService {
	return &HistoryService{db: db, maxEntries: maxEntries}
}

// ReportRun 实现 RunReporter：每个 run 一条摘要
func (s *HistoryService) ReportRun(ctx context.Context, summary RunSummary) error {
	entry := &model.HistoryEntry{
		EventType:      model.EventBatchEvaluated,
		Details:        BatchDetails(summary),
		RunID:          summary.RunID,
		Mode:           string(summary.Mode),
		Params:         summary.Params,
		ProcessedCount: summary.ProcessedCount,
		TotalCount:     summary.TotalCount,
		SucceededCount: summary.SucceededCount,
		RejectedCount:  summary.RejectedCount,
		ErrorCount:     summary.ErroredCount,
		CancelledCount: summary.CancelledCount,
		DurationMs:     summary.AccumulatedDurationMs,
		Cancelled:      summary.Cancelled,
	}
	return s.add(ctx, entry)
}

func (s *HistoryService) RecordDatasetLoad(ctx context.Context, source string, count int) error {
	if source == "" {
		source = "unknown source"
	}
	details := fmt.Sprintf("Loaded %d items from %s.", count, source)
	if count == 0 {
		details = fmt.Sprintf("%s contained no valid items.", source)
	}
	return s.add(ctx, &model.HistoryEntry{EventType: model.EventDatasetLoaded, Details: details})
}

func (s *HistoryService) RecordItemEvaluation(ctx context.Context, item model.Item) error {
	return s.add(ctx, &model.HistoryEntry{EventType: model.EventItemEvaluated, Details: ItemDetails(item)})
}

type ReportRecord struct {
	ProjectName string
	TesterName  string
	ReportPath  string
	TotalItems  int
	DurationMs  int64
	Analytics   *Analytics
}

func (s *HistoryService) RecordReport(ctx context.Context, rec ReportRecord) error {
	entry := &model.HistoryEntry{
		EventType: model.EventReportExported,
		Details: fmt.Sprintf("Project=%q, Tester=%q. %d items. Total judge duration: %s.",
			rec.ProjectName, rec.TesterName, rec.TotalItems, FormatDuration(rec.DurationMs)),
		ProjectName: rec.ProjectName,
		TesterName:  rec.TesterName,
		ReportPath:  rec.ReportPath,
		DurationMs:  rec.DurationMs,
	}
	if rec.Analytics != nil {
		b, err := json.Marshal(rec.Analytics)
		if err != nil {
			return fmt.Errorf("序列化分析快照失败: %w", err)
		}
		entry.AnalyticsJSON = string(b)
		entry.SucceededCount = rec.Analytics.Proportions.Appropriate
		entry.RejectedCount = rec.Analytics.Proportions.NotAppropriate
		entry.TotalCount = rec.Analytics.TotalItems
	}
	return s.add(ctx, entry)
}

func (s *HistoryService) List(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("查询历史失败: %w", err)
	}
	return entries, nil
}

func (s *HistoryService) Get(ctx context.Context, id string) (*model.HistoryEntry, error) {
	var entry model.HistoryEntry
	if err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *HistoryService) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.HistoryEntry{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("删除历史失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Clear 删除全部历史，并留下一条清空记录
func (s *HistoryService) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.HistoryEntry{}).Error
	if err != nil {
		return fmt.Errorf("清空历史失败: %w", err)
	}
	return s.add(ctx, &model.HistoryEntry{
		EventType: model.EventHistoryCleared,
		Details:   "All history entries were deleted by the user.",
	})
}

func (s *HistoryService) add(ctx context.Context, entry *model.HistoryEntry) error {
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("保存历史失败: %w", err)
	}
	return s.trim(ctx)
}

// trim 超出上限的旧记录直接删除
func (s *HistoryService) trim(ctx context.Context) error {
	if s.maxEntries <= 0 {
		return nil
	}
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&model.HistoryEntry{}).
		Order("created_at DESC").
		Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("查询历史失败: %w", err)
	}
	if len(ids) <= s.maxEntries {
		return nil
	}
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids[s.maxEntries:]).
		Delete(&model.HistoryEntry{}).Error; err != nil {
		return fmt.Errorf("裁剪历史失败: %w", err)
	}
	return nil
}

// BatchDetails run 摘要的可读描述
func BatchDetails(s RunSummary) string {
	if s.Cancelled {
		return fmt.Sprintf("Batch evaluation (mode: %s, params: %s) CANCELLED. Processed: %d/%d. Cancelled items: %d. Total judge duration: %s.",
			s.Mode, s.Params, s.ProcessedCount, s.TotalCount, s.CancelledCount, FormatDuration(s.AccumulatedDurationMs))
	}
	return fmt.Sprintf("Batch evaluation (mode: %s, params: %s) finished. Processed: %d/%d. Succeeded: %d, Not appropriate: %d, Errors: %d. Total judge duration: %s.",
		s.Mode, s.Params, s.ProcessedCount, s.TotalCount, s.SucceededCount, s.RejectedCount, s.ErroredCount, FormatDuration(s.AccumulatedDurationMs))
}

func ItemDetails(item model.Item) string {
	r := item.EvaluationResult
	if r == nil {
		return fmt.Sprintf("Item #%s has no evaluation result.", item.Number)
	}
	if r.Degraded() {
		return fmt.Sprintf("Evaluation failed for item #%s: %s. Duration: %dms", item.Number, r.Error, r.DurationMs)
	}
	verdict := "Not appropriate"
	if r.Outcome() == model.OutcomeSucceeded {
		verdict = "Appropriate"
	}
	return fmt.Sprintf("Evaluated item #%s. Score: %.2f. Verdict: %s. Duration: %dms", item.Number, r.Score, verdict, r.DurationMs)
}

func FormatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
