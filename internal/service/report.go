package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"answer-judge/internal/model"
)

var ErrNothingToReport = errors.New("no items to report")

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ReportRecorder 报告导出后写一条历史
type ReportRecorder interface {
	RecordReport(ctx context.Context, rec ReportRecord) error
}

type ReportRequest struct {
	ProjectName string `json:"project_name" binding:"required"`
	TesterName  string `json:"tester_name" binding:"required"`
}

type ReportResult struct {
	Path      string     `json:"path"`
	Markdown  string     `json:"markdown"`
	Analytics *Analytics `json:"analytics"`
}

type ReportService struct {
	store    *ItemStore
	recorder ReportRecorder
	outDir   string
	now      func() time.Time
}

func NewReportService(store *ItemStore, recorder ReportRecorder, outDir string) *ReportService {
	if outDir == "" {
		outDir = "outputs"
	}
	return &ReportService{store: store, recorder: recorder, outDir: outDir, now: time.Now}
}

// Export 渲染当前数据集的报告并落盘；历史写入失败只记日志
func (s *ReportService) Export(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	items := s.store.All()
	if len(items) == 0 {
		return nil, ErrNothingToReport
	}
	analytics := ComputeAnalytics(items)
	generatedAt := s.now()
	md := RenderReportMarkdown(req, items, analytics, generatedAt)

	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	name := fmt.Sprintf("evaluation_report_%s_%s.md", safeName(req.ProjectName), generatedAt.Format("20060102_150405"))
	path := filepath.Join(s.outDir, name)
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return nil, fmt.Errorf("写入报告失败: %w", err)
	}

	if s.recorder != nil {
		rec := ReportRecord{
			ProjectName: req.ProjectName,
			TesterName:  req.TesterName,
			ReportPath:  path,
			TotalItems:  len(items),
			DurationMs:  analytics.TotalDurationMs,
			Analytics:   analytics,
		}
		if err := s.recorder.RecordReport(ctx, rec); err != nil {
			slog.Error("记录报告导出失败", "path", path, "err", err)
		}
	}
	slog.Info("报告已导出", "path", path, "items", len(items))
	return &ReportResult{Path: path, Markdown: md, Analytics: analytics}, nil
}

func RenderReportMarkdown(req ReportRequest, items []model.Item, a *Analytics, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("# Answer Evaluation Report\n\n")
	b.WriteString(fmt.Sprintf("- project: %s\n", req.ProjectName))
	b.WriteString(fmt.Sprintf("- tester: %s\n", req.TesterName))
	b.WriteString(fmt.Sprintf("- generated_at: %s\n", generatedAt.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("- total_judge_duration: %s\n\n", FormatDuration(a.TotalDurationMs)))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | ---: |\n")
	b.WriteString(fmt.Sprintf("| Total items | %d |\n", a.TotalItems))
	b.WriteString(fmt.Sprintf("| Evaluated | %d |\n", a.EvaluatedItemCount))
	b.WriteString(fmt.Sprintf("| Average score | %.2f |\n", a.AverageScore))
	b.WriteString(fmt.Sprintf("| Appropriate | %d |\n", a.Proportions.Appropriate))
	b.WriteString(fmt.Sprintf("| Not appropriate | %d |\n", a.Proportions.NotAppropriate))
	b.WriteString(fmt.Sprintf("| Judge errors | %d |\n", a.Proportions.ActualErrors))
	b.WriteString(fmt.Sprintf("| Cancelled | %d |\n", a.Proportions.Cancelled))
	b.WriteString(fmt.Sprintf("| Not evaluated | %d |\n", a.Unprocessed.NotEvaluated))
	b.WriteString(fmt.Sprintf("| Empty candidate | %d |\n", a.Unprocessed.EmptyCandidates))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("- interpretation: %s\n", a.Interpretation))
	if a.Proportions.Appropriate+a.Proportions.NotAppropriate > 0 {
		b.WriteString(fmt.Sprintf("- appropriate_rate: %.3f (CI95 [%.3f, %.3f])\n", a.AppropriateRate, a.CI95Low, a.CI95High))
	}
	b.WriteString("\n")

	b.WriteString("## Score distribution\n\n")
	b.WriteString("| Range | Count |\n")
	b.WriteString("| --- | ---: |\n")
	for _, bin := range a.Distribution {
		b.WriteString(fmt.Sprintf("| %s | %d |\n", bin.Label, bin.Count))
	}
	b.WriteString("\n")

	b.WriteString("## Items\n\n")
	b.WriteString("| # | Question | Candidate | Score | Verdict | Justification | Suggested answer |\n")
	b.WriteString("| --- | --- | --- | ---: | --- | --- | --- |\n")
	for _, it := range items {
		score, verdict, justification, suggestion := "-", "not evaluated", "", ""
		if r := it.EvaluationResult; r != nil {
			score = fmt.Sprintf("%.2f", r.Score)
			verdict = string(r.Outcome())
			justification = r.Justification
			suggestion = r.SuggestedAnswer
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
			cell(it.Number), cell(it.QuestionText), cell(it.CandidateAnswer),
			score, verdict, cell(justification), cell(suggestion)))
	}
	return b.String()
}

// cell 表格单元格不能包含换行和竖线
func cell(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	return strings.ReplaceAll(s, "\n", "<br>")
}

func safeName(s string) string {
	s = unsafeNameRe.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "project"
	}
	return s
}
