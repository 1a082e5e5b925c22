package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"answer-judge/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReportRecorder struct {
	records []ReportRecord
}

func (r *recordingReportRecorder) RecordReport(ctx context.Context, rec ReportRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func TestRenderReportMarkdown(t *testing.T) {
	items := []model.Item{
		resultItem("1", &model.EvaluationResult{IsAppropriate: model.BoolPtr(true), Score: 0.9, Justification: "good | solid", DurationMs: 1200}),
		resultItem("2", nil),
	}
	items[0].QuestionText = "line one\nline two"

	md := RenderReportMarkdown(ReportRequest{ProjectName: "Support Bot", TesterName: "QA"}, items, ComputeAnalytics(items),
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	assert.Contains(t, md, "- project: Support Bot")
	assert.Contains(t, md, "- tester: QA")
	assert.Contains(t, md, "2024-05-01T10:00:00Z")
	assert.Contains(t, md, "| Total items | 2 |")
	assert.Contains(t, md, "| 0.8-1.0 | 1 |")
	assert.Contains(t, md, `good \| solid`)
	assert.Contains(t, md, "line one<br>line two")
	assert.Contains(t, md, "| 2 | question | cand | - | not evaluated |")
}

func TestReportService_Export(t *testing.T) {
	store := NewItemStore()
	rec := &recordingReportRecorder{}
	dir := t.TempDir()
	svc := NewReportService(store, rec, dir)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	_, err := svc.Export(context.Background(), ReportRequest{ProjectName: "p", TesterName: "t"})
	assert.ErrorIs(t, err, ErrNothingToReport)

	_, err = store.Replace([]model.Item{
		resultItem("1", &model.EvaluationResult{IsAppropriate: model.BoolPtr(true), Score: 0.9, DurationMs: 300}),
	})
	require.NoError(t, err)

	res, err := svc.Export(context.Background(), ReportRequest{ProjectName: "Support Bot / v2", TesterName: "QA"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "evaluation_report_Support_Bot_v2_20240501_100000.md"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Answer Evaluation Report"))
	assert.Equal(t, res.Markdown, string(data))

	require.Len(t, rec.records, 1)
	assert.Equal(t, "Support Bot / v2", rec.records[0].ProjectName)
	assert.Equal(t, res.Path, rec.records[0].ReportPath)
	assert.Equal(t, int64(300), rec.records[0].DurationMs)
	require.NotNil(t, rec.records[0].Analytics)
	assert.Equal(t, 1, rec.records[0].Analytics.Proportions.Appropriate)
}
