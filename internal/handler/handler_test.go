package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"answer-judge/internal/model"
	"answer-judge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubEvaluator struct {
	result model.EvaluationResult
}

func (s stubEvaluator) Evaluate(ctx context.Context, question, candidateAnswer, contextAnswer, rubric string) model.EvaluationResult {
	return s.result
}

type memoryHistory struct {
	mu      sync.Mutex
	entries []model.HistoryEntry
}

func (m *memoryHistory) RecordDatasetLoad(ctx context.Context, source string, count int) error {
	return m.add(model.EventDatasetLoaded, source)
}

func (m *memoryHistory) RecordItemEvaluation(ctx context.Context, item model.Item) error {
	return m.add(model.EventItemEvaluated, item.ID)
}

func (m *memoryHistory) add(t model.HistoryEventType, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := model.HistoryEntry{ID: details + string(t), EventType: t, Details: details, CreatedAt: time.Now()}
	m.entries = append([]model.HistoryEntry{e}, m.entries...)
	return nil
}

func (m *memoryHistory) List(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 && limit < len(m.entries) {
		return append([]model.HistoryEntry(nil), m.entries[:limit]...), nil
	}
	return append([]model.HistoryEntry(nil), m.entries...), nil
}

func (m *memoryHistory) Get(ctx context.Context, id string) (*model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryHistory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memoryHistory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	return m.add(model.EventHistoryCleared, "cleared")
}

type testAPI struct {
	engine  *gin.Engine
	orch    *service.Orchestrator
	history *memoryHistory
}

func newTestAPI(t *testing.T, result model.EvaluationResult) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := service.NewItemStore()
	orch := service.NewOrchestrator(store, stubEvaluator{result: result}, service.OrchestratorOptions{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	history := &memoryHistory{}

	items := NewItemHandler(orch, history, "default rubric")
	runs := NewRunHandler(orch, "default rubric")
	reports := NewReportHandler(store, service.NewReportService(store, nil, t.TempDir()))
	hist := NewHistoryHandler(history)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/items", items.LoadItems)
	api.GET("/items", items.ListItems)
	api.DELETE("/items", items.ClearItems)
	api.POST("/items/:id/evaluate", items.EvaluateItem)
	api.POST("/items/:id/adopt", items.AdoptSuggestion)
	api.POST("/runs", runs.StartRun)
	api.GET("/runs/current", runs.GetStatus)
	api.POST("/runs/current/pause", runs.Pause)
	api.POST("/runs/current/cancel", runs.Cancel)
	api.GET("/analytics", reports.GetAnalytics)
	api.POST("/reports", reports.ExportReport)
	api.GET("/history", hist.ListHistory)
	api.DELETE("/history/:id", hist.DeleteHistory)
	api.DELETE("/history", hist.ClearHistory)

	return &testAPI{engine: r, orch: orch, history: history}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var out map[string]json.RawMessage
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (a *testAPI) load(t *testing.T, numbers ...string) {
	t.Helper()
	items := make([]gin.H, 0, len(numbers))
	for _, n := range numbers {
		items = append(items, gin.H{
			"id": "id-" + n, "number": n,
			"question_text": "q" + n, "context_answer": "ref", "candidate_answer": "ans" + n,
		})
	}
	w, _ := a.do(t, http.MethodPost, "/api/items", gin.H{"source": "faq.xlsx", "items": items})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

var okResult = model.EvaluationResult{IsAppropriate: model.BoolPtr(true), Score: 0.9, Justification: "ok", SuggestedAnswer: "better", DurationMs: 3}

func TestLoadItems(t *testing.T) {
	api := newTestAPI(t, okResult)

	w, out := api.do(t, http.MethodPost, "/api/items", gin.H{"items": []gin.H{
		{"number": "1", "question_text": "q1", "candidate_answer": "a1"},
		{"number": "2", "question_text": "  "},
	}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "1", string(out["total"]))
	assert.JSONEq(t, "1", string(out["skipped"]))

	entries, _ := api.history.List(context.Background(), 0)
	require.Len(t, entries, 1)
	assert.Equal(t, model.EventDatasetLoaded, entries[0].EventType)

	w, _ = api.do(t, http.MethodPost, "/api/items", gin.H{"items": []gin.H{
		{"id": "x", "question_text": "q"}, {"id": "x", "question_text": "q"},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/items", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvaluateAndAdopt(t *testing.T) {
	api := newTestAPI(t, okResult)
	api.load(t, "1")

	w, _ := api.do(t, http.MethodPost, "/api/items/id-1/adopt", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out := api.do(t, http.MethodPost, "/api/items/id-1/evaluate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var item model.Item
	require.NoError(t, json.Unmarshal(out["item"], &item))
	require.NotNil(t, item.EvaluationResult)
	assert.Equal(t, 0.9, item.EvaluationResult.Score)

	w, out = api.do(t, http.MethodPost, "/api/items/id-1/adopt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var adopted model.Item
	require.NoError(t, json.Unmarshal(out["item"], &adopted))
	assert.Equal(t, "better", adopted.CandidateAnswer)
	assert.Nil(t, adopted.EvaluationResult)
	assert.NotContains(t, string(out["item"]), "evaluation_result")

	w, _ = api.do(t, http.MethodPost, "/api/items/missing/evaluate", gin.H{"rubric": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvaluateNotConfigured(t *testing.T) {
	api := newTestAPI(t, model.EvaluationResult{Justification: "not configured", Error: model.ErrLabelConfiguration})
	api.load(t, "1")

	w, out := api.do(t, http.MethodPost, "/api/items/id-1/evaluate", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, string(out["error"]), "not configured")
}

func TestRunLifecycle(t *testing.T) {
	api := newTestAPI(t, okResult)
	api.load(t, "1", "2", "3")

	w, _ := api.do(t, http.MethodGet, "/api/runs/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = api.do(t, http.MethodPost, "/api/runs/current/pause", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/runs", gin.H{"mode": "range", "start": "3", "end": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out := api.do(t, http.MethodPost, "/api/runs", gin.H{"mode": "specific", "numbers": "1,3"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var st service.RunStatus
	require.NoError(t, json.Unmarshal(out["run"], &st))
	assert.Equal(t, 2, st.TotalCount)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, api.orch.Wait(ctx))

	w, out = api.do(t, http.MethodGet, "/api/runs/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(out["run"], &st))
	assert.Equal(t, service.RunStateCompleted, st.State)
	assert.Equal(t, 2, st.SucceededCount)

	w, out = api.do(t, http.MethodGet, "/api/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var a service.Analytics
	require.NoError(t, json.Unmarshal(out["analytics"], &a))
	assert.Equal(t, 3, a.TotalItems)
	assert.Equal(t, 2, a.EvaluatedItemCount)
	assert.Equal(t, 1, a.Unprocessed.NotEvaluated)
}

func TestReportsAndHistory(t *testing.T) {
	api := newTestAPI(t, okResult)

	w, _ := api.do(t, http.MethodPost, "/api/reports", gin.H{"project_name": "p", "tester_name": "t"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = api.do(t, http.MethodPost, "/api/reports", gin.H{"project_name": "p"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	api.load(t, "1")
	w, out := api.do(t, http.MethodPost, "/api/reports", gin.H{"project_name": "p", "tester_name": "t"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(out["report"]), "evaluation_report_p_")

	w, out = api.do(t, http.MethodGet, "/api/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []model.HistoryEntry
	require.NoError(t, json.Unmarshal(out["history"], &entries))
	require.Len(t, entries, 1)

	w, _ = api.do(t, http.MethodDelete, "/api/history/"+entries[0].ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodDelete, "/api/history/"+entries[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = api.do(t, http.MethodDelete, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries, _ = api.history.List(context.Background(), 0)
	require.Len(t, entries, 1)
	assert.Equal(t, model.EventHistoryCleared, entries[0].EventType)

	w, out = api.do(t, http.MethodDelete, "/api/items", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "1", string(out["cleared"]))
}
