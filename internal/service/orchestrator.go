package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"answer-judge/internal/model"

	"github.com/google/uuid"
)

const cancelledJustification = "Evaluation was cancelled before this item was processed."

// ItemEvaluator 评估单条候选答案，约定永不失败
type ItemEvaluator interface {
	Evaluate(ctx context.Context, question, candidateAnswer, contextAnswer, rubric string) model.EvaluationResult
}

// RunReporter 每个 run 结束（完成或取消）时收到一条摘要
type RunReporter interface {
	ReportRun(ctx context.Context, summary RunSummary) error
}

type RunSummary struct {
	RunID                 string        `json:"run_id"`
	Mode                  SelectionMode `json:"mode"`
	Params                string        `json:"params"`
	ProcessedCount        int           `json:"processed_count"`
	TotalCount            int           `json:"total_count"`
	SucceededCount        int           `json:"succeeded_count"`
	RejectedCount         int           `json:"rejected_count"`
	ErroredCount          int           `json:"errored_count"`
	CancelledCount        int           `json:"cancelled_count"`
	AccumulatedDurationMs int64         `json:"accumulated_duration_ms"`
	Cancelled             bool          `json:"cancelled"`
	// 未进入选择、因候选答案为空被直接标记的条目数
	BlankCount int       `json:"blank_count"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type RunStatus struct {
	RunSummary
	State  string `json:"state"`
	Active bool   `json:"active"`
	// 下一条待处理条目在 selection 中的下标
	Cursor int `json:"cursor"`
}

const (
	RunStateRunning    = "running"
	RunStatePaused     = "paused"
	RunStateCancelling = "cancelling"
	RunStateCompleted  = "completed"
	RunStateCancelled  = "cancelled"
)

type OrchestratorOptions struct {
	// 相邻两次评审调用之间的固定间隔
	InterItemDelay time.Duration
	Reporter       RunReporter
	Logger         *slog.Logger
}

// Orchestrator 驱动批量评估：同一时刻至多一个 run，逐条顺序执行
type Orchestrator struct {
	store    *ItemStore
	eval     ItemEvaluator
	reporter RunReporter
	delay    time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	active  *runState
	last    *runState
	singles map[string]struct{}
}

func NewOrchestrator(store *ItemStore, eval ItemEvaluator, opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		eval:     eval,
		reporter: opts.Reporter,
		delay:    opts.InterItemDelay,
		log:      logger,
		singles:  map[string]struct{}{},
	}
}

func (o *Orchestrator) Store() *ItemStore { return o.store }

// runState 单个 run 的全部可变状态，只属于 Orchestrator
type runState struct {
	id        string
	mode      SelectionMode
	params    string
	selection []string
	rubric    string
	blank     int
	startedAt time.Time

	mu         sync.Mutex
	cursor     int
	paused     bool
	resume     chan struct{}
	cancelled  bool
	finished   bool
	finishedAt time.Time

	processed, succeeded, rejected, errored, cancelledN int
	durationMs                                          int64

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
}

// Start 解析选择并启动一个后台 run；已有 run 或单条评估进行中时返回 ErrBusy
func (o *Orchestrator) Start(sel Selection, rubric string) (RunStatus, error) {
	o.mu.Lock()
	if o.active != nil || len(o.singles) > 0 {
		o.mu.Unlock()
		return RunStatus{}, ErrBusy
	}

	if sel.Mode == "" {
		sel.Mode = SelectAll
	}
	items := o.store.All()
	ids, err := ResolveSelection(items, sel)
	if err != nil {
		o.mu.Unlock()
		return RunStatus{}, err
	}

	rs := &runState{
		id:        uuid.NewString(),
		mode:      sel.Mode,
		params:    sel.Params(),
		selection: ids,
		rubric:    rubric,
		startedAt: time.Now(),
		cancelCh:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	rs.blank = o.markBlankItems(items, ids)
	o.active = rs
	o.mu.Unlock()

	o.log.Info("批量评估开始", "run_id", rs.id, "mode", rs.mode, "params", rs.params, "total", len(ids))
	go o.run(rs)
	return rs.status(true), nil
}

// markBlankItems 选择之外、候选答案为空且尚无结果的条目直接记为无法评估
func (o *Orchestrator) markBlankItems(items []model.Item, selected []string) int {
	in := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		in[id] = struct{}{}
	}
	n := 0
	for _, it := range items {
		if _, ok := in[it.ID]; ok || it.HasCandidate() || it.EvaluationResult != nil {
			continue
		}
		result := EmptyCandidateResult()
		if _, err := o.store.Mutate(it.ID, func(cur *model.Item) error {
			cur.EvaluationResult = &result
			cur.IsEvaluating = false
			return nil
		}); err == nil {
			n++
		}
	}
	return n
}

func (o *Orchestrator) run(rs *runState) {
	defer close(rs.done)
	// run 的 ctx 不随取消而取消：进行中的评审调用允许跑完
	ctx := context.Background()

	for i, id := range rs.selection {
		if rs.isCancelled() {
			o.cancelRemaining(rs, i)
			break
		}
		rs.waitWhilePaused()
		if rs.isCancelled() {
			o.cancelRemaining(rs, i)
			break
		}

		item, err := o.store.Mutate(id, func(it *model.Item) error {
			it.IsEvaluating = true
			it.EvaluationResult = nil
			return nil
		})
		if err != nil {
			// 数据集已被清空
			o.log.Warn("条目已不存在，跳过", "run_id", rs.id, "item_id", id)
			rs.recordCancelled()
			rs.setCursor(i + 1)
			continue
		}

		result := o.eval.Evaluate(ctx, item.QuestionText, item.CandidateAnswer, item.ContextAnswer, rs.rubric)
		if _, err := o.store.Mutate(id, func(it *model.Item) error {
			it.EvaluationResult = &result
			it.IsEvaluating = false
			return nil
		}); err != nil {
			o.log.Warn("写回评估结果失败", "run_id", rs.id, "item_id", id, "err", err)
		}
		rs.record(result)
		rs.setCursor(i + 1)
		o.log.Debug("条目评估完成", "run_id", rs.id, "item_id", id, "number", item.Number,
			"score", result.Score, "outcome", result.Outcome(), "duration_ms", result.DurationMs)

		if judgeCalled(result) && i < len(rs.selection)-1 {
			rs.sleep(o.delay)
		}
	}

	o.finalize(rs)
	summary := rs.summary()

	if o.reporter != nil {
		if err := o.reporter.ReportRun(ctx, summary); err != nil {
			o.log.Error("写入 run 摘要失败", "run_id", rs.id, "err", err)
		}
	}
	o.log.Info("批量评估结束", "run_id", rs.id, "processed", summary.ProcessedCount, "total", summary.TotalCount,
		"succeeded", summary.SucceededCount, "rejected", summary.RejectedCount, "errored", summary.ErroredCount,
		"cancelled_items", summary.CancelledCount, "cancelled", summary.Cancelled, "duration_ms", summary.AccumulatedDurationMs)

	o.mu.Lock()
	o.active = nil
	o.last = rs
	o.mu.Unlock()
}

// judgeCalled 只有真正访问过评审服务的条目才需要间隔
func judgeCalled(r model.EvaluationResult) bool {
	return r.Error != model.ErrLabelEmptyCandidate && r.Error != model.ErrLabelConfiguration
}

func cancelledResult() model.EvaluationResult {
	return model.EvaluationResult{
		IsAppropriate: nil,
		Score:         0,
		Justification: cancelledJustification,
		Error:         model.ErrLabelCancelled,
	}
}

func (o *Orchestrator) cancelRemaining(rs *runState, from int) {
	for _, id := range rs.selection[from:] {
		_, _ = o.store.Mutate(id, func(it *model.Item) error {
			r := cancelledResult()
			it.EvaluationResult = &r
			it.IsEvaluating = false
			return nil
		})
		rs.recordCancelled()
	}
}

// finalize 兜底：selection 中仍处于评估中的条目一律标记为取消
func (o *Orchestrator) finalize(rs *runState) {
	for _, id := range rs.selection {
		_, _ = o.store.Mutate(id, func(it *model.Item) error {
			if it.IsEvaluating {
				r := cancelledResult()
				it.EvaluationResult = &r
				it.IsEvaluating = false
			}
			return nil
		})
	}
	rs.mu.Lock()
	rs.finished = true
	rs.finishedAt = time.Now()
	rs.paused = false
	rs.mu.Unlock()
}

func (o *Orchestrator) current() (*runState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return nil, ErrNoActiveRun
	}
	return o.active, nil
}

// Pause 只阻止下一条开始，不打断进行中的调用
func (o *Orchestrator) Pause() (RunStatus, error) {
	rs, err := o.current()
	if err != nil {
		return RunStatus{}, err
	}
	rs.pause()
	o.log.Info("批量评估暂停", "run_id", rs.id)
	return rs.status(true), nil
}

// Resume 从下一条未处理的条目继续
func (o *Orchestrator) Resume() (RunStatus, error) {
	rs, err := o.current()
	if err != nil {
		return RunStatus{}, err
	}
	rs.unpause()
	o.log.Info("批量评估继续", "run_id", rs.id)
	return rs.status(true), nil
}

// Cancel 单向取消标志，在检查点生效
func (o *Orchestrator) Cancel() (RunStatus, error) {
	rs, err := o.current()
	if err != nil {
		return RunStatus{}, err
	}
	rs.cancel()
	o.log.Info("批量评估取消", "run_id", rs.id)
	return rs.status(true), nil
}

// Status 当前 run 的快照；没有活动 run 时返回最近一次结束的 run
func (o *Orchestrator) Status() (RunStatus, error) {
	o.mu.Lock()
	rs, active := o.active, true
	if rs == nil {
		rs, active = o.last, false
	}
	o.mu.Unlock()
	if rs == nil {
		return RunStatus{}, ErrNoActiveRun
	}
	return rs.status(active), nil
}

// Wait 阻塞到当前 run 结束；没有活动 run 时立即返回
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	rs := o.active
	o.mu.Unlock()
	if rs == nil {
		return nil
	}
	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown 取消活动 run 并等待其结束
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if rs, err := o.current(); err == nil {
		rs.cancel()
	}
	return o.Wait(ctx)
}

// EvaluateItem 单条评估；与批量 run 互斥，同一条目也不能并发评估
func (o *Orchestrator) EvaluateItem(ctx context.Context, id, rubric string) (model.Item, error) {
	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return model.Item{}, ErrBusy
	}
	if _, busy := o.singles[id]; busy {
		o.mu.Unlock()
		return model.Item{}, ErrItemBusy
	}
	item, err := o.store.Mutate(id, func(it *model.Item) error {
		it.IsEvaluating = true
		it.EvaluationResult = nil
		return nil
	})
	if err != nil {
		o.mu.Unlock()
		return model.Item{}, err
	}
	o.singles[id] = struct{}{}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.singles, id)
		o.mu.Unlock()
	}()

	result := o.eval.Evaluate(ctx, item.QuestionText, item.CandidateAnswer, item.ContextAnswer, rubric)
	updated, err := o.store.Mutate(id, func(it *model.Item) error {
		it.EvaluationResult = &result
		it.IsEvaluating = false
		return nil
	})
	if err != nil {
		return model.Item{}, err
	}
	o.log.Info("单条评估完成", "item_id", id, "number", updated.Number, "score", result.Score,
		"outcome", result.Outcome(), "duration_ms", result.DurationMs)
	return updated, nil
}

// LoadItems 替换数据集；评估进行中时拒绝
func (o *Orchestrator) LoadItems(items []model.Item) ([]model.Item, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil || len(o.singles) > 0 {
		return nil, ErrBusy
	}
	return o.store.Replace(items)
}

// AdoptSuggestion 采用建议答案；批量 run 期间整个 store 独占
func (o *Orchestrator) AdoptSuggestion(id string) (model.Item, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return model.Item{}, ErrBusy
	}
	if _, busy := o.singles[id]; busy {
		return model.Item{}, ErrItemBusy
	}
	return o.store.AdoptSuggestion(id)
}

// ClearData 清空数据集；活动 run 先被取消，返回清空前的条目数
func (o *Orchestrator) ClearData() int {
	if rs, err := o.current(); err == nil {
		rs.cancel()
	}
	n := o.store.Len()
	o.store.Clear()
	return n
}

func (rs *runState) isCancelled() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.cancelled
}

func (rs *runState) cancel() {
	rs.cancelOnce.Do(func() {
		rs.mu.Lock()
		rs.cancelled = true
		rs.mu.Unlock()
		close(rs.cancelCh)
	})
}

func (rs *runState) pause() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.paused || rs.finished {
		return
	}
	rs.paused = true
	rs.resume = make(chan struct{})
}

func (rs *runState) unpause() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.paused {
		return
	}
	rs.paused = false
	close(rs.resume)
}

// waitWhilePaused 阻塞在 resume 通道上，不轮询；取消会唤醒
func (rs *runState) waitWhilePaused() {
	for {
		rs.mu.Lock()
		if !rs.paused {
			rs.mu.Unlock()
			return
		}
		resume := rs.resume
		rs.mu.Unlock()

		select {
		case <-resume:
		case <-rs.cancelCh:
			return
		}
	}
}

func (rs *runState) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-rs.cancelCh:
	}
}

func (rs *runState) setCursor(i int) {
	rs.mu.Lock()
	rs.cursor = i
	rs.mu.Unlock()
}

func (rs *runState) record(r model.EvaluationResult) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.processed++
	rs.durationMs += r.DurationMs
	switch r.Outcome() {
	case model.OutcomeSucceeded:
		rs.succeeded++
	case model.OutcomeRejected:
		rs.rejected++
	default:
		rs.errored++
	}
}

func (rs *runState) recordCancelled() {
	rs.mu.Lock()
	rs.cancelledN++
	rs.mu.Unlock()
}

func (rs *runState) summary() RunSummary {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.summaryLocked()
}

func (rs *runState) summaryLocked() RunSummary {
	return RunSummary{
		RunID:                 rs.id,
		Mode:                  rs.mode,
		Params:                rs.params,
		ProcessedCount:        rs.processed,
		TotalCount:            len(rs.selection),
		SucceededCount:        rs.succeeded,
		RejectedCount:         rs.rejected,
		ErroredCount:          rs.errored,
		CancelledCount:        rs.cancelledN,
		AccumulatedDurationMs: rs.durationMs,
		Cancelled:             rs.cancelled,
		BlankCount:            rs.blank,
		StartedAt:             rs.startedAt,
		FinishedAt:            rs.finishedAt,
	}
}

func (rs *runState) status(active bool) RunStatus {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	state := RunStateRunning
	switch {
	case rs.finished && rs.cancelled:
		state = RunStateCancelled
	case rs.finished:
		state = RunStateCompleted
	case rs.cancelled:
		state = RunStateCancelling
	case rs.paused:
		state = RunStatePaused
	}
	return RunStatus{
		RunSummary: rs.summaryLocked(),
		State:      state,
		Active:     active && !rs.finished,
		Cursor:     rs.cursor,
	}
}

// IsBusy 供 handler 判断状态码
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrItemBusy)
}
