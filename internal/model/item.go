package model

import "strings"

// Item 一条待评估的问答
type Item struct {
	ID     string `json:"id"`
	Number string `json:"number"`

	QuestionText string `json:"question_text"`
	// 知识库参考答案
	ContextAnswer   string `json:"context_answer"`
	CandidateAnswer string `json:"candidate_answer"`

	EvaluationResult *EvaluationResult `json:"evaluation_result,omitempty"`
	IsEvaluating     bool              `json:"is_evaluating"`
}

// HasCandidate 候选答案非空白
func (it Item) HasCandidate() bool {
	return strings.TrimSpace(it.CandidateAnswer) != ""
}

// Outcome 一条评估结果在统计中的归类
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRejected  Outcome = "rejected"
	OutcomeErrored   Outcome = "errored"
	OutcomeCancelled Outcome = "cancelled"
)

// 机器可读的失败标签
const (
	ErrLabelEmptyCandidate = "empty_candidate"
	ErrLabelConfiguration  = "configuration"
	ErrLabelTransport      = "transport"
	ErrLabelHTTPStatus     = "http_status"
	ErrLabelParse          = "parse"
	ErrLabelValidation     = "validation"
	ErrLabelCancelled      = "cancelled"
)

type EvaluationResult struct {
	// nil 表示调用根本没能发起，无法给出判断
	IsAppropriate   *bool   `json:"is_appropriate"`
	Score           float64 `json:"score"`
	Justification   string  `json:"justification"`
	SuggestedAnswer string  `json:"suggested_answer,omitempty"`
	Error           string  `json:"error,omitempty"`
	DurationMs      int64   `json:"duration_ms"`
}

// Outcome 成功/不合格/出错/取消 四选一
func (r *EvaluationResult) Outcome() Outcome {
	switch {
	case r == nil:
		return ""
	case r.Error == ErrLabelCancelled:
		return OutcomeCancelled
	case r.Error != "":
		return OutcomeErrored
	case r.IsAppropriate != nil && *r.IsAppropriate:
		return OutcomeSucceeded
	default:
		return OutcomeRejected
	}
}

// Degraded 本次评估是否失败降级
func (r *EvaluationResult) Degraded() bool {
	return r != nil && r.Error != ""
}

func BoolPtr(v bool) *bool {
	return &v
}
