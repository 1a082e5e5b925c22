package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"answer-judge/internal/model"
)

// AppropriateThreshold 分数达到该值即判定为合格；评审模型自带的布尔判断一律忽略
const AppropriateThreshold = 0.8

const noCandidateJustification = "No candidate answer was supplied for this item, so it could not be evaluated."

var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?\\s*```$")

type Evaluator struct {
	judge Judge
	now   func() time.Time
}

func NewEvaluator(judge Judge) *Evaluator {
	return &Evaluator{judge: judge, now: time.Now}
}

// Evaluate 评估一条候选答案。不会返回错误：所有失败都折叠成降级结果
func (e *Evaluator) Evaluate(ctx context.Context, question, candidateAnswer, contextAnswer, rubric string) model.EvaluationResult {
	if strings.TrimSpace(candidateAnswer) == "" {
		return EmptyCandidateResult()
	}
	if e.judge == nil {
		return configurationFailure(ErrJudgeNotConfigured)
	}

	prompt := BuildJudgePrompt(question, candidateAnswer, contextAnswer, rubric)
	inputs := map[string]interface{}{
		"question_text":    question,
		"candidate_answer": candidateAnswer,
		"context_answer":   contextAnswer,
		"rubric":           rubric,
	}

	start := e.now()
	raw, err := e.judge.Judge(ctx, prompt, inputs)
	elapsed := e.now().Sub(start).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	if err != nil {
		var je *JudgeError
		if errors.As(err, &je) && je.Kind == model.ErrLabelConfiguration {
			return configurationFailure(err)
		}
		label := model.ErrLabelTransport
		if je != nil {
			label = je.Kind
		}
		slog.Warn("评审调用失败", "label", label, "err", err, "duration_ms", elapsed)
		return failure(label, fmt.Sprintf("Failed to get an evaluation from the judge service: %v", err), elapsed)
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		var ve *VerdictError
		label := model.ErrLabelParse
		if errors.As(err, &ve) {
			label = ve.Label
		}
		slog.Warn("评审响应不合法", "label", label, "err", err)
		return failure(label, fmt.Sprintf("The judge response was not in the expected format: %v", err), elapsed)
	}

	return model.EvaluationResult{
		IsAppropriate:   model.BoolPtr(verdict.Score >= AppropriateThreshold),
		Score:           verdict.Score,
		Justification:   verdict.Justification,
		SuggestedAnswer: verdict.SuggestedAnswer,
		DurationMs:      elapsed,
	}
}

// EmptyCandidateResult 候选答案为空时的固定结果，不访问评审服务
func EmptyCandidateResult() model.EvaluationResult {
	return model.EvaluationResult{
		IsAppropriate: model.BoolPtr(false),
		Score:         0,
		Justification: noCandidateJustification,
		Error:         model.ErrLabelEmptyCandidate,
		DurationMs:    0,
	}
}

func failure(label, justification string, durationMs int64) model.EvaluationResult {
	return model.EvaluationResult{
		IsAppropriate: model.BoolPtr(false),
		Score:         0,
		Justification: justification,
		Error:         label,
		DurationMs:    durationMs,
	}
}

// configurationFailure 调用无法发起：判断未知
func configurationFailure(err error) model.EvaluationResult {
	return model.EvaluationResult{
		IsAppropriate: nil,
		Score:         0,
		Justification: fmt.Sprintf("The judge service is not available on the server: %v", err),
		Error:         model.ErrLabelConfiguration,
		DurationMs:    0,
	}
}

// Verdict 校验通过的评审结论
type Verdict struct {
	Score           float64
	Justification   string
	SuggestedAnswer string
}

// VerdictError 评审输出无法解析或不满足约束
type VerdictError struct {
	Label string
	Err   error
}

func (e *VerdictError) Error() string { return e.Err.Error() }
func (e *VerdictError) Unwrap() error { return e.Err }

// StripFence 去掉 ```json ... ``` 包裹
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ParseVerdict 先解析成无类型 map，再按严格规则校验；越界分数直接拒绝，不做截断
func ParseVerdict(raw string) (*Verdict, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(StripFence(raw)), &data); err != nil {
		return nil, &VerdictError{Label: model.ErrLabelParse, Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	score, ok := data["score"].(float64)
	if !ok {
		return nil, &VerdictError{Label: model.ErrLabelValidation, Err: fmt.Errorf("score must be a number, got %T", data["score"])}
	}
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 1 {
		return nil, &VerdictError{Label: model.ErrLabelValidation, Err: fmt.Errorf("score %v outside [0,1]", score)}
	}

	justification, ok := data["justification"].(string)
	if !ok {
		return nil, &VerdictError{Label: model.ErrLabelValidation, Err: fmt.Errorf("justification must be a string, got %T", data["justification"])}
	}

	var suggested string
	if v, present := data["suggestedAnswer"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, &VerdictError{Label: model.ErrLabelValidation, Err: fmt.Errorf("suggestedAnswer must be a string, got %T", v)}
		}
		suggested = strings.TrimSpace(s)
	}

	return &Verdict{
		Score:           score,
		Justification:   justification,
		SuggestedAnswer: suggested,
	}, nil
}
