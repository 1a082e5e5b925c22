package service

import (
	"math"

	"answer-judge/internal/model"
)

const (
	InterpretationNone        = "No items have been evaluated yet."
	InterpretationVeryGood    = "Very good"
	InterpretationFairlyGood  = "Fairly good"
	InterpretationNeedsImprov = "Needs significant improvement"
)

type Proportions struct {
	Appropriate    int `json:"appropriate"`
	NotAppropriate int `json:"not_appropriate"`
	// 真正的评审失败，不含候选答案为空
	ActualErrors int `json:"actual_errors"`
	Cancelled    int `json:"cancelled"`
}

type ScoreBin struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

type UnprocessedSummary struct {
	NotEvaluated    int `json:"not_evaluated"`
	EmptyCandidates int `json:"empty_candidates"`
}

type TextLengths struct {
	Question  int `json:"question"`
	Context   int `json:"context"`
	Candidate int `json:"candidate"`
}

// Analytics 当前数据集的统计快照
type Analytics struct {
	TotalItems         int                `json:"total_items"`
	EvaluatedItemCount int                `json:"evaluated_item_count"`
	AverageScore       float64            `json:"average_score"`
	Interpretation     string             `json:"interpretation"`
	Proportions        Proportions        `json:"proportions"`
	AppropriateRate    float64            `json:"appropriate_rate"`
	CI95Low            float64            `json:"ci95_low"`
	CI95High           float64            `json:"ci95_high"`
	Distribution       []ScoreBin         `json:"distribution"`
	Unprocessed        UnprocessedSummary `json:"unprocessed"`
	AverageTextLengths TextLengths        `json:"average_text_lengths"`
	TotalDurationMs    int64              `json:"total_duration_ms"`
}

// ComputeAnalytics 有结果即视为已评估（包括失败结果，其分数按 0 计）
func ComputeAnalytics(items []model.Item) *Analytics {
	a := &Analytics{
		TotalItems:     len(items),
		Interpretation: InterpretationNone,
		Distribution: []ScoreBin{
			{Label: "0-0.4", Min: 0, Max: 0.4},
			{Label: "0.5-0.7", Min: 0.5, Max: 0.7},
			{Label: "0.8-1.0", Min: 0.8, Max: 1.0},
		},
	}

	var questionLens, contextLens, candidateLens []int
	var scores []float64
	for _, it := range items {
		questionLens = append(questionLens, len([]rune(it.QuestionText)))
		contextLens = append(contextLens, len([]rune(it.ContextAnswer)))
		if it.HasCandidate() {
			candidateLens = append(candidateLens, len([]rune(it.CandidateAnswer)))
		}

		r := it.EvaluationResult
		if r == nil {
			a.Unprocessed.NotEvaluated++
			continue
		}
		a.EvaluatedItemCount++
		a.TotalDurationMs += r.DurationMs
		scores = append(scores, r.Score)

		if r.Error == model.ErrLabelEmptyCandidate {
			a.Unprocessed.EmptyCandidates++
		}
		switch r.Outcome() {
		case model.OutcomeSucceeded:
			a.Proportions.Appropriate++
		case model.OutcomeRejected:
			a.Proportions.NotAppropriate++
		case model.OutcomeCancelled:
			a.Proportions.Cancelled++
		case model.OutcomeErrored:
			if r.Error != model.ErrLabelEmptyCandidate {
				a.Proportions.ActualErrors++
			}
		}
	}

	a.AverageTextLengths = TextLengths{
		Question:  averageInt(questionLens),
		Context:   averageInt(contextLens),
		Candidate: averageInt(candidateLens),
	}

	if a.EvaluatedItemCount == 0 {
		return a
	}

	for _, s := range scores {
		a.AverageScore += s
		switch {
		case s <= 0.4:
			a.Distribution[0].Count++
		case s <= 0.7:
			a.Distribution[1].Count++
		default:
			a.Distribution[2].Count++
		}
	}
	a.AverageScore /= float64(len(scores))
	a.Interpretation = Interpret(a.AverageScore)

	// 合格率和置信区间只统计评审真正给出判定的结果，失败、取消和空候选答案不计入
	judged := a.Proportions.Appropriate + a.Proportions.NotAppropriate
	if judged > 0 {
		a.AppropriateRate = float64(a.Proportions.Appropriate) / float64(judged)
		a.CI95Low, a.CI95High = wilsonCI(a.Proportions.Appropriate, judged, 1.96)
	}
	return a
}

func Interpret(avg float64) string {
	switch {
	case avg >= AppropriateThreshold:
		return InterpretationVeryGood
	case avg >= 0.5:
		return InterpretationFairlyGood
	default:
		return InterpretationNeedsImprov
	}
}

// Wilson score interval for proportion
func wilsonCI(k int, n int, z float64) (float64, float64) {
	if n == 0 {
		return 0, 0
	}
	p := float64(k) / float64(n)
	zz := z * z
	den := 1 + zz/float64(n)
	center := (p + zz/(2*float64(n))) / den
	half := (z / den) * math.Sqrt((p*(1-p)+zz/(4*float64(n)))/float64(n))
	low := math.Max(0, center-half)
	high := math.Min(1, center+half)
	return low, high
}

func averageInt(a []int) int {
	if len(a) == 0 {
		return 0
	}
	s := 0
	for _, v := range a {
		s += v
	}
	return int(math.Round(float64(s) / float64(len(a))))
}
