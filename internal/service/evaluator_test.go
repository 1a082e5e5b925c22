package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"answer-judge/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJudge struct {
	resp       string
	err        error
	calls      int
	lastPrompt string
	lastInputs map[string]interface{}
}

func (f *fakeJudge) Judge(ctx context.Context, prompt string, inputs map[string]interface{}) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	f.lastInputs = inputs
	return f.resp, f.err
}

// steppedClock 每次调用前进 step
func steppedClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func newTestEvaluator(j Judge) *Evaluator {
	e := NewEvaluator(j)
	e.now = steppedClock(250 * time.Millisecond)
	return e
}

func TestEvaluate_FencedVerdict(t *testing.T) {
	j := &fakeJudge{resp: "```json\n{\"score\": 0.85, \"justification\": \"matches the reference\", \"suggestedAnswer\": \"  Better answer  \"}\n```"}
	e := newTestEvaluator(j)

	r := e.Evaluate(context.Background(), "What is the refund window?", "30 days", "Refunds within 30 days.", "be strict")

	require.Equal(t, 1, j.calls)
	require.NotNil(t, r.IsAppropriate)
	assert.True(t, *r.IsAppropriate)
	assert.Equal(t, 0.85, r.Score)
	assert.Equal(t, "matches the reference", r.Justification)
	assert.Equal(t, "Better answer", r.SuggestedAnswer)
	assert.Empty(t, r.Error)
	assert.Equal(t, int64(250), r.DurationMs)

	assert.Contains(t, j.lastPrompt, "What is the refund window?")
	assert.Contains(t, j.lastPrompt, "be strict")
	assert.Equal(t, "30 days", j.lastInputs["candidate_answer"])
}

func TestEvaluate_ThresholdIgnoresJudgeBoolean(t *testing.T) {
	cases := []struct {
		resp string
		want bool
	}{
		{`{"score": 0.8, "justification": "ok", "isAppropriate": false}`, true},
		{`{"score": 0.79, "justification": "close", "isAppropriate": true}`, false},
		{`{"score": 0, "justification": "wrong"}`, false},
		{`{"score": 1, "justification": "perfect", "suggestedAnswer": null}`, true},
	}
	for _, tc := range cases {
		r := newTestEvaluator(&fakeJudge{resp: tc.resp}).Evaluate(context.Background(), "q", "a", "c", "")
		require.NotNil(t, r.IsAppropriate, tc.resp)
		assert.Equal(t, tc.want, *r.IsAppropriate, tc.resp)
		assert.Empty(t, r.Error, tc.resp)
	}
}

func TestEvaluate_InvalidVerdicts(t *testing.T) {
	cases := []struct {
		name  string
		resp  string
		label string
	}{
		{"non-numeric score", `{"score": "high", "justification": "x"}`, model.ErrLabelValidation},
		{"score above range", `{"score": 1.2, "justification": "x"}`, model.ErrLabelValidation},
		{"negative score", `{"score": -0.1, "justification": "x"}`, model.ErrLabelValidation},
		{"missing justification", `{"score": 0.5}`, model.ErrLabelValidation},
		{"numeric suggestion", `{"score": 0.5, "justification": "x", "suggestedAnswer": 3}`, model.ErrLabelValidation},
		{"not json", `the answer looks fine`, model.ErrLabelParse},
		{"empty", ``, model.ErrLabelParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestEvaluator(&fakeJudge{resp: tc.resp}).Evaluate(context.Background(), "q", "a", "c", "")
			require.NotNil(t, r.IsAppropriate)
			assert.False(t, *r.IsAppropriate)
			assert.Equal(t, 0.0, r.Score)
			assert.Equal(t, tc.label, r.Error)
			assert.NotEmpty(t, r.Justification)
			assert.Equal(t, int64(250), r.DurationMs)
		})
	}
}

func TestEvaluate_BlankCandidateSkipsJudge(t *testing.T) {
	j := &fakeJudge{resp: `{"score": 1, "justification": "x"}`}
	r := newTestEvaluator(j).Evaluate(context.Background(), "q", "   \n", "c", "")

	assert.Equal(t, 0, j.calls)
	require.NotNil(t, r.IsAppropriate)
	assert.False(t, *r.IsAppropriate)
	assert.Equal(t, model.ErrLabelEmptyCandidate, r.Error)
	assert.Equal(t, int64(0), r.DurationMs)
}

func TestEvaluate_NotConfigured(t *testing.T) {
	r := NewEvaluator(nil).Evaluate(context.Background(), "q", "a", "c", "")
	assert.Nil(t, r.IsAppropriate)
	assert.Equal(t, model.ErrLabelConfiguration, r.Error)
	assert.Equal(t, int64(0), r.DurationMs)

	j := &fakeJudge{err: &JudgeError{Kind: model.ErrLabelConfiguration, Err: ErrJudgeNotConfigured}}
	r = newTestEvaluator(j).Evaluate(context.Background(), "q", "a", "c", "")
	assert.Nil(t, r.IsAppropriate)
	assert.Equal(t, model.ErrLabelConfiguration, r.Error)
	assert.Equal(t, model.OutcomeErrored, r.Outcome())
}

func TestEvaluate_TransportFailures(t *testing.T) {
	j := &fakeJudge{err: &JudgeError{Kind: model.ErrLabelHTTPStatus, Status: 502, Err: errors.New("bad gateway")}}
	r := newTestEvaluator(j).Evaluate(context.Background(), "q", "a", "c", "")
	require.NotNil(t, r.IsAppropriate)
	assert.False(t, *r.IsAppropriate)
	assert.Equal(t, model.ErrLabelHTTPStatus, r.Error)
	assert.Contains(t, r.Justification, "bad gateway")
	assert.Equal(t, int64(250), r.DurationMs)

	j = &fakeJudge{err: errors.New("connection reset")}
	r = newTestEvaluator(j).Evaluate(context.Background(), "q", "a", "c", "")
	assert.Equal(t, model.ErrLabelTransport, r.Error)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFence("  {\"a\":1}  "))
}

func TestParseVerdict_ErrorsAreTyped(t *testing.T) {
	_, err := ParseVerdict(`{"score": 2, "justification": "x"}`)
	var ve *VerdictError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.ErrLabelValidation, ve.Label)
}
