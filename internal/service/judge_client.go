package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"answer-judge/internal/config"
	"answer-judge/internal/model"

	"golang.org/x/time/rate"
)

// JudgeError 评审服务调用失败，Kind 取 model.ErrLabel* 中的传输类标签
type JudgeError struct {
	Kind   string
	Status int
	Err    error
}

func (e *JudgeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("judge %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("judge %s: %v", e.Kind, e.Err)
}

func (e *JudgeError) Unwrap() error { return e.Err }

var ErrJudgeNotConfigured = errors.New("judge service is not configured")

// Judge 评审服务的最小调用面：给定 prompt 与结构化输入，返回模型原始文本
type Judge interface {
	Judge(ctx context.Context, prompt string, inputs map[string]interface{}) (string, error)
}

type JudgeClient struct {
	BaseURL           string
	APIKey            string
	Client            *http.Client
	AppType           string
	ResponseMode      string
	WorkflowPromptKey string
	WorkflowOutputKey string

	limiter *rate.Limiter
}

func NewJudgeClient(cfg config.JudgeConfig) *JudgeClient {
	responseMode := cfg.ResponseMode
	if responseMode == "" {
		responseMode = "blocking"
	}
	promptKey := cfg.WorkflowPromptKey
	if promptKey == "" {
		promptKey = "prompt"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// 单条评估与批量共用一个限速器
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &JudgeClient{
		BaseURL:           strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		APIKey:            strings.TrimSpace(cfg.APIKey),
		AppType:           cfg.AppType,
		ResponseMode:      responseMode,
		WorkflowPromptKey: promptKey,
		WorkflowOutputKey: cfg.WorkflowOutputKey,
		Client: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *JudgeClient) Configured() bool {
	return c != nil && c.BaseURL != "" && c.APIKey != ""
}

type chatRequest struct {
	Inputs       map[string]interface{} `json:"inputs"`
	Query        string                 `json:"query"`
	ResponseMode string                 `json:"response_mode"`
	User         string                 `json:"user"`
}

type answerResponse struct {
	MessageID string `json:"message_id"`
	Answer    string `json:"answer"`
}

type workflowRunRequest struct {
	Inputs       map[string]interface{} `json:"inputs"`
	ResponseMode string                 `json:"response_mode"`
	User         string                 `json:"user"`
}

type workflowRunResponse struct {
	TaskID string `json:"task_id"`
	Data   struct {
		ID      string                 `json:"id"`
		Outputs map[string]interface{} `json:"outputs"`
		Status  string                 `json:"status"`
		Error   string                 `json:"error"`
	} `json:"data"`
}

// Judge 按应用类型选择端点：workflow / completion / chat
func (c *JudgeClient) Judge(ctx context.Context, prompt string, inputs map[string]interface{}) (string, error) {
	if !c.Configured() {
		return "", &JudgeError{Kind: model.ErrLabelConfiguration, Err: ErrJudgeNotConfigured}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &JudgeError{Kind: model.ErrLabelTransport, Err: err}
	}

	switch c.AppType {
	case "chat":
		return c.answer(ctx, "/chat-messages", prompt, inputs)
	case "completion":
		return c.answer(ctx, "/completion-messages", prompt, inputs)
	default:
		return c.workflowRun(ctx, prompt, inputs)
	}
}

func (c *JudgeClient) answer(ctx context.Context, path, prompt string, inputs map[string]interface{}) (string, error) {
	reqBody := chatRequest{
		Inputs:       inputs,
		Query:        prompt,
		ResponseMode: c.ResponseMode,
		User:         "answer-judge",
	}

	var resp answerResponse
	if err := c.post(ctx, path, reqBody, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

func (c *JudgeClient) workflowRun(ctx context.Context, prompt string, inputs map[string]interface{}) (string, error) {
	merged := make(map[string]interface{}, len(inputs)+1)
	for k, v := range inputs {
		merged[k] = v
	}
	merged[c.WorkflowPromptKey] = prompt

	reqBody := workflowRunRequest{
		Inputs:       merged,
		ResponseMode: c.ResponseMode,
		User:         "answer-judge",
	}

	var resp workflowRunResponse
	if err := c.post(ctx, "/workflows/run", reqBody, &resp); err != nil {
		return "", err
	}
	if resp.Data.Status == "failed" {
		return "", &JudgeError{Kind: model.ErrLabelTransport, Err: fmt.Errorf("workflow failed: %s", resp.Data.Error)}
	}
	return extractWorkflowAnswer(resp.Data.Outputs, c.WorkflowOutputKey), nil
}

func (c *JudgeClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return &JudgeError{Kind: model.ErrLabelTransport, Err: fmt.Errorf("序列化请求失败: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return &JudgeError{Kind: model.ErrLabelTransport, Err: fmt.Errorf("创建请求失败: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	resp, err := c.Client.Do(req)
	if err != nil {
		return &JudgeError{Kind: model.ErrLabelTransport, Err: fmt.Errorf("请求失败: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return &JudgeError{Kind: model.ErrLabelHTTPStatus, Status: resp.StatusCode, Err: errors.New(errorMessage(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &JudgeError{Kind: model.ErrLabelParse, Err: fmt.Errorf("解析响应失败: %w", err)}
	}
	return nil
}

// errorMessage 优先取错误 JSON 中的 message，否则截取原始 body
func errorMessage(body []byte) string {
	var errResp map[string]interface{}
	if json.Unmarshal(body, &errResp) == nil {
		if msg, ok := errResp["message"].(string); ok && msg != "" {
			return msg
		}
	}
	bodyStr := string(body)
	if len(bodyStr) > 500 {
		bodyStr = bodyStr[:500] + "..."
	}
	return bodyStr
}

func extractWorkflowAnswer(outputs map[string]interface{}, outputKey string) string {
	if outputs == nil {
		return ""
	}

	if outputKey != "" {
		if v, ok := outputs[outputKey]; ok {
			return stringify(v)
		}
	}

	for _, k := range []string{"text", "answer", "output", "result"} {
		if v, ok := outputs[k]; ok {
			return stringify(v)
		}
	}

	for _, v := range outputs {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}

	b, _ := json.Marshal(outputs)
	return string(b)
}

// stringify workflow 输出可能已是对象，统一转成文本交给解析
func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}
