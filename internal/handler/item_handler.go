package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"answer-judge/internal/model"
	"answer-judge/internal/service"

	"github.com/gin-gonic/gin"
)

// ItemHistory 条目相关的历史写入
type ItemHistory interface {
	RecordDatasetLoad(ctx context.Context, source string, count int) error
	RecordItemEvaluation(ctx context.Context, item model.Item) error
}

type ItemHandler struct {
	orch          *service.Orchestrator
	history       ItemHistory
	defaultRubric string
}

func NewItemHandler(orch *service.Orchestrator, history ItemHistory, defaultRubric string) *ItemHandler {
	return &ItemHandler{orch: orch, history: history, defaultRubric: defaultRubric}
}

type itemInput struct {
	ID              string `json:"id"`
	Number          string `json:"number"`
	QuestionText    string `json:"question_text"`
	ContextAnswer   string `json:"context_answer"`
	CandidateAnswer string `json:"candidate_answer"`
}

// LoadItems 整体替换数据集
func (h *ItemHandler) LoadItems(c *gin.Context) {
	var req struct {
		// 数据来源描述，例如上传的文件名
		Source string      `json:"source"`
		Items  []itemInput `json:"items" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]model.Item, 0, len(req.Items))
	for _, in := range req.Items {
		// 问题为空的行视为无效
		if strings.TrimSpace(in.QuestionText) == "" {
			continue
		}
		items = append(items, model.Item{
			ID:              in.ID,
			Number:          in.Number,
			QuestionText:    in.QuestionText,
			ContextAnswer:   in.ContextAnswer,
			CandidateAnswer: in.CandidateAnswer,
		})
	}

	loaded, err := h.orch.LoadItems(items)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if h.history != nil {
		if err := h.history.RecordDatasetLoad(c.Request.Context(), req.Source, len(loaded)); err != nil {
			slog.Error("记录数据集加载失败", "err", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"items":   loaded,
		"total":   len(loaded),
		"skipped": len(req.Items) - len(loaded),
	})
}

func (h *ItemHandler) ListItems(c *gin.Context) {
	items := h.orch.Store().All()
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

// ClearItems 清空数据；进行中的 run 会先被取消
func (h *ItemHandler) ClearItems(c *gin.Context) {
	n := h.orch.ClearData()
	c.JSON(http.StatusOK, gin.H{
		"message": "数据已清空",
		"cleared": n,
	})
}

// EvaluateItem 单条评估
func (h *ItemHandler) EvaluateItem(c *gin.Context) {
	var req struct {
		Rubric string `json:"rubric"`
	}
	// 请求体可选
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if strings.TrimSpace(req.Rubric) == "" {
		req.Rubric = h.defaultRubric
	}

	item, err := h.orch.EvaluateItem(c.Request.Context(), c.Param("id"), req.Rubric)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if h.history != nil {
		if err := h.history.RecordItemEvaluation(c.Request.Context(), item); err != nil {
			slog.Error("记录单条评估失败", "item_id", item.ID, "err", err)
		}
	}

	if r := item.EvaluationResult; r != nil && r.Error == model.ErrLabelConfiguration {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": r.Justification,
			"item":  item,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item": item,
	})
}

// AdoptSuggestion 用建议答案替换候选答案
func (h *ItemHandler) AdoptSuggestion(c *gin.Context) {
	item, err := h.orch.AdoptSuggestion(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item": item,
	})
}
