package handler

import (
	"context"
	"net/http"
	"strconv"

	"answer-judge/internal/model"

	"github.com/gin-gonic/gin"
)

type HistoryStore interface {
	List(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	Get(ctx context.Context, id string) (*model.HistoryEntry, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

type HistoryHandler struct {
	history HistoryStore
}

func NewHistoryHandler(history HistoryStore) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListHistory 列出历史，最新在前
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	entries, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": entries,
	})
}

// GetHistory 获取单条历史
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	entry, err := h.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entry": entry,
	})
}

// DeleteHistory 删除单条历史
func (h *HistoryHandler) DeleteHistory(c *gin.Context) {
	if err := h.history.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "删除成功",
	})
}

// ClearHistory 清空历史
func (h *HistoryHandler) ClearHistory(c *gin.Context) {
	if err := h.history.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "历史已清空",
	})
}
