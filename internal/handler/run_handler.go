package handler

import (
	"net/http"
	"strings"

	"answer-judge/internal/service"

	"github.com/gin-gonic/gin"
)

type RunHandler struct {
	orch          *service.Orchestrator
	defaultRubric string
}

func NewRunHandler(orch *service.Orchestrator, defaultRubric string) *RunHandler {
	return &RunHandler{orch: orch, defaultRubric: defaultRubric}
}

// StartRun 启动批量评估，立即返回 202
func (h *RunHandler) StartRun(c *gin.Context) {
	var req struct {
		Mode    string `json:"mode"` // all/range/specific
		Start   string `json:"start"`
		End     string `json:"end"`
		Numbers string `json:"numbers"`
		Rubric  string `json:"rubric"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Rubric) == "" {
		req.Rubric = h.defaultRubric
	}

	sel := service.Selection{
		Mode:    service.SelectionMode(req.Mode),
		Start:   req.Start,
		End:     req.End,
		Numbers: req.Numbers,
	}
	status, err := h.orch.Start(sel, req.Rubric)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run": status,
	})
}

func (h *RunHandler) GetStatus(c *gin.Context) {
	h.respond(c, h.orch.Status)
}

func (h *RunHandler) Pause(c *gin.Context) {
	h.respond(c, h.orch.Pause)
}

func (h *RunHandler) Resume(c *gin.Context) {
	h.respond(c, h.orch.Resume)
}

func (h *RunHandler) Cancel(c *gin.Context) {
	h.respond(c, h.orch.Cancel)
}

func (h *RunHandler) respond(c *gin.Context, fn func() (service.RunStatus, error)) {
	status, err := fn()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run": status,
	})
}
