package handler

import (
	"errors"
	"net/http"

	"answer-judge/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// statusFor 业务错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSelection), errors.Is(err, service.ErrDuplicateItem),
		errors.Is(err, service.ErrNoSuggestion), errors.Is(err, service.ErrNothingToReport):
		return http.StatusBadRequest
	case service.IsBusy(err):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoActiveRun), errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
