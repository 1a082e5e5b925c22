package router

import (
	"answer-judge/internal/handler"
	"answer-judge/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(svc *service.ServiceContext) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	itemHandler := handler.NewItemHandler(svc.Orchestrator, svc.History, svc.DefaultRubric)
	runHandler := handler.NewRunHandler(svc.Orchestrator, svc.DefaultRubric)
	reportHandler := handler.NewReportHandler(svc.Store, svc.Reports)
	historyHandler := handler.NewHistoryHandler(svc.History)

	api := r.Group("/api")
	{
		items := api.Group("/items")
		{
			items.POST("", itemHandler.LoadItems)
			items.GET("", itemHandler.ListItems)
			items.DELETE("", itemHandler.ClearItems)
			items.POST("/:id/evaluate", itemHandler.EvaluateItem)
			items.POST("/:id/adopt", itemHandler.AdoptSuggestion)
		}

		runs := api.Group("/runs")
		{
			runs.POST("", runHandler.StartRun)
			runs.GET("/current", runHandler.GetStatus)
			runs.POST("/current/pause", runHandler.Pause)
			runs.POST("/current/resume", runHandler.Resume)
			runs.POST("/current/cancel", runHandler.Cancel)
		}

		api.GET("/analytics", reportHandler.GetAnalytics)
		api.POST("/reports", reportHandler.ExportReport)

		history := api.Group("/history")
		{
			history.GET("", historyHandler.ListHistory)
			history.GET("/:id", historyHandler.GetHistory)
			history.DELETE("/:id", historyHandler.DeleteHistory)
			history.DELETE("", historyHandler.ClearHistory)
		}
	}

	return r
}
