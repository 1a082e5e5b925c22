package service

import (
	"log/slog"
	"time"

	"answer-judge/internal/config"

	"gorm.io/gorm"
)

type ServiceContext struct {
	Config        *config.Config
	Judge         *JudgeClient
	Evaluator     *Evaluator
	Store         *ItemStore
	History       *HistoryService
	Orchestrator  *Orchestrator
	Reports       *ReportService
	DefaultRubric string
}

func NewServiceContext(cfg *config.Config, gdb *gorm.DB) *ServiceContext {
	judge := NewJudgeClient(cfg.Judge)
	if !judge.Configured() {
		slog.Warn("评审服务未配置，评估将返回 configuration 错误")
	}
	evaluator := NewEvaluator(judge)
	store := NewItemStore()
	history := NewHistoryService(gdb, cfg.History.MaxEntries)

	return &ServiceContext{
		Config:    cfg,
		Judge:     judge,
		Evaluator: evaluator,
		Store:     store,
		History:   history,
		Orchestrator: NewOrchestrator(store, evaluator, OrchestratorOptions{
			InterItemDelay: time.Duration(cfg.Batch.InterItemDelayMs) * time.Millisecond,
			Reporter:       history,
			Logger:         slog.Default().With("component", "orchestrator"),
		}),
		Reports:       NewReportService(store, history, cfg.Report.OutputDir),
		DefaultRubric: cfg.Judge.DefaultRubric,
	}
}
