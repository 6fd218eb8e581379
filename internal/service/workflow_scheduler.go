package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WorkflowScheduler 进程内的到期工作流调度器
// 间隔为 0 时不启用,由外部 cron 调用 workflows run-due
type WorkflowScheduler struct {
	automation AutomationService
	interval   time.Duration
	logger     logrus.FieldLogger
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewWorkflowScheduler 创建工作流调度器
func NewWorkflowScheduler(automation AutomationService, interval time.Duration, logger logrus.FieldLogger) *WorkflowScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WorkflowScheduler{
		automation: automation,
		interval:   interval,
		logger:     logger.WithField("component", "workflow_scheduler"),
		stopChan:   make(chan struct{}),
	}
}

// Enabled 是否启用进程内调度
func (s *WorkflowScheduler) Enabled() bool {
	return s.interval > 0
}

// Start 启动调度循环
func (s *WorkflowScheduler) Start(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("in-process workflow scheduler disabled")
		return
	}
	go s.loop(ctx)
}

// Stop 停止调度器
func (s *WorkflowScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *WorkflowScheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce 执行一轮到期工作流
func (s *WorkflowScheduler) RunOnce(ctx context.Context) {
	summary, err := s.automation.RunDue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).Error("failed to run due workflows")
		return
	}
	if summary.Failed > 0 {
		s.logger.WithField("errors", summary.Errors).Warn("some scheduled workflows failed")
	}
}
