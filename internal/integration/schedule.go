package integration

import (
	"strings"
	"time"

	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/robfig/cron/v3"
)

// scheduleParser 标准 5 段 cron 表达式,同时支持 @daily 等描述符
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule 校验 cron 表达式,空表达式表示仅手动触发
func ValidateSchedule(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return nil
	}
	if _, err := scheduleParser.Parse(schedule); err != nil {
		return types.NewValidationError("invalid schedule %q: %v", schedule, err)
	}
	return nil
}

// NextRun 计算 from 之后的下一次执行时间,未设置计划时返回 nil
func NextRun(schedule string, from time.Time) (*time.Time, error) {
	if strings.TrimSpace(schedule) == "" {
		return nil, nil
	}
	sched, err := scheduleParser.Parse(schedule)
	if err != nil {
		return nil, types.NewValidationError("invalid schedule %q: %v", schedule, err)
	}
	next := sched.Next(from).UTC()
	return &next, nil
}
