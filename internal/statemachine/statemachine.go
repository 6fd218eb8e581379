package statemachine

import (
	"github.com/mission-engadi/ai-service/internal/types"
)

// StateMachine 任务状态机
type StateMachine interface {
	CanTransition(from, to types.TaskStatus) bool
	Transition(from, to types.TaskStatus) error
	ValidTargets(from types.TaskStatus) []types.TaskStatus
	IsTerminal(status types.TaskStatus) bool
}

type stateMachine struct {
	transitions map[types.TaskStatus][]types.TaskStatus
}

// NewStateMachine 创建任务状态机
// 终态(completed/failed/cancelled)没有出边
func NewStateMachine() StateMachine {
	return &stateMachine{
		transitions: map[types.TaskStatus][]types.TaskStatus{
			types.TaskStatusPending: {
				types.TaskStatusProcessing,
				types.TaskStatusCancelled,
			},
			types.TaskStatusProcessing: {
				types.TaskStatusCompleted,
				types.TaskStatusFailed,
				types.TaskStatusCancelled,
			},
		},
	}
}

// CanTransition 检查是否可以从 from 转换到 to
func (sm *stateMachine) CanTransition(from, to types.TaskStatus) bool {
	for _, target := range sm.transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition 执行状态转换校验
func (sm *stateMachine) Transition(from, to types.TaskStatus) error {
	if !from.Valid() || !to.Valid() {
		return types.NewInvalidStateError("unknown task status transition %q -> %q", from, to)
	}
	if !sm.CanTransition(from, to) {
		return types.NewInvalidStateError("cannot transition task from %s to %s", from, to)
	}
	return nil
}

// ValidTargets 返回 from 状态允许的目标状态
func (sm *stateMachine) ValidTargets(from types.TaskStatus) []types.TaskStatus {
	targets := sm.transitions[from]
	out := make([]types.TaskStatus, len(targets))
	copy(out, targets)
	return out
}

// IsTerminal 是否为终态
func (sm *stateMachine) IsTerminal(status types.TaskStatus) bool {
	switch status {
	case types.TaskStatusCompleted, types.TaskStatusFailed, types.TaskStatusCancelled:
		return true
	}
	return false
}

// SourcesOf 返回所有可以转换到 to 的状态,用于构造带状态条件的更新语句
func SourcesOf(sm StateMachine, to types.TaskStatus) []types.TaskStatus {
	var sources []types.TaskStatus
	for _, from := range types.TaskStatuses {
		if sm.CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}
