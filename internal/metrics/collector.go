package metrics

import (
	"context"
	"time"

	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"gorm.io/gorm"
)

// Collector 指标收集器,定期刷新连接池与任务状态分布
type Collector struct {
	db       *gorm.DB
	taskRepo repository.TaskRepository
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, interval time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		taskRepo: repository.NewTaskRepository(db),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	go c.collect()
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// CollectOnce 立即收集一次
func (c *Collector) CollectOnce() error {
	if err := UpdateDatabaseConnections(c.db); err != nil {
		return err
	}
	counts, err := c.taskRepo.CountByStatus()
	if err != nil {
		return err
	}
	for _, status := range types.TaskStatuses {
		UpdateTasksByStatus(string(status), float64(counts[string(status)]))
	}
	return nil
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.CollectOnce()
		}
	}
}
