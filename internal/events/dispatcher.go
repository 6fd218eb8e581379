package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mission-engadi/ai-service/internal/metrics"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Broadcaster 实时推送通道
type Broadcaster interface {
	Notify(msg *websocket.Message)
}

// Options 事件分发配置
type Options struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	Backoff    time.Duration
}

func (o *Options) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1000
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
}

// queuedEvent 队列中的待投递事件
type queuedEvent struct {
	id  string
	evt *Event
}

// Dispatcher 持久化事件分发器
// 事件先持久化,再异步投递到 Sink;进程重启后未投递的事件会被重放
// 事件在业务事务提交之后单独写入,不与业务数据同事务
type Dispatcher struct {
	eventRepo   repository.EventRepository
	sink        Sink
	broadcaster Broadcaster
	opts        Options
	logger      logrus.FieldLogger

	queue     chan queuedEvent
	ctx       context.Context
	cancel    context.CancelFunc
	stop      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher 创建事件分发器,sink 为 nil 时事件标记为 skipped
func NewDispatcher(db *gorm.DB, sink Sink, broadcaster Broadcaster, opts Options, logger logrus.FieldLogger) *Dispatcher {
	opts.withDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ctx:         ctx,
		cancel:      cancel,
		eventRepo:   repository.NewEventRepository(db),
		sink:        sink,
		broadcaster: broadcaster,
		opts:        opts,
		logger:      logger.WithField("component", "event_dispatcher"),
		queue:       make(chan queuedEvent, opts.QueueSize),
		stop:        make(chan struct{}),
	}
}

// Start 启动 worker 并重放未投递的事件
func (d *Dispatcher) Start() error {
	var replayErr error
	d.startOnce.Do(func() {
		for i := 0; i < d.opts.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		replayErr = d.replayPending()
	})
	return replayErr
}

// replayPending 重放上次运行遗留的 pending 事件
func (d *Dispatcher) replayPending() error {
	pending, err := d.eventRepo.FindPending(d.opts.QueueSize)
	if err != nil {
		return fmt.Errorf("failed to load pending events: %w", err)
	}

	for _, em := range pending {
		var evt Event
		if err := json.Unmarshal(em.Data, &evt); err != nil {
			d.logger.WithError(err).WithField("event_id", em.ID).Error("failed to decode pending event")
			_ = d.eventRepo.UpdateStatus(em.ID, model.EventStatusFailed, em.RetryCount)
			continue
		}
		d.enqueue(queuedEvent{id: em.ID, evt: &evt})
	}

	if len(pending) > 0 {
		d.logger.WithField("count", len(pending)).Info("replaying pending events")
	}
	return nil
}

// Publish 持久化事件、实时推送并排队投递
func (d *Dispatcher) Publish(_ context.Context, evt *Event) error {
	// 1. 补全事件元数据
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	// 2. 持久化事件到数据库
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventModel := &model.EventModel{
		ID:           evt.ID,
		ResourceType: evt.ResourceType,
		ResourceID:   evt.ResourceID,
		Type:         evt.Type,
		Data:         data,
		Status:       model.EventStatusPending,
		CreatedAt:    evt.Timestamp,
		UpdatedAt:    evt.Timestamp,
	}
	if err := eventModel.Validate(); err != nil {
		return err
	}
	if err := d.eventRepo.Save(eventModel); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	// 3. 推送给 WebSocket 订阅者
	if d.broadcaster != nil {
		payload, _ := json.Marshal(evt.Data)
		d.broadcaster.Notify(&websocket.Message{
			Type:         evt.Type,
			ResourceType: evt.ResourceType,
			ResourceID:   evt.ResourceID,
			UserID:       evt.UserID,
			Data:         payload,
			Timestamp:    evt.Timestamp,
		})
	}

	// 4. 异步投递
	d.enqueue(queuedEvent{id: eventModel.ID, evt: evt})
	return nil
}

// enqueue 队列满时保留 pending 状态,等待下次启动重放
func (d *Dispatcher) enqueue(item queuedEvent) {
	select {
	case d.queue <- item:
	default:
		d.logger.WithFields(logrus.Fields{"event_id": item.id, "type": item.evt.Type}).Warn("event queue full, leaving event pending")
	}
}

// worker 事件投递 worker
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case item := <-d.queue:
			d.deliver(item)
		case <-d.stop:
			return
		}
	}
}

// deliver 投递单个事件,失败时指数退避重试
// 停止时中断退避等待,事件保持 pending 由下次启动重放
func (d *Dispatcher) deliver(item queuedEvent) {
	logger := d.logger.WithFields(logrus.Fields{"event_id": item.id, "type": item.evt.Type})

	if d.sink == nil {
		d.finish(item.id, model.EventStatusSkipped, 0)
		return
	}

	failures := 0
	operation := func() error {
		ctx, cancel := context.WithTimeout(d.ctx, 15*time.Second)
		defer cancel()
		if err := d.sink.Deliver(ctx, item.evt); err != nil {
			failures++
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.WithError(err).WithFields(logrus.Fields{"attempt": failures, "wait": wait.String()}).Warn("event delivery failed")
	}

	err := backoff.RetryNotify(operation, d.retryPolicy(), notify)
	switch {
	case err == nil:
		d.finish(item.id, model.EventStatusSuccess, failures)
	case d.ctx.Err() != nil:
		if uerr := d.eventRepo.UpdateStatus(item.id, model.EventStatusPending, failures); uerr != nil {
			logger.WithError(uerr).Error("failed to update event status")
		}
	default:
		logger.WithError(err).Error("event delivery exhausted retries")
		d.finish(item.id, model.EventStatusFailed, failures)
	}
}

// retryPolicy MaxRetries 为总尝试次数
func (d *Dispatcher) retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.Backoff
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.opts.MaxRetries-1)), d.ctx)
}

func (d *Dispatcher) finish(id string, status string, retryCount int) {
	if err := d.eventRepo.UpdateStatus(id, status, retryCount); err != nil {
		d.logger.WithError(err).WithField("event_id", id).Error("failed to update event status")
	}
	metrics.RecordEventDispatched(status)
}

// Stop 停止 worker 并关闭 Sink
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		close(d.stop)
		d.wg.Wait()
		if d.sink != nil {
			if err := d.sink.Close(); err != nil {
				d.logger.WithError(err).Warn("failed to close event sink")
			}
		}
	})
}
