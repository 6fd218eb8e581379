package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const namespace = "ai_service"

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务创建数
	tasksCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Total number of tasks created",
		},
		[]string{"task_type"},
	)

	// 任务状态转换数
	taskTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Total number of task status transitions",
		},
		[]string{"from", "to"},
	)

	// 审批操作数
	approvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Total number of approval decisions",
		},
		[]string{"action"}, // approve, reject
	)

	// provider 调用
	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of AI provider calls",
		},
		[]string{"operation", "outcome"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "AI provider call duration in seconds, retries included",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	providerRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Total number of AI provider retries",
		},
		[]string{"operation"},
	)

	// 发布
	publishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Total number of publish attempts",
		},
		[]string{"target", "outcome"},
	)

	// 模板渲染
	templateRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_renders_total",
			Help:      "Total number of template renders",
		},
		[]string{"outcome"},
	)

	// 工作流执行
	workflowRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow executions",
		},
		[]string{"status"},
	)

	// 事件投递
	eventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Total number of dispatched domain events",
		},
		[]string{"status"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_active",
			Help:      "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_idle",
			Help:      "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_max",
			Help:      "Maximum number of database connections",
		},
	)

	// 任务状态分布
	tasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_by_status",
			Help:      "Number of tasks by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(tasksCreatedTotal)
	prometheus.MustRegister(taskTransitionsTotal)
	prometheus.MustRegister(approvalsTotal)
	prometheus.MustRegister(providerCallsTotal)
	prometheus.MustRegister(providerCallDuration)
	prometheus.MustRegister(providerRetriesTotal)
	prometheus.MustRegister(publishesTotal)
	prometheus.MustRegister(templateRendersTotal)
	prometheus.MustRegister(workflowRunsTotal)
	prometheus.MustRegister(eventsDispatchedTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(tasksByStatus)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTaskCreated 记录任务创建
func RecordTaskCreated(taskType string) {
	tasksCreatedTotal.WithLabelValues(taskType).Inc()
}

// RecordTaskTransition 记录任务状态转换
func RecordTaskTransition(from, to string) {
	taskTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordApproval 记录审批操作
func RecordApproval(action string) {
	approvalsTotal.WithLabelValues(action).Inc()
}

// RecordProviderCall 记录一次 provider 调用(含重试)的结果与耗时
func RecordProviderCall(operation, outcome string, duration float64) {
	providerCallsTotal.WithLabelValues(operation, outcome).Inc()
	providerCallDuration.WithLabelValues(operation).Observe(duration)
}

// RecordProviderRetry 记录 provider 重试
func RecordProviderRetry(operation string) {
	providerRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordPublish 记录发布结果
func RecordPublish(target, outcome string) {
	publishesTotal.WithLabelValues(target, outcome).Inc()
}

// RecordTemplateRender 记录模板渲染结果
func RecordTemplateRender(outcome string) {
	templateRendersTotal.WithLabelValues(outcome).Inc()
}

// RecordWorkflowRun 记录工作流执行
func RecordWorkflowRun(status string) {
	workflowRunsTotal.WithLabelValues(status).Inc()
}

// RecordEventDispatched 记录事件投递
func RecordEventDispatched(status string) {
	eventsDispatchedTotal.WithLabelValues(status).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateTasksByStatus 更新任务状态分布指标
func UpdateTasksByStatus(status string, count float64) {
	tasksByStatus.WithLabelValues(status).Set(count)
}
