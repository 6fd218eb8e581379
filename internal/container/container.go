package container

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/api"
	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/cache"
	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/mission-engadi/ai-service/internal/database"
	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/metrics"
	"github.com/mission-engadi/ai-service/internal/provider"
	"github.com/mission-engadi/ai-service/internal/publisher"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
	"github.com/mission-engadi/ai-service/internal/statemachine"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/mission-engadi/ai-service/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Options 容器可替换的依赖,测试中用于注入数据库与外部服务
type Options struct {
	DB       *gorm.DB
	Gateway  provider.Gateway
	Registry *publisher.Registry
	Logger   *logrus.Logger
}

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、缓存、事件、服务等
type Container struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *logrus.Logger

	cache      cache.Cache
	redis      *cache.RedisCache
	sink       events.Sink
	dispatcher *events.Dispatcher
	hub        *websocket.Hub

	validator  auth.TokenValidator
	fgaClient  *auth.OpenFGAClient
	authorizer auth.Authorizer

	gateway  provider.Gateway
	registry *publisher.Registry

	tasks      service.TaskService
	templates  service.TemplateService
	contents   service.ContentService
	generation service.GenerationService
	automation service.AutomationService
	auditLogs  service.AuditLogService

	scheduler   *service.WorkflowScheduler
	collector   *metrics.Collector
	rateLimiter *api.RateLimiter
	tracing     *api.Tracing
	started     bool
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{cfg: cfg, logger: opts.Logger}
	if c.logger == nil {
		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		c.logger = logger
	}

	// 1. 初始化数据库(带重试机制)并执行迁移
	c.db = opts.DB
	if c.db == nil {
		db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		c.db = db
	}
	if err := database.Migrate(c.db); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. 缓存: 启用 Redis 时使用 Redis,否则使用进程内缓存
	if err := c.initCache(); err != nil {
		c.Close()
		return nil, err
	}

	// 3. 认证与授权
	if err := c.initAuth(); err != nil {
		c.Close()
		return nil, err
	}

	// 4. 事件: 持久化事件分发器,可选 Kafka 投递,WebSocket 实时推送
	c.hub = websocket.NewHub(c.logger)
	if cfg.Kafka.Enabled {
		c.sink = events.NewKafkaSink(cfg.Kafka)
	}
	c.dispatcher = events.NewDispatcher(c.db, c.sink, c.hub, events.Options{Workers: cfg.Kafka.Workers}, c.logger)

	// 5. AI provider 与发布目标
	c.gateway = opts.Gateway
	if c.gateway == nil {
		c.gateway = provider.NewHTTPGateway(provider.OptionsFromConfig(cfg.AI), c.logger)
	}
	c.registry = opts.Registry
	if c.registry == nil {
		c.registry = publisher.NewRegistryFromConfig(cfg.Services)
	}

	// 6. 服务
	c.initServices()

	// 7. 后台组件
	c.scheduler = service.NewWorkflowScheduler(c.automation, cfg.Workflow.SchedulerInterval, c.logger)
	c.collector = metrics.NewCollector(c.db, 15*time.Second)
	c.rateLimiter = api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	tracing, err := api.InitTracing(cfg.Tracing, cfg.Env)
	if err != nil {
		c.logger.WithError(err).Warn("tracing disabled")
	}
	c.tracing = tracing

	return c, nil
}

func (c *Container) initCache() error {
	if !c.cfg.Redis.Enabled {
		c.cache = cache.NewMemoryCache()
		return nil
	}

	redisCache, err := cache.NewRedisCache(c.cfg.Redis.URL, "ai-service")
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	c.redis = redisCache
	c.cache = redisCache
	return nil
}

func (c *Container) initAuth() error {
	if !c.cfg.Auth.Disabled {
		if c.cfg.Auth.JWKSURL == "" && c.cfg.Auth.Issuer == "" {
			return fmt.Errorf("auth.issuer or auth.jwks_url is required unless auth.disabled is set")
		}
		c.validator = auth.NewJWKSValidator(c.cfg.Auth.Issuer, c.cfg.Auth.JWKSURL)
	}

	var checker auth.PermissionChecker
	if c.cfg.OpenFGA.APIURL != "" {
		// 默认重试 3 次,初始间隔 1 秒,指数退避
		client, err := auth.NewOpenFGAClientWithRetry(c.cfg.OpenFGA.APIURL, c.cfg.OpenFGA.StoreID, c.cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		c.fgaClient = client
		checker = auth.NewCachedPermissionChecker(client, c.cache, c.cfg.Redis.PermissionTTL)
	}
	c.authorizer = auth.NewRoleAuthorizer(c.cfg.Auth.AdminRoles, c.cfg.Auth.ApproverRole, checker)
	return nil
}

func (c *Container) initServices() {
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(c.db))
	c.auditLogs = audit

	taskMgr := integration.NewTaskManager(c.db, statemachine.NewStateMachine())
	contentMgr := integration.NewContentManager(c.db)
	templateMgr := integration.NewTemplateManager(c.db, c.cache, c.cfg.Redis.TemplateTTL)
	workflowMgr := integration.NewWorkflowManager(c.db)

	// 未启用 OpenFGA 时不写入关系
	var relations auth.PermissionChecker
	if c.fgaClient != nil {
		relations = c.fgaClient
	}

	c.tasks = service.NewTaskService(taskMgr, c.authorizer, relations, audit, c.dispatcher, c.logger)
	c.templates = service.NewTemplateService(templateMgr, c.authorizer, audit, c.dispatcher, c.logger, c.cfg.Workflow.SuggestLimit)
	c.contents = service.NewContentService(contentMgr, taskMgr, c.registry, c.authorizer, audit, c.dispatcher, c.logger)
	c.generation = service.NewGenerationService(c.tasks, contentMgr, c.gateway, c.cfg.AI.BatchWorkers, c.cfg.Workflow.DefaultTargetLanguages)
	c.automation = service.NewAutomationService(service.AutomationDeps{
		Workflows:   workflowMgr,
		Tasks:       c.tasks,
		Generation:  c.generation,
		Templates:   c.templates,
		Contents:    c.contents,
		Gateway:     c.gateway,
		Registry:    c.registry,
		Authorizer:  c.authorizer,
		AuditLogSvc: audit,
		Publisher:   c.dispatcher,
		Logger:      c.logger,
	})

	// 注册各任务类型的执行器
	c.tasks.RegisterExecutor(types.TaskTypeContentGeneration, service.NewContentExecutor(c.gateway, c.templates))
	c.tasks.RegisterExecutor(types.TaskTypeTranslation, service.NewTranslationExecutor(c.gateway, taskMgr, contentMgr))
	c.tasks.RegisterExecutor(types.TaskTypeImageGeneration, service.NewImageExecutor(c.gateway))
	c.tasks.RegisterExecutor(types.TaskTypeContentEnhancement, service.NewEnhancementExecutor(c.gateway))
	c.tasks.RegisterExecutor(types.TaskTypeAutomation, c.automation.Executor())
}

// Start 启动后台组件: 事件分发、WebSocket Hub、指标收集、工作流调度
func (c *Container) Start(ctx context.Context) error {
	go c.hub.Run()
	if err := c.dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}
	c.collector.Start()
	c.scheduler.Start(ctx)
	c.started = true
	return nil
}

// Router 构建 HTTP 路由
func (c *Container) Router() *gin.Engine {
	health := api.NewHealthController(c.db)
	if c.fgaClient != nil {
		health.Register("openfga", api.OpenFGACheck(c.fgaClient.CheckHealth))
	}
	if c.redis != nil {
		health.Register("redis", c.redis.Ping)
	}

	return api.SetupRoutes(api.RouterDeps{
		Config:      c.cfg,
		Logger:      c.logger,
		DB:          c.db,
		Hub:         c.hub,
		Validator:   c.validator,
		Authorizer:  c.authorizer,
		RateLimiter: c.rateLimiter,
		Tracing:     c.tracing,
		Health:      health,
		Tasks:       c.tasks,
		Templates:   c.templates,
		Contents:    c.contents,
		Generation:  c.generation,
		Automation:  c.automation,
		AuditLogs:   c.auditLogs,
	})
}

// ApplyConfig 应用热更新的配置
func (c *Container) ApplyConfig(cfg *config.Config) {
	api.ApplyLogLevel(c.logger, cfg.Log.Level)
	c.rateLimiter.Update(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	c.logger.WithFields(logrus.Fields{
		"log_level": cfg.Log.Level,
		"rps":       cfg.RateLimit.RPS,
		"burst":     cfg.RateLimit.Burst,
	}).Info("configuration reloaded")
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Logger 获取日志
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// Tracing 获取链路追踪
func (c *Container) Tracing() *api.Tracing {
	return c.tracing
}

// Automation 获取自动化服务
func (c *Container) Automation() service.AutomationService {
	return c.automation
}

// Close 关闭容器,清理资源
// 先停止产生事件的后台组件,再停止事件分发(同时关闭 Sink),最后关闭连接
func (c *Container) Close() error {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.started {
		c.collector.Stop()
	}
	if c.dispatcher != nil {
		c.dispatcher.Stop()
	}
	if c.hub != nil {
		c.hub.Stop()
	}
	if c.redis != nil {
		c.redis.Close()
	}
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	return nil
}
