package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	_ "github.com/mission-engadi/ai-service/docs" // 导入生成的 docs 包
	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/mission-engadi/ai-service/internal/service"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/mission-engadi/ai-service/internal/websocket"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config      *config.Config
	Logger      logrus.FieldLogger
	DB          *gorm.DB
	Hub         *websocket.Hub
	Validator   auth.TokenValidator // nil 时使用开发模式认证
	Authorizer  auth.Authorizer
	RateLimiter *RateLimiter
	Tracing     *Tracing
	Health      *HealthController

	Tasks      service.TaskService
	Templates  service.TemplateService
	Contents   service.ContentService
	Generation service.GenerationService
	Automation service.AutomationService
	AuditLogs  service.AuditLogService
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	router := gin.New()
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware(logger))
	if deps.Tracing.Enabled() {
		router.Use(deps.Tracing.Middleware())
	}
	router.Use(SecurityHeadersMiddleware())
	if deps.Config != nil {
		router.Use(CORSMiddleware(deps.Config.CORS))
	}
	if deps.RateLimiter != nil {
		router.Use(RateLimitMiddleware(deps.RateLimiter))
	}
	router.Use(ErrorHandlerMiddleware())

	// 健康检查与指标
	health := deps.Health
	if health == nil {
		health = NewHealthController(deps.DB)
	}
	router.GET("/health", health.Check)
	router.GET("/metrics", MetricsHandler())

	// WebSocket 推送任务事件
	if deps.Hub != nil {
		router.GET("/ws/tasks", websocket.WebSocketHandler(deps.Hub, deps.Validator))
	}

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 路由组,业务路由均需认证
	v1 := router.Group("/api/v1")
	if deps.Validator != nil {
		v1.Use(auth.AuthMiddleware(deps.Validator, logger))
	} else {
		logger.Warn("authentication disabled, using development identities")
		v1.Use(auth.DevAuthMiddleware())
	}

	generation := NewGenerationController(deps.Generation, deps.Tasks)

	// 内容生成
	content := v1.Group("/content/generate")
	{
		for kind, contentType := range ContentKinds {
			content.POST("/"+kind, generation.GenerateContent(contentType))
		}
		content.POST("/batch", generation.BatchContent)
		content.GET("", generation.ListContentTasks)
		content.GET("/:id", generation.GetContentTask)
	}

	// 翻译
	translation := v1.Group("/translation")
	{
		translation.POST("/translate", generation.Translate)
		translation.POST("/batch", generation.BatchTranslate)
		translation.POST("/detect", generation.Detect)
		translation.POST("/auto-translate", generation.AutoTranslate)
		translation.GET("/history", generation.TranslationHistory)
	}

	// 图片
	images := v1.Group("/images")
	{
		images.POST("/generate", generation.GenerateImage)
		images.POST("/variation", generation.ImageVariation)
		images.GET("", generation.ListImageTasks)
		images.GET("/:id", generation.GetImageTask)
	}

	// 内容增强
	enhancement := v1.Group("/enhancement")
	{
		for _, kind := range EnhancementKinds {
			enhancement.POST("/"+string(kind), generation.Enhance(kind))
		}
		enhancement.POST("/batch", generation.BatchEnhance)
		enhancement.GET("/history", generation.EnhancementHistory)
	}

	// 自动化工作流
	automation := NewAutomationController(deps.Automation)
	workflows := v1.Group("/automation")
	{
		workflows.POST("/workflows", automation.Create)
		workflows.GET("/workflows", automation.List)
		workflows.GET("/workflows/:id", automation.Get)
		workflows.PUT("/workflows/:id", automation.Update)
		workflows.DELETE("/workflows/:id", automation.Delete)
		workflows.POST("/workflows/:id/execute", automation.Execute)
		workflows.GET("/workflows/:id/history", automation.History)
		workflows.POST("/run-due", AdminOnly(deps.Authorizer), automation.RunDue)
	}

	// 任务
	taskController := NewTaskController(deps.Tasks)
	tasks := v1.Group("/tasks")
	{
		tasks.POST("", taskController.Create)
		tasks.GET("", taskController.List)
		tasks.GET("/statistics", taskController.Statistics)
		tasks.GET("/:id", taskController.Get)
		tasks.GET("/:id/history", taskController.History)
		tasks.POST("/:id/execute", taskController.Execute)
		tasks.POST("/:id/cancel", taskController.Cancel)
		tasks.POST("/:id/approve", taskController.Approve)
		tasks.POST("/:id/reject", taskController.Reject)
		tasks.DELETE("/:id", taskController.Delete)
	}

	// 模板
	templateController := NewTemplateController(deps.Templates)
	templates := v1.Group("/templates")
	{
		templates.POST("", templateController.Create)
		templates.GET("", templateController.List)
		templates.POST("/suggest", templateController.Suggest)
		templates.GET("/:id", templateController.Get)
		templates.PUT("/:id", templateController.Update)
		templates.DELETE("/:id", templateController.Delete)
		templates.POST("/:id/apply", templateController.Apply)
	}

	// 生成内容
	contentController := NewContentController(deps.Contents)
	generated := v1.Group("/generated")
	{
		generated.GET("", contentController.List)
		generated.GET("/statistics", contentController.Statistics)
		generated.GET("/:id", contentController.Get)
		generated.PUT("/:id", contentController.Update)
		generated.DELETE("/:id", contentController.Delete)
		generated.POST("/:id/publish", contentController.Publish)
		generated.GET("/:id/publish-records", contentController.PublishRecords)
	}

	// 审计日志
	if deps.AuditLogs != nil {
		v1.GET("/audit-logs", AdminOnly(deps.Authorizer), NewAuditController(deps.AuditLogs).List)
	}

	// 未匹配的路由返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, string(types.CodeNotFound), "route not found")
	})

	return router
}

// AdminOnly 仅允许管理员访问
func AdminOnly(authorizer auth.Authorizer) gin.HandlerFunc {
	if authorizer == nil {
		authorizer = auth.NewRoleAuthorizer(nil, "", nil)
	}
	return func(c *gin.Context) {
		identity, _ := auth.FromGin(c)
		if !authorizer.IsAdmin(identity) {
			HandleError(c, types.NewForbiddenError("admin role required"))
			return
		}
		c.Next()
	}
}
