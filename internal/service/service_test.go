package service_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/cache"
	"github.com/mission-engadi/ai-service/internal/database"
	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/provider"
	"github.com/mission-engadi/ai-service/internal/publisher"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
	"github.com/mission-engadi/ai-service/internal/statemachine"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// userCtx 带身份的 context
func userCtx(userID string, roles ...string) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{UserID: userID, Roles: roles})
}

func adminCtx() context.Context {
	return userCtx("admin-1", auth.RoleAdmin)
}

// fakeGateway 记录调用次数的 provider
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	textFn      func(req provider.TextRequest) (*provider.TextResult, error)
	translateFn func(req provider.TranslateRequest) (*provider.TranslateResult, error)
	imageReqs   []provider.ImageRequest
}

var translations = map[string]map[types.Language]string{
	"Hello": {types.LanguageSpanish: "Hola", types.LanguageFrench: "Bonjour", types.LanguagePortuguese: "Olá"},
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(map[string]int)}
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) record(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
}

func (g *fakeGateway) GenerateText(_ context.Context, req provider.TextRequest) (*provider.TextResult, error) {
	g.record("text")
	if g.textFn != nil {
		return g.textFn(req)
	}
	return &provider.TextResult{Text: "Join us this weekend #hope #community", TokensUsed: 12, Model: "fake-model"}, nil
}

func (g *fakeGateway) Translate(_ context.Context, req provider.TranslateRequest) (*provider.TranslateResult, error) {
	g.record("translate")
	if g.translateFn != nil {
		return g.translateFn(req)
	}
	text, ok := translations[req.Text][req.Target]
	if !ok {
		text = "[" + string(req.Target) + "] " + req.Text
	}
	return &provider.TranslateResult{TranslatedText: text, QualityScore: 0.85, TokensUsed: 5, Model: "fake-model"}, nil
}

func (g *fakeGateway) Enhance(_ context.Context, req provider.EnhanceRequest) (*provider.EnhanceResult, error) {
	g.record("enhance")
	return &provider.EnhanceResult{EnhancedText: strings.ToUpper(req.Text), TokensUsed: 3, Model: "fake-model"}, nil
}

func (g *fakeGateway) GenerateImage(_ context.Context, req provider.ImageRequest) (*provider.ImageResult, error) {
	g.record("image")
	g.mu.Lock()
	g.imageReqs = append(g.imageReqs, req)
	g.mu.Unlock()
	images := make([]types.Image, 0, req.N)
	for i := 0; i < req.N; i++ {
		images = append(images, types.Image{URL: "https://images.example.com/generated.png"})
	}
	return &provider.ImageResult{Images: images, Model: "fake-image"}, nil
}

// fakeTarget 可控的发布目标
type fakeTarget struct {
	name string

	mu       sync.Mutex
	requests []publisher.Request
	fail     error
}

func (t *fakeTarget) Name() string { return t.name }

func (t *fakeTarget) Publish(_ context.Context, req publisher.Request) (*publisher.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	if t.fail != nil {
		return nil, t.fail
	}
	return &publisher.Result{ExternalID: t.name + "-ext-1"}, nil
}

func (t *fakeTarget) setFail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = err
}

func (t *fakeTarget) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *fakeTarget) last() publisher.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests[len(t.requests)-1]
}

// fixture 完整装配的服务层
type fixture struct {
	db       *gorm.DB
	gateway  *fakeGateway
	recorder *events.Recorder

	content      *fakeTarget
	social       *fakeTarget
	notification *fakeTarget

	taskMgr   integration.TaskManager
	workflows integration.WorkflowManager

	tasks      service.TaskService
	templates  service.TemplateService
	contents   service.ContentService
	generation service.GenerationService
	automation service.AutomationService
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	logger := quietLogger()
	f := &fixture{
		db:           db,
		gateway:      newFakeGateway(),
		recorder:     &events.Recorder{},
		content:      &fakeTarget{name: publisher.TargetContent},
		social:       &fakeTarget{name: publisher.TargetSocial},
		notification: &fakeTarget{name: publisher.TargetNotification},
	}
	registry := publisher.NewRegistry(f.content, f.social, f.notification)
	authorizer := auth.NewRoleAuthorizer(nil, "", nil)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	f.taskMgr = integration.NewTaskManager(db, statemachine.NewStateMachine())
	contentMgr := integration.NewContentManager(db)
	templateMgr := integration.NewTemplateManager(db, cache.NewMemoryCache(), time.Minute)
	f.workflows = integration.NewWorkflowManager(db)

	f.tasks = service.NewTaskService(f.taskMgr, authorizer, nil, audit, f.recorder, logger)
	f.templates = service.NewTemplateService(templateMgr, authorizer, audit, f.recorder, logger, 0)
	f.contents = service.NewContentService(contentMgr, f.taskMgr, registry, authorizer, audit, f.recorder, logger)
	f.generation = service.NewGenerationService(f.tasks, contentMgr, f.gateway, 2, []string{"es", "fr", "pt"})
	f.automation = service.NewAutomationService(service.AutomationDeps{
		Workflows:   f.workflows,
		Tasks:       f.tasks,
		Generation:  f.generation,
		Templates:   f.templates,
		Contents:    f.contents,
		Gateway:     f.gateway,
		Registry:    registry,
		Authorizer:  authorizer,
		AuditLogSvc: audit,
		Publisher:   f.recorder,
		Logger:      logger,
	})

	f.tasks.RegisterExecutor(types.TaskTypeContentGeneration, service.NewContentExecutor(f.gateway, f.templates))
	f.tasks.RegisterExecutor(types.TaskTypeTranslation, service.NewTranslationExecutor(f.gateway, f.taskMgr, contentMgr))
	f.tasks.RegisterExecutor(types.TaskTypeImageGeneration, service.NewImageExecutor(f.gateway))
	f.tasks.RegisterExecutor(types.TaskTypeContentEnhancement, service.NewEnhancementExecutor(f.gateway))
	f.tasks.RegisterExecutor(types.TaskTypeAutomation, f.automation.Executor())
	return f
}

// generateContent 运行一个社交帖子生成任务,返回任务与生成内容 ID
func (f *fixture) generateContent(t *testing.T, ctx context.Context, requiresApproval bool) (string, string) {
	task, err := f.tasks.CreateAndExecute(ctx, &service.CreateTaskRequest{
		TaskType:         types.TaskTypeContentGeneration,
		InputData:        []byte(`{"content_type":"social_post","topic":"volunteer drive","platform":"instagram"}`),
		RequiresApproval: requiresApproval,
	})
	require.NoError(t, err)
	require.Equal(t, string(types.TaskStatusCompleted), task.Status)

	contents, err := f.taskMgr.Contents(task.ID)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	return task.ID, contents[0].ID
}
