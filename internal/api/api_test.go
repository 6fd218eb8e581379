package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/api"
	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/cache"
	"github.com/mission-engadi/ai-service/internal/config"
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

func init() {
	gin.SetMode(gin.TestMode)
}

// stubGateway 固定输出的 provider
type stubGateway struct {
	mu    sync.Mutex
	calls map[string]int
	fail  error
}

func (g *stubGateway) record(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
	return g.fail
}

func (g *stubGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *stubGateway) GenerateText(_ context.Context, req provider.TextRequest) (*provider.TextResult, error) {
	if err := g.record("text"); err != nil {
		return nil, err
	}
	if strings.Contains(req.Prompt, "Language code:") {
		return &provider.TextResult{Text: "es", TokensUsed: 1, Model: "stub"}, nil
	}
	return &provider.TextResult{Text: "Serve your neighbors this Saturday #hope", TokensUsed: 10, Model: "stub"}, nil
}

func (g *stubGateway) Translate(_ context.Context, req provider.TranslateRequest) (*provider.TranslateResult, error) {
	if err := g.record("translate"); err != nil {
		return nil, err
	}
	return &provider.TranslateResult{TranslatedText: "[" + string(req.Target) + "] " + req.Text, QualityScore: 0.9, TokensUsed: 3, Model: "stub"}, nil
}

func (g *stubGateway) Enhance(_ context.Context, req provider.EnhanceRequest) (*provider.EnhanceResult, error) {
	if err := g.record("enhance"); err != nil {
		return nil, err
	}
	return &provider.EnhanceResult{EnhancedText: strings.ToUpper(req.Text), TokensUsed: 2, Model: "stub"}, nil
}

func (g *stubGateway) GenerateImage(_ context.Context, req provider.ImageRequest) (*provider.ImageResult, error) {
	if err := g.record("image"); err != nil {
		return nil, err
	}
	images := make([]types.Image, 0, req.N)
	for i := 0; i < req.N; i++ {
		images = append(images, types.Image{URL: "https://images.example.com/a.png"})
	}
	return &provider.ImageResult{Images: images, Model: "stub-image"}, nil
}

// stubTarget 记录请求的发布目标
type stubTarget struct {
	name string
	mu   sync.Mutex
	reqs []publisher.Request
	fail error
}

func (t *stubTarget) Name() string { return t.name }

func (t *stubTarget) Publish(_ context.Context, req publisher.Request) (*publisher.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reqs = append(t.reqs, req)
	if t.fail != nil {
		return nil, t.fail
	}
	return &publisher.Result{ExternalID: t.name + "-42"}, nil
}

// testServer 完整装配的 HTTP 服务
type testServer struct {
	router  *gin.Engine
	db      *gorm.DB
	gateway *stubGateway
	social  *stubTarget
}

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

func newTestServer(t *testing.T) *testServer {
	db := setupTestDB(t)
	logger := quietLogger()
	ts := &testServer{
		db:      db,
		gateway: &stubGateway{calls: make(map[string]int)},
		social:  &stubTarget{name: publisher.TargetSocial},
	}
	registry := publisher.NewRegistry(
		&stubTarget{name: publisher.TargetContent},
		ts.social,
		&stubTarget{name: publisher.TargetNotification},
	)
	authorizer := auth.NewRoleAuthorizer(nil, "", nil)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	var recorder events.Recorder

	taskMgr := integration.NewTaskManager(db, statemachine.NewStateMachine())
	contentMgr := integration.NewContentManager(db)
	templateMgr := integration.NewTemplateManager(db, cache.NewMemoryCache(), time.Minute)

	tasks := service.NewTaskService(taskMgr, authorizer, nil, audit, &recorder, logger)
	templates := service.NewTemplateService(templateMgr, authorizer, audit, &recorder, logger, 0)
	contents := service.NewContentService(contentMgr, taskMgr, registry, authorizer, audit, &recorder, logger)
	generation := service.NewGenerationService(tasks, contentMgr, ts.gateway, 2, []string{"es", "fr"})
	automation := service.NewAutomationService(service.AutomationDeps{
		Workflows:   integration.NewWorkflowManager(db),
		Tasks:       tasks,
		Generation:  generation,
		Templates:   templates,
		Contents:    contents,
		Gateway:     ts.gateway,
		Registry:    registry,
		Authorizer:  authorizer,
		AuditLogSvc: audit,
		Publisher:   &recorder,
		Logger:      logger,
	})

	tasks.RegisterExecutor(types.TaskTypeContentGeneration, service.NewContentExecutor(ts.gateway, templates))
	tasks.RegisterExecutor(types.TaskTypeTranslation, service.NewTranslationExecutor(ts.gateway, taskMgr, contentMgr))
	tasks.RegisterExecutor(types.TaskTypeImageGeneration, service.NewImageExecutor(ts.gateway))
	tasks.RegisterExecutor(types.TaskTypeContentEnhancement, service.NewEnhancementExecutor(ts.gateway))
	tasks.RegisterExecutor(types.TaskTypeAutomation, automation.Executor())

	ts.router = api.SetupRoutes(api.RouterDeps{
		Config:     config.Default(),
		Logger:     logger,
		DB:         db,
		Authorizer: authorizer,
		Tasks:      tasks,
		Templates:  templates,
		Contents:   contents,
		Generation: generation,
		Automation: automation,
		AuditLogs:  audit,
	})
	return ts
}

// do 发送请求,user 为空时使用开发模式默认的管理员身份
func (ts *testServer) do(t *testing.T, method, path string, body interface{}, user ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(user) > 0 {
		req.Header.Set("X-User-ID", user[0])
		req.Header.Set("X-User-Roles", strings.Join(user[1:], ","))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// requireError 校验统一错误响应
func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) map[string]interface{} {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decode(t, w)
	require.Equal(t, code, body["error_code"])
	require.NotEmpty(t, body["detail"])
	require.NotEmpty(t, body["timestamp"])
	return body
}

// generateSocial 生成一条社交帖子,返回任务详情
func (ts *testServer) generateSocial(t *testing.T, requiresApproval bool) map[string]interface{} {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/content/generate/social", map[string]interface{}{
		"topic":             "volunteer drive",
		"platform":          "instagram",
		"requires_approval": requiresApproval,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func firstContentID(t *testing.T, detail map[string]interface{}) string {
	t.Helper()
	contents, ok := detail["generated_content"].([]interface{})
	require.True(t, ok, "generated_content missing")
	require.NotEmpty(t, contents)
	return contents[0].(map[string]interface{})["id"].(string)
}

func jsonUnmarshal(w *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}
