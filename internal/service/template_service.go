package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/metrics"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/render"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/mission-engadi/ai-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// DefaultSuggestLimit 模板推荐数量
const DefaultSuggestLimit = 5

// TemplateService 模板服务接口
type TemplateService interface {
	Create(ctx context.Context, req *CreateTemplateRequest) (*model.ContentTemplateModel, error)
	Get(id string) (*model.ContentTemplateModel, error)
	Update(ctx context.Context, id string, req *UpdateTemplateRequest) (*model.ContentTemplateModel, error)
	Delete(ctx context.Context, id string) error
	List(filter *repository.TemplateFilter, page repository.Page) ([]*model.ContentTemplateModel, int64, error)
	// Apply 渲染模板并递增使用次数
	Apply(ctx context.Context, id string, values map[string]interface{}) (*ApplyResult, error)
	// Preview 渲染模板,不计入使用次数
	Preview(ctx context.Context, id string, values map[string]interface{}) (*ApplyResult, error)
	Suggest(ctx context.Context, req *SuggestRequest) ([]*TemplateSuggestion, error)
}

// CreateTemplateRequest 创建模板请求
// @Description 创建内容模板的请求参数,variables 省略时由模板文本推导
type CreateTemplateRequest struct {
	Name         string   `json:"name" example:"Weekly newsletter" binding:"required"`          // 模板名称
	Description  string   `json:"description" example:"Newsletter intro"`                       // 模板描述
	ContentType  string   `json:"content_type" example:"newsletter" binding:"required"`         // 内容类型
	Language     string   `json:"language" example:"en"`                                         // 语言
	Platform     *string  `json:"platform" example:"email"`                                      // 平台
	TemplateText string   `json:"template_text" example:"Hello {name}" binding:"required"`      // 模板文本
	Variables    []string `json:"variables" example:"name"`                                      // 声明的变量
	Active       *bool    `json:"active" example:"true"`                                         // 是否启用
}

// UpdateTemplateRequest 更新模板请求,未提供的字段保持不变
type UpdateTemplateRequest struct {
	Name         *string  `json:"name"`
	Description  *string  `json:"description"`
	ContentType  *string  `json:"content_type"`
	Language     *string  `json:"language"`
	Platform     *string  `json:"platform"`
	TemplateText *string  `json:"template_text"`
	Variables    []string `json:"variables"`
	Active       *bool    `json:"active"`
}

// ApplyRequest 渲染请求
type ApplyRequest struct {
	Variables map[string]interface{} `json:"variables" swaggertype:"object"`
}

// ApplyResult 渲染结果
type ApplyResult struct {
	TemplateID string   `json:"template_id"`
	Text       string   `json:"rendered_text"`
	Used       []string `json:"used_variables"`
	Ignored    []string `json:"ignored_variables,omitempty"`
	Warning    string   `json:"warning,omitempty"`
}

// SuggestRequest 模板推荐请求
type SuggestRequest struct {
	ContentType string  `json:"content_type" example:"social_post" binding:"required"`
	Context     string  `json:"context" example:"volunteer drive this weekend"`
	Language    *string `json:"language" example:"en"`
	Platform    *string `json:"platform" example:"instagram"`
	Limit       int     `json:"limit" example:"5"`
}

// TemplateSuggestion 推荐结果
type TemplateSuggestion struct {
	*TemplateView
	Score int `json:"score"`
}

// templateService 模板服务实现
type templateService struct {
	templateMgr  integration.TemplateManager
	authorizer   auth.Authorizer
	auditLogSvc  AuditLogService
	events       eventEmitter
	logger       logrus.FieldLogger
	suggestLimit int
}

// NewTemplateService 创建模板服务
func NewTemplateService(
	templateMgr integration.TemplateManager,
	authorizer auth.Authorizer,
	auditLogSvc AuditLogService,
	publisher events.Publisher,
	logger logrus.FieldLogger,
	suggestLimit int,
) TemplateService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if authorizer == nil {
		authorizer = auth.NewRoleAuthorizer(nil, "", nil)
	}
	if suggestLimit <= 0 {
		suggestLimit = DefaultSuggestLimit
	}
	return &templateService{
		templateMgr:  templateMgr,
		authorizer:   authorizer,
		auditLogSvc:  auditLogSvc,
		events:       newEventEmitter(publisher, logger),
		logger:       logger.WithField("component", "template_service"),
		suggestLimit: suggestLimit,
	}
}

// validateTemplate 校验模板字段,声明的变量必须与文本中引用的变量一致
func validateTemplate(tpl *model.ContentTemplateModel, variables []string) error {
	if err := utils.ValidateName(tpl.Name); err != nil {
		return types.NewValidationError("invalid name: %v", err)
	}
	if !types.ContentType(tpl.ContentType).Valid() {
		return types.NewValidationError("content_type %q is not supported", tpl.ContentType)
	}
	if !types.Language(tpl.Language).Valid() {
		return types.NewValidationError("language %q is not supported", tpl.Language)
	}
	if strings.TrimSpace(tpl.TemplateText) == "" {
		return types.NewValidationError("template_text is required")
	}
	return render.CheckDeclared(tpl.TemplateText, variables)
}

func encodeVariables(variables []string) []byte {
	if variables == nil {
		variables = []string{}
	}
	data, _ := json.Marshal(variables)
	return data
}

// Create 创建模板
func (s *templateService) Create(ctx context.Context, req *CreateTemplateRequest) (*model.ContentTemplateModel, error) {
	// 1. 构建模板对象
	tpl := &model.ContentTemplateModel{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		ContentType:  req.ContentType,
		Language:     req.Language,
		Platform:     req.Platform,
		TemplateText: req.TemplateText,
		Active:       true,
		CreatedBy:    operatorOf(ctx),
	}
	if tpl.Language == "" {
		tpl.Language = string(types.LanguageEnglish)
	}
	if req.Active != nil {
		tpl.Active = *req.Active
	}

	// 2. 校验变量声明
	variables := req.Variables
	if variables == nil {
		variables = render.Extract(req.TemplateText)
	}
	if err := validateTemplate(tpl, variables); err != nil {
		return nil, err
	}
	tpl.Variables = encodeVariables(variables)

	// 3. 保存
	if err := s.templateMgr.Create(tpl); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditLogSvc, "create", events.ResourceTemplate, tpl.ID, map[string]interface{}{"name": tpl.Name})
	return tpl, nil
}

// Get 获取模板
func (s *templateService) Get(id string) (*model.ContentTemplateModel, error) {
	return s.templateMgr.Get(id)
}

// Update 更新模板
func (s *templateService) Update(ctx context.Context, id string, req *UpdateTemplateRequest) (*model.ContentTemplateModel, error) {
	tpl, err := s.templateMgr.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.CanAccess(identityOf(ctx), tpl.CreatedBy) {
		return nil, types.NewForbiddenError("only the owner or an admin can update template %s", id)
	}

	if req.Name != nil {
		tpl.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		tpl.Description = *req.Description
	}
	if req.ContentType != nil {
		tpl.ContentType = *req.ContentType
	}
	if req.Language != nil {
		tpl.Language = *req.Language
	}
	if req.Platform != nil {
		tpl.Platform = req.Platform
	}
	if req.TemplateText != nil {
		tpl.TemplateText = *req.TemplateText
	}
	if req.Active != nil {
		tpl.Active = *req.Active
	}

	// 文本变化而未重新声明变量时,用原有声明校验新文本
	variables := integration.TemplateVariables(tpl)
	if req.Variables != nil {
		variables = req.Variables
	}
	if err := validateTemplate(tpl, variables); err != nil {
		return nil, err
	}
	tpl.Variables = encodeVariables(variables)

	if err := s.templateMgr.Update(tpl); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditLogSvc, "update", events.ResourceTemplate, id, req)
	return s.templateMgr.Get(id)
}

// Delete 删除模板
func (s *templateService) Delete(ctx context.Context, id string) error {
	tpl, err := s.templateMgr.Get(id)
	if err != nil {
		return err
	}
	if !s.authorizer.CanAccess(identityOf(ctx), tpl.CreatedBy) {
		return types.NewForbiddenError("only the owner or an admin can delete template %s", id)
	}
	if err := s.templateMgr.Delete(id); err != nil {
		return err
	}
	recordAudit(ctx, s.auditLogSvc, "delete", events.ResourceTemplate, id, nil)
	return nil
}

// List 分页查询模板
func (s *templateService) List(filter *repository.TemplateFilter, page repository.Page) ([]*model.ContentTemplateModel, int64, error) {
	return s.templateMgr.List(filter, page)
}

func (s *templateService) render(ctx context.Context, id string, values map[string]interface{}) (*ApplyResult, error) {
	tpl, err := s.templateMgr.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tpl.Active {
		return nil, types.NewInvalidStateError("template %s is inactive", id)
	}

	result, err := render.Render(tpl.TemplateText, integration.TemplateVariables(tpl), values)
	if err != nil {
		metrics.RecordTemplateRender("failed")
		return nil, err
	}

	out := &ApplyResult{
		TemplateID: id,
		Text:       result.Text,
		Used:       result.Used,
		Ignored:    result.Ignored,
	}
	if warning := result.Warning(); warning != nil {
		out.Warning = warning.Error()
		s.logger.WithFields(logrus.Fields{
			"template_id": id,
			"ignored":     result.Ignored,
		}).Warn("ignored undeclared template variables")
	}
	return out, nil
}

// Apply 渲染成功后原子递增使用次数,每次成功渲染恰好一次
func (s *templateService) Apply(ctx context.Context, id string, values map[string]interface{}) (*ApplyResult, error) {
	out, err := s.render(ctx, id, values)
	if err != nil {
		return nil, err
	}
	if err := s.templateMgr.RecordUsage(id); err != nil {
		return nil, err
	}
	metrics.RecordTemplateRender("success")

	s.events.emit(ctx, events.TemplateApplied, events.ResourceTemplate, id, map[string]interface{}{
		"used_variables": out.Used,
	})
	return out, nil
}

// Preview 渲染预览
func (s *templateService) Preview(ctx context.Context, id string, values map[string]interface{}) (*ApplyResult, error) {
	return s.render(ctx, id, values)
}

// Suggest 按关键词重合度推荐模板,结果确定
func (s *templateService) Suggest(ctx context.Context, req *SuggestRequest) ([]*TemplateSuggestion, error) {
	if !types.ContentType(req.ContentType).Valid() {
		return nil, types.NewValidationError("content_type %q is not supported", req.ContentType)
	}
	templates, err := s.templateMgr.Active(req.ContentType, req.Language, req.Platform)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	contextTokens := tokenize(req.Context)
	suggestions := make([]*TemplateSuggestion, 0, len(templates))
	for _, tpl := range templates {
		var words []string
		words = append(words, integration.TemplateVariables(tpl)...)
		words = append(words, tpl.Name, tpl.Description)
		if tpl.Platform != nil {
			words = append(words, *tpl.Platform)
		}
		suggestions = append(suggestions, &TemplateSuggestion{
			TemplateView: NewTemplateView(tpl),
			Score:        overlap(contextTokens, tokenize(strings.Join(words, " "))),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		switch {
		case a.LastUsedAt != nil && b.LastUsedAt == nil:
			return true
		case a.LastUsedAt == nil && b.LastUsedAt != nil:
			return false
		case a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt):
			return a.LastUsedAt.After(*b.LastUsedAt)
		}
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		return a.ID < b.ID
	})

	limit := req.Limit
	if limit <= 0 || limit > s.suggestLimit {
		limit = s.suggestLimit
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

// tokenize 小写分词,变量名中的下划线视为分隔符
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(word) > 1 {
			tokens[word] = true
		}
	}
	return tokens
}

func overlap(a, b map[string]bool) int {
	n := 0
	for token := range a {
		if b[token] {
			n++
		}
	}
	return n
}
