package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mission-engadi/ai-service/internal/publisher"
	"github.com/mission-engadi/ai-service/internal/provider"
	"github.com/mission-engadi/ai-service/internal/types"
)

// 步骤动作
const (
	ActionGenerateText       = "generate_text"
	ActionGenerateSocialPost = "generate_social_post"
	ActionGenerateContent    = "generate_content"
	ActionTranslate          = "translate"
	ActionAutoTranslate      = "auto_translate"
	ActionEnhance            = "enhance"
	ActionGenerateImage      = "generate_image"
	ActionRenderTemplate     = "render_template"
	ActionPublish            = "publish"
	ActionNotify             = "notify"
)

// 步骤与执行历史状态
const (
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)

// WorkflowStep 工作流步骤定义
type WorkflowStep struct {
	Name   string                 `json:"name,omitempty"`
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// WorkflowConfiguration 工作流配置,steps 之外的字段原样保存
type WorkflowConfiguration struct {
	Steps []WorkflowStep `json:"steps"`
}

// StepResult 单个步骤的执行结果
type StepResult struct {
	Index      int                    `json:"index"`
	Name       string                 `json:"name,omitempty"`
	Action     string                 `json:"action"`
	Status     string                 `json:"status"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// Action 步骤动作,参数中的引用已在调用前解析
type Action func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)

// parseConfiguration 解析并校验工作流配置
func parseConfiguration(raw []byte, actions map[string]Action) (*WorkflowConfiguration, error) {
	if len(raw) == 0 {
		return nil, types.NewValidationError("configuration is required")
	}
	var cfg WorkflowConfiguration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, types.NewValidationError("invalid configuration: %v", err)
	}
	if len(cfg.Steps) == 0 {
		return nil, types.NewValidationError("configuration.steps must not be empty")
	}

	names := make(map[string]bool)
	for i, step := range cfg.Steps {
		if _, ok := actions[step.Action]; !ok {
			return nil, types.NewValidationError("step %d: unknown action %q", i, step.Action)
		}
		if step.Name == "" {
			continue
		}
		if _, err := strconv.Atoi(step.Name); err == nil {
			return nil, types.NewValidationError("step %d: name %q must not be numeric", i, step.Name)
		}
		if names[step.Name] {
			return nil, types.NewValidationError("step %d: duplicate step name %q", i, step.Name)
		}
		names[step.Name] = true
	}
	return &cfg, nil
}

var referencePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// stepScope 引用解析的上下文:触发数据与已完成的步骤
type stepScope struct {
	trigger map[string]interface{}
	steps   []StepResult
}

// resolve 递归解析参数中的引用
// 整个字符串恰好是一个引用时保留原始类型,否则按文本插值
func (s *stepScope) resolve(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return s.resolveString(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			resolved, err := s.resolve(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			resolved, err := s.resolve(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func (s *stepScope) resolveString(text string) (interface{}, error) {
	loc := referencePattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil
	}
	if loc[0] == 0 && loc[1] == len(text) {
		return s.lookup(text[loc[2]:loc[3]])
	}

	var firstErr error
	out := referencePattern.ReplaceAllStringFunc(text, func(match string) string {
		value, err := s.lookup(match[2 : len(match)-1])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return ""
		}
		return stringify(value)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// lookup 解析 steps.<ref>.output.<path> 或 trigger.<path>
func (s *stepScope) lookup(expr string) (interface{}, error) {
	parts := strings.Split(strings.TrimSpace(expr), ".")
	switch parts[0] {
	case "trigger":
		return walkPath(s.trigger, parts[1:], expr)
	case "steps":
		if len(parts) < 3 || parts[2] != "output" {
			return nil, types.NewValidationError("invalid reference ${%s}, expected steps.<ref>.output.<path>", expr)
		}
		step, ok := s.step(parts[1])
		if !ok {
			return nil, types.NewValidationError("reference ${%s}: step %q has not run", expr, parts[1])
		}
		return walkPath(step.Output, parts[3:], expr)
	default:
		return nil, types.NewValidationError("invalid reference ${%s}", expr)
	}
}

// step 按下标或名称查找已完成的步骤
func (s *stepScope) step(ref string) (*StepResult, bool) {
	if idx, err := strconv.Atoi(ref); err == nil {
		if idx < 0 || idx >= len(s.steps) {
			return nil, false
		}
		return &s.steps[idx], true
	}
	for i := range s.steps {
		if s.steps[i].Name == ref {
			return &s.steps[i], true
		}
	}
	return nil, false
}

func walkPath(root map[string]interface{}, path []string, expr string) (interface{}, error) {
	var current interface{} = root
	for _, key := range path {
		switch node := current.(type) {
		case map[string]interface{}:
			value, ok := node[key]
			if !ok {
				return nil, types.NewValidationError("reference ${%s}: field %q not found", expr, key)
			}
			current = value
		case []interface{}:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, types.NewValidationError("reference ${%s}: index %q out of range", expr, key)
			}
			current = node[idx]
		default:
			return nil, types.NewValidationError("reference ${%s}: field %q not found", expr, key)
		}
	}
	if current == nil && len(path) > 0 {
		return nil, types.NewValidationError("reference ${%s} is null", expr)
	}
	return current, nil
}

func stringify(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}

// decodeParams 通过 JSON 将参数解码到结构体
func decodeParams(params map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return types.NewValidationError("invalid params: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return types.NewValidationError("invalid params: %v", err)
	}
	return nil
}

// defaultActions 组装内置步骤动作
func (s *automationService) defaultActions() map[string]Action {
	return map[string]Action{
		ActionGenerateText:       s.generateText,
		ActionGenerateSocialPost: s.taskAction(types.TaskTypeContentGeneration, map[string]interface{}{"content_type": string(types.ContentTypeSocialPost)}),
		ActionGenerateContent:    s.taskAction(types.TaskTypeContentGeneration, map[string]interface{}{"content_type": string(types.ContentTypeArticle)}),
		ActionTranslate:          s.taskAction(types.TaskTypeTranslation, nil),
		ActionEnhance:            s.taskAction(types.TaskTypeContentEnhancement, nil),
		ActionGenerateImage:      s.taskAction(types.TaskTypeImageGeneration, nil),
		ActionAutoTranslate:      s.autoTranslate,
		ActionRenderTemplate:     s.renderTemplate,
		ActionPublish:            s.publish,
		ActionNotify:             s.notify,
	}
}

// generateText 直接调用 provider,不创建任务
func (s *automationService) generateText(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	var p struct {
		Prompt        string   `json:"prompt"`
		SystemMessage string   `json:"system_message"`
		MaxTokens     int      `json:"max_tokens"`
		Temperature   *float64 `json:"temperature"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return nil, types.NewValidationError("prompt is required")
	}
	result, err := s.gateway.GenerateText(ctx, provider.TextRequest{
		Prompt:        p.Prompt,
		SystemMessage: p.SystemMessage,
		MaxTokens:     p.MaxTokens,
		Temperature:   p.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"text":        strings.TrimSpace(result.Text),
		"tokens_used": result.TokensUsed,
		"model":       result.Model,
	}, nil
}

// taskAction 以参数为 input_data 创建并执行子任务
func (s *automationService) taskAction(taskType types.TaskType, defaults map[string]interface{}) Action {
	return func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		input := make(map[string]interface{}, len(params)+len(defaults))
		for k, v := range defaults {
			input[k] = v
		}
		requiresApproval := false
		for k, v := range params {
			if k == "requires_approval" {
				requiresApproval, _ = v.(bool)
				continue
			}
			input[k] = v
		}
		data, err := json.Marshal(input)
		if err != nil {
			return nil, types.NewValidationError("invalid params: %v", err)
		}

		task, err := s.tasks.CreateAndExecute(ctx, &CreateTaskRequest{
			TaskType:         taskType,
			InputData:        data,
			RequiresApproval: requiresApproval,
		})
		if err != nil {
			return nil, err
		}
		return taskOutput(task.ID, task.Status, task.OutputData)
	}
}

func taskOutput(taskID, status string, outputData []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if len(outputData) > 0 {
		if err := json.Unmarshal(outputData, &out); err != nil {
			return nil, fmt.Errorf("failed to decode task output: %w", err)
		}
	}
	out["task_id"] = taskID
	out["status"] = status
	return out, nil
}

func (s *automationService) autoTranslate(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	var req AutoTranslateRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	if req.ContentID == "" {
		return nil, types.NewValidationError("content_id is required")
	}
	task, err := s.generation.AutoTranslate(ctx, &req)
	if err != nil {
		return nil, err
	}
	return taskOutput(task.ID, task.Status, task.OutputData)
}

func (s *automationService) renderTemplate(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	var p struct {
		TemplateID string                 `json:"template_id"`
		Variables  map[string]interface{} `json:"variables"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.TemplateID == "" {
		return nil, types.NewValidationError("template_id is required")
	}
	result, err := s.templates.Apply(ctx, p.TemplateID, p.Variables)
	if err != nil {
		return nil, err
	}
	return toMap(result)
}

func (s *automationService) publish(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	var p struct {
		ContentID string `json:"content_id"`
		PublishRequest
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ContentID == "" || p.TargetService == "" {
		return nil, types.NewValidationError("content_id and target_service are required")
	}
	result, err := s.contents.Publish(ctx, p.ContentID, &p.PublishRequest)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"content_id":     result.Content.ID,
		"publish_target": result.Content.PublishTarget,
		"external_id":    result.Content.ExternalID,
		"published":      result.Content.Published,
	}, nil
}

// notify 直接调用通知服务,不关联生成内容
func (s *automationService) notify(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	var p struct {
		Subject          string   `json:"subject"`
		Message          string   `json:"message"`
		Recipients       []string `json:"recipients"`
		NotificationType string   `json:"notification_type"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Message) == "" {
		return nil, types.NewValidationError("message is required")
	}
	if s.registry == nil {
		return nil, types.NewValidationError("notification service is not configured")
	}
	target, ok := s.registry.Get(publisher.TargetNotification)
	if !ok {
		return nil, types.NewValidationError("notification service is not configured")
	}

	req := publisher.Request{
		Title:            p.Subject,
		Body:             p.Message,
		Subject:          p.Subject,
		Recipients:       p.Recipients,
		NotificationType: p.NotificationType,
	}
	if identity := identityOf(ctx); identity != nil {
		req.AuthToken = identity.Token
	}
	res, err := target.Publish(ctx, req)
	if err != nil {
		return nil, types.NewPublishTargetError(target.Name(), err)
	}
	return map[string]interface{}{
		"target":      target.Name(),
		"external_id": res.ExternalID,
	}, nil
}
