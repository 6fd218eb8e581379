package service

import (
	"encoding/json"

	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/model"
)

// 模型中的 JSON 列在 API 中以对象形式输出

// TaskView 任务视图
type TaskView struct {
	*model.TaskModel
	InputData  json.RawMessage `json:"input_data" swaggertype:"object"`
	OutputData json.RawMessage `json:"output_data,omitempty" swaggertype:"object"`
}

// NewTaskView 创建任务视图
func NewTaskView(task *model.TaskModel) *TaskView {
	return &TaskView{
		TaskModel:  task,
		InputData:  rawJSON(task.InputData),
		OutputData: rawJSON(task.OutputData),
	}
}

// TaskDetail 任务详情,包含生成内容、翻译子任务与审批记录
type TaskDetail struct {
	*TaskView
	Contents        []*ContentView               `json:"generated_content"`
	TranslationJobs []*model.TranslationJobModel `json:"translation_jobs,omitempty"`
	ApprovalRecord  *model.ApprovalRecordModel   `json:"approval_record,omitempty"`
}

// ContentView 生成内容视图
type ContentView struct {
	*model.GeneratedContentModel
	Metadata json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
}

// NewContentView 创建生成内容视图
func NewContentView(content *model.GeneratedContentModel) *ContentView {
	return &ContentView{GeneratedContentModel: content, Metadata: rawJSON(content.Metadata)}
}

// NewContentViews 批量创建生成内容视图
func NewContentViews(contents []*model.GeneratedContentModel) []*ContentView {
	views := make([]*ContentView, 0, len(contents))
	for _, c := range contents {
		views = append(views, NewContentView(c))
	}
	return views
}

// TemplateView 模板视图
type TemplateView struct {
	*model.ContentTemplateModel
	Variables []string `json:"variables"`
}

// NewTemplateView 创建模板视图
func NewTemplateView(tpl *model.ContentTemplateModel) *TemplateView {
	vars := integration.TemplateVariables(tpl)
	if vars == nil {
		vars = []string{}
	}
	return &TemplateView{ContentTemplateModel: tpl, Variables: vars}
}

// WorkflowView 工作流视图
type WorkflowView struct {
	*model.WorkflowModel
	Configuration json.RawMessage `json:"configuration" swaggertype:"object"`
}

// NewWorkflowView 创建工作流视图
func NewWorkflowView(wf *model.WorkflowModel) *WorkflowView {
	return &WorkflowView{WorkflowModel: wf, Configuration: rawJSON(wf.Configuration)}
}

// ExecutionView 工作流执行历史视图
type ExecutionView struct {
	*model.WorkflowExecutionModel
	TriggerData json.RawMessage `json:"trigger_data,omitempty" swaggertype:"object"`
	Steps       []StepResult    `json:"steps"`
}

// NewExecutionView 创建执行历史视图
func NewExecutionView(execution *model.WorkflowExecutionModel) *ExecutionView {
	view := &ExecutionView{
		WorkflowExecutionModel: execution,
		TriggerData:            rawJSON(execution.TriggerData),
		Steps:                  []StepResult{},
	}
	if len(execution.Steps) > 0 {
		_ = json.Unmarshal(execution.Steps, &view.Steps)
	}
	return view
}

func rawJSON(data []byte) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}
