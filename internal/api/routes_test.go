package api_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskAPI_CreateExecuteApprove 测试任务创建、执行、审批与详情
func TestTaskAPI_CreateExecuteApprove(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/tasks", map[string]interface{}{
		"task_type":         "content_generation",
		"input_data":        map[string]interface{}{"content_type": "social_post", "topic": "food drive"},
		"requires_approval": true,
	}, "writer-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	task := decode(t, w)
	id := task["id"].(string)
	assert.Equal(t, "pending", task["status"])
	assert.Equal(t, "writer-1", task["created_by"])
	assert.Equal(t, "food drive", task["input_data"].(map[string]interface{})["topic"])

	// 未完成的任务不能审批
	w = ts.do(t, http.MethodPost, "/tasks/"+id+"/approve", map[string]interface{}{"comment": "early"})
	requireError(t, w, http.StatusBadRequest, string(types.CodeInvalidState))

	w = ts.do(t, http.MethodPost, "/tasks/"+id+"/execute", nil, "writer-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", decode(t, w)["status"])
	assert.Equal(t, 1, ts.gateway.count("text"))

	// 重复执行直接返回当前任务,不再调用 provider
	w = ts.do(t, http.MethodPost, "/tasks/"+id+"/execute", nil, "writer-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decode(t, w)["status"])
	assert.Equal(t, 1, ts.gateway.count("text"))

	// 无审批角色
	w = ts.do(t, http.MethodPost, "/tasks/"+id+"/approve", nil, "writer-1")
	requireError(t, w, http.StatusForbidden, string(types.CodeForbidden))

	w = ts.do(t, http.MethodPost, "/tasks/"+id+"/approve", map[string]interface{}{"comment": "ship it"}, "reviewer", "approver")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode(t, w)
	assert.Equal(t, true, approved["approved"])
	assert.Equal(t, "reviewer", approved["approved_by"])

	w = ts.do(t, http.MethodGet, "/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	assert.Len(t, detail["generated_content"], 1)
	assert.NotNil(t, detail["approval_record"])

	w = ts.do(t, http.MethodGet, "/tasks/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []map[string]interface{}
	require.NoError(t, jsonUnmarshal(w, &history))
	states := make([]interface{}, 0, len(history))
	for _, h := range history {
		states = append(states, h["to_state"])
	}
	assert.ElementsMatch(t, []interface{}{"pending", "processing", "completed"}, states)
}

// TestTaskAPI_Validation 测试任务请求校验与不存在的资源
func TestTaskAPI_Validation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/tasks", map[string]interface{}{
		"task_type":  "mind_reading",
		"input_data": map[string]interface{}{},
	})
	requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))

	w = ts.do(t, http.MethodPost, "/tasks", map[string]interface{}{"task_type": "translation"})
	requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))

	w = ts.do(t, http.MethodGet, "/tasks/6f1c1a52-0d8e-4bb4-9b7e-3f1f2b8a7c10", nil)
	requireError(t, w, http.StatusNotFound, string(types.CodeNotFound))

	w = ts.do(t, http.MethodGet, "/tasks?limit=500", nil)
	body := requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))
	assert.Contains(t, body["detail"], "between 0 and 100")

	// limit=0 使用默认分页大小
	w = ts.do(t, http.MethodGet, "/tasks?limit=0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 20, decode(t, w)["limit"])

	w = ts.do(t, http.MethodGet, "/tasks?skip=-1", nil)
	requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))
}

// TestTaskAPI_ListAndStatistics 测试分页响应结构与统计
func TestTaskAPI_ListAndStatistics(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		ts.generateSocial(t, false)
	}

	w := ts.do(t, http.MethodGet, "/tasks?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	assert.Len(t, page["items"], 2)
	assert.EqualValues(t, 3, page["total"])
	assert.EqualValues(t, 0, page["skip"])
	assert.EqualValues(t, 2, page["limit"])
	assert.Equal(t, true, page["has_more"])

	w = ts.do(t, http.MethodGet, "/tasks?skip=2&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode(t, w)
	assert.Len(t, page["items"], 1)
	assert.Equal(t, false, page["has_more"])

	w = ts.do(t, http.MethodGet, "/tasks?status=failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["total"])

	w = ts.do(t, http.MethodGet, "/tasks/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 3, stats["total_tasks"])
	assert.EqualValues(t, 3, stats["by_status"].(map[string]interface{})["completed"])
}

// TestTaskAPI_CancelAndDelete 测试取消与删除权限
func TestTaskAPI_CancelAndDelete(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/tasks", map[string]interface{}{
		"task_type":  "content_enhancement",
		"input_data": map[string]interface{}{"text": "their going", "enhancement_type": "grammar"},
	}, "writer-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = ts.do(t, http.MethodPost, "/tasks/"+id+"/cancel", map[string]interface{}{"reason": "duplicate"}, "writer-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decode(t, w)["status"])

	w = ts.do(t, http.MethodPost, "/tasks/"+id+"/execute", nil, "writer-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode(t, w)["status"])
	assert.Zero(t, ts.gateway.count("enhance"))

	w = ts.do(t, http.MethodDelete, "/tasks/"+id, nil, "someone-else")
	requireError(t, w, http.StatusForbidden, string(types.CodeForbidden))

	w = ts.do(t, http.MethodDelete, "/tasks/"+id, nil, "writer-1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/tasks/"+id, nil)
	requireError(t, w, http.StatusNotFound, string(types.CodeNotFound))
}

// TestTemplateAPI_Lifecycle 测试模板创建、渲染、预览与推荐
func TestTemplateAPI_Lifecycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/templates", map[string]interface{}{
		"name":          "Volunteer call",
		"content_type":  "social_post",
		"platform":      "instagram",
		"template_text": "Join {name} at {place} this weekend",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tpl := decode(t, w)
	id := tpl["id"].(string)
	assert.ElementsMatch(t, []interface{}{"name", "place"}, tpl["variables"])

	// 声明的变量与文本不一致
	w = ts.do(t, http.MethodPost, "/templates", map[string]interface{}{
		"name":          "Broken",
		"content_type":  "social_post",
		"template_text": "Hello {name}",
		"variables":     []string{"name", "city"},
	})
	requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))

	w = ts.do(t, http.MethodPost, "/templates/"+id+"/apply", map[string]interface{}{
		"variables": map[string]interface{}{"name": "Grace Church"},
	})
	body := requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeMissingVariable))
	assert.Contains(t, body["detail"], "place")

	w = ts.do(t, http.MethodPost, "/templates/"+id+"/apply?preview=true", map[string]interface{}{
		"variables": map[string]interface{}{"name": "Grace Church", "place": "the park", "extra": "x"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)
	assert.Equal(t, "Join Grace Church at the park this weekend", result["rendered_text"])
	assert.Equal(t, []interface{}{"extra"}, result["ignored_variables"])
	assert.NotEmpty(t, result["warning"])

	w = ts.do(t, http.MethodGet, "/templates/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["usage_count"])

	w = ts.do(t, http.MethodPost, "/templates/"+id+"/apply", map[string]interface{}{
		"variables": map[string]interface{}{"name": "Grace Church", "place": "the park"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/templates/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["usage_count"])

	w = ts.do(t, http.MethodPost, "/templates/suggest", map[string]interface{}{
		"content_type": "social_post",
		"context":      "volunteer weekend",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var suggestions []map[string]interface{}
	require.NoError(t, jsonUnmarshal(w, &suggestions))
	require.Len(t, suggestions, 1)
	assert.Equal(t, id, suggestions[0]["id"])

	w = ts.do(t, http.MethodPut, "/templates/"+id, map[string]interface{}{"name": "Hijack"}, "intruder")
	requireError(t, w, http.StatusForbidden, string(types.CodeForbidden))

	w = ts.do(t, http.MethodDelete, "/templates/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

// TestGenerationAPI_Content 测试内容生成端点与类型隔离
func TestGenerationAPI_Content(t *testing.T) {
	ts := newTestServer(t)

	detail := ts.generateSocial(t, false)
	assert.Equal(t, "completed", detail["status"])
	assert.Equal(t, "content_generation", detail["task_type"])
	assert.Equal(t, "social_post", detail["input_data"].(map[string]interface{})["content_type"])
	firstContentID(t, detail)

	id := detail["id"].(string)
	w := ts.do(t, http.MethodGet, "/content/generate/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 内容生成任务不能通过图片端点读取
	w = ts.do(t, http.MethodGet, "/images/"+id, nil)
	requireError(t, w, http.StatusNotFound, string(types.CodeNotFound))

	w = ts.do(t, http.MethodGet, "/content/generate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = ts.do(t, http.MethodPost, "/content/generate/batch", map[string]interface{}{
		"items": []map[string]interface{}{
			{"content_type": "article", "topic": "clean water"},
			{"content_type": "not_a_type", "topic": "x"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	batch := decode(t, w)
	assert.EqualValues(t, 1, batch["succeeded"])
	assert.EqualValues(t, 1, batch["failed"])
}

// TestGenerationAPI_ProviderUnavailable 测试 provider 不可用时的错误映射
func TestGenerationAPI_ProviderUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.fail = types.NewProviderUnavailableError(errors.New("connection refused"))

	w := ts.do(t, http.MethodPost, "/content/generate/article", map[string]interface{}{"topic": "clean water"})
	requireError(t, w, http.StatusServiceUnavailable, string(types.CodeProviderUnavailable))

	// 失败的任务已记录
	w = ts.do(t, http.MethodGet, "/tasks?status=failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

// TestGenerationAPI_Translation 测试翻译、语言检测与翻译历史
func TestGenerationAPI_Translation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/translation/translate", map[string]interface{}{
		"text":             "Hello",
		"source_language":  "en",
		"target_languages": []string{"es", "fr"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	detail := decode(t, w)
	assert.Equal(t, "completed", detail["status"])
	assert.Len(t, detail["translation_jobs"], 2)
	assert.Equal(t, 2, ts.gateway.count("translate"))

	w = ts.do(t, http.MethodPost, "/translation/translate", map[string]interface{}{
		"text":            "Hello",
		"source_language": "en",
		"target_language": "en",
	})
	requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))

	w = ts.do(t, http.MethodPost, "/translation/detect", map[string]interface{}{"text": "Hola amigos"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "es", decode(t, w)["language"])

	w = ts.do(t, http.MethodGet, "/translation/history?target_language=es", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

// TestGenerationAPI_AutoTranslate 测试对已有内容自动翻译到默认语言
func TestGenerationAPI_AutoTranslate(t *testing.T) {
	ts := newTestServer(t)
	contentID := firstContentID(t, ts.generateSocial(t, false))

	w := ts.do(t, http.MethodPost, "/translation/auto-translate", map[string]interface{}{"content_id": contentID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	detail := decode(t, w)
	assert.Len(t, detail["translation_jobs"], 2)
	assert.Len(t, detail["generated_content"], 2)
}

// TestGenerationAPI_Images 测试图片生成与变体参数
func TestGenerationAPI_Images(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/images/generate", map[string]interface{}{"prompt": "sunrise over a village", "n": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	detail := decode(t, w)
	images := detail["output_data"].(map[string]interface{})["images"].([]interface{})
	assert.Len(t, images, 2)

	w = ts.do(t, http.MethodPost, "/images/generate", map[string]interface{}{
		"prompt":           "x",
		"source_image_url": "https://images.example.com/src.png",
	})
	requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))

	w = ts.do(t, http.MethodPost, "/images/variation", map[string]interface{}{"prompt": "x"})
	requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))

	w = ts.do(t, http.MethodGet, "/images", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

// TestGenerationAPI_Enhancement 测试增强端点使用路径中的增强类型
func TestGenerationAPI_Enhancement(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/enhancement/grammar", map[string]interface{}{"text": "their going"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	detail := decode(t, w)
	assert.Equal(t, "grammar", detail["input_data"].(map[string]interface{})["enhancement_type"])
	assert.Equal(t, "THEIR GOING", detail["output_data"].(map[string]interface{})["enhanced_text"])

	w = ts.do(t, http.MethodPost, "/enhancement/tone", map[string]interface{}{"text": ""})
	requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))

	w = ts.do(t, http.MethodGet, "/enhancement/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

// TestContentAPI_Publish 测试发布、重复发布与发布记录
func TestContentAPI_Publish(t *testing.T) {
	ts := newTestServer(t)
	contentID := firstContentID(t, ts.generateSocial(t, false))

	w := ts.do(t, http.MethodPost, "/generated/"+contentID+"/publish", map[string]interface{}{"target_service": "fax"})
	requireError(t, w, http.StatusUnprocessableEntity, string(types.CodeValidation))

	w = ts.do(t, http.MethodPost, "/generated/"+contentID+"/publish", map[string]interface{}{"target_service": "social"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)
	content := result["content"].(map[string]interface{})
	assert.Equal(t, true, content["published"])
	assert.Equal(t, "social-42", content["external_id"])
	assert.Equal(t, "success", result["record"].(map[string]interface{})["status"])
	require.Len(t, ts.social.reqs, 1)
	assert.Equal(t, "instagram", ts.social.reqs[0].Platform)

	w = ts.do(t, http.MethodPost, "/generated/"+contentID+"/publish", map[string]interface{}{"target_service": "social"})
	requireError(t, w, http.StatusBadRequest, string(types.CodeInvalidState))
	assert.Len(t, ts.social.reqs, 1)

	w = ts.do(t, http.MethodGet, "/generated/"+contentID+"/publish-records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []map[string]interface{}
	require.NoError(t, jsonUnmarshal(w, &records))
	assert.Len(t, records, 1)

	w = ts.do(t, http.MethodGet, "/generated?published=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = ts.do(t, http.MethodGet, "/generated/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["published_count"])
}

// TestContentAPI_PublishRequiresApproval 测试未审批的内容不能发布
func TestContentAPI_PublishRequiresApproval(t *testing.T) {
	ts := newTestServer(t)
	detail := ts.generateSocial(t, true)
	contentID := firstContentID(t, detail)

	w := ts.do(t, http.MethodPost, "/generated/"+contentID+"/publish", map[string]interface{}{"target_service": "social"})
	requireError(t, w, http.StatusBadRequest, string(types.CodeInvalidState))
	assert.Empty(t, ts.social.reqs)

	w = ts.do(t, http.MethodPost, "/tasks/"+detail["id"].(string)+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/generated/"+contentID+"/publish", map[string]interface{}{"target_service": "social"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

// TestContentAPI_PublishTargetFailure 测试目标服务失败时返回 502 并保留记录
func TestContentAPI_PublishTargetFailure(t *testing.T) {
	ts := newTestServer(t)
	contentID := firstContentID(t, ts.generateSocial(t, false))
	ts.social.fail = errors.New("social service returned 500")

	w := ts.do(t, http.MethodPost, "/generated/"+contentID+"/publish", map[string]interface{}{"target_service": "social"})
	requireError(t, w, http.StatusBadGateway, string(types.CodePublishTarget))

	w = ts.do(t, http.MethodGet, "/generated/"+contentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["published"])
}

// TestAutomationAPI_Workflow 测试工作流创建、触发与执行历史
func TestAutomationAPI_Workflow(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/automation/workflows", map[string]interface{}{
		"name": "Weekly post",
		"configuration": map[string]interface{}{
			"steps": []map[string]interface{}{
				{"name": "draft", "action": "generate_content", "params": map[string]interface{}{
					"content_type": "social_post", "topic": "${trigger.topic}",
				}},
				{"name": "polish", "action": "enhance", "params": map[string]interface{}{
					"text": "${steps.draft.output.text}", "enhancement_type": "improve",
				}},
			},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	wf := decode(t, w)
	id := wf["id"].(string)
	assert.Equal(t, true, wf["enabled"])

	w = ts.do(t, http.MethodPost, "/automation/workflows/"+id+"/execute", map[string]interface{}{
		"trigger_data": map[string]interface{}{"topic": "harvest festival"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)
	assert.Equal(t, "completed", result["task"].(map[string]interface{})["status"])
	execution := result["execution"].(map[string]interface{})
	assert.Len(t, execution["steps"], 2)

	w = ts.do(t, http.MethodGet, "/automation/workflows/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = ts.do(t, http.MethodPut, "/automation/workflows/"+id, map[string]interface{}{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/automation/workflows/"+id+"/execute", nil)
	requireError(t, w, http.StatusBadRequest, string(types.CodeInvalidState))

	w = ts.do(t, http.MethodGet, "/automation/workflows?enabled=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

// TestAutomationAPI_RunDueAdminOnly 测试到期执行仅管理员可调用
func TestAutomationAPI_RunDueAdminOnly(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/automation/run-due", nil, "writer-1")
	requireError(t, w, http.StatusForbidden, string(types.CodeForbidden))

	w = ts.do(t, http.MethodPost, "/automation/run-due", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decode(t, w)["due"])
}

// TestRoutes_NotFound 测试未注册路由返回 JSON 404
func TestRoutes_NotFound(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	requireError(t, w, http.StatusNotFound, string(types.CodeNotFound))
}

// TestRoutes_HealthAndMetrics 测试健康检查与指标端点
func TestRoutes_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	health := decode(t, w)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "ai-service", health["service"])
	assert.Equal(t, "healthy", health["checks"].(map[string]interface{})["database"])

	ts.generateSocial(t, false)
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

// TestAuditLogAPI 测试审计日志查询仅管理员可用
func TestAuditLogAPI(t *testing.T) {
	ts := newTestServer(t)
	detail := ts.generateSocial(t, false)

	w := ts.do(t, http.MethodGet, "/audit-logs", nil, "writer-1")
	requireError(t, w, http.StatusForbidden, string(types.CodeForbidden))

	w = ts.do(t, http.MethodGet, "/audit-logs?resource_type=task&resource_id="+detail["id"].(string)+"&action=create", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode(t, w)
	require.EqualValues(t, 1, page["total"])
	entry := page["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "dev-user", entry["user_id"])
	assert.NotEmpty(t, entry["request_id"])
}
