package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/mission-engadi/ai-service/internal/utils"
)

// ErrorResponse 错误响应格式
// @Description 错误响应格式,包含错误详情、错误码和时间戳
type ErrorResponse struct {
	Detail    string `json:"detail" example:"task 42 not found"`      // 错误详情
	ErrorCode string `json:"error_code" example:"NOT_FOUND"`          // 错误码
	Timestamp string `json:"timestamp" example:"2024-01-01T00:00:00Z"` // 发生时间
}

// ListResponse 列表响应
// @Description 列表响应格式,skip/limit 分页
type ListResponse struct {
	Items   interface{} `json:"items"`                   // 数据列表
	Total   int64       `json:"total" example:"100"`     // 总记录数
	Skip    int         `json:"skip" example:"0"`        // 跳过的记录数
	Limit   int         `json:"limit" example:"20"`      // 每页数量
	HasMore bool        `json:"has_more" example:"true"` // 是否还有更多
}

// Success 200 响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created 201 响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent 204 响应
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error 错误响应
func Error(c *gin.Context, status int, code string, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Detail:    detail,
		ErrorCode: code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// List 列表响应
func List(c *gin.Context, items interface{}, total int64, page repository.Page) {
	c.JSON(http.StatusOK, ListResponse{
		Items:   items,
		Total:   total,
		Skip:    page.Skip,
		Limit:   page.Limit,
		HasMore: page.HasMore(total),
	})
}

// pageFromQuery 解析 skip/limit,非法值返回校验错误
func pageFromQuery(c *gin.Context) (repository.Page, error) {
	skip, err := intQuery(c, "skip")
	if err != nil {
		return repository.Page{}, err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return repository.Page{}, err
	}
	if skip < 0 {
		return repository.Page{}, types.NewValidationError("skip must not be negative")
	}
	if limit < 0 || limit > repository.MaxLimit {
		return repository.Page{}, types.NewValidationError("limit must be between 0 and %d (0 uses the default of %d)", repository.MaxLimit, repository.DefaultLimit)
	}
	return repository.NewPage(skip, limit), nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewValidationError("%s must be an integer", key)
	}
	return v, nil
}

// optionalQuery 查询参数存在时返回指针
func optionalQuery(c *gin.Context, key string) *string {
	if v, ok := c.GetQuery(key); ok && v != "" {
		return &v
	}
	return nil
}

// optionalBoolQuery 布尔查询参数
func optionalBoolQuery(c *gin.Context, key string) (*bool, error) {
	raw := optionalQuery(c, key)
	if raw == nil {
		return nil, nil
	}
	v, err := strconv.ParseBool(*raw)
	if err != nil {
		return nil, types.NewValidationError("%s must be a boolean", key)
	}
	return &v, nil
}

// bindJSON 绑定请求体,失败时直接写 422
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		HandleError(c, types.NewValidationError("invalid request: %v", err))
		return false
	}
	return true
}

// pathID 读取并校验路径中的资源 ID
func pathID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := utils.ValidateID(id); err != nil {
		HandleError(c, types.NewValidationError("invalid id: %v", err))
		return "", false
	}
	return id, true
}
