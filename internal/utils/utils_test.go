package utils_test

import (
	"strings"
	"testing"

	"github.com/mission-engadi/ai-service/internal/utils"
	"github.com/stretchr/testify/assert"
)

// TestValidateID 测试 ID 校验
func TestValidateID(t *testing.T) {
	assert.NoError(t, utils.ValidateID("5f1c2a9e-1b2c-4d5e-8f90-123456789abc"))
	assert.Equal(t, utils.ErrEmptyID, utils.ValidateID(""))
	assert.Equal(t, utils.ErrInvalidIDFormat, utils.ValidateID("a b"))
	assert.Equal(t, utils.ErrInvalidIDFormat, utils.ValidateID("1;DROP"))
	assert.Equal(t, utils.ErrInvalidIDFormat, utils.ValidateID("template-1"))
}

// TestValidateName 测试名称校验
func TestValidateName(t *testing.T) {
	assert.NoError(t, utils.ValidateName("Weekly newsletter"))
	assert.Equal(t, utils.ErrEmptyName, utils.ValidateName("  "))
	assert.Equal(t, utils.ErrNameTooLong, utils.ValidateName(strings.Repeat("n", 256)))
	assert.Equal(t, utils.ErrDangerousChars, utils.ValidateName("<script>alert(1)</script>"))
}

// TestValidateSortField 测试排序字段白名单
func TestValidateSortField(t *testing.T) {
	allowed := []string{"created_at", "updated_at"}
	assert.NoError(t, utils.ValidateSortField("created_at", allowed))
	assert.Error(t, utils.ValidateSortField("", allowed))
	assert.Error(t, utils.ValidateSortField("status", allowed))
	assert.Error(t, utils.ValidateSortField("created_at; DROP TABLE tasks", allowed))
}

// TestSortOrder 测试排序方向
func TestSortOrder(t *testing.T) {
	assert.NoError(t, utils.ValidateSortOrder("asc"))
	assert.Error(t, utils.ValidateSortOrder("sideways"))
	assert.Equal(t, "ASC", utils.SanitizeSortOrder(" asc "))
	assert.Equal(t, "DESC", utils.SanitizeSortOrder("bogus"))
}
