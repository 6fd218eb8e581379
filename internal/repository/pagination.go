package repository

import (
	"fmt"

	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/mission-engadi/ai-service/internal/utils"
	"gorm.io/gorm"
)

// 分页默认值
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page 分页参数(skip/limit 风格)
type Page struct {
	Skip  int
	Limit int
}

// NewPage 创建分页参数,负数 skip 归零,limit 缺省为 20 且不超过 100
func NewPage(skip, limit int) Page {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Skip: skip, Limit: limit}
}

// HasMore 判断是否还有下一页
func (p Page) HasMore(total int64) bool {
	return int64(p.Skip+p.Limit) < total
}

func (p Page) apply(query *gorm.DB) *gorm.DB {
	p = NewPage(p.Skip, p.Limit)
	return query.Offset(p.Skip).Limit(p.Limit)
}

// applySort 应用排序(验证并清理排序字段,防止 SQL 注入)
func applySort(query *gorm.DB, sortBy, order string, allowed []string, defaultField string) (*gorm.DB, error) {
	if sortBy == "" {
		sortBy = defaultField
	}
	if err := utils.ValidateSortField(sortBy, allowed); err != nil {
		return nil, types.NewValidationError("invalid sort field: %v", err)
	}
	if order == "" {
		order = "desc"
	}
	if err := utils.ValidateSortOrder(order); err != nil {
		return nil, types.NewValidationError("invalid sort order: %v", err)
	}
	return query.Order(fmt.Sprintf("%s %s", sortBy, utils.SanitizeSortOrder(order))).Order("id ASC"), nil
}

// groupCount 分组计数结果
type groupCount struct {
	Grp string
	Cnt int64
}

// countBy 按列分组计数
func countBy(query *gorm.DB, column string) (map[string]int64, error) {
	var rows []groupCount
	if err := query.Select(column + " AS grp, COUNT(*) AS cnt").Group(column).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.Grp] = r.Cnt
	}
	return result, nil
}
