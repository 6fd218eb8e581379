package utils

import (
	"errors"
	"regexp"
	"strings"
)

var sortFieldPattern = regexp.MustCompile(`^[a-z_]+$`)

// ValidateSortField 验证排序字段,只允许白名单内的列名
func ValidateSortField(field string, allowed []string) error {
	if field == "" {
		return errors.New("sort field cannot be empty")
	}
	if !sortFieldPattern.MatchString(field) {
		return errors.New("invalid sort field format")
	}
	for _, a := range allowed {
		if a == field {
			return nil
		}
	}
	return errors.New("sort field " + field + " is not allowed")
}

// ValidateSortOrder 验证排序方向
func ValidateSortOrder(order string) error {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder != "ASC" && upperOrder != "DESC" {
		return errors.New("sort order must be ASC or DESC")
	}
	return nil
}

// SanitizeSortOrder 清理排序方向,非法值返回 DESC
func SanitizeSortOrder(order string) string {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder == "ASC" || upperOrder == "DESC" {
		return upperOrder
	}
	return "DESC"
}
