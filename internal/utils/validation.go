package utils

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// MaxNameLength 模板与工作流名称的最大长度
const MaxNameLength = 255

// 校验错误
var (
	ErrEmptyID         = errors.New("id cannot be empty")
	ErrInvalidIDFormat = errors.New("id must be a UUID")
	ErrEmptyName       = errors.New("name cannot be empty")
	ErrNameTooLong     = errors.New("name exceeds maximum length")
	ErrDangerousChars  = errors.New("name contains markup or script fragments")
)

// markupFragments 名称中不允许出现的片段,名称会原样出现在渲染后的内容与通知中
var markupFragments = []string{"<script", "</script", "<iframe", "javascript:", "onerror=", "onload="}

// ValidateID 资源 ID 均为服务端生成的 UUID
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidIDFormat
	}
	return nil
}

// ValidateName 校验模板、工作流名称
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return ErrEmptyName
	case len(trimmed) > MaxNameLength:
		return ErrNameTooLong
	}
	lower := strings.ToLower(trimmed)
	for _, fragment := range markupFragments {
		if strings.Contains(lower, fragment) {
			return ErrDangerousChars
		}
	}
	return nil
}
