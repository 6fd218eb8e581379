// Package render 实现模板占位符替换
//
// 占位符形如 {name},name 由字母、数字和下划线组成且不以数字开头。
// {{ 与 }} 分别输出字面量 { 和 }。不符合命名规则的花括号内容原样保留。
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mission-engadi/ai-service/internal/types"
)

// Result 渲染结果
type Result struct {
	Text    string   `json:"text"`
	Used    []string `json:"used"`
	Ignored []string `json:"ignored,omitempty"` // 提供了但模板未声明的变量
}

// Warning 未声明变量的警告,无变量时返回 nil
func (r *Result) Warning() *types.Error {
	if len(r.Ignored) == 0 {
		return nil
	}
	return types.NewUnknownVariableError(r.Ignored)
}

type segment struct {
	literal string
	name    string // 非空表示占位符
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// IsValidName 变量名是否合法
func IsValidName(name string) bool {
	if name == "" || !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isNameChar(name[i]) {
			return false
		}
	}
	return true
}

func parse(text string) []segment {
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			lit.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			lit.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				lit.WriteString(text[i:])
				i = len(text)
				continue
			}
			name := text[i+1 : i+1+end]
			if !IsValidName(name) {
				lit.WriteByte('{')
				i++
				continue
			}
			flush()
			segs = append(segs, segment{name: name})
			i += end + 2
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return segs
}

// Extract 返回模板中引用的变量名,按首次出现顺序去重
func Extract(text string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, seg := range parse(text) {
		if seg.name != "" && !seen[seg.name] {
			seen[seg.name] = true
			names = append(names, seg.name)
		}
	}
	return names
}

// CheckDeclared 校验声明的变量集合与模板中引用的变量集合完全一致
func CheckDeclared(text string, declared []string) error {
	used := make(map[string]bool)
	for _, name := range Extract(text) {
		used[name] = true
	}
	decl := make(map[string]bool)
	for _, name := range declared {
		if !IsValidName(name) {
			return types.NewValidationError("invalid variable name %q", name)
		}
		decl[name] = true
	}

	var unused, undeclared []string
	for name := range decl {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	for name := range used {
		if !decl[name] {
			undeclared = append(undeclared, name)
		}
	}
	sort.Strings(unused)
	sort.Strings(undeclared)

	if len(unused) > 0 {
		return types.NewValidationError("declared variables not used in template_text: %s", strings.Join(unused, ", "))
	}
	if len(undeclared) > 0 {
		return types.NewValidationError("template_text references undeclared variables: %s", strings.Join(undeclared, ", "))
	}
	return nil
}

// Render 用 values 替换 text 中的占位符
// 缺失变量时返回 MissingVariableError 并列出全部缺失项;
// values 中未声明的键被忽略并记录在 Result.Ignored 中
func Render(text string, declared []string, values map[string]interface{}) (*Result, error) {
	segs := parse(text)

	decl := make(map[string]bool, len(declared))
	for _, name := range declared {
		decl[name] = true
	}

	var missing []string
	missingSeen := make(map[string]bool)
	for _, seg := range segs {
		if seg.name == "" {
			continue
		}
		if _, ok := values[seg.name]; !ok && !missingSeen[seg.name] {
			missingSeen[seg.name] = true
			missing = append(missing, seg.name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, types.NewMissingVariableError(missing)
	}

	var b strings.Builder
	var used []string
	usedSeen := make(map[string]bool)
	for _, seg := range segs {
		if seg.name == "" {
			b.WriteString(seg.literal)
			continue
		}
		b.WriteString(stringify(values[seg.name]))
		if !usedSeen[seg.name] {
			usedSeen[seg.name] = true
			used = append(used, seg.name)
		}
	}

	var ignored []string
	for key := range values {
		if !decl[key] && !usedSeen[key] {
			ignored = append(ignored, key)
		}
	}
	sort.Strings(ignored)

	return &Result{Text: b.String(), Used: used, Ignored: ignored}, nil
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []interface{}:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = stringify(p)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
