// Package token 提供上下文装配引擎的 Token 估算能力。
//
// 估算结果是近似值而非精确计数：预算分配和压缩只需要
// 稳定、单调的估算，不需要与计费一致的精确值。
package token

import (
	"path/filepath"
	"strings"
)

// ContentType 表示内容单元的结构类型。
type ContentType string

const (
	// ContentTypeCode 表示源代码内容。
	ContentTypeCode ContentType = "code"

	// ContentTypeTest 表示测试代码内容。
	ContentTypeTest ContentType = "test"

	// ContentTypeDocument 表示文档/散文内容。
	ContentTypeDocument ContentType = "document"

	// ContentTypeStructured 表示结构化数据（JSON/YAML 等）。
	ContentTypeStructured ContentType = "structured"

	// ContentTypeOther 表示无法识别的内容。
	ContentTypeOther ContentType = "other"
)

// DetectContentType 根据文件路径推断内容类型。
func DetectContentType(path string) ContentType {
	base := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(base)

	if strings.Contains(base, "_test.") || strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") || strings.HasPrefix(base, "test_") {
		return ContentTypeTest
	}

	switch ext {
	case ".go", ".py", ".js", ".ts", ".java", ".rs", ".c", ".cc", ".cpp", ".h", ".rb", ".kt", ".swift":
		return ContentTypeCode
	case ".md", ".rst", ".txt", ".adoc":
		return ContentTypeDocument
	case ".json", ".yaml", ".yml", ".toml", ".xml":
		return ContentTypeStructured
	default:
		return ContentTypeOther
	}
}
