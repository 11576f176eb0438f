package compress

import (
	"fmt"
	"regexp"
	"strings"

	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
)

// unitStartPattern 匹配常见语言的函数/类/测试定义行。
// 这是语言无关的启发式，不要求真正的语法解析。
var unitStartPattern = regexp.MustCompile(
	`^\s*(func\s+|def\s+|class\s+|function\s+|fn\s+|public\s+|private\s+|protected\s+|it\(|test\(|describe\()`)

// importPattern 匹配导入/依赖声明行。
var importPattern = regexp.MustCompile(
	`^\s*(import\b|from\s+\S+\s+import\b|require\(|#include\b|use\s+|package\s+)`)

// assertionPattern 匹配测试断言行。
var assertionPattern = regexp.MustCompile(
	`(assert|expect\(|require\.|t\.Error|t\.Fatal|t\.Fail|should\.)`)

// codeExtractor 把源代码分解为函数/类/测试单元。
type codeExtractor struct {
	// test 为 true 时按测试语义标注单元。
	test bool
}

// Extract 扫描代码行，以定义行为单元边界。
func (e *codeExtractor) Extract(content string) (*Structure, error) {
	lines := strings.Split(content, "\n")

	var starts []int
	for i, line := range lines {
		if unitStartPattern.MatchString(line) {
			starts = append(starts, i)
		}
	}

	if len(starts) == 0 {
		return nil, fmt.Errorf("%w: no code units found", coreerrors.ErrExtractionFailed)
	}

	structure := &Structure{}

	// 第一个单元之前的导入/包声明构成前导，
	// 括号分组的导入块整体保留
	inImportBlock := false
	for _, line := range lines[:starts[0]] {
		trimmed := strings.TrimSpace(line)
		switch {
		case inImportBlock:
			structure.Preamble = append(structure.Preamble, strings.TrimRight(line, " \t"))
			if trimmed == ")" {
				inImportBlock = false
			}
		case importPattern.MatchString(line):
			structure.Preamble = append(structure.Preamble, strings.TrimRight(line, " \t"))
			if strings.HasSuffix(trimmed, "(") {
				inImportBlock = true
			}
		}
	}

	for idx, start := range starts {
		end := len(lines)
		if idx+1 < len(starts) {
			end = starts[idx+1]
		}

		header := strings.TrimRight(lines[start], " \t")
		body := trimTrailingBlank(lines[start+1 : end])

		unit := Unit{
			Name:   unitName(header),
			Kind:   e.kindFor(header),
			Header: header,
			Body:   body,
		}

		if e.test || unit.Kind == "test" {
			unit.DetailCount = countMatching(body, assertionPattern)
			unit.DetailLabel = "assertions"
		} else {
			unit.DetailCount = len(body)
			unit.DetailLabel = "lines"
		}

		// 摘要：主体的前几个非空行
		unit.Summary = firstNonBlank(body, 3)

		structure.Units = append(structure.Units, unit)
	}

	return structure, nil
}

// kindFor 根据定义行判断单元种类。
func (e *codeExtractor) kindFor(header string) string {
	trimmed := strings.TrimSpace(header)
	switch {
	case strings.HasPrefix(trimmed, "class "):
		return "class"
	case e.test,
		strings.HasPrefix(trimmed, "func Test"),
		strings.HasPrefix(trimmed, "def test_"),
		strings.HasPrefix(trimmed, "it("),
		strings.HasPrefix(trimmed, "test("),
		strings.HasPrefix(trimmed, "describe("):
		return "test"
	default:
		return "function"
	}
}

// namePattern 从定义行中提取名称。
var namePattern = regexp.MustCompile(`(?:func|def|class|function|fn)\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)`)

// unitName 提取单元名称，失败时返回整行的紧凑形式。
func unitName(header string) string {
	if match := namePattern.FindStringSubmatch(header); match != nil {
		return match[1]
	}
	trimmed := strings.TrimSpace(header)
	if len(trimmed) > 40 {
		trimmed = trimmed[:40]
	}
	return trimmed
}

func countMatching(lines []string, pattern *regexp.Regexp) int {
	count := 0
	for _, line := range lines {
		if pattern.MatchString(line) {
			count++
		}
	}
	return count
}

func firstNonBlank(lines []string, n int) []string {
	var result []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result = append(result, strings.TrimRight(line, " \t"))
		if len(result) == n {
			break
		}
	}
	return result
}

func trimTrailingBlank(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}

// 编译时接口检查
var _ Extractor = (*codeExtractor)(nil)
