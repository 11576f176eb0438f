package compress

import (
	"fmt"
	"strings"

	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
)

// documentExtractor 把文档按标题分解为分节单元。
type documentExtractor struct{}

// Extract 以 Markdown 风格的标题行为分节边界。
func (e *documentExtractor) Extract(content string) (*Structure, error) {
	lines := strings.Split(content, "\n")

	var starts []int
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			starts = append(starts, i)
		}
	}

	if len(starts) == 0 {
		return nil, fmt.Errorf("%w: no document sections found", coreerrors.ErrExtractionFailed)
	}

	structure := &Structure{}

	for idx, start := range starts {
		end := len(lines)
		if idx+1 < len(starts) {
			end = starts[idx+1]
		}

		header := strings.TrimRight(lines[start], " \t")
		body := trimTrailingBlank(lines[start+1 : end])

		unit := Unit{
			Name:        strings.TrimLeft(strings.TrimSpace(header), "# "),
			Kind:        "section",
			Header:      header,
			Body:        body,
			DetailCount: countParagraphs(body),
			DetailLabel: "paragraphs",
			Summary:     firstSentenceLines(body),
		}

		structure.Units = append(structure.Units, unit)
	}

	return structure, nil
}

// countParagraphs 统计空行分隔的段落数。
func countParagraphs(lines []string) int {
	count := 0
	inParagraph := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			inParagraph = false
			continue
		}
		if !inParagraph {
			count++
			inParagraph = true
		}
	}
	return count
}

// firstSentenceLines 返回分节的第一句话（按行近似）。
func firstSentenceLines(lines []string) []string {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if idx := strings.IndexAny(trimmed, ".!?"); idx >= 0 && idx < len(trimmed)-1 {
			return []string{trimmed[:idx+1]}
		}
		return []string{trimmed}
	}
	return nil
}

// 编译时接口检查
var _ Extractor = (*documentExtractor)(nil)
