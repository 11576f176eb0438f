package compress

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
	"gopkg.in/yaml.v3"
)

// structuredExtractor 把 JSON/YAML 数据分解为带模式骨架的节点单元。
type structuredExtractor struct{}

// Extract 先尝试 JSON 解析，失败后尝试 YAML。
func (e *structuredExtractor) Extract(content string) (*Structure, error) {
	var parsed interface{}

	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		if err := yaml.Unmarshal([]byte(content), &parsed); err != nil {
			return nil, fmt.Errorf("%w: not valid JSON or YAML", coreerrors.ErrExtractionFailed)
		}
	}

	mapping, ok := normalizeMapping(parsed)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not a mapping", coreerrors.ErrExtractionFailed)
	}
	if len(mapping) == 0 {
		return nil, fmt.Errorf("%w: empty mapping", coreerrors.ErrExtractionFailed)
	}

	structure := &Structure{}

	for _, key := range sortedKeys(mapping) {
		value := mapping[key]
		unit := Unit{
			Name:        key,
			Kind:        "node",
			Header:      fmt.Sprintf("%s: %s", key, typeName(value)),
			Body:        renderSkeleton(value, 1, 16),
			Summary:     renderSkeleton(value, 1, 3),
			DetailCount: childCount(value),
			DetailLabel: "child keys",
		}
		structure.Units = append(structure.Units, unit)
	}

	return structure, nil
}

// normalizeMapping 把解析结果统一为 string 键的映射。
func normalizeMapping(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, true
	case map[interface{}]interface{}:
		normalized := make(map[string]interface{}, len(v))
		for key, item := range v {
			normalized[fmt.Sprintf("%v", key)] = item
		}
		return normalized, true
	default:
		return nil, false
	}
}

// renderSkeleton 渲染深度受限的模式骨架行。
// 超出深度的子树折叠为类型与子键数量的注记。
func renderSkeleton(value interface{}, depth, maxDepth int) []string {
	indent := strings.Repeat("  ", depth)

	switch v := value.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		mapping, _ := normalizeMapping(v)
		if depth >= maxDepth {
			return []string{fmt.Sprintf("%sobject (%d child keys)", indent, len(mapping))}
		}
		var lines []string
		for _, key := range sortedKeys(mapping) {
			child := mapping[key]
			lines = append(lines, fmt.Sprintf("%s%s: %s", indent, key, typeName(child)))
			if isContainer(child) {
				lines = append(lines, renderSkeleton(child, depth+1, maxDepth)...)
			}
		}
		return lines
	case []interface{}:
		if len(v) == 0 {
			return []string{indent + "array (empty)"}
		}
		lines := []string{fmt.Sprintf("%sarray (%d items, first: %s)", indent, len(v), typeName(v[0]))}
		if depth < maxDepth && isContainer(v[0]) {
			lines = append(lines, renderSkeleton(v[0], depth+1, maxDepth)...)
		}
		return lines
	default:
		return []string{indent + typeName(value)}
	}
}

func typeName(value interface{}) string {
	switch v := value.(type) {
	case map[string]interface{}:
		return fmt.Sprintf("object (%d keys)", len(v))
	case map[interface{}]interface{}:
		return fmt.Sprintf("object (%d keys)", len(v))
	case []interface{}:
		return fmt.Sprintf("array (%d items)", len(v))
	case string:
		return "string"
	case bool:
		return "bool"
	case nil:
		return "null"
	case float64, int, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func isContainer(value interface{}) bool {
	switch value.(type) {
	case map[string]interface{}, map[interface{}]interface{}, []interface{}:
		return true
	default:
		return false
	}
}

func childCount(value interface{}) int {
	switch v := value.(type) {
	case map[string]interface{}:
		return len(v)
	case map[interface{}]interface{}:
		return len(v)
	case []interface{}:
		return len(v)
	default:
		return 0
	}
}

// sortedKeys 返回排序后的键，保证渲染结果确定。
func sortedKeys(mapping map[string]interface{}) []string {
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// 编译时接口检查
var _ Extractor = (*structuredExtractor)(nil)
