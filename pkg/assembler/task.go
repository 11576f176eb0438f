// Package assembler 把预算、评分、压缩和缓存编排为完整的装配流水线。
//
// 调用方通过 Prepare 提交角色、任务和 Token 上限，得到一个
// 分节的 AssembledContext。流水线按固定阶段推进：预算分配、
// 相关性筛选、内容加载、压缩装配、上限校验，最终写入缓存。
// 超出上限触发全局二次压缩；整个流程受单一截止时间约束。
package assembler

import "fmt"

// TaskDescriptor 描述一次任务。
// 结构化任务对象和泛型键值表都可以充当任务描述，
// 调用方不需要区分具体类型。
type TaskDescriptor interface {
	// StoryID 返回任务所属的工作项标识。
	StoryID() string

	// Phase 返回可选的工作流阶段，无阶段时返回空串。
	Phase() string

	// Description 返回任务描述文本。
	Description() string
}

// StructuredTask 是结构化的任务描述。
type StructuredTask struct {
	// Story 是工作项标识。
	Story string

	// WorkPhase 是可选的工作流阶段。
	WorkPhase string

	// Text 是任务描述文本。
	Text string
}

func (t *StructuredTask) StoryID() string     { return t.Story }
func (t *StructuredTask) Phase() string       { return t.WorkPhase }
func (t *StructuredTask) Description() string { return t.Text }

// MapTask 是键值表形式的任务描述。
// 识别的键：story_id、phase、description。
type MapTask map[string]interface{}

func (t MapTask) StoryID() string     { return t.stringValue("story_id") }
func (t MapTask) Phase() string       { return t.stringValue("phase") }
func (t MapTask) Description() string { return t.stringValue("description") }

func (t MapTask) stringValue(key string) string {
	v, ok := t[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// 编译时接口检查
var _ TaskDescriptor = (*StructuredTask)(nil)
var _ TaskDescriptor = (MapTask)(nil)
