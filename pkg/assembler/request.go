package assembler

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Request 是一次装配请求。
type Request struct {
	// ID 是请求的唯一标识。
	ID string

	// Role 是 Agent 角色。
	Role string

	// Task 是任务描述。
	Task TaskDescriptor

	// Ceiling 是 Token 上限。
	Ceiling int

	// Options 是请求选项。
	Options Options

	// fingerprint 缓存首次计算结果
	fingerprint string
}

// NewRequest 创建装配请求并生成唯一标识。
func NewRequest(role string, task TaskDescriptor, ceiling int, opts Options) *Request {
	return &Request{
		ID:      uuid.NewString(),
		Role:    role,
		Task:    task,
		Ceiling: ceiling,
		Options: opts,
	}
}

// Fingerprint 返回请求的确定性指纹。
// 角色、工作项、上限、任务描述和选项相同的请求指纹相同，
// 请求 ID 不参与计算。
func (r *Request) Fingerprint() string {
	if r.fingerprint != "" {
		return r.fingerprint
	}

	hasher := blake3.New()
	fmt.Fprintf(hasher, "role=%s\n", r.Role)
	fmt.Fprintf(hasher, "story=%s\n", r.Task.StoryID())
	fmt.Fprintf(hasher, "phase=%s\n", r.Task.Phase())
	fmt.Fprintf(hasher, "ceiling=%d\n", r.Ceiling)
	fmt.Fprintf(hasher, "description=%s\n", r.Task.Description())
	fmt.Fprintf(hasher, "options=%s\n", r.Options.canonical())

	sum := hasher.Sum(nil)
	r.fingerprint = hex.EncodeToString(sum[:16])
	return r.fingerprint
}
