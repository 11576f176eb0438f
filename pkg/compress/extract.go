package compress

import (
	"github.com/easyops/agentcontext-go/pkg/token"
)

// Unit 是结构化提取产生的内容单元
// （函数、类、测试用例、文档分节、结构化数据节点）。
type Unit struct {
	// Name 是单元名称。
	Name string

	// Kind 是单元种类（"function"、"class"、"test"、"section"、"node"）。
	Kind string

	// Header 是单元的签名/标题行。
	Header string

	// Body 是单元主体行（不含 Header）。
	Body []string

	// Summary 是中等级压缩使用的简短摘要行。
	Summary []string

	// DetailCount 是单元内部细节数量（断言数、子键数、段落数）。
	DetailCount int

	// DetailLabel 是细节数量的标注词（"assertions"、"child keys"、"lines"）。
	DetailLabel string
}

// Structure 是结构化提取的结果。
type Structure struct {
	// Preamble 是必须保留的导入/依赖声明行。
	Preamble []string

	// Units 是命名内容单元。
	Units []Unit
}

// Extractor 定义按内容类型进行结构化提取的能力。
type Extractor interface {
	// Extract 把内容分解为结构。无法解析时返回错误，
	// 调用方随后降级到通用文本策略。
	Extract(content string) (*Structure, error)
}

// registry 把内容类型映射到提取器。
type registry struct {
	extractors map[token.ContentType]Extractor
}

// newRegistry 创建带默认提取器的注册表。
func newRegistry() *registry {
	return &registry{
		extractors: map[token.ContentType]Extractor{
			token.ContentTypeCode:       &codeExtractor{},
			token.ContentTypeTest:       &codeExtractor{test: true},
			token.ContentTypeDocument:   &documentExtractor{},
			token.ContentTypeStructured: &structuredExtractor{},
		},
	}
}

// lookup 返回内容类型对应的提取器，未注册类型返回 nil。
func (r *registry) lookup(contentType token.ContentType) Extractor {
	return r.extractors[contentType]
}

// register 注册或覆盖提取器。
func (r *registry) register(contentType token.ContentType, extractor Extractor) {
	r.extractors[contentType] = extractor
}
