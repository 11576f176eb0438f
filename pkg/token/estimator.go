package token

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator 定义 Token 估算接口。
type Estimator interface {
	// Estimate 返回给定文本的估算 Token 数量。
	Estimate(text string) int

	// EstimateTyped 返回带内容类型校正的估算 Token 数量。
	// 代码和结构化数据的符号密度更高，每字符产生的 Token 更多。
	EstimateTyped(text string, contentType ContentType) int
}

// correctionFactor 返回内容类型的校正系数。
// 系数 > 1 表示该类型比普通文本产生更多 Token。
func correctionFactor(contentType ContentType) float64 {
	switch contentType {
	case ContentTypeCode, ContentTypeTest:
		return 1.15
	case ContentTypeStructured:
		return 1.25
	case ContentTypeDocument:
		return 1.0
	default:
		return 1.05
	}
}

// TiktokenEstimator 使用 tiktoken 编码进行估算。
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// TiktokenOption 配置 TiktokenEstimator。
type TiktokenOption func(*TiktokenEstimator)

// WithModel 设置编码使用的模型。
func WithModel(model string) TiktokenOption {
	return func(e *TiktokenEstimator) {
		e.model = model
	}
}

// NewTiktokenEstimator 创建新的 TiktokenEstimator。
// 默认使用 cl100k_base 编码。
func NewTiktokenEstimator(opts ...TiktokenOption) (*TiktokenEstimator, error) {
	e := &TiktokenEstimator{
		model: "gpt-4o",
	}

	for _, opt := range opts {
		opt(e)
	}

	encoding, err := tiktoken.EncodingForModel(e.model)
	if err != nil {
		// 降级到 cl100k_base 编码
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	e.encoding = encoding
	return e, nil
}

// Estimate 返回给定文本的 Token 数量。
func (e *TiktokenEstimator) Estimate(text string) int {
	if e.encoding == nil {
		return heuristicEstimate(text)
	}
	return len(e.encoding.Encode(text, nil, nil))
}

// EstimateTyped 返回带内容类型校正的 Token 数量。
// tiktoken 已经按实际编码计数，因此类型校正不再叠加。
func (e *TiktokenEstimator) EstimateTyped(text string, _ ContentType) int {
	return e.Estimate(text)
}

// HeuristicEstimator 使用字符/词混合启发式进行估算。
// 这是 tiktoken 不可用时的降级方案，也是测试中的默认选择。
type HeuristicEstimator struct {
	// CharsPerToken 是每个 Token 的平均字符数，默认为 4。
	CharsPerToken float64
}

// NewHeuristicEstimator 创建新的 HeuristicEstimator。
func NewHeuristicEstimator() *HeuristicEstimator {
	return &HeuristicEstimator{
		CharsPerToken: 4.0,
	}
}

// Estimate 返回估算的 Token 数量。
func (e *HeuristicEstimator) Estimate(text string) int {
	if e.CharsPerToken <= 0 {
		e.CharsPerToken = 4.0
	}
	return heuristicEstimateWith(text, e.CharsPerToken)
}

// EstimateTyped 返回带内容类型校正的估算 Token 数量。
func (e *HeuristicEstimator) EstimateTyped(text string, contentType ContentType) int {
	base := e.Estimate(text)
	return int(float64(base) * correctionFactor(contentType))
}

// heuristicEstimate 提供简单的 Token 估算降级方案。
func heuristicEstimate(text string) int {
	return heuristicEstimateWith(text, 4.0)
}

// heuristicEstimateWith 同时参考字符数和词数进行估算，
// 对混合内容比单一字符估算更稳定。
func heuristicEstimateWith(text string, charsPerToken float64) int {
	charCount := len(text)
	if charCount == 0 {
		return 0
	}

	wordCount := len(strings.Fields(text))
	charBased := int(float64(charCount) / charsPerToken)
	if wordCount == 0 {
		return charBased
	}

	// 平均每词约 1.3 个 Token
	wordBased := int(float64(wordCount) * 1.3)
	return (charBased + wordBased) / 2
}

// DefaultEstimator 返回一个 Estimator，
// 优先使用 TiktokenEstimator，不可用时降级到 HeuristicEstimator。
func DefaultEstimator() Estimator {
	estimator, err := NewTiktokenEstimator()
	if err != nil {
		return NewHeuristicEstimator()
	}
	return estimator
}

// 编译时接口检查
var _ Estimator = (*TiktokenEstimator)(nil)
var _ Estimator = (*HeuristicEstimator)(nil)
