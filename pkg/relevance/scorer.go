package relevance

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/easyops/agentcontext-go/pkg/token"
)

// 子信号权重。五个权重之和为 1.0。
const (
	WeightDirectMention = 0.40
	WeightDependency    = 0.25
	WeightHistorical    = 0.20
	WeightSemantic      = 0.10
	WeightPhase         = 0.05
)

// 子信号名称。
const (
	SignalDirectMention = "direct_mention"
	SignalDependency    = "dependency"
	SignalHistorical    = "historical"
	SignalSemantic      = "semantic"
	SignalPhase         = "phase"
)

// Candidate 是一个待评分的内容单元。
type Candidate struct {
	// Path 是内容单元的标识（通常为文件路径）。
	Path string

	// Content 是内容单元的文本。
	Content string

	// ContentType 是内容单元的结构类型。
	ContentType token.ContentType
}

// Score 是单个候选的评分结果。
type Score struct {
	// Path 是候选标识。
	Path string

	// Total 是加权总分，钳制在 [0,1]。
	Total float64

	// SubScores 是各子信号分数，均在 [0,1]。
	SubScores map[string]float64

	// Reasons 是人类可读的评分依据。
	Reasons []string
}

// DependencyOracle 提供候选之间的依赖关系信号。
// 通常由外部代码索引实现。
type DependencyOracle interface {
	// DependenciesOf 返回给定内容单元依赖的其他单元。
	DependenciesOf(ctx context.Context, unit string) ([]string, error)
}

// InclusionRecord 是一条历史采用记录。
type InclusionRecord struct {
	// Path 是被采用的内容单元。
	Path string

	// IncludedAt 是采用时间。
	IncludedAt time.Time
}

// HistoryProvider 提供角色+工作项维度的历史采用信号。
// 通常由外部 Agent 记忆实现。
type HistoryProvider interface {
	// Inclusions 返回角色在某工作项上过去采用过的内容单元。
	Inclusions(ctx context.Context, role, storyID string) ([]InclusionRecord, error)
}

// Input 是一次评分的全部输入。
type Input struct {
	// Role 是 Agent 角色。
	Role string

	// StoryID 是工作项标识。
	StoryID string

	// Phase 是可选的工作流阶段。
	Phase string

	// Description 是任务描述。
	Description string

	// Candidates 是候选内容单元集合。
	Candidates []Candidate
}

// Scorer 对候选内容单元进行多信号评分。
type Scorer struct {
	oracle  DependencyOracle
	history HistoryProvider

	// historyTau 是历史信号的新近性衰减常数。
	historyTau time.Duration

	now func() time.Time
}

// ScorerOption 配置 Scorer。
type ScorerOption func(*Scorer)

// WithDependencyOracle 设置依赖信号来源。
func WithDependencyOracle(oracle DependencyOracle) ScorerOption {
	return func(s *Scorer) {
		s.oracle = oracle
	}
}

// WithHistoryProvider 设置历史信号来源。
func WithHistoryProvider(history HistoryProvider) ScorerOption {
	return func(s *Scorer) {
		s.history = history
	}
}

// WithHistoryTau 设置历史信号的衰减常数。
func WithHistoryTau(tau time.Duration) ScorerOption {
	return func(s *Scorer) {
		if tau > 0 {
			s.historyTau = tau
		}
	}
}

// NewScorer 创建新的 Scorer。
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		historyTau: 7 * 24 * time.Hour,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ScoreAll 对全部候选评分，按总分降序返回（同分按路径升序）。
// 单个候选的评分失败不会中断其余候选：失败的候选得零分并记录原因。
func (s *Scorer) ScoreAll(ctx context.Context, input *Input) []*Score {
	terms := ExtractTerms(input.Description)

	inclusions := s.loadInclusions(ctx, input.Role, input.StoryID)
	dependents := s.reverseDependencies(ctx, input.Candidates)

	scores := make([]*Score, 0, len(input.Candidates))
	for _, candidate := range input.Candidates {
		scores = append(scores, s.scoreOne(candidate, terms, input, inclusions, dependents))
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			return scores[i].Total > scores[j].Total
		}
		return scores[i].Path < scores[j].Path
	})

	return scores
}

// SelectTop 返回总分不低于阈值的前 n 个评分。
func SelectTop(scores []*Score, n int, threshold float64) []*Score {
	selected := make([]*Score, 0, n)
	for _, score := range scores {
		if score.Total < threshold {
			continue
		}
		selected = append(selected, score)
		if len(selected) == n {
			break
		}
	}
	return selected
}

// scoreOne 计算单个候选的五个子信号并加权。
func (s *Scorer) scoreOne(candidate Candidate, terms *SearchTerms, input *Input,
	inclusions []InclusionRecord, dependents map[string]int) (score *Score) {

	score = &Score{
		Path:      candidate.Path,
		SubScores: make(map[string]float64, 5),
	}

	// 单候选的任何内部故障退化为零分，不影响其余候选
	defer func() {
		if r := recover(); r != nil {
			score.Total = 0
			score.SubScores = map[string]float64{}
			score.Reasons = []string{fmt.Sprintf("scoring failed: %v", r)}
		}
	}()

	direct := s.directMentionScore(candidate, terms, score)
	dependency := s.dependencyScore(candidate, terms, dependents, score)
	historical := s.historicalScore(candidate, inclusions, score)
	semantic := s.semanticScore(candidate, input.Role, terms, score)
	phase := s.phaseScore(candidate, input.Phase, score)

	score.SubScores[SignalDirectMention] = direct
	score.SubScores[SignalDependency] = dependency
	score.SubScores[SignalHistorical] = historical
	score.SubScores[SignalSemantic] = semantic
	score.SubScores[SignalPhase] = phase

	total := direct*WeightDirectMention +
		dependency*WeightDependency +
		historical*WeightHistorical +
		semantic*WeightSemantic +
		phase*WeightPhase
	score.Total = clamp01(total)

	return score
}

// directMentionScore 计算直接提及信号：
// 关键词频次（每词封顶）、标识符匹配（定义位置加权）、文件名匹配。
func (s *Scorer) directMentionScore(candidate Candidate, terms *SearchTerms, score *Score) float64 {
	lower := strings.ToLower(candidate.Content)
	value := 0.0

	for _, keyword := range terms.Keywords {
		count := strings.Count(lower, keyword)
		if count > 3 {
			count = 3
		}
		value += float64(count) * 0.05
	}

	for _, identifier := range terms.Identifiers {
		if !strings.Contains(candidate.Content, identifier) {
			continue
		}
		value += 0.30
		score.Reasons = append(score.Reasons, "mentions identifier "+identifier)
		if isDefinition(candidate.Content, identifier) {
			value += 0.20
			score.Reasons = append(score.Reasons, "defines "+identifier)
		}
	}

	base := filepath.Base(candidate.Path)
	for _, filename := range terms.Filenames {
		if base == filepath.Base(filename) || strings.HasSuffix(candidate.Path, filename) {
			value += 0.30
			score.Reasons = append(score.Reasons, "filename matches "+filename)
		}
	}

	return clamp01(value)
}

// corePathMarkers 是约定俗成的核心路径片段。
var corePathMarkers = []string{"init", "main", "app", "core", "common", "index"}

// dependencyScore 计算依赖信号：
// 候选是否引用检索词表、是否被其他相关候选依赖、核心路径加权。
func (s *Scorer) dependencyScore(candidate Candidate, terms *SearchTerms, dependents map[string]int, score *Score) float64 {
	value := 0.0
	imports := extractImportLines(candidate.Content)

	for _, concept := range terms.Concepts {
		if strings.Contains(imports, concept) {
			value += 0.15
			score.Reasons = append(score.Reasons, "imports "+concept)
		}
	}
	for _, keyword := range terms.Keywords {
		if strings.Contains(imports, keyword) {
			value += 0.10
		}
	}

	if count := dependents[candidate.Path]; count > 0 {
		boost := 0.2 * float64(count)
		if boost > 0.4 {
			boost = 0.4
		}
		value += boost
		score.Reasons = append(score.Reasons, fmt.Sprintf("%d candidate(s) depend on it", count))
	}

	lowerPath := strings.ToLower(candidate.Path)
	for _, marker := range corePathMarkers {
		if strings.Contains(lowerPath, marker) {
			value += 0.2
			break
		}
	}

	return clamp01(value)
}

// historicalScore 计算历史信号：过去采用频次，新近采用权重更高。
func (s *Scorer) historicalScore(candidate Candidate, inclusions []InclusionRecord, score *Score) float64 {
	if len(inclusions) == 0 {
		return 0
	}

	now := s.now()
	weight := 0.0
	matched := 0
	for _, record := range inclusions {
		if record.Path != candidate.Path {
			continue
		}
		matched++
		age := now.Sub(record.IncludedAt)
		if age < 0 {
			age = 0
		}
		weight += math.Exp(-float64(age) / float64(s.historyTau))
	}

	if matched == 0 {
		return 0
	}

	score.Reasons = append(score.Reasons, fmt.Sprintf("included %d time(s) before", matched))
	return clamp01(weight / 3.0)
}

// roleArchetypes 把角色映射到内容原型。
var roleArchetypes = map[string]token.ContentType{
	"code":   token.ContentTypeCode,
	"test":   token.ContentTypeTest,
	"design": token.ContentTypeDocument,
	"review": token.ContentTypeCode,
	"data":   token.ContentTypeStructured,
}

// semanticScore 计算语义信号：角色原型与内容类型/关键词的启发式匹配。
func (s *Scorer) semanticScore(candidate Candidate, role string, terms *SearchTerms, score *Score) float64 {
	value := 0.3 // 中性基线

	if archetype, ok := roleArchetypes[role]; ok && archetype == candidate.ContentType {
		value += 0.4
		score.Reasons = append(score.Reasons, "content type matches role archetype")
	}

	lower := strings.ToLower(candidate.Content)
	for _, concept := range terms.Concepts {
		if strings.Contains(lower, concept) {
			value += 0.1
			break
		}
	}

	return clamp01(value)
}

// phaseAffinity 把工作流阶段映射到偏好的内容类型。
var phaseAffinity = map[string]token.ContentType{
	"red":      token.ContentTypeTest,
	"green":    token.ContentTypeCode,
	"refactor": token.ContentTypeCode,
	"design":   token.ContentTypeDocument,
	"review":   token.ContentTypeCode,
}

// phaseScore 计算阶段信号：当前阶段与内容类型的启发式匹配。
func (s *Scorer) phaseScore(candidate Candidate, phase string, score *Score) float64 {
	if phase == "" {
		return 0.5 // 无阶段信息时保持中性
	}

	preferred, ok := phaseAffinity[strings.ToLower(phase)]
	if !ok {
		return 0.5
	}

	if candidate.ContentType == preferred {
		score.Reasons = append(score.Reasons, "content type favored by phase "+phase)
		return 0.9
	}
	return 0.3
}

// loadInclusions 拉取历史采用记录；失败时降级为空信号。
func (s *Scorer) loadInclusions(ctx context.Context, role, storyID string) []InclusionRecord {
	if s.history == nil {
		return nil
	}
	records, err := s.history.Inclusions(ctx, role, storyID)
	if err != nil {
		return nil
	}
	return records
}

// reverseDependencies 统计候选集合内部的被依赖次数。
// 单个候选的查询失败只影响它自身的出边。
func (s *Scorer) reverseDependencies(ctx context.Context, candidates []Candidate) map[string]int {
	dependents := make(map[string]int)
	if s.oracle == nil {
		return dependents
	}

	inSet := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		inSet[candidate.Path] = struct{}{}
	}

	for _, candidate := range candidates {
		deps, err := s.oracle.DependenciesOf(ctx, candidate.Path)
		if err != nil {
			continue
		}
		for _, dep := range deps {
			if _, ok := inSet[dep]; ok {
				dependents[dep]++
			}
		}
	}

	return dependents
}

// definitionMarkers 是各语言中定义位置的前缀。
var definitionMarkers = []string{"func ", "def ", "class ", "function ", "type ", "interface "}

// isDefinition 判断标识符是否出现在定义位置。
func isDefinition(content, identifier string) bool {
	for _, marker := range definitionMarkers {
		pattern := regexp.QuoteMeta(marker + identifier)
		matched, err := regexp.MatchString(pattern+`\b`, content)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// extractImportLines 提取内容开头的导入/依赖声明行。
func extractImportLines(content string) string {
	var builder strings.Builder
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import") ||
			strings.HasPrefix(trimmed, "from ") ||
			strings.HasPrefix(trimmed, "require") ||
			strings.HasPrefix(trimmed, "#include") ||
			strings.HasPrefix(trimmed, "use ") {
			builder.WriteString(strings.ToLower(trimmed))
			builder.WriteByte('\n')
		}
	}
	return builder.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
