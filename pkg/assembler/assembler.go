package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/easyops/agentcontext-go/pkg/budget"
	"github.com/easyops/agentcontext-go/pkg/cache"
	"github.com/easyops/agentcontext-go/pkg/collab"
	"github.com/easyops/agentcontext-go/pkg/compress"
	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
	"github.com/easyops/agentcontext-go/pkg/otel"
	"github.com/easyops/agentcontext-go/pkg/relevance"
	"github.com/easyops/agentcontext-go/pkg/token"
)

// 超限二次压缩的各小节占上限的比例。
var overflowShares = map[budget.Category]float64{
	budget.CategoryPrimary:     0.60,
	budget.CategoryHistory:     0.15,
	budget.CategoryDependency:  0.15,
	budget.CategoryAgentMemory: 0.10,
}

// Assembler 是上下文装配引擎的编排层。
type Assembler struct {
	estimator  token.Estimator
	allocator  *budget.Allocator
	compressor *compress.Compressor
	store      *cache.Cache

	loader collab.Loader
	index  collab.Index
	memory collab.Memory

	logger  otel.Logger
	metrics otel.Metrics
	tracer  otel.Tracer

	timeout time.Duration

	// group 合并并发的同指纹请求，只执行一次流水线
	group singleflight.Group
}

// AssemblerOption 配置 Assembler。
type AssemblerOption func(*Assembler)

// WithLoader 设置候选内容加载器。
func WithLoader(loader collab.Loader) AssemblerOption {
	return func(a *Assembler) {
		a.loader = loader
	}
}

// WithIndex 设置依赖索引。
func WithIndex(index collab.Index) AssemblerOption {
	return func(a *Assembler) {
		a.index = index
	}
}

// WithMemory 设置历史记录。
func WithMemory(memory collab.Memory) AssemblerOption {
	return func(a *Assembler) {
		a.memory = memory
	}
}

// WithCache 设置结果缓存。
func WithCache(store *cache.Cache) AssemblerOption {
	return func(a *Assembler) {
		a.store = store
	}
}

// WithEstimator 设置 Token 估算器。
func WithEstimator(estimator token.Estimator) AssemblerOption {
	return func(a *Assembler) {
		a.estimator = estimator
	}
}

// WithAllocator 设置预算分配器。
func WithAllocator(allocator *budget.Allocator) AssemblerOption {
	return func(a *Assembler) {
		a.allocator = allocator
	}
}

// WithTimeout 设置单次装配的默认截止时间。
func WithTimeout(timeout time.Duration) AssemblerOption {
	return func(a *Assembler) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithLogger 设置日志输出。
func WithLogger(logger otel.Logger) AssemblerOption {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// WithMetrics 设置指标输出。
func WithMetrics(metrics otel.Metrics) AssemblerOption {
	return func(a *Assembler) {
		a.metrics = metrics
	}
}

// WithTracer 设置追踪器。
func WithTracer(tracer otel.Tracer) AssemblerOption {
	return func(a *Assembler) {
		a.tracer = tracer
	}
}

// New 创建装配引擎。
func New(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		estimator: token.DefaultEstimator(),
		logger:    otel.NewNoopLogger(),
		metrics:   otel.NewNoopMetrics(),
		tracer:    otel.NewNoopTracer(),
		timeout:   30 * time.Second,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.allocator == nil {
		a.allocator = budget.NewAllocator()
	}
	if a.compressor == nil {
		a.compressor = compress.NewCompressor(compress.WithEstimator(a.estimator))
	}
	if a.store == nil {
		a.store = cache.New()
	}

	return a
}

// Cache 返回底层缓存，供调用方读取统计或启动后台工作协程。
func (a *Assembler) Cache() *cache.Cache {
	return a.store
}

// Prepare 执行一次完整装配。
//
// 相同指纹的缓存结果直接返回；并发的同指纹请求只执行一次
// 流水线，结果共享。每个调用方得到的都是独立副本。
func (a *Assembler) Prepare(ctx context.Context, role string, task TaskDescriptor, ceiling int, opts Options) (*AssembledContext, error) {
	if ceiling <= 0 {
		return nil, fmt.Errorf("%w: ceiling must be positive, got %d", coreerrors.ErrInvalidCeiling, ceiling)
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task descriptor is required", coreerrors.ErrInvalidRequest)
	}

	request := NewRequest(role, task, ceiling, opts)
	fingerprint := request.Fingerprint()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	ctx, span := a.tracer.Start(ctx, "context.prepare",
		otel.WithAttributes(
			otel.RequestID(request.ID),
			otel.AgentRole(role),
			otel.StoryID(task.StoryID()),
		))
	defer span.End()

	a.metrics.Counter(otel.MetricPrepareRequests).Add(ctx, 1, otel.NewAttr("role", role))

	// 缓存命中直接短路
	if cached, ok := a.store.GetForRole(fingerprint, role); ok {
		if assembled, ok := cached.(*AssembledContext); ok {
			span.SetAttributes(otel.CacheHit(true))
			assembled.CacheHit = true
			a.logger.Debug("context served from cache",
				"request_id", request.ID, "fingerprint", fingerprint)
			return assembled, nil
		}
	}

	result, err, _ := a.group.Do(fingerprint, func() (interface{}, error) {
		return a.runPipeline(ctx, request)
	})
	if err != nil {
		span.RecordError(err)
		a.metrics.Counter(otel.MetricPrepareErrors).Add(ctx, 1, otel.NewAttr("role", role))
		return nil, err
	}

	assembled := result.(*AssembledContext).CloneValue().(*AssembledContext)
	span.SetAttributes(otel.CacheHit(false))
	return assembled, nil
}

// runPipeline 执行装配流水线的全部阶段。
func (a *Assembler) runPipeline(ctx context.Context, request *Request) (*AssembledContext, error) {
	started := time.Now()
	task := request.Task

	// 阶段一：预算分配
	tokenBudget, err := a.allocator.Allocate(request.Ceiling, request.Role,
		budget.Phase(task.Phase()), &budget.Hints{
			FocusAreas:     request.Options.FocusAreas,
			ComplexityHint: request.Options.ComplexityHint,
		})
	if err != nil {
		return nil, coreerrors.NewContextError(request.ID, "budget", err)
	}
	if err := a.checkDeadline(ctx, request.ID, "budget"); err != nil {
		return nil, err
	}

	// 阶段二：候选加载与相关性筛选
	candidates, err := a.loadCandidates(ctx, request)
	if err != nil {
		return nil, coreerrors.NewContextError(request.ID, "load", err)
	}
	if err := a.checkDeadline(ctx, request.ID, "load"); err != nil {
		return nil, err
	}

	selected := a.selectCandidates(ctx, request, candidates)
	if err := a.checkDeadline(ctx, request.ID, "score"); err != nil {
		return nil, err
	}

	// 阶段三：分节装配
	assembled := &AssembledContext{
		RequestID:        request.ID,
		Fingerprint:      request.Fingerprint(),
		Role:             request.Role,
		StoryID:          task.StoryID(),
		Budget:           tokenBudget,
		Scores:           selected,
		CompressionLevel: request.Options.level(),
	}

	assembled.Sections.Metadata = a.buildMetadata(request)
	assembled.Sections.Primary = a.buildPrimary(request, candidates, selected, tokenBudget)
	if assembled.Sections.Primary != "" && request.Options.level() != compress.LevelNone {
		assembled.Compressed = true
	}

	if request.Options.IncludeHistory {
		assembled.Sections.Historical = a.buildHistorical(ctx, request, tokenBudget)
	}
	if request.Options.IncludeDependencies {
		assembled.Sections.Dependency = a.buildDependency(ctx, request, selected, tokenBudget)
	}
	if request.Options.IncludeAgentMemory {
		assembled.Sections.AgentMemory = a.buildAgentMemory(ctx, request, tokenBudget)
	}
	if err := a.checkDeadline(ctx, request.ID, "compress"); err != nil {
		return nil, err
	}

	// 阶段四：上限校验与超限二次压缩
	assembled.Usage = a.measureUsage(assembled)
	if assembled.Usage.Total() > request.Ceiling {
		a.recompress(assembled, request)
		assembled.Usage = a.measureUsage(assembled)
	}
	if assembled.Usage.Total() > request.Ceiling {
		a.truncateToShares(assembled, request)
		assembled.Usage = a.measureUsage(assembled)
	}
	if assembled.Usage.Total() > request.Ceiling {
		return nil, coreerrors.NewContextError(request.ID, "validate",
			fmt.Errorf("%w: %d tokens used, ceiling %d",
				coreerrors.ErrBudgetExceeded, assembled.Usage.Total(), request.Ceiling))
	}
	if err := a.checkDeadline(ctx, request.ID, "validate"); err != nil {
		return nil, err
	}

	assembled.PreparedIn = time.Since(started)
	assembled.PreparedAt = time.Now()

	// 回写：用量反馈、采用历史、缓存
	a.allocator.RecordUsage(request.Role, tokenBudget, assembled.Usage)
	a.recordInclusions(ctx, request, selected)
	a.store.Put(request.Fingerprint(), assembled,
		"role:"+request.Role, "story:"+task.StoryID())

	a.observe(ctx, request, assembled)
	return assembled, nil
}

// checkDeadline 把上下文取消映射为超时失败。
func (a *Assembler) checkDeadline(ctx context.Context, requestID, stage string) error {
	if ctx.Err() == nil {
		return nil
	}
	return coreerrors.NewContextError(requestID, stage,
		fmt.Errorf("%w: %v", coreerrors.ErrTimeout, ctx.Err()))
}

// loadCandidates 加载候选内容，应用排除模式。
func (a *Assembler) loadCandidates(ctx context.Context, request *Request) ([]relevance.Candidate, error) {
	if a.loader == nil {
		return nil, nil
	}

	loaded, err := a.loader.Load(ctx, request.Task.StoryID())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrStorageFailure, err)
	}

	candidates := loaded[:0:0]
	for _, candidate := range loaded {
		if request.Options.excluded(candidate.Path) {
			continue
		}
		if candidate.ContentType == "" {
			candidate.ContentType = token.DetectContentType(candidate.Path)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// selectCandidates 对候选评分并保留头部。
func (a *Assembler) selectCandidates(ctx context.Context, request *Request, candidates []relevance.Candidate) []*relevance.Score {
	if len(candidates) == 0 {
		return nil
	}

	scoreStarted := time.Now()

	var scorerOpts []relevance.ScorerOption
	if a.index != nil {
		scorerOpts = append(scorerOpts, relevance.WithDependencyOracle(a.index))
	}
	if a.memory != nil {
		scorerOpts = append(scorerOpts, relevance.WithHistoryProvider(a.memory))
	}
	scorer := relevance.NewScorer(scorerOpts...)

	scores := scorer.ScoreAll(ctx, &relevance.Input{
		Role:        request.Role,
		StoryID:     request.Task.StoryID(),
		Phase:       request.Task.Phase(),
		Description: request.Task.Description(),
		Candidates:  candidates,
	})

	a.metrics.Histogram(otel.MetricScoreCandidates).Record(ctx, float64(len(candidates)))
	a.metrics.Histogram(otel.MetricScoreDuration).Record(ctx,
		float64(time.Since(scoreStarted).Milliseconds()))

	return relevance.SelectTop(scores, request.Options.maxCandidates(), request.Options.minScore())
}

// buildMetadata 构建元信息头。
func (a *Assembler) buildMetadata(request *Request) string {
	var b strings.Builder
	b.WriteString("# Context\n")
	fmt.Fprintf(&b, "role: %s\n", request.Role)
	fmt.Fprintf(&b, "story: %s\n", request.Task.StoryID())
	if phase := request.Task.Phase(); phase != "" {
		fmt.Fprintf(&b, "phase: %s\n", phase)
	}
	fmt.Fprintf(&b, "ceiling: %d", request.Ceiling)
	return b.String()
}

// buildPrimary 把入选候选压缩进主要内容小节。
func (a *Assembler) buildPrimary(request *Request, candidates []relevance.Candidate,
	selected []*relevance.Score, tokenBudget *budget.TokenBudget) string {

	remaining := tokenBudget.Get(budget.CategoryPrimary)
	if remaining <= 0 || len(selected) == 0 {
		return ""
	}

	byPath := make(map[string]relevance.Candidate, len(candidates))
	for _, candidate := range candidates {
		byPath[candidate.Path] = candidate
	}

	level := request.Options.level()

	var parts []string
	for _, score := range selected {
		candidate, ok := byPath[score.Path]
		if !ok {
			continue
		}
		if remaining <= 0 {
			break
		}

		header := fmt.Sprintf("## %s (relevance %.2f)", score.Path, score.Total)
		headerTokens := a.estimator.Estimate(header)
		target := remaining - headerTokens
		if target <= 0 {
			break
		}

		result := a.compressor.Compress(candidate.Content, candidate.ContentType, level, target)
		parts = append(parts, header+"\n"+result.Content)
		remaining -= headerTokens + result.Tokens
	}

	return strings.Join(parts, "\n\n")
}

// buildHistorical 构建历史上下文小节。
func (a *Assembler) buildHistorical(ctx context.Context, request *Request, tokenBudget *budget.TokenBudget) string {
	if a.memory == nil {
		return ""
	}

	records, err := a.memory.Inclusions(ctx, request.Role, request.Task.StoryID())
	if err != nil {
		// 协作方故障只影响本小节
		a.logger.Warn("history lookup failed", "request_id", request.ID, "error", err)
		return ""
	}
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Previously included\n")
	for _, record := range records {
		fmt.Fprintf(&b, "- %s (%s)\n", record.Path, record.IncludedAt.Format(time.RFC3339))
	}

	return a.fitSection(strings.TrimRight(b.String(), "\n"), tokenBudget.Get(budget.CategoryHistory))
}

// buildDependency 构建依赖上下文小节。
func (a *Assembler) buildDependency(ctx context.Context, request *Request,
	selected []*relevance.Score, tokenBudget *budget.TokenBudget) string {

	if a.index == nil || len(selected) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Dependencies\n")
	wrote := false
	for _, score := range selected {
		deps, err := a.index.DependenciesOf(ctx, score.Path)
		if err != nil || len(deps) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s -> %s\n", score.Path, strings.Join(deps, ", "))
		wrote = true
	}
	if !wrote {
		return ""
	}

	return a.fitSection(strings.TrimRight(b.String(), "\n"), tokenBudget.Get(budget.CategoryDependency))
}

// buildAgentMemory 构建 Agent 记忆小节。
func (a *Assembler) buildAgentMemory(ctx context.Context, request *Request, tokenBudget *budget.TokenBudget) string {
	if a.memory == nil {
		return ""
	}

	decisions, err := a.memory.RecentDecisions(ctx, request.Task.StoryID(), 10)
	if err != nil {
		a.logger.Warn("decision lookup failed", "request_id", request.ID, "error", err)
		return ""
	}
	if len(decisions) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Recent decisions\n")
	for _, decision := range decisions {
		fmt.Fprintf(&b, "- [%s] %s\n", decision.Role, decision.Summary)
	}

	return a.fitSection(strings.TrimRight(b.String(), "\n"), tokenBudget.Get(budget.CategoryAgentMemory))
}

// fitSection 把小节文本截断到目标 Token 数以内。
// 截断在行边界发生并带显式标记。
func (a *Assembler) fitSection(text string, target int) string {
	if text == "" || target <= 0 {
		return ""
	}
	if a.estimator.Estimate(text) <= target {
		return text
	}

	markerTokens := a.estimator.Estimate(compress.TruncationMarker)
	lines := strings.Split(text, "\n")

	var kept []string
	used := markerTokens
	for _, line := range lines {
		lineTokens := a.estimator.Estimate(line)
		if used+lineTokens > target {
			break
		}
		kept = append(kept, line)
		used += lineTokens
	}

	kept = append(kept, compress.TruncationMarker)
	return strings.Join(kept, "\n")
}

// measureUsage 按小节统计实际 Token 用量。
func (a *Assembler) measureUsage(assembled *AssembledContext) *budget.TokenUsage {
	usage := budget.NewTokenUsage()
	usage.Set(budget.CategoryPrimary, a.estimator.Estimate(assembled.Sections.Primary))
	usage.Set(budget.CategoryHistory, a.estimator.Estimate(assembled.Sections.Historical))
	usage.Set(budget.CategoryDependency, a.estimator.Estimate(assembled.Sections.Dependency))
	usage.Set(budget.CategoryAgentMemory, a.estimator.Estimate(assembled.Sections.AgentMemory))
	usage.Set(budget.CategoryBuffer, a.estimator.Estimate(assembled.Sections.Metadata))
	return usage
}

// recompress 对全部小节执行超限二次压缩。
// 压缩级别由所需压缩比决定，各小节分得上限的固定比例。
func (a *Assembler) recompress(assembled *AssembledContext, request *Request) {
	used := assembled.Usage.Total()
	if used == 0 {
		return
	}

	ratio := float64(request.Ceiling) / float64(used)
	level := compress.LevelForRatio(ratio)
	if level == compress.LevelNone {
		level = compress.LevelLow
	}

	assembled.Sections.Primary = a.recompressSection(
		assembled.Sections.Primary, level, request.Ceiling, budget.CategoryPrimary)
	assembled.Sections.Historical = a.recompressSection(
		assembled.Sections.Historical, level, request.Ceiling, budget.CategoryHistory)
	assembled.Sections.Dependency = a.recompressSection(
		assembled.Sections.Dependency, level, request.Ceiling, budget.CategoryDependency)
	assembled.Sections.AgentMemory = a.recompressSection(
		assembled.Sections.AgentMemory, level, request.Ceiling, budget.CategoryAgentMemory)

	assembled.Compressed = true
	assembled.Recompressed = true
	if level > assembled.CompressionLevel {
		assembled.CompressionLevel = level
	}

	a.metrics.Counter(otel.MetricPrepareOverflow).Add(context.Background(), 1,
		otel.NewAttr("level", level.String()))
}

func (a *Assembler) recompressSection(text string, level compress.Level, ceiling int, category budget.Category) string {
	if text == "" {
		return ""
	}
	target := int(float64(ceiling) * overflowShares[category])
	if target <= 0 {
		return ""
	}

	result := a.compressor.Compress(text, token.ContentTypeOther, level, target)
	return result.Content
}

// truncateToShares 是压缩仍超限时的字符级兜底。
func (a *Assembler) truncateToShares(assembled *AssembledContext, request *Request) {
	// 估算每 Token 的字符预算，留一点余量
	const charsPerToken = 3

	truncate := func(text string, category budget.Category) string {
		if text == "" {
			return ""
		}
		limit := int(float64(request.Ceiling)*overflowShares[category]) * charsPerToken
		if len(text) <= limit {
			return text
		}
		if limit <= len(compress.TruncationMarker) {
			return ""
		}
		cut := limit - len(compress.TruncationMarker)
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut] + compress.TruncationMarker
	}

	assembled.Sections.Primary = truncate(assembled.Sections.Primary, budget.CategoryPrimary)
	assembled.Sections.Historical = truncate(assembled.Sections.Historical, budget.CategoryHistory)
	assembled.Sections.Dependency = truncate(assembled.Sections.Dependency, budget.CategoryDependency)
	assembled.Sections.AgentMemory = truncate(assembled.Sections.AgentMemory, budget.CategoryAgentMemory)
	assembled.Truncated = true
}

// recordInclusions 把入选候选写回采用历史。
func (a *Assembler) recordInclusions(ctx context.Context, request *Request, selected []*relevance.Score) {
	if a.memory == nil {
		return
	}

	now := time.Now()
	for _, score := range selected {
		if err := a.memory.RecordInclusion(ctx, request.Role, request.Task.StoryID(), score.Path, now); err != nil {
			a.logger.Warn("inclusion write-back failed",
				"request_id", request.ID, "path", score.Path, "error", err)
		}
	}
}

// observe 输出装配完成的指标和日志。
func (a *Assembler) observe(ctx context.Context, request *Request, assembled *AssembledContext) {
	a.metrics.Histogram(otel.MetricPrepareDuration).Record(ctx,
		float64(assembled.PreparedIn.Milliseconds()), otel.NewAttr("role", request.Role))
	a.metrics.Histogram(otel.MetricTokensAssembled).Record(ctx, float64(assembled.Usage.Total()))
	a.metrics.Gauge(otel.MetricBudgetEfficiency).Set(ctx,
		assembled.Usage.Efficiency(assembled.Budget), otel.NewAttr("role", request.Role))

	a.logger.Info("context prepared",
		"request_id", request.ID,
		"fingerprint", assembled.Fingerprint,
		"role", request.Role,
		"story", assembled.StoryID,
		"tokens", assembled.Usage.Total(),
		"ceiling", request.Ceiling,
		"recompressed", assembled.Recompressed,
		"duration_ms", assembled.PreparedIn.Milliseconds())
}

// Invalidate 删除指纹对应的缓存结果。
func (a *Assembler) Invalidate(fingerprint string) error {
	if !a.store.Invalidate(fingerprint) {
		return fmt.Errorf("%w: context %s", coreerrors.ErrNotFound, fingerprint)
	}
	return nil
}

// InvalidateStory 删除某工作项下的全部缓存结果，返回删除数量。
func (a *Assembler) InvalidateStory(storyID string) int {
	return a.store.InvalidateByTags("story:" + storyID)
}

// InvalidateRole 删除某角色的全部缓存结果，返回删除数量。
func (a *Assembler) InvalidateRole(role string) int {
	return a.store.InvalidateByTags("role:" + role)
}
