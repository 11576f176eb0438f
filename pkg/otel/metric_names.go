package otel

// 预定义的指标名称
// 遵循 OpenTelemetry 语义约定
const (
	// 装配指标
	MetricPrepareRequests = "context.prepare.requests" // 计数器: 装配请求次数
	MetricPrepareDuration = "context.prepare.duration" // 直方图: 装配耗时(ms)
	MetricPrepareErrors   = "context.prepare.errors"   // 计数器: 装配失败次数
	MetricPrepareOverflow = "context.prepare.overflow" // 计数器: 超预算二次压缩次数
	MetricTokensAssembled = "context.tokens.assembled" // 直方图: 装配产出 Token 数

	// 预算指标
	MetricBudgetEfficiency = "budget.efficiency" // 仪表: 预算利用率
	MetricBudgetFallbacks  = "budget.fallbacks"  // 计数器: 回退默认分配次数

	// 相关性指标
	MetricScoreCandidates = "relevance.candidates"     // 直方图: 每次请求的候选数
	MetricScoreDuration   = "relevance.score.duration" // 直方图: 打分耗时(ms)

	// 压缩指标
	MetricCompressionRatio    = "compression.ratio"     // 直方图: 压缩比
	MetricCompressionFallback = "compression.fallbacks" // 计数器: 结构提取失败回退次数

	// 缓存指标
	MetricCacheHits      = "cache.hits"       // 计数器: 缓存命中次数
	MetricCacheMisses    = "cache.misses"     // 计数器: 缓存未命中次数
	MetricCacheEvictions = "cache.evictions"  // 计数器: 容量淘汰次数
	MetricCacheWarmLoads = "cache.warm.loads" // 计数器: 预热写入次数
	MetricCacheEntries   = "cache.entries"    // 仪表: 当前条目数
)

// MetricUnit 指标单位
type MetricUnit string

const (
	UnitNone         MetricUnit = ""
	UnitMilliseconds MetricUnit = "ms"
	UnitSeconds      MetricUnit = "s"
	UnitBytes        MetricUnit = "By"
	UnitCount        MetricUnit = "1"
)

// MetricDescription 指标描述
type MetricDescription struct {
	Name        string
	Description string
	Unit        MetricUnit
	Type        string // counter, histogram, gauge
}

// PredefinedMetrics 预定义指标列表
var PredefinedMetrics = []MetricDescription{
	{MetricPrepareRequests, "Number of context preparation requests", UnitCount, "counter"},
	{MetricPrepareDuration, "Duration of context preparation", UnitMilliseconds, "histogram"},
	{MetricPrepareErrors, "Number of failed preparations", UnitCount, "counter"},
	{MetricPrepareOverflow, "Number of over-budget recompressions", UnitCount, "counter"},
	{MetricTokensAssembled, "Tokens in assembled contexts", UnitCount, "histogram"},

	{MetricBudgetEfficiency, "Ratio of used to allocated budget", UnitCount, "gauge"},
	{MetricBudgetFallbacks, "Number of fallback budget allocations", UnitCount, "counter"},

	{MetricScoreCandidates, "Candidates scored per request", UnitCount, "histogram"},
	{MetricScoreDuration, "Duration of relevance scoring", UnitMilliseconds, "histogram"},

	{MetricCompressionRatio, "Output to input token ratio", UnitCount, "histogram"},
	{MetricCompressionFallback, "Number of extraction fallbacks", UnitCount, "counter"},

	{MetricCacheHits, "Number of cache hits", UnitCount, "counter"},
	{MetricCacheMisses, "Number of cache misses", UnitCount, "counter"},
	{MetricCacheEvictions, "Number of capacity evictions", UnitCount, "counter"},
	{MetricCacheWarmLoads, "Number of warm loads", UnitCount, "counter"},
	{MetricCacheEntries, "Current number of cache entries", UnitCount, "gauge"},
}
