// Package relevance 按任务描述对候选内容单元进行多信号相关性排序。
//
// 总分由五个子信号加权而成：直接提及、依赖关系、历史采用、
// 语义匹配和阶段匹配。所有分数都被钳制在 [0,1] 区间。
package relevance

import (
	"regexp"
	"strings"
)

// SearchTerms 是从任务描述中提取的检索词。
type SearchTerms struct {
	// Keywords 是去除停用词后的自由关键词。
	Keywords []string

	// Identifiers 是形如函数/类名的标识符词元。
	Identifiers []string

	// Filenames 是形如文件名的字面词元。
	Filenames []string

	// Concepts 是命中的领域概念词。
	Concepts []string
}

// stopwords 是关键词提取时忽略的常见词。
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "should": {}, "so": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "we": {}, "will": {},
	"with": {}, "when": {}, "then": {}, "into": {}, "all": {}, "can": {},
	"need": {}, "needs": {}, "new": {}, "add": {}, "use": {}, "using": {},
	"make": {}, "must": {},
}

// conceptVocabulary 是固定的领域概念词表。
var conceptVocabulary = []string{
	"test", "schema", "authentication", "authorization", "config",
	"database", "migration", "api", "cache", "handler", "model",
	"validation", "logging", "metrics", "queue", "storage", "index",
	"parser", "serialization", "security",
}

var (
	// identifierPattern 匹配 camelCase、snake_case 或带括号的调用形式。
	identifierPattern = regexp.MustCompile(`\b([a-z]+[A-Z][A-Za-z0-9]*|[A-Z][a-z0-9]+[A-Z][A-Za-z0-9]*|[a-zA-Z][a-zA-Z0-9]*_[a-zA-Z0-9_]+|[a-zA-Z_][a-zA-Z0-9_]*\(\))`)

	// filenamePattern 匹配形如文件名的词元。
	filenamePattern = regexp.MustCompile(`\b[\w./-]+\.[a-zA-Z]{1,4}\b`)

	wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9]+`)
)

// ExtractTerms 从任务描述中提取检索词。
func ExtractTerms(description string) *SearchTerms {
	terms := &SearchTerms{}
	seen := make(map[string]struct{})

	// 标识符词元
	for _, match := range identifierPattern.FindAllString(description, -1) {
		identifier := strings.TrimSuffix(match, "()")
		key := "id:" + identifier
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms.Identifiers = append(terms.Identifiers, identifier)
	}

	// 文件名词元
	for _, match := range filenamePattern.FindAllString(description, -1) {
		key := "file:" + match
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms.Filenames = append(terms.Filenames, match)
	}

	// 自由关键词（去停用词、小写化）
	lower := strings.ToLower(description)
	for _, word := range wordPattern.FindAllString(lower, -1) {
		if len(word) < 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		key := "kw:" + word
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms.Keywords = append(terms.Keywords, word)
	}

	// 领域概念
	for _, concept := range conceptVocabulary {
		if strings.Contains(lower, concept) {
			terms.Concepts = append(terms.Concepts, concept)
		}
	}

	return terms
}
