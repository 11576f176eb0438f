package cache

import (
	"sort"
	"time"
)

// PatternType 表示访问模式的种类。
type PatternType string

const (
	// PatternFrequency 高频访问键
	PatternFrequency PatternType = "frequency"
	// PatternSequential 固定长度重复序列的后继预测
	PatternSequential PatternType = "sequential"
	// PatternRoleTransition 角色切换共现
	PatternRoleTransition PatternType = "role_transition"
)

// PredictionPattern 是一条学习到的键间关联。
// 它只用于排定预热优先级，绝不绕过正常的淘汰和 TTL 规则。
type PredictionPattern struct {
	// Type 是模式种类。
	Type PatternType

	// Source 是触发侧（前驱键或角色切换 "roleA>roleB"）。
	Source string

	// Predicts 是被预测的键。
	Predicts string

	// Confidence 是模式置信度（0.0-1.0）。
	Confidence float64

	// Occurrences 是模式出现次数。
	Occurrences int

	// attempts/successes 维护运行中的预测成功率。
	attempts  int
	successes int

	// LastSeen 是最近一次观测时间。
	LastSeen time.Time
}

// SuccessRate 返回预测成功率；尚无预测时返回 0。
func (p *PredictionPattern) SuccessRate() float64 {
	if p.attempts == 0 {
		return 0
	}
	return float64(p.successes) / float64(p.attempts)
}

// recordAttempt 登记一次由该模式触发的预测。
func (p *PredictionPattern) recordAttempt() {
	p.attempts++
}

// recordSuccess 登记一次被命中验证的预测。
func (p *PredictionPattern) recordSuccess() {
	p.successes++
}

// accessRecord 是访问历史中的一条记录。
type accessRecord struct {
	key  string
	role string
	at   time.Time
}

// analyzePatterns 从访问历史中挖掘三类模式。
// 返回按 Source+Predicts 去重的模式表。
func analyzePatterns(log []accessRecord) map[string]*PredictionPattern {
	patterns := make(map[string]*PredictionPattern)
	if len(log) < 2 {
		return patterns
	}

	total := len(log)
	counts := make(map[string]int, total)
	for _, record := range log {
		counts[record.key]++
	}

	// (a) 频次模式：出现占比超过 10% 的键
	for key, count := range counts {
		confidence := float64(count) / float64(total)
		if confidence < 0.1 {
			continue
		}
		patterns["freq:"+key] = &PredictionPattern{
			Type:        PatternFrequency,
			Source:      key,
			Predicts:    key,
			Confidence:  confidence,
			Occurrences: count,
			LastSeen:    log[total-1].at,
		}
	}

	// (b) 序列模式：相邻键对 a→b，置信度 = count(a→b)/count(a)
	pairCounts := make(map[[2]string]int)
	for i := 0; i+1 < total; i++ {
		if log[i].key == log[i+1].key {
			continue
		}
		pairCounts[[2]string{log[i].key, log[i+1].key}]++
	}
	for pair, count := range pairCounts {
		if count < 2 {
			continue
		}
		confidence := float64(count) / float64(counts[pair[0]])
		if confidence < 0.4 {
			continue
		}
		patterns["seq:"+pair[0]+">"+pair[1]] = &PredictionPattern{
			Type:        PatternSequential,
			Source:      pair[0],
			Predicts:    pair[1],
			Confidence:  confidence,
			Occurrences: count,
			LastSeen:    log[total-1].at,
		}
	}

	// (c) 角色切换模式：角色 A 访问后紧跟角色 B 的键
	transitionCounts := make(map[[2]string]map[string]int)
	for i := 0; i+1 < total; i++ {
		a, b := log[i], log[i+1]
		if a.role == "" || b.role == "" || a.role == b.role {
			continue
		}
		transition := [2]string{a.role, b.role}
		if transitionCounts[transition] == nil {
			transitionCounts[transition] = make(map[string]int)
		}
		transitionCounts[transition][b.key]++
	}
	for transition, keys := range transitionCounts {
		transitionTotal := 0
		for _, count := range keys {
			transitionTotal += count
		}
		for key, count := range keys {
			if count < 2 {
				continue
			}
			confidence := float64(count) / float64(transitionTotal)
			if confidence < 0.4 {
				continue
			}
			source := transition[0] + ">" + transition[1]
			patterns["role:"+source+":"+key] = &PredictionPattern{
				Type:        PatternRoleTransition,
				Source:      source,
				Predicts:    key,
				Confidence:  confidence,
				Occurrences: count,
				LastSeen:    log[total-1].at,
			}
		}
	}

	return patterns
}

// successorsOf 返回按置信度降序排列的后继键预测。
func successorsOf(patterns map[string]*PredictionPattern, key string, limit int) []*PredictionPattern {
	var matched []*PredictionPattern
	for _, pattern := range patterns {
		if pattern.Type == PatternSequential && pattern.Source == key && pattern.Predicts != key {
			matched = append(matched, pattern)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Confidence != matched[j].Confidence {
			return matched[i].Confidence > matched[j].Confidence
		}
		return matched[i].Predicts < matched[j].Predicts
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
