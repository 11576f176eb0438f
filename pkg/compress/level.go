// Package compress 提供结构感知的内容压缩能力。
//
// 压缩按等级渐进执行：低等级只去除空白和注释，
// 中等级保留签名与摘要，高等级只保留签名与计数注记。
// 结构化提取失败时总是降级到通用文本策略，压缩本身从不报错。
package compress

import "strings"

// Level 表示压缩等级。
type Level int

const (
	// LevelNone 不压缩
	LevelNone Level = iota
	// LevelLow 仅去除空行和注释
	LevelLow
	// LevelModerate 保留签名/标题和简短摘要
	LevelModerate
	// LevelHigh 仅保留签名/标题和计数注记
	LevelHigh
	// LevelExtreme 最大程度压缩
	LevelExtreme
)

// String 返回等级名称。
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelLow:
		return "low"
	case LevelModerate:
		return "moderate"
	case LevelHigh:
		return "high"
	case LevelExtreme:
		return "extreme"
	default:
		return "unknown"
	}
}

// ParseLevel 解析等级名称，未知名称返回 LevelModerate。
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "none":
		return LevelNone
	case "low":
		return LevelLow
	case "moderate", "":
		return LevelModerate
	case "high":
		return LevelHigh
	case "extreme":
		return LevelExtreme
	default:
		return LevelModerate
	}
}

// LevelForRatio 根据所需压缩比例（目标/当前）选择等级。
// 比例越小需要的压缩越激进。
func LevelForRatio(ratio float64) Level {
	switch {
	case ratio >= 1.0:
		return LevelNone
	case ratio > 0.8:
		return LevelLow
	case ratio > 0.6:
		return LevelModerate
	case ratio > 0.4:
		return LevelHigh
	default:
		return LevelExtreme
	}
}
