package utils

import "strings"

// 关键词文本清洗工具。模型给出的搜索词经常带引号或多余空白，
// 直接拿去查外部搜索源会大幅降低命中率。

var quoteRunes = []string{
	`"`, "'", "`",
	"“", "”", // 中文/弯双引号
	"‘", "’", // 弯单引号
	"「", "」", // 「」
	"『", "』", // 『』
}

// StripQuotes 去掉关键词两端及中间的各类引号
func StripQuotes(text string) string {
	for _, q := range quoteRunes {
		text = strings.ReplaceAll(text, q, "")
	}
	return strings.TrimSpace(text)
}

// NormalizeKeyword 归一化关键词：小写 + 去首尾空白，用作缓存键
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// ContainsAnyFold 判断文本是否包含词表中任一词（忽略大小写）
func ContainsAnyFold(text string, vocabulary []string) bool {
	lower := strings.ToLower(text)
	for _, word := range vocabulary {
		if strings.Contains(lower, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

// FirstLine 取多行文本的第一行并去掉首尾空白，模型回复常带换行
func FirstLine(text string) string {
	if idx := strings.IndexAny(text, "\r\n"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
