package pipeline

import (
	"net/url"
	"strings"

	"peitu-server-go/src/core/utils"
)

// PlaceholderURL 生成确定性的占位图URL，把原始关键词编码为展示文字。
// 解析穷尽不是错误而是既定的终态，用户看到的是带标签的占位图。
func PlaceholderURL(base, keywords string) string {
	text := utils.StripQuotes(keywords)
	if text == "" {
		text = "image"
	}
	return base + "?text=" + url.QueryEscape(text)
}

// IsPlaceholder 判断URL是否为占位图
func IsPlaceholder(base, imageURL string) bool {
	return base != "" && strings.HasPrefix(imageURL, base)
}
