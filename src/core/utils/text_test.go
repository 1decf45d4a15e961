package utils

import (
	"testing"
)

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "英文双引号包裹",
			input:    `"mountain sunrise"`,
			expected: "mountain sunrise",
		},
		{
			name:     "英文单引号包裹",
			input:    "'cell division'",
			expected: "cell division",
		},
		{
			name:     "中文引号",
			input:    "“光合作用”示意图",
			expected: "光合作用示意图",
		},
		{
			name:     "混合引号和空白",
			input:    `  "‘ocean waves’"  `,
			expected: "ocean waves",
		},
		{
			name:     "无引号保持原样",
			input:    "solar system",
			expected: "solar system",
		},
		{
			name:     "空字符串",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StripQuotes(tt.input)
			if result != tt.expected {
				t.Errorf("StripQuotes(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeKeyword(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"大小写归一", "Mountain Sunrise", "mountain sunrise"},
		{"首尾空白", "  forest  ", "forest"},
		{"已归一化", "forest", "forest"},
		{"空串", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKeyword(tt.input); got != tt.expected {
				t.Errorf("NormalizeKeyword(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestContainsAnyFold(t *testing.T) {
	vocab := []string{"nature", "mountain", "ocean"}

	if !ContainsAnyFold("Mountain Sunrise", vocab) {
		t.Error("应命中词表中的 mountain")
	}
	if ContainsAnyFold("cell division diagram", vocab) {
		t.Error("不应命中任何词")
	}
	if ContainsAnyFold("", vocab) {
		t.Error("空文本不应命中")
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"多行取首行", "alpine lake\nsecond line", "alpine lake"},
		{"回车换行", "alpine lake\r\nmore", "alpine lake"},
		{"单行去空白", "  alpine lake  ", "alpine lake"},
		{"空串", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstLine(tt.input); got != tt.expected {
				t.Errorf("FirstLine(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
