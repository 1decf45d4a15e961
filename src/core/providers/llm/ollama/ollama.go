package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"peitu-server-go/src/core/providers/llm"
)

// Provider Ollama LLM提供者
type Provider struct {
	*llm.BaseProvider
	httpClient *http.Client
}

// 注册提供者
func init() {
	llm.Register("ollama", NewProvider)
}

// NewProvider 创建Ollama提供者
func NewProvider(config *llm.Config) (llm.Provider, error) {
	return &Provider{
		BaseProvider: llm.NewBaseProvider(config),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Initialize 初始化提供者
func (p *Provider) Initialize() error {
	// Ollama不需要API key，只需要确保有BaseURL
	if p.Config().BaseURL == "" {
		p.Config().BaseURL = "http://localhost:11434" // 默认Ollama地址
	}
	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	return nil
}

// chatRequest Ollama API请求结构
type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []llm.Message          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// chatResponse Ollama API响应结构
type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Complete llm.Provider接口实现，单条非流式回复
func (p *Provider) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	request := chatRequest{
		Model:    p.Config().ModelName,
		Messages: messages,
		Stream:   false,
		Options: map[string]interface{}{
			"temperature": p.Config().Temperature,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("请求序列化失败: %v", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.Config().BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Ollama API调用失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Ollama API返回错误: %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("解析Ollama响应失败: %v", err)
	}

	return parsed.Message.Content, nil
}
