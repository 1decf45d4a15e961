package vlllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"peitu-server-go/src/core/image"
	"peitu-server-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// Config VLLLM配置结构
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Provider VLLLM提供者，直接处理多模态API
type Provider struct {
	config *Config
	logger *utils.Logger

	// 直接的API客户端
	openaiClient *openai.Client // 用于OpenAI类型
	httpClient   *http.Client   // 用于Ollama类型
}

// NewProvider 创建新的VLLLM提供者
func NewProvider(config *Config, logger *utils.Logger) (*Provider, error) {
	return &Provider{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Initialize 初始化Provider
func (p *Provider) Initialize() error {
	switch strings.ToLower(p.config.Type) {
	case "openai":
		if p.config.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required")
		}
		clientConfig := openai.DefaultConfig(p.config.APIKey)
		if p.config.BaseURL != "" {
			clientConfig.BaseURL = p.config.BaseURL
		}
		p.openaiClient = openai.NewClientWithConfig(clientConfig)

	case "ollama":
		// Ollama不需要API key，只需要确保有BaseURL
		if p.config.BaseURL == "" {
			p.config.BaseURL = "http://localhost:11434" // 默认Ollama地址
		}

	default:
		return fmt.Errorf("不支持的VLLLM类型: %s", p.config.Type)
	}

	p.logger.Debug("VLLLM Provider初始化成功", map[string]interface{}{
		"type":       p.config.Type,
		"model_name": p.config.ModelName,
	})
	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	return nil
}

// Analyze 把一段指令和若干内联图片合成一次多模态请求，返回原始回复文本。
// 回复由上层的校验器做容错解析，这里不做任何结构化假设。
func (p *Provider) Analyze(ctx context.Context, prompt string, candidates []image.EncodedCandidate) (string, error) {
	p.logger.Debug("开始调用多模态API", map[string]interface{}{
		"type":       p.config.Type,
		"model_name": p.config.ModelName,
		"images":     len(candidates),
	})

	switch strings.ToLower(p.config.Type) {
	case "openai":
		return p.analyzeWithOpenAIVision(ctx, prompt, candidates)
	case "ollama":
		return p.analyzeWithOllamaVision(ctx, prompt, candidates)
	default:
		return "", fmt.Errorf("不支持的VLLLM类型: %s", p.config.Type)
	}
}

// analyzeWithOpenAIVision 使用OpenAI Vision API
func (p *Provider) analyzeWithOpenAIVision(ctx context.Context, prompt string, candidates []image.EncodedCandidate) (string, error) {
	// 构建包含图片的多模态消息：文本在前，候选图按序号排列
	parts := make([]openai.ChatMessagePart, 0, len(candidates)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: prompt,
	})
	for _, candidate := range candidates {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", candidate.MimeType, candidate.Data),
			},
		})
	}

	resp, err := p.openaiClient.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: p.config.ModelName,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:         openai.ChatMessageRoleUser,
					MultiContent: parts,
				},
			},
			Temperature: float32(p.config.Temperature),
			TopP:        float32(p.config.TopP),
			MaxTokens:   p.config.MaxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("OpenAI Vision API调用失败: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI Vision API返回空choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// ollamaRequest Ollama API请求结构
type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ollamaMessage Ollama消息结构
type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64编码的图片
}

// ollamaResponse Ollama API响应结构
type ollamaResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// analyzeWithOllamaVision 使用Ollama Vision API
func (p *Provider) analyzeWithOllamaVision(ctx context.Context, prompt string, candidates []image.EncodedCandidate) (string, error) {
	images := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		// Ollama需要纯base64，不需要data URL前缀
		images = append(images, candidate.Data)
	}

	request := ollamaRequest{
		Model: p.config.ModelName,
		Messages: []ollamaMessage{
			{
				Role:    "user",
				Content: prompt,
				Images:  images,
			},
		},
		Stream: false,
		Options: map[string]interface{}{
			"temperature": p.config.Temperature,
			"top_p":       p.config.TopP,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("Ollama请求序列化失败: %v", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("创建Ollama请求失败: %v", err)
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

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("解析Ollama响应失败: %v", err)
	}

	return parsed.Message.Content, nil
}
