package llm

import (
	"context"
	"fmt"
	"sync"
)

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config LLM配置
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Provider LLM提供者接口。流水线只需要单条短回复，不走流式。
type Provider interface {
	Initialize() error
	Cleanup() error
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Factory 提供者工厂函数
type Factory func(config *Config) (Provider, error)

var (
	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// Register 注册LLM提供者工厂
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Create 根据类型创建LLM提供者
func Create(name string, config *Config) (Provider, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未注册的LLM类型: %s", name)
	}

	provider, err := factory(config)
	if err != nil {
		return nil, err
	}
	if err := provider.Initialize(); err != nil {
		return nil, err
	}
	return provider, nil
}

// BaseProvider 提供者基础实现
type BaseProvider struct {
	config *Config
}

// NewBaseProvider 创建基础提供者
func NewBaseProvider(config *Config) *BaseProvider {
	return &BaseProvider{config: config}
}

// Config 获取配置
func (p *BaseProvider) Config() *Config {
	return p.config
}
