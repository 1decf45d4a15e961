package configs

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Server struct {
		IP    string `yaml:"ip"`
		Port  int    `yaml:"port"`
		Token string `yaml:"token"`
	} `yaml:"server"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	Web struct {
		Enabled   bool   `yaml:"enabled"`
		Port      int    `yaml:"port"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"web"`

	SelectedModule map[string]string `yaml:"selected_module"`

	LLM   map[string]LLMConfig  `yaml:"LLM"`
	VLLLM map[string]VLLMConfig `yaml:"VLLLM"`

	Search   SearchConfig   `yaml:"search"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// LLMConfig LLM配置结构
type LLMConfig struct {
	Type        string                 `yaml:"type"`
	ModelName   string                 `yaml:"model_name"`
	BaseURL     string                 `yaml:"url"`
	APIKey      string                 `yaml:"api_key"`
	Temperature float64                `yaml:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens"`
	TopP        float64                `yaml:"top_p"`
	Extra       map[string]interface{} `yaml:",inline"`
}

// VLLMConfig VLLLM配置结构（视觉语言大模型，用于候选图校验）
type VLLMConfig struct {
	Type        string                 `yaml:"type"`        // API类型，复用LLM的类型
	ModelName   string                 `yaml:"model_name"`  // 模型名称，使用支持视觉的模型
	BaseURL     string                 `yaml:"url"`         // API地址
	APIKey      string                 `yaml:"api_key"`     // API密钥
	Temperature float64                `yaml:"temperature"` // 温度参数
	MaxTokens   int                    `yaml:"max_tokens"`  // 最大令牌数
	TopP        float64                `yaml:"top_p"`       // TopP参数
	Extra       map[string]interface{} `yaml:",inline"`     // 额外配置
}

// SearchConfig 图片搜索源配置
type SearchConfig struct {
	Commons struct {
		Endpoint  string `yaml:"endpoint"`   // MediaWiki API地址
		UserAgent string `yaml:"user_agent"` // Wikimedia要求的UA
		ThumbSize int    `yaml:"thumb_size"` // 分析用缩略图宽度（像素）
	} `yaml:"commons"`
	Pixabay struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"pixabay"`
	FetchMultiplier int `yaml:"fetch_multiplier"` // 实际请求数 = 期望数 * 倍数，抵消逐项过滤的损耗
}

// PipelineConfig 配图流水线调参
type PipelineConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`     // 单张图的协商尝试上限
	CandidateCount  int           `yaml:"candidate_count"`  // 每次搜索期望的候选数
	CandidateLimit  int           `yaml:"candidate_limit"`  // 单次送模型校验的候选上限
	DownloadTimeout time.Duration `yaml:"download_timeout"` // 单张候选图下载超时
	MaxFileSize     int64         `yaml:"max_file_size"`    // 候选图最大字节数
	MinFileSize     int64         `yaml:"min_file_size"`    // 候选图最小字节数
	ImageCooldown   time.Duration `yaml:"image_cooldown"`   // 同模块内两张图之间的间隔
	ModuleCooldown  time.Duration `yaml:"module_cooldown"`  // 后台模块生成之间的间隔
	PlaceholderBase string        `yaml:"placeholder_base"` // 占位图URL前缀
}

// LoadConfig 从文件加载配置
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, path, err
	}
	config.Pipeline.ApplyDefaults()
	if config.Search.FetchMultiplier <= 0 {
		config.Search.FetchMultiplier = 3
	}

	return config, path, nil
}

// ApplyDefaults 填充未配置的流水线参数
func (p *PipelineConfig) ApplyDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.CandidateCount <= 0 {
		p.CandidateCount = 4
	}
	if p.CandidateLimit <= 0 {
		p.CandidateLimit = 3
	}
	if p.DownloadTimeout <= 0 {
		p.DownloadTimeout = 8 * time.Second
	}
	if p.MaxFileSize <= 0 {
		p.MaxFileSize = 8 * 1024 * 1024
	}
	if p.MinFileSize <= 0 {
		p.MinFileSize = 500
	}
	if p.ImageCooldown <= 0 {
		p.ImageCooldown = 2 * time.Second
	}
	if p.ModuleCooldown <= 0 {
		p.ModuleCooldown = 6 * time.Second
	}
	if p.PlaceholderBase == "" {
		p.PlaceholderBase = "https://placehold.co/800x450"
	}
}
