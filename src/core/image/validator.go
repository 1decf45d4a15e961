package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/core/utils"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// Validator 候选图验证器：大小、Content-Type、真实图片解码三道关卡
type Validator struct {
	config *configs.PipelineConfig
	logger *utils.Logger
}

// NewValidator 创建新的候选图验证器
func NewValidator(config *configs.PipelineConfig, logger *utils.Logger) *Validator {
	return &Validator{
		config: config,
		logger: logger,
	}
}

// 图片格式魔数签名，解码前的快速排查
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，需要进一步检查WEBP标识
	"bmp":  {0x42, 0x4D},
}

// ValidContentType 检查Content-Type是否为图片类型
func ValidContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	return strings.HasPrefix(mediaType, "image/")
}

// Validate 验证下载到的候选图字节
func (v *Validator) Validate(data []byte) ValidationResult {
	result := ValidationResult{IsValid: false, FileSize: int64(len(data))}

	// 1. 大小下限：过小的响应多半是错误页或防盗链占位
	if int64(len(data)) < v.config.MinFileSize {
		result.Error = fmt.Errorf("文件过小: %d bytes，最小要求: %d bytes", len(data), v.config.MinFileSize)
		return result
	}

	// 2. 大小上限
	if int64(len(data)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf("文件过大: %d bytes，最大允许: %d bytes", len(data), v.config.MaxFileSize)
		return result
	}

	// 3. 尝试解码图片头（最可靠的验证方式）
	config, actualFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// 解码失败时再看魔数，便于日志区分截断图片和非图片
		if format := matchSignature(data); format != "" {
			v.logger.Debug(fmt.Sprintf("文件头为%s但解码失败: %v", format, err))
		}
		result.Error = fmt.Errorf("图片解码失败: %v", err)
		return result
	}

	result.IsValid = true
	result.Format = actualFormat
	result.Width = config.Width
	result.Height = config.Height
	return result
}

// matchSignature 返回字节流匹配到的图片格式魔数，无匹配返回空串
func matchSignature(data []byte) string {
	for format, signature := range imageSignatures {
		if bytes.HasPrefix(data, signature) {
			if format == "webp" {
				if len(data) < 12 || !bytes.Equal(data[8:12], []byte("WEBP")) {
					continue
				}
			}
			return format
		}
	}
	return ""
}
