package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/core/utils"
)

// 分块编码的切片大小，避免一次性把整张图塞进单次编码调用
const encodeChunkSize = 48 * 1024

// Encoder 候选图下载编码器：拉取分析图变体，验证后转成内联base64
type Encoder struct {
	config     *configs.PipelineConfig
	validator  *Validator
	logger     *utils.Logger
	httpClient *http.Client
}

// NewEncoder 创建新的下载编码器
func NewEncoder(config *configs.PipelineConfig, logger *utils.Logger) *Encoder {
	// 配置HTTP客户端
	httpClient := &http.Client{
		Timeout: config.DownloadTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// 限制重定向次数为3次
			if len(via) >= 3 {
				return fmt.Errorf("停止重定向：超过最大重定向次数")
			}
			return nil
		},
	}

	return &Encoder{
		config:     config,
		validator:  NewValidator(config, logger),
		logger:     logger,
		httpClient: httpClient,
	}
}

// Encode 下载并编码一张候选图。任何失败都返回nil而不是错误：
// 失败的候选只是从下一阶段消失，零成功也是合法结果，由协商循环兜底。
func (e *Encoder) Encode(ctx context.Context, candidate Candidate) *EncodedCandidate {
	data, mimeType, err := e.download(ctx, candidate.AnalysisURL)
	if err != nil {
		e.logger.Debug(fmt.Sprintf("候选图下载失败，丢弃: %v", err), map[string]interface{}{
			"url": candidate.AnalysisURL,
		})
		return nil
	}

	result := e.validator.Validate(data)
	if !result.IsValid {
		e.logger.Debug(fmt.Sprintf("候选图验证失败，丢弃: %v", result.Error), map[string]interface{}{
			"url":  candidate.AnalysisURL,
			"size": len(data),
		})
		return nil
	}

	return &EncodedCandidate{
		Candidate: candidate,
		Data:      encodeChunked(data),
		MimeType:  mimeType,
		Size:      int64(len(data)),
	}
}

// download 下载分析图变体，带超时、状态码和Content-Type校验
func (e *Encoder) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("创建请求失败: %v", err)
	}

	// 设置User-Agent，避免被某些图床拒绝
	req.Header.Set("User-Agent", "Peitu-Image-Bot/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("HTTP响应错误: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !ValidContentType(contentType) {
		return nil, "", fmt.Errorf("无效的Content-Type: %s", contentType)
	}

	if resp.ContentLength > e.config.MaxFileSize {
		return nil, "", fmt.Errorf("文件过大: %d bytes，最大允许: %d bytes",
			resp.ContentLength, e.config.MaxFileSize)
	}

	// 使用LimitReader限制下载大小，防止无限下载
	limitedReader := io.LimitReader(resp.Body, e.config.MaxFileSize+1)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, "", fmt.Errorf("读取响应失败: %v", err)
	}
	if int64(len(data)) > e.config.MaxFileSize {
		return nil, "", fmt.Errorf("文件超过大小上限: %d bytes", e.config.MaxFileSize)
	}

	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}

	return data, mediaType, nil
}

// encodeChunked 按固定切片流式编码，单次编码调用只处理一小块
func encodeChunked(data []byte) string {
	var builder strings.Builder
	builder.Grow(base64.StdEncoding.EncodedLen(len(data)))

	encoder := base64.NewEncoder(base64.StdEncoding, &builder)
	for offset := 0; offset < len(data); offset += encodeChunkSize {
		end := offset + encodeChunkSize
		if end > len(data) {
			end = len(data)
		}
		// strings.Builder的Write永远不返回错误
		encoder.Write(data[offset:end])
	}
	encoder.Close()

	return builder.String()
}
