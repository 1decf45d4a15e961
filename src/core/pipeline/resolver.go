package pipeline

import (
	"context"
	"fmt"
	"strings"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/core/image"
	"peitu-server-go/src/core/oracle"
	"peitu-server-go/src/core/providers/llm"
	"peitu-server-go/src/core/utils"

	"golang.org/x/sync/singleflight"
)

// CandidateSource 候选图搜索抽象
type CandidateSource interface {
	FetchCandidates(ctx context.Context, keywords string, count int) []image.Candidate
}

// CandidateEncoder 候选图下载编码抽象
type CandidateEncoder interface {
	Encode(ctx context.Context, candidate image.Candidate) *image.EncodedCandidate
}

// Verifier 候选图校验抽象
type Verifier interface {
	Verify(ctx context.Context, encoded []image.EncodedCandidate, slideTitle, slideContext, keywords string, allowSuggestion bool) oracle.Result
}

// Resolver 配图解析器：驱动 搜索->编码->校验 的有界协商循环，
// 带备忘缓存，穷尽后落到确定性占位图。
type Resolver struct {
	source    CandidateSource
	encoder   CandidateEncoder
	verifier  Verifier
	suggester llm.Provider // 替换关键词生成
	config    *configs.PipelineConfig
	logger    *utils.Logger

	cache  *Cache
	flight singleflight.Group

	// OnResolved 每张图解析终结后的可选回调（落库、统计）
	OnResolved func(keyword, finalURL string, attempts int, placeholder bool)
}

// NewResolver 创建解析器
func NewResolver(source CandidateSource, encoder CandidateEncoder, verifier Verifier, suggester llm.Provider, config *configs.PipelineConfig, logger *utils.Logger) *Resolver {
	return &Resolver{
		source:    source,
		encoder:   encoder,
		verifier:  verifier,
		suggester: suggester,
		config:    config,
		logger:    logger,
		cache:     NewCache(),
	}
}

// Resolve 把一个配图请求解析成最终URL。永不返回错误：
// 所有失败路径都终结于可用（哪怕降级）的视觉结果。
func (r *Resolver) Resolve(ctx context.Context, slideTitle, slideContext, keywords string) string {
	key := utils.NormalizeKeyword(keywords)
	if key == "" {
		return PlaceholderURL(r.config.PlaceholderBase, keywords)
	}

	// 缓存命中：跳过整个协商循环
	if url, ok := r.cache.Get(key); ok {
		return url
	}

	// singleflight合并同关键词的并发解析，只有第一个调用付全额成本
	result, _, _ := r.flight.Do(key, func() (interface{}, error) {
		if url, ok := r.cache.Get(key); ok {
			return url, nil
		}

		url, attempts := r.negotiate(ctx, slideTitle, slideContext, keywords)
		r.cache.Set(key, url)

		if r.OnResolved != nil {
			r.OnResolved(key, url, attempts, IsPlaceholder(r.config.PlaceholderBase, url))
		}
		return url, nil
	})

	return result.(string)
}

// negotiate 有界协商循环。终态只有两种：选中某张图，或穷尽后占位图。
// 返回最终URL和实际消耗的尝试次数。
func (r *Resolver) negotiate(ctx context.Context, slideTitle, slideContext, keywords string) (string, int) {
	current := utils.StripQuotes(keywords)
	var failed []string

	attempt := 1
	for attempt <= r.config.MaxAttempts {
		candidates := r.source.FetchCandidates(ctx, current, r.config.CandidateCount)

		if len(candidates) == 0 {
			// 零结果不是错误：换个关键词再试，最后一轮不再换词
			failed = append(failed, current)
			if attempt < r.config.MaxAttempts {
				next := r.askAlternateKeyword(ctx, failed, slideTitle, slideContext)
				if next == "" {
					// 没有可用的新词，重试同一个词不会有不同结果
					break
				}
				current = next
			}
			attempt++
			continue
		}

		// 单候选捷径：没有可比较的对象，直接采用，省一次模型调用
		if len(candidates) == 1 {
			r.logger.Debug("单候选捷径，跳过模型校验", map[string]interface{}{
				"keywords": current,
			})
			return candidates[0].DisplayURL, attempt
		}

		encoded := r.encodeAll(ctx, candidates)

		if len(encoded) == 0 {
			// 候选全部下载/编码失败。校验器此时不会调用模型，
			// 带建议的否决里回传的是原词，真正的新词要找文本模型拿。
			result := r.verifier.Verify(ctx, encoded, slideTitle, slideContext, current, attempt == 1)
			if result.Outcome != oracle.OutcomeRejectedWithSuggestion {
				break
			}
			failed = append(failed, current)
			if attempt < r.config.MaxAttempts {
				next := r.askAlternateKeyword(ctx, failed, slideTitle, slideContext)
				if next == "" {
					break
				}
				current = next
			}
			attempt++
			continue
		}

		// 关键词建议只在第一次校验时放开：后续轮次必须在现有结果中表态，
		// 保证循环必然终止
		result := r.verifier.Verify(ctx, encoded, slideTitle, slideContext, current, attempt == 1)

		switch result.Outcome {
		case oracle.OutcomeSelected:
			return result.URL, attempt

		case oracle.OutcomeRejectedWithSuggestion:
			suggestion := utils.StripQuotes(utils.FirstLine(result.Keyword))
			// 建议词和当前词相同视作死路，不算新一轮尝试
			if suggestion == "" || strings.EqualFold(suggestion, current) {
				break
			}
			failed = append(failed, current)
			current = suggestion
			attempt++
			continue

		case oracle.OutcomeRejectedNoSuggestion:
			// 无词可换，立即穷尽
		}
		break
	}

	r.logger.Info("配图协商穷尽，使用占位图", map[string]interface{}{
		"keywords": keywords,
		"failed":   failed,
	})
	return PlaceholderURL(r.config.PlaceholderBase, keywords), attempt
}

// encodeAll 逐个下载编码候选图，失败的静默丢弃
func (r *Resolver) encodeAll(ctx context.Context, candidates []image.Candidate) []image.EncodedCandidate {
	encoded := make([]image.EncodedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if ec := r.encoder.Encode(ctx, candidate); ec != nil {
			encoded = append(encoded, *ec)
		}
	}
	return encoded
}

// askAlternateKeyword 向文本模型要一个替换搜索词，明确给出已失败的词。
// 拿不到合规的词就返回空串，调用方按死路处理。
func (r *Resolver) askAlternateKeyword(ctx context.Context, failed []string, slideTitle, slideContext string) string {
	if r.suggester == nil {
		return ""
	}

	prompt := fmt.Sprintf(
		"Image search for a lesson slide found nothing.\nSlide title: %s\nSlide context: %s\nAlready tried keywords: %s\nSuggest ONE different image search phrase of 2-4 words. Do not use commas. Reply with the phrase only.",
		slideTitle, slideContext, strings.Join(failed, "; "),
	)

	reply, err := r.suggester.Complete(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		r.logger.Warn(fmt.Sprintf("替换关键词请求失败: %v", err))
		return ""
	}

	suggestion := utils.StripQuotes(utils.FirstLine(reply))
	// 逗号是格式违例的信号：模型在罗列而不是给一个短语
	if suggestion == "" || strings.Contains(suggestion, ",") || strings.Contains(suggestion, "，") || len(suggestion) > 80 {
		r.logger.Debug("替换关键词不合规，放弃", map[string]interface{}{
			"reply": utils.FirstLine(reply),
		})
		return ""
	}
	for _, tried := range failed {
		if strings.EqualFold(suggestion, tried) {
			return ""
		}
	}
	return suggestion
}
