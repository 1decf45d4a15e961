package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/core/image"
	"peitu-server-go/src/core/utils"
)

// source 单个外部图片搜索源
type source interface {
	Name() string
	Fetch(ctx context.Context, keywords string, limit int) ([]image.Candidate, error)
}

// 视觉泛化词表：命中则优先走图库源（图库对风景类关键词质量更高），
// 未命中的专业/教学类关键词优先走开放媒体源。
var genericVisualVocabulary = []string{
	"nature", "landscape", "mountain", "forest", "ocean", "sea", "beach",
	"sky", "sunset", "sunrise", "river", "lake", "flower", "tree", "animal",
	"bird", "food", "city", "desert", "snow", "cloud", "garden", "waterfall",
	"wildlife", "field", "island",
}

// Adapter 候选图搜索适配器：按关键词类型挑选主源，失败时退回备源
type Adapter struct {
	commons    source
	pixabay    source
	multiplier int
	logger     *utils.Logger
}

// NewAdapter 创建搜索适配器
func NewAdapter(config *configs.SearchConfig, logger *utils.Logger) *Adapter {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	return &Adapter{
		commons:    newCommonsSource(config, httpClient),
		pixabay:    newPixabaySource(config, httpClient),
		multiplier: config.FetchMultiplier,
		logger:     logger,
	}
}

// FetchCandidates 查询候选图。两个源都失败或都为空时返回空列表，
// 调用方必须把空列表当作“没有合适的图”，而不是错误。
func (a *Adapter) FetchCandidates(ctx context.Context, keywords string, count int) []image.Candidate {
	// 模型给的关键词偶尔带引号，先清洗再查
	cleaned := utils.StripQuotes(keywords)
	if cleaned == "" {
		return nil
	}

	// 多拉一些候选，抵消逐项过滤的损耗
	limit := count * a.multiplier

	var primary, fallback source
	if utils.ContainsAnyFold(cleaned, genericVisualVocabulary) {
		primary, fallback = a.pixabay, a.commons
	} else {
		primary, fallback = a.commons, a.pixabay
	}

	for _, src := range []source{primary, fallback} {
		candidates, err := src.Fetch(ctx, cleaned, limit)
		if err != nil {
			// 瞬时网络/解析错误一律当作零结果，绝不向上抛
			a.logger.Warn(fmt.Sprintf("搜索源%s查询失败: %v", src.Name(), err), map[string]interface{}{
				"keywords": cleaned,
			})
			continue
		}
		if len(candidates) == 0 {
			a.logger.Debug(fmt.Sprintf("搜索源%s无结果，尝试备源", src.Name()), map[string]interface{}{
				"keywords": cleaned,
			})
			continue
		}

		if len(candidates) > count {
			candidates = candidates[:count]
		}
		a.logger.Debug(fmt.Sprintf("搜索源%s返回%d个候选", src.Name(), len(candidates)), map[string]interface{}{
			"keywords": cleaned,
		})
		return candidates
	}

	return nil
}
