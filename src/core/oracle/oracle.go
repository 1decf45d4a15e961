package oracle

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"peitu-server-go/src/core/image"
	"peitu-server-go/src/core/utils"
)

// Outcome 校验结论类型
type Outcome int

const (
	OutcomeSelected               Outcome = iota // 选中某个候选
	OutcomeRejectedWithSuggestion                // 全部否决，附替换关键词
	OutcomeRejectedNoSuggestion                  // 全部否决，无可用关键词
)

// Result 一次校验的结论
type Result struct {
	Outcome Outcome
	URL     string // Outcome为Selected时的展示URL
	Keyword string // Outcome为RejectedWithSuggestion时的替换关键词
}

// VisionModel 视觉模型调用抽象，便于测试替身
type VisionModel interface {
	Analyze(ctx context.Context, prompt string, candidates []image.EncodedCandidate) (string, error)
}

// Oracle 候选图校验器：一次多模态请求让模型在候选中选优或全部否决
type Oracle struct {
	model  VisionModel
	limit  int // 单次请求的候选上限，控制请求成本
	logger *utils.Logger
}

// NewOracle 创建校验器
func NewOracle(model VisionModel, limit int, logger *utils.Logger) *Oracle {
	if limit <= 0 {
		limit = 3
	}
	return &Oracle{
		model:  model,
		limit:  limit,
		logger: logger,
	}
}

// 模型回复的容错解析：NONE标记优先于裸序号
var (
	noneWithKeywordRe = regexp.MustCompile(`(?i)NONE\s*[:：]\s*([^\n]+)`)
	noneBareRe        = regexp.MustCompile(`(?i)\bNONE\b`)
	indexRe           = regexp.MustCompile(`\d+`)
)

// Verify 校验一批已编码候选。encoded为空时绝不调用模型。
func (o *Oracle) Verify(ctx context.Context, encoded []image.EncodedCandidate, slideTitle, slideContext, keywords string, allowSuggestion bool) Result {
	// 零候选：直接否决，按是否允许建议携带原始关键词
	if len(encoded) == 0 {
		if allowSuggestion {
			return Result{Outcome: OutcomeRejectedWithSuggestion, Keyword: keywords}
		}
		return Result{Outcome: OutcomeRejectedNoSuggestion}
	}

	submitted := o.capCandidates(encoded)
	prompt := o.buildPrompt(slideTitle, slideContext, keywords, len(submitted), allowSuggestion)

	reply, err := o.model.Analyze(ctx, prompt, submitted)
	if err != nil {
		// 模型调用失败降级为选第一个成功编码的候选，绝不让错误越过组件边界
		o.logger.Warn(fmt.Sprintf("视觉模型调用失败，降级选用首个候选: %v", err), map[string]interface{}{
			"keywords": keywords,
		})
		return Result{Outcome: OutcomeSelected, URL: submitted[0].DisplayURL}
	}

	return o.parseReply(reply, submitted, allowSuggestion, keywords)
}

// capCandidates 控制送模型的候选数量，超出时优先保留体积小的
func (o *Oracle) capCandidates(encoded []image.EncodedCandidate) []image.EncodedCandidate {
	if len(encoded) <= o.limit {
		return encoded
	}
	capped := make([]image.EncodedCandidate, len(encoded))
	copy(capped, encoded)
	sort.SliceStable(capped, func(i, j int) bool { return capped[i].Size < capped[j].Size })
	return capped[:o.limit]
}

// buildPrompt 组装严格格式指令。模型未必守规矩，解析端另有兜底。
func (o *Oracle) buildPrompt(slideTitle, slideContext, keywords string, count int, allowSuggestion bool) string {
	var b strings.Builder
	b.WriteString("You are choosing an illustration for a lesson slide.\n")
	fmt.Fprintf(&b, "Slide title: %s\n", slideTitle)
	if slideContext != "" {
		fmt.Fprintf(&b, "Slide context: %s\n", slideContext)
	}
	fmt.Fprintf(&b, "Search keywords: %s\n", keywords)
	fmt.Fprintf(&b, "The %d attached images are numbered 1 to %d in order.\n", count, count)
	b.WriteString("Reply with ONLY the number of the image that best illustrates this slide.")
	if allowSuggestion {
		b.WriteString("\nIf none of the images fits, reply exactly: NONE: <better search keyword, 2-4 words>")
	}
	return b.String()
}

// parseReply 容错解析模型回复。找不到合法序号或标记时退回首个候选，
// 模型输出再离谱也只会退化成“尽力而为”，不会变成异常。
func (o *Oracle) parseReply(reply string, submitted []image.EncodedCandidate, allowSuggestion bool, keywords string) Result {
	trimmed := strings.TrimSpace(reply)

	// NONE标记优先识别，避免把替换关键词里的数字误当序号
	if match := noneWithKeywordRe.FindStringSubmatch(trimmed); match != nil {
		if allowSuggestion {
			suggestion := utils.StripQuotes(utils.FirstLine(match[1]))
			suggestion = strings.TrimRight(suggestion, ".。")
			if suggestion != "" {
				return Result{Outcome: OutcomeRejectedWithSuggestion, Keyword: suggestion}
			}
			return Result{Outcome: OutcomeRejectedNoSuggestion}
		}
		// 不允许建议的轮次回了NONE：按格式违例处理，落到首候选兜底
	} else if noneBareRe.MatchString(trimmed) {
		if allowSuggestion {
			// 有NONE没关键词：没有新词可试，重试同一个词不会有不同结果
			return Result{Outcome: OutcomeRejectedNoSuggestion}
		}
	} else if match := indexRe.FindString(trimmed); match != "" {
		if idx, err := strconv.Atoi(match); err == nil && idx >= 1 && idx <= len(submitted) {
			return Result{Outcome: OutcomeSelected, URL: submitted[idx-1].DisplayURL}
		}
	}

	o.logger.Debug("模型回复无法解析，降级选用首个候选", map[string]interface{}{
		"keywords": keywords,
		"reply":    utils.FirstLine(trimmed),
	})
	return Result{Outcome: OutcomeSelected, URL: submitted[0].DisplayURL}
}
