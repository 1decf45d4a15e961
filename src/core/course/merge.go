package course

import "strings"

// MergeSlides 渐进合并：新生成的幻灯片列表fresh与当前持有的held合并。
// 文字内容以fresh为准；每个image块，held已有非空且非占位图的URL就保留，
// 否则采用fresh的未解析块。合并是幂等的，且对两个写方（模块生成回调、
// 配图解析回调）的先后顺序可交换——两边都不会吞掉对方已落定的结果。
func MergeSlides(held, fresh []Slide, placeholderBase string) []Slide {
	merged := cloneSlides(fresh)

	for si := range merged {
		if si >= len(held) {
			break
		}
		heldBlocks := held[si].Blocks
		for bi := range merged[si].Blocks {
			if bi >= len(heldBlocks) {
				break
			}
			block := &merged[si].Blocks[bi]
			if block.Type != "image" {
				continue
			}
			heldBlock := heldBlocks[bi]

			if isFinalized(heldBlock, placeholderBase) {
				// 已落定的真实URL绝不回退
				url := *heldBlock.ImageURL
				block.ImageURL = &url
				block.ImageState = ImageStateDone
				continue
			}
			if heldBlock.ImageState == ImageStateLoading && block.ImageState == ImageStateNone {
				// 在途标记随held延续，避免同一槽位被重复发起解析
				block.ImageState = ImageStateLoading
			}
		}
	}
	return merged
}

// isFinalized 已解析且不是占位图
func isFinalized(block Block, placeholderBase string) bool {
	return block.ImageState == ImageStateDone &&
		block.ImageURL != nil &&
		*block.ImageURL != "" &&
		!(placeholderBase != "" && strings.HasPrefix(*block.ImageURL, placeholderBase))
}
