package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"peitu-server-go/src/core/course"
	"peitu-server-go/src/core/providers/llm"
	"peitu-server-go/src/core/utils"
)

// LLMGenerator is the default Generator: asks the configured text model
// for one module as JSON. Any external lesson producer can replace it by
// implementing Generator.
type LLMGenerator struct {
	provider llm.Provider
	logger   *utils.Logger
}

// NewLLMGenerator creates a text-model backed module generator
func NewLLMGenerator(provider llm.Provider, logger *utils.Logger) *LLMGenerator {
	return &LLMGenerator{provider: provider, logger: logger}
}

const generatePrompt = `You are writing one module of a lesson course.
Course: %s
Module title: %s
Module description: %s
Planned slides: %s
Modules already written: %s

Produce 2-4 slides. Reply with ONLY a JSON object, no markdown fence:
{"title":"...","slides":[{"title":"...","context":"one-sentence summary","blocks":[{"type":"text","text":"..."},{"type":"image","keywords":"2-4 word image search phrase"}]}]}
Each slide should contain at most one image block.`

// GenerateModule requests one module and parses the reply
func (g *LLMGenerator) GenerateModule(ctx context.Context, job ModuleJob) (course.Module, error) {
	preceding := "none"
	if len(job.PrecedingTitles) > 0 {
		preceding = strings.Join(job.PrecedingTitles, "; ")
	}
	planned := "up to you"
	if len(job.SlideTitles) > 0 {
		planned = strings.Join(job.SlideTitles, "; ")
	}
	prompt := fmt.Sprintf(generatePrompt, job.CourseTitle, job.Title, job.Description, planned, preceding)

	reply, err := g.provider.Complete(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return course.Module{}, fmt.Errorf("模块生成请求失败: %v", err)
	}

	module, err := parseModuleReply(reply)
	if err != nil {
		g.logger.Warn(fmt.Sprintf("模块回复解析失败: %v", err))
		return course.Module{}, err
	}
	if module.Title == "" {
		module.Title = job.Title
	}
	module.Description = job.Description
	return module, nil
}

// parseModuleReply extracts the JSON object from a possibly fenced reply
func parseModuleReply(reply string) (course.Module, error) {
	var module course.Module

	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return module, fmt.Errorf("回复中没有JSON对象")
	}

	if err := json.Unmarshal([]byte(reply[start:end+1]), &module); err != nil {
		return module, fmt.Errorf("模块JSON解析失败: %v", err)
	}
	if len(module.Slides) == 0 {
		return module, fmt.Errorf("模块不含任何幻灯片")
	}
	return module, nil
}
