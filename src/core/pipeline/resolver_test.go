package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/core/image"
	"peitu-server-go/src/core/oracle"
	"peitu-server-go/src/core/providers/llm"
	"peitu-server-go/src/core/utils"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	config := &configs.Config{}
	config.Log.LogDir = t.TempDir()
	config.Log.LogFile = "test.log"
	config.Log.LogLevel = "error"
	logger, err := utils.NewLogger(config)
	if err != nil {
		t.Fatalf("创建测试日志失败: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func testConfig() *configs.PipelineConfig {
	config := &configs.PipelineConfig{PlaceholderBase: "https://ph.example/640x360"}
	config.ApplyDefaults()
	return config
}

// fakeSource 按脚本逐次返回候选列表，超出脚本后重复最后一项
type fakeSource struct {
	script   [][]image.Candidate
	calls    int
	keywords []string
}

func (s *fakeSource) FetchCandidates(ctx context.Context, keywords string, count int) []image.Candidate {
	s.keywords = append(s.keywords, keywords)
	idx := s.calls
	s.calls++
	if len(s.script) == 0 {
		return nil
	}
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return s.script[idx]
}

// fakeEncoder 可配置失败的编码器替身
type fakeEncoder struct {
	failAll bool
	calls   int
}

func (e *fakeEncoder) Encode(ctx context.Context, candidate image.Candidate) *image.EncodedCandidate {
	e.calls++
	if e.failAll {
		return nil
	}
	return &image.EncodedCandidate{
		Candidate: candidate,
		Data:      "ZGF0YQ==",
		MimeType:  "image/jpeg",
		Size:      1000,
	}
}

// fakeVerifier 按脚本返回校验结论
type fakeVerifier struct {
	script     []oracle.Result
	calls      int
	allowFlags []bool
}

func (v *fakeVerifier) Verify(ctx context.Context, encoded []image.EncodedCandidate, slideTitle, slideContext, keywords string, allowSuggestion bool) oracle.Result {
	v.allowFlags = append(v.allowFlags, allowSuggestion)
	idx := v.calls
	v.calls++
	if idx >= len(v.script) {
		idx = len(v.script) - 1
	}
	return v.script[idx]
}

// fakeSuggester 替换关键词模型替身
type fakeSuggester struct {
	replies []string
	calls   int
}

func (s *fakeSuggester) Initialize() error { return nil }
func (s *fakeSuggester) Cleanup() error    { return nil }
func (s *fakeSuggester) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return s.replies[idx], nil
}

func candidates(n int) []image.Candidate {
	set := make([]image.Candidate, 0, n)
	for i := 0; i < n; i++ {
		set = append(set, image.Candidate{
			AnalysisURL: fmt.Sprintf("http://img/thumb%d.jpg", i),
			DisplayURL:  fmt.Sprintf("http://img/full%d.jpg", i),
		})
	}
	return set
}

func TestResolveSingleCandidateShortcut(t *testing.T) {
	source := &fakeSource{script: [][]image.Candidate{candidates(1)}}
	encoder := &fakeEncoder{}
	verifier := &fakeVerifier{script: []oracle.Result{{Outcome: oracle.OutcomeSelected, URL: "unused"}}}
	resolver := NewResolver(source, encoder, verifier, &fakeSuggester{replies: []string{"alt"}}, testConfig(), newTestLogger(t))

	url := resolver.Resolve(context.Background(), "题目", "上下文", "water cycle")
	if url != "http://img/full0.jpg" {
		t.Fatalf("单候选应直接返回其展示URL, got %q", url)
	}
	if verifier.calls != 0 {
		t.Error("单候选捷径不得调用校验模型")
	}
	if encoder.calls != 0 {
		t.Error("单候选捷径不需要下载编码")
	}
}

func TestResolveCacheShortCircuit(t *testing.T) {
	source := &fakeSource{script: [][]image.Candidate{candidates(1)}}
	resolver := NewResolver(source, &fakeEncoder{}, &fakeVerifier{script: []oracle.Result{{}}}, nil, testConfig(), newTestLogger(t))

	first := resolver.Resolve(context.Background(), "t", "c", "Water Cycle")
	// 大小写和空白归一化后命中同一缓存键
	second := resolver.Resolve(context.Background(), "t", "c", "  water cycle  ")

	if first != second {
		t.Fatalf("同关键词两次解析结果不一致: %q vs %q", first, second)
	}
	if source.calls != 1 {
		t.Errorf("第二次解析应走缓存, 搜索调用 = %d, want 1", source.calls)
	}
}

func TestResolveBoundedAttempts(t *testing.T) {
	// 校验器每轮都否决并给新词：尝试数必须被MAX_ATTEMPTS=4封顶
	script := make([]oracle.Result, 0, 8)
	for i := 0; i < 8; i++ {
		script = append(script, oracle.Result{
			Outcome: oracle.OutcomeRejectedWithSuggestion,
			Keyword: fmt.Sprintf("alternative %d", i),
		})
	}
	source := &fakeSource{script: [][]image.Candidate{candidates(3)}}
	verifier := &fakeVerifier{script: script}
	resolver := NewResolver(source, &fakeEncoder{}, verifier, &fakeSuggester{replies: []string{"alt"}}, testConfig(), newTestLogger(t))

	url := resolver.Resolve(context.Background(), "t", "c", "stubborn keyword")
	if verifier.calls > 4 {
		t.Fatalf("校验调用 = %d, 不得超过4", verifier.calls)
	}
	if !IsPlaceholder("https://ph.example/640x360", url) {
		t.Errorf("穷尽后应返回占位图, got %q", url)
	}
	// 关键词建议只在第一次校验放开
	for i, allow := range verifier.allowFlags {
		if (i == 0) != allow {
			t.Errorf("第%d次校验 allowSuggestion = %v", i+1, allow)
		}
	}
}

func TestResolveGracefulZeroCandidates(t *testing.T) {
	source := &fakeSource{} // 每次都返回空
	verifier := &fakeVerifier{script: []oracle.Result{{}}}
	suggester := &fakeSuggester{replies: []string{"first retry", "second retry", "third retry"}}
	resolver := NewResolver(source, &fakeEncoder{}, verifier, suggester, testConfig(), newTestLogger(t))

	url := resolver.Resolve(context.Background(), "t", "c", "completely-unfindable-xyz123")
	if verifier.calls != 0 {
		t.Errorf("全程零候选不得有任何校验调用, got %d", verifier.calls)
	}
	if !IsPlaceholder("https://ph.example/640x360", url) {
		t.Fatalf("应返回占位图, got %q", url)
	}
	if source.calls != 4 {
		t.Errorf("搜索调用 = %d, want 4（每轮一次）", source.calls)
	}
	// 占位图同样被缓存：再来一次不再付重试成本
	resolver.Resolve(context.Background(), "t", "c", "completely-unfindable-xyz123")
	if source.calls != 4 {
		t.Error("占位图结果也应缓存")
	}
}

func TestResolveAllEncodesFailProceedsWithSuggestedKeyword(t *testing.T) {
	// 第一轮3个候选全部编码失败，第二轮换词后单候选命中
	source := &fakeSource{script: [][]image.Candidate{candidates(3), candidates(1)}}
	encoder := &fakeEncoder{failAll: true}
	// 真实校验器：零编码候选时不调用模型，允许建议则回传原词
	visionCalls := 0
	verifier := oracle.NewOracle(analyzeFunc(func() { visionCalls++ }), 3, newTestLogger(t))
	suggester := &fakeSuggester{replies: []string{"fresh keyword"}}
	resolver := NewResolver(source, encoder, verifier, suggester, testConfig(), newTestLogger(t))

	url := resolver.Resolve(context.Background(), "t", "c", "original keyword")
	if visionCalls != 0 {
		t.Error("编码全失败时不得调用视觉模型")
	}
	if suggester.calls != 1 {
		t.Errorf("应向文本模型要一次新词, got %d", suggester.calls)
	}
	if len(source.keywords) != 2 || source.keywords[1] != "fresh keyword" {
		t.Errorf("第二轮应使用建议的新词, got %v", source.keywords)
	}
	if url != "http://img/full0.jpg" {
		t.Errorf("第二轮单候选应直接命中, got %q", url)
	}
}

func TestResolveSuggesterDeadEndExhaustsImmediately(t *testing.T) {
	source := &fakeSource{}
	// 带逗号的回复是格式违例，按无可用新词处理
	suggester := &fakeSuggester{replies: []string{"too, many, words"}}
	resolver := NewResolver(source, &fakeEncoder{}, &fakeVerifier{script: []oracle.Result{{}}}, suggester, testConfig(), newTestLogger(t))

	url := resolver.Resolve(context.Background(), "t", "c", "niche topic")
	if !IsPlaceholder("https://ph.example/640x360", url) {
		t.Fatalf("无可用新词应立即占位, got %q", url)
	}
	if source.calls != 1 {
		t.Errorf("死路后不应再发起搜索, 搜索调用 = %d, want 1", source.calls)
	}
}

func TestResolveIdenticalSuggestionIsDeadEnd(t *testing.T) {
	source := &fakeSource{script: [][]image.Candidate{candidates(2)}}
	verifier := &fakeVerifier{script: []oracle.Result{{
		Outcome: oracle.OutcomeRejectedWithSuggestion,
		Keyword: "Niche Topic", // 与当前词相同（忽略大小写）
	}}}
	resolver := NewResolver(source, &fakeEncoder{}, verifier, &fakeSuggester{replies: []string{"alt"}}, testConfig(), newTestLogger(t))

	url := resolver.Resolve(context.Background(), "t", "c", "niche topic")
	if !IsPlaceholder("https://ph.example/640x360", url) {
		t.Fatalf("原词建议视作死路, got %q", url)
	}
	if verifier.calls != 1 {
		t.Errorf("死路后不得继续校验, got %d", verifier.calls)
	}
}

// analyzeFunc 把函数适配成oracle.VisionModel，用于统计调用次数
type analyzeFunc func()

func (f analyzeFunc) Analyze(ctx context.Context, prompt string, candidates []image.EncodedCandidate) (string, error) {
	f()
	return "1", nil
}

func TestPlaceholderURLEncodesKeyword(t *testing.T) {
	url := PlaceholderURL("https://ph.example/640x360", `"water cycle"`)
	if url != "https://ph.example/640x360?text=water+cycle" {
		t.Errorf("占位图URL = %q", url)
	}
	if !strings.HasPrefix(url, "https://ph.example/640x360") {
		t.Error("占位图应以配置前缀开头")
	}
	if !IsPlaceholder("https://ph.example/640x360", url) {
		t.Error("IsPlaceholder应识别自家生成的URL")
	}
}
