package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"peitu-server-go/src/configs"
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

func pixabayJSON(n int) string {
	body := `{"hits":[`
	for i := 0; i < n; i++ {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"previewURL":"http://px/preview%d.jpg","webformatURL":"http://px/web%d.jpg","imageWidth":640,"imageHeight":480}`, i, i)
	}
	return body + `]}`
}

func commonsJSON() string {
	// 故意乱序的pages map，并混入一个非图片条目
	return `{"query":{"pages":{
		"30":{"index":2,"title":"File:b.jpg","imageinfo":[{"url":"http://wc/b.jpg","thumburl":"http://wc/thumb_b.jpg","mime":"image/jpeg","size":20000,"width":800,"height":600}]},
		"10":{"index":1,"title":"File:a.png","imageinfo":[{"url":"http://wc/a.png","thumburl":"http://wc/thumb_a.png","mime":"image/png","size":15000,"width":1024,"height":768}]},
		"40":{"index":3,"title":"File:c.ogg","imageinfo":[{"url":"http://wc/c.ogg","thumburl":"","mime":"audio/ogg","size":9000,"width":0,"height":0}]}
	}}}`
}

func newTestAdapter(t *testing.T, commonsHandler, pixabayHandler http.HandlerFunc) (*Adapter, func()) {
	t.Helper()
	commonsServer := httptest.NewServer(commonsHandler)
	pixabayServer := httptest.NewServer(pixabayHandler)

	config := &configs.SearchConfig{FetchMultiplier: 3}
	config.Commons.Endpoint = commonsServer.URL
	config.Pixabay.Endpoint = pixabayServer.URL
	config.Pixabay.APIKey = "test-key"

	return NewAdapter(config, newTestLogger(t)), func() {
		commonsServer.Close()
		pixabayServer.Close()
	}
}

func TestFetchCandidatesRoutesGenericKeywordsToPixabay(t *testing.T) {
	var commonsHits, pixabayHits int32
	adapter, cleanup := newTestAdapter(t,
		func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&commonsHits, 1)
			fmt.Fprint(w, commonsJSON())
		},
		func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&pixabayHits, 1)
			fmt.Fprint(w, pixabayJSON(4))
		},
	)
	defer cleanup()

	candidates := adapter.FetchCandidates(context.Background(), "mountain sunrise", 3)
	if len(candidates) != 3 {
		t.Fatalf("候选数 = %d, want 3（截断到期望数量）", len(candidates))
	}
	if pixabayHits != 1 || commonsHits != 0 {
		t.Errorf("泛化视觉词应只查图库源: pixabay=%d commons=%d", pixabayHits, commonsHits)
	}
	if candidates[0].AnalysisURL == "" || candidates[0].DisplayURL == "" {
		t.Error("候选应同时带分析URL和展示URL")
	}
}

func TestFetchCandidatesRoutesSpecificKeywordsToCommons(t *testing.T) {
	var pixabayHits int32
	adapter, cleanup := newTestAdapter(t,
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, commonsJSON())
		},
		func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&pixabayHits, 1)
			fmt.Fprint(w, pixabayJSON(4))
		},
	)
	defer cleanup()

	candidates := adapter.FetchCandidates(context.Background(), "mitochondria diagram", 3)
	if pixabayHits != 0 {
		t.Error("教学类关键词应优先查开放媒体源")
	}
	// 非图片条目被过滤，剩余按搜索排名排序
	if len(candidates) != 2 {
		t.Fatalf("候选数 = %d, want 2", len(candidates))
	}
	if candidates[0].DisplayURL != "http://wc/a.png" || candidates[1].DisplayURL != "http://wc/b.jpg" {
		t.Errorf("候选应按搜索排名排序, got %+v", candidates)
	}
}

func TestFetchCandidatesFallsBackWhenPrimaryEmpty(t *testing.T) {
	adapter, cleanup := newTestAdapter(t,
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"query":{"pages":{}}}`)
		},
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, pixabayJSON(2))
		},
	)
	defer cleanup()

	candidates := adapter.FetchCandidates(context.Background(), "obscure topic", 3)
	if len(candidates) != 2 {
		t.Fatalf("主源为空时应使用备源结果, got %d", len(candidates))
	}
}

func TestFetchCandidatesTotalFailureReturnsEmpty(t *testing.T) {
	adapter, cleanup := newTestAdapter(t,
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "this is not json")
		},
	)
	defer cleanup()

	// 两个源都失败：返回空列表而不是panic或错误
	if candidates := adapter.FetchCandidates(context.Background(), "anything at all", 3); len(candidates) != 0 {
		t.Errorf("全部失败应返回空列表, got %d", len(candidates))
	}
}

func TestFetchCandidatesStripsQuotes(t *testing.T) {
	var gotQuery string
	adapter, cleanup := newTestAdapter(t,
		func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("gsrsearch")
			fmt.Fprint(w, commonsJSON())
		},
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, pixabayJSON(1))
		},
	)
	defer cleanup()

	adapter.FetchCandidates(context.Background(), `"cell division"`, 3)
	if gotQuery != "filetype:bitmap cell division" {
		t.Errorf("查询前应去掉引号, got %q", gotQuery)
	}
}
