package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"peitu-server-go/src/core/image"

	"peitu-server-go/src/configs"
)

// commonsSource 开放媒体搜索源（MediaWiki imageinfo API）。
// 每个条目带MIME、字节数、宽高和按请求宽度模板化的缩略图URL。
type commonsSource struct {
	endpoint   string
	userAgent  string
	thumbSize  int
	httpClient *http.Client
}

func newCommonsSource(config *configs.SearchConfig, httpClient *http.Client) *commonsSource {
	endpoint := config.Commons.Endpoint
	if endpoint == "" {
		endpoint = "https://commons.wikimedia.org/w/api.php"
	}
	userAgent := config.Commons.UserAgent
	if userAgent == "" {
		userAgent = "Peitu-Image-Bot/1.0"
	}
	thumbSize := config.Commons.ThumbSize
	if thumbSize <= 0 {
		thumbSize = 640
	}
	return &commonsSource{
		endpoint:   endpoint,
		userAgent:  userAgent,
		thumbSize:  thumbSize,
		httpClient: httpClient,
	}
}

func (s *commonsSource) Name() string { return "commons" }

// commonsResponse MediaWiki查询响应的有用子集
type commonsResponse struct {
	Query struct {
		Pages map[string]struct {
			Index     int    `json:"index"`
			Title     string `json:"title"`
			ImageInfo []struct {
				URL      string `json:"url"`
				ThumbURL string `json:"thumburl"`
				Mime     string `json:"mime"`
				Size     int64  `json:"size"`
				Width    int    `json:"width"`
				Height   int    `json:"height"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

func (s *commonsSource) Fetch(ctx context.Context, keywords string, limit int) ([]image.Candidate, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", "filetype:bitmap "+keywords)
	params.Set("gsrnamespace", "6") // File:命名空间
	params.Set("gsrlimit", strconv.Itoa(limit))
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url|size|mime")
	params.Set("iiurlwidth", strconv.Itoa(s.thumbSize))

	req, err := http.NewRequestWithContext(ctx, "GET", s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP响应错误: %d %s", resp.StatusCode, resp.Status)
	}

	var parsed commonsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析响应失败: %v", err)
	}

	// pages是无序map，按搜索排名index还原顺序
	type rankedPage struct {
		index     int
		candidate image.Candidate
	}
	var ranked []rankedPage

	for _, page := range parsed.Query.Pages {
		if len(page.ImageInfo) == 0 {
			continue
		}
		info := page.ImageInfo[0]
		// 逐项过滤：必须是位图且有可用的缩略图变体
		if !strings.HasPrefix(strings.ToLower(info.Mime), "image/") {
			continue
		}
		if info.ThumbURL == "" || info.URL == "" {
			continue
		}
		if info.Width <= 0 || info.Height <= 0 {
			continue
		}
		ranked = append(ranked, rankedPage{
			index: page.Index,
			candidate: image.Candidate{
				AnalysisURL: info.ThumbURL,
				DisplayURL:  info.URL,
			},
		})
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].index < ranked[j].index })

	candidates := make([]image.Candidate, 0, len(ranked))
	for _, r := range ranked {
		candidates = append(candidates, r.candidate)
	}
	return candidates, nil
}
