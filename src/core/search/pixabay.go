package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/core/image"
)

// pixabaySource 图库搜索源：命中列表带预览URL和网页分辨率URL
type pixabaySource struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func newPixabaySource(config *configs.SearchConfig, httpClient *http.Client) *pixabaySource {
	endpoint := config.Pixabay.Endpoint
	if endpoint == "" {
		endpoint = "https://pixabay.com/api/"
	}
	return &pixabaySource{
		endpoint:   endpoint,
		apiKey:     config.Pixabay.APIKey,
		httpClient: httpClient,
	}
}

func (s *pixabaySource) Name() string { return "pixabay" }

// pixabayResponse 命中列表的有用子集
type pixabayResponse struct {
	Hits []struct {
		PreviewURL   string `json:"previewURL"`
		WebformatURL string `json:"webformatURL"`
		ImageWidth   int    `json:"imageWidth"`
		ImageHeight  int    `json:"imageHeight"`
	} `json:"hits"`
}

func (s *pixabaySource) Fetch(ctx context.Context, keywords string, limit int) ([]image.Candidate, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("未配置pixabay api_key")
	}

	// per_page低于3会被API拒绝
	if limit < 3 {
		limit = 3
	}

	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("q", keywords)
	params.Set("image_type", "photo")
	params.Set("safesearch", "true")
	params.Set("per_page", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, "GET", s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP响应错误: %d %s", resp.StatusCode, resp.Status)
	}

	var parsed pixabayResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析响应失败: %v", err)
	}

	candidates := make([]image.Candidate, 0, len(parsed.Hits))
	for _, hit := range parsed.Hits {
		if hit.PreviewURL == "" || hit.WebformatURL == "" {
			continue
		}
		candidates = append(candidates, image.Candidate{
			AnalysisURL: hit.PreviewURL,
			DisplayURL:  hit.WebformatURL,
		})
	}
	return candidates, nil
}
