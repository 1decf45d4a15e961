package image

// Candidate 一次搜索返回的候选图：低清分析图 + 高清展示图
type Candidate struct {
	AnalysisURL string `json:"analysis_url"` // 分析用低分辨率变体，下载编码便宜
	DisplayURL  string `json:"display_url"`  // 最终展示给用户的高分辨率URL
}

// EncodedCandidate 通过校验并完成内联编码的候选图
type EncodedCandidate struct {
	Candidate
	Data     string // base64编码后的图片数据
	MimeType string // 探测到的MIME类型，如 image/jpeg
	Size     int64  // 原始字节数
}

// ValidationResult 图片验证结果
type ValidationResult struct {
	IsValid  bool
	Format   string // 实际解码出的格式
	Width    int
	Height   int
	FileSize int64
	Error    error
}
