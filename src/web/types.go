package web

import "peitu-server-go/src/core/course"

// ModuleOutline 课程大纲中的一个模块条目
type ModuleOutline struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	SlideTitles []string `json:"slide_titles"` // 可选的幻灯片标题规划
}

// CreateCourseRequest 建课请求：完整大纲加上已生成的第一个模块。
// 其余模块由后台调度器补齐。
type CreateCourseRequest struct {
	Title       string          `json:"title" binding:"required"`
	Outline     []ModuleOutline `json:"outline" binding:"required"`
	FirstModule *course.Module  `json:"first_module"`
}

// CreateCourseResponse 建课响应
type CreateCourseResponse struct {
	Success  bool   `json:"success"`
	CourseID string `json:"course_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ResolveRequest 单张配图解析请求（客户端重试按钮用）
type ResolveRequest struct {
	SlideTitle   string `json:"slide_title"`
	SlideContext string `json:"slide_context"`
	Keywords     string `json:"keywords" binding:"required"`
}

// ResolveResponse 单张配图解析响应
type ResolveResponse struct {
	Success     bool   `json:"success"`
	URL         string `json:"url,omitempty"`
	Placeholder bool   `json:"placeholder"`
	Message     string `json:"message,omitempty"`
}

// AuthVerifyResult 认证验证结果
type AuthVerifyResult struct {
	IsValid  bool
	ClientID string
}
