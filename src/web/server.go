package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/core/auth"
	"peitu-server-go/src/core/course"
	"peitu-server-go/src/core/pipeline"
	"peitu-server-go/src/core/utils"
	"peitu-server-go/src/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// CourseService 课程HTTP服务：建课、读快照、单图解析、事件推送
type CourseService struct {
	logger    *utils.Logger
	config    *configs.Config
	store     *course.Store
	resolver  *pipeline.Resolver
	scheduler *scheduler.Scheduler
	authToken *auth.AuthToken
	upgrader  websocket.Upgrader

	// 后台任务挂在服务生命周期上，随进程关闭一起取消
	lifecycle context.Context
}

// NewCourseService 构造函数
func NewCourseService(config *configs.Config, logger *utils.Logger, store *course.Store, resolver *pipeline.Resolver, sched *scheduler.Scheduler) *CourseService {
	return &CourseService{
		logger:    logger,
		config:    config,
		store:     store,
		resolver:  resolver,
		scheduler: sched,
		authToken: auth.NewAuthToken(config.Server.Token),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start 注册所有课程相关路由
func (s *CourseService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	s.lifecycle = ctx

	apiGroup.POST("/course", s.handleCreateCourse)
	apiGroup.GET("/course/:id", s.handleGetCourse)
	apiGroup.GET("/course/:id/events", s.handleEvents)
	apiGroup.POST("/resolve", s.handleResolve)
	apiGroup.OPTIONS("/course", s.handleOptions)
	apiGroup.OPTIONS("/resolve", s.handleOptions)

	s.logger.Info("课程HTTP服务路由注册完成")
	return nil
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *CourseService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// handleCreateCourse 建课：存入骨架和第一个模块，踢出后台调度
func (s *CourseService) handleCreateCourse(c *gin.Context) {
	s.addCORSHeaders(c)

	if _, err := s.verifyAuth(c); err != nil {
		s.respondError(c, http.StatusUnauthorized, err.Error())
		return
	}

	var req CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, fmt.Sprintf("请求体不合法: %v", err))
		return
	}
	if len(req.Outline) == 0 {
		s.respondError(c, http.StatusBadRequest, "课程大纲不能为空")
		return
	}

	newCourse := &course.Course{
		ID:      uuid.NewString(),
		Title:   req.Title,
		Modules: make([]course.Module, len(req.Outline)),
	}
	for i, outline := range req.Outline {
		module := course.Module{
			Title:       outline.Title,
			Description: outline.Description,
		}
		// 大纲里的幻灯片标题先占位，生成时作为规划传给模型
		for _, slideTitle := range outline.SlideTitles {
			module.Slides = append(module.Slides, course.Slide{Title: slideTitle})
		}
		newCourse.Modules[i] = module
	}
	s.store.Put(newCourse)

	if req.FirstModule != nil {
		if err := s.store.ApplyModule(newCourse.ID, 0, *req.FirstModule); err != nil {
			s.respondError(c, http.StatusBadRequest, fmt.Sprintf("首模块合并失败: %v", err))
			return
		}
	}

	s.logger.Info("课程已创建", map[string]interface{}{
		"course": newCourse.ID,
		"title":  req.Title,
	})

	// 第一个模块的配图和其余模块的生成都在后台推进
	go func() {
		if req.FirstModule != nil {
			s.scheduler.ResolveModuleImages(s.lifecycle, newCourse.ID, 0)
		}
		s.scheduler.ScheduleRemaining(s.lifecycle, newCourse.ID, 0)
	}()

	c.JSON(http.StatusOK, CreateCourseResponse{
		Success:  true,
		CourseID: newCourse.ID,
	})
}

// handleGetCourse 读取课程当前快照
func (s *CourseService) handleGetCourse(c *gin.Context) {
	s.addCORSHeaders(c)

	snapshot, ok := s.store.Snapshot(c.Param("id"))
	if !ok {
		s.respondError(c, http.StatusNotFound, "课程不存在")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// handleResolve 单张配图的一次性解析
func (s *CourseService) handleResolve(c *gin.Context) {
	s.addCORSHeaders(c)

	if _, err := s.verifyAuth(c); err != nil {
		s.respondError(c, http.StatusUnauthorized, err.Error())
		return
	}

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, fmt.Sprintf("请求体不合法: %v", err))
		return
	}

	url := s.resolver.Resolve(c.Request.Context(), req.SlideTitle, req.SlideContext, req.Keywords)
	c.JSON(http.StatusOK, ResolveResponse{
		Success:     true,
		URL:         url,
		Placeholder: pipeline.IsPlaceholder(s.config.Pipeline.PlaceholderBase, url),
	})
}

// handleEvents websocket事件流：模块加载与配图落定的增量推送
func (s *CourseService) handleEvents(c *gin.Context) {
	courseID := c.Param("id")
	if _, ok := s.store.Snapshot(courseID); !ok {
		s.respondError(c, http.StatusNotFound, "课程不存在")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("websocket升级失败: %v", err))
		return
	}
	defer conn.Close()

	events, cancel := s.store.Subscribe(courseID)
	defer cancel()

	// 读循环只为感知客户端断开
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-disconnected:
			return
		case <-s.lifecycle.Done():
			return
		}
	}
}

// verifyAuth 验证Bearer token
func (s *CourseService) verifyAuth(c *gin.Context) (*AuthVerifyResult, error) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, fmt.Errorf("无效的认证token或token已过期")
	}

	token := authHeader[7:]
	isValid, clientID, err := s.authToken.VerifyToken(token)
	if err != nil || !isValid {
		s.logger.Warn(fmt.Sprintf("认证token验证失败: %v", err))
		return nil, fmt.Errorf("无效的认证token或token已过期")
	}

	return &AuthVerifyResult{IsValid: true, ClientID: clientID}, nil
}

// addCORSHeaders 添加CORS头
func (s *CourseService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Client-Id")
}

// respondError 返回统一的错误响应
func (s *CourseService) respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
