package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/configs/database"
	"peitu-server-go/src/core/course"
	"peitu-server-go/src/core/image"
	"peitu-server-go/src/core/oracle"
	"peitu-server-go/src/core/pipeline"
	"peitu-server-go/src/core/providers/llm"
	"peitu-server-go/src/core/providers/vlllm"
	"peitu-server-go/src/core/search"
	"peitu-server-go/src/core/utils"
	"peitu-server-go/src/models"
	"peitu-server-go/src/scheduler"
	"peitu-server-go/src/web"

	// 导入所有providers以确保init函数被调用
	_ "peitu-server-go/src/core/providers/llm/ollama"
	_ "peitu-server-go/src/core/providers/llm/openai"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志系统
	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))

	return config, logger, nil
}

// buildPipeline 组装配图流水线：搜索 -> 编码 -> 校验 -> 协商
func buildPipeline(config *configs.Config, logger *utils.Logger, db *gorm.DB) (*pipeline.Resolver, llm.Provider, error) {
	selectedLLM := config.SelectedModule["LLM"]
	llmConfig, ok := config.LLM[selectedLLM]
	if !ok {
		return nil, nil, fmt.Errorf("请设置好LLM provider配置")
	}
	llmProvider, err := llm.Create(llmConfig.Type, &llm.Config{
		Type:        llmConfig.Type,
		ModelName:   llmConfig.ModelName,
		BaseURL:     llmConfig.BaseURL,
		APIKey:      llmConfig.APIKey,
		Temperature: llmConfig.Temperature,
		MaxTokens:   llmConfig.MaxTokens,
		TopP:        llmConfig.TopP,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("创建LLM provider失败: %v", err)
	}

	selectedVLLLM := config.SelectedModule["VLLLM"]
	vlllmConfig, ok := config.VLLLM[selectedVLLLM]
	if !ok {
		return nil, nil, fmt.Errorf("请设置好VLLLM provider配置")
	}
	vlllmProvider, err := vlllm.NewProvider(&vlllm.Config{
		Type:        vlllmConfig.Type,
		ModelName:   vlllmConfig.ModelName,
		BaseURL:     vlllmConfig.BaseURL,
		APIKey:      vlllmConfig.APIKey,
		Temperature: vlllmConfig.Temperature,
		MaxTokens:   vlllmConfig.MaxTokens,
		TopP:        vlllmConfig.TopP,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("创建VLLLM provider失败: %v", err)
	}
	if err := vlllmProvider.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("初始化VLLLM provider失败: %v", err)
	}

	adapter := search.NewAdapter(&config.Search, logger)
	encoder := image.NewEncoder(&config.Pipeline, logger)
	verifier := oracle.NewOracle(vlllmProvider, config.Pipeline.CandidateLimit, logger)

	resolver := pipeline.NewResolver(adapter, encoder, verifier, llmProvider, &config.Pipeline, logger)
	if db != nil {
		// 每张图的最终结果留档，供排查与统计
		resolver.OnResolved = func(keyword, finalURL string, attempts int, placeholder bool) {
			record := models.ResolutionRecord{
				Keyword:     keyword,
				FinalURL:    finalURL,
				Attempts:    attempts,
				Placeholder: placeholder,
			}
			if err := db.Create(&record).Error; err != nil {
				logger.Warn(fmt.Sprintf("配图结果落库失败: %v", err))
			}
		}
	}

	return resolver, llmProvider, nil
}

func StartHttpServer(config *configs.Config, logger *utils.Logger, service *web.CourseService, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	// 初始化Gin引擎
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")
	if err := service.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error("课程服务启动失败", err)
		return nil, err
	}

	// HTTP Server（支持优雅关机）
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("Gin 服务已启动，访问地址: http://0.0.0.0:%d", config.Web.Port))

		// 在单独的 goroutine 中监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP服务关闭失败", err)
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务启动失败", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 等待信号
	sig := <-sigChan
	logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("服务关闭过程中出现错误", err)
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

func main() {
	// 加载配置和初始化日志系统
	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}

	// 加载 .env 文件
	err = godotenv.Load()
	if err != nil {
		logger.Warn("未找到 .env 文件，使用系统环境变量")
	}

	// 初始化数据库连接
	db, dbType, err := database.InitDB()
	if err != nil {
		logger.Error(fmt.Sprintf("数据库连接失败: %v", err))
		return
	}
	if err := db.AutoMigrate(&models.CourseRecord{}, &models.ResolutionRecord{}); err != nil {
		logger.Error(fmt.Sprintf("数据库迁移失败: %v", err))
		return
	}
	logger.Info(fmt.Sprintf("数据库连接成功, 类型: %s", dbType))

	// 组装配图流水线与课程状态
	resolver, llmProvider, err := buildPipeline(config, logger, db)
	if err != nil {
		logger.Error(fmt.Sprintf("流水线初始化失败: %v", err))
		return
	}

	store := course.NewStore(config.Pipeline.PlaceholderBase, db, logger)
	generator := scheduler.NewLLMGenerator(llmProvider, logger)
	sched := scheduler.NewScheduler(generator, resolver, store, &config.Pipeline, logger)
	service := web.NewCourseService(config, logger, store, resolver, sched)

	// 创建可取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 用 errgroup 管理服务生命周期
	g, groupCtx := errgroup.WithContext(ctx)

	if _, err := StartHttpServer(config, logger, service, g, groupCtx); err != nil {
		logger.Error("启动 Http 服务失败:", err)
		cancel()
		os.Exit(1)
	}

	// 等待信号并优雅关闭
	GracefulShutdown(cancel, logger, g)
}
