// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-agent-go/internal/config"
	"clinic-agent-go/internal/handler"
	"clinic-agent-go/internal/middleware"
	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/pipeline"
	"clinic-agent-go/internal/repository"
	"clinic-agent-go/internal/service"
	"clinic-agent-go/internal/tool"
	"clinic-agent-go/pkg/database"
	"clinic-agent-go/pkg/embedding"
	"clinic-agent-go/pkg/es"
	"clinic-agent-go/pkg/kafka"
	"clinic-agent-go/pkg/llm"
	"clinic-agent-go/pkg/log"
	"clinic-agent-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(&model.Booking{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	// 索引的向量维度必须与 Embedding 客户端的输出一致
	embeddingClient := embedding.NewClient(cfg.Embedding)
	if err := es.InitES(cfg.Elasticsearch, embeddingClient.Dimensions()); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	sessionRepo := repository.NewSessionRepository(database.RDB)
	bookingRepo := repository.NewBookingRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Fatal("LLM 客户端初始化失败", err)
	}
	knowledgeService := service.NewKnowledgeService(service.NewElasticFaqIndex(), embeddingClient, cfg.Elasticsearch, cfg.Embedding, cfg.Knowledge, cfg.MinIO)
	faqService := service.NewFAQService(knowledgeService, llmClient, sessionRepo, cfg.Knowledge)
	scheduleService := service.NewScheduleService(bookingRepo, cfg.Clinic)
	tools := []tool.Tool{
		tool.NewAvailabilityTool(cfg.Clinic.APIBaseURL),
		tool.NewBookingTool(cfg.Clinic.APIBaseURL),
	}
	agentService := service.NewAgentService(
		faqService,
		llmClient,
		sessionRepo,
		service.NewKeywordClassifier(),
		tools,
		cfg.Agent,
	)

	// 6. 启动后台 Kafka 消费者，处理预约通知
	notifier := pipeline.NewNotifier(bookingRepo)
	go kafka.StartConsumer(cfg.Kafka, notifier)

	// 6.1 后台初始化知识库：已有文档则跳过
	seedCtx, cancelSeed := context.WithCancel(context.Background())
	defer cancelSeed()
	go func() {
		if err := knowledgeService.InitializeFromSource(seedCtx); err != nil {
			log.Error("知识库初始化失败", err)
		}
	}()

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"vector_store":     true,
			"faq_rag":          true,
			"scheduling_agent": true,
		})
	})

	faqHandler := handler.NewFAQHandler(faqService)

	apiV1 := r.Group("/api/v1")
	{
		chat := apiV1.Group("/chat")
		{
			chatHandler := handler.NewChatHandler(agentService)
			chat.POST("", chatHandler.Chat)
			chat.DELETE("/:sessionId", chatHandler.ClearSession)
			chat.GET("/:sessionId/info", chatHandler.SessionInfo)
		}

		apiV1.POST("/faq", faqHandler.Ask)

		// 运维入口：重建知识索引并重新导入
		apiV1.POST("/knowledge/reset", handler.NewKnowledgeHandler(knowledgeService).Reset)

		calendar := apiV1.Group("/calendar")
		{
			calendarHandler := handler.NewCalendarHandler(scheduleService)
			calendar.GET("/availability", calendarHandler.Availability)
			calendar.POST("/book", calendarHandler.Book)
			calendar.GET("/bookings/:id", calendarHandler.GetBooking)
			calendar.DELETE("/bookings/:id", calendarHandler.CancelBooking)
		}
	}
	// FAQ 流式问答 (WebSocket)
	r.GET("/ws/faq", faqHandler.Stream)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已退出")
}
