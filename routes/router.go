package routes

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"chatvote-worker/announce"
	"chatvote-worker/handlers"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// SetupRouter 设置运维用的Gin路由。
// worker的业务入口是消息队列，这里只暴露健康检查、队列运维和
// 定稿结果的只读查询，以及公告的WebSocket订阅。
func SetupRouter(wsHandler *announce.Handler) *gin.Engine {
	router := gin.Default()

	// 配置CORS中间件
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // 生产环境中应限制为运维面板域名
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/status", handlers.SystemStatus)

		polls := api.Group("/polls")
		{
			polls.GET("/:id/results", handlers.GetPollResults)
			polls.GET("/:id/announcements", wsHandler.Serve) // WebSocket订阅定稿公告
		}

		mqGroup := api.Group("/mq")
		{
			mqGroup.GET("/stats", handlers.QueueStats)
			mqGroup.POST("/retry-dead-letters", handlers.RetryDeadLetters)
		}
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine) *Server {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8090" // 默认端口
	}
	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:    addr,
			Handler: router,
		},
	}

	go func() {
		log.Printf("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	return srv
}
