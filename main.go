package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chatvote-worker/announce"
	"chatvote-worker/cache"
	"chatvote-worker/database"
	"chatvote-worker/dispatcher"
	"chatvote-worker/handlers"
	"chatvote-worker/mq"
	"chatvote-worker/repository"
	"chatvote-worker/routes"
	"chatvote-worker/vote"
)

// envMinutes 从环境变量读取分钟数配置
func envMinutes(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return fallback
}

func main() {
	// 初始化数据库连接
	if err := database.InitDB(); err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("数据库连接初始化成功")

	// 初始化Redis连接
	if err := cache.InitRedis(); err != nil {
		log.Fatalf("无法初始化Redis: %v", err)
	}

	redisClient, err := cache.GetClient()
	if err != nil {
		log.Fatalf("获取Redis客户端失败: %v", err)
	}

	repo := repository.NewGormPollRepository(database.DB)
	locks := cache.NewEventLockService(redisClient, 24*time.Hour)
	sessionTTL := envMinutes("SESSION_TTL_MIN", cache.DefaultSessionTTL)
	sessions := cache.NewSessionStore(redisClient, sessionTTL)
	distLocks := cache.NewDistributedLockService(redisClient)

	// 公告Hub
	hub := announce.NewHub()
	go hub.Run()

	// 布隆过滤器：预热进行中的投票ID
	bloom := cache.NewBloomFilter(redisClient, "poll_ids", 5)
	prewarmBloom(repo, bloom)

	// 组装改票流程和定稿服务
	schedFlow := vote.NewSchedulerFlow(repo, sessions)
	basicFlow := vote.NewBasicPollFlow(repo, sessions)
	finalizer := vote.NewFinalizer(repo, distLocks, hub)

	responder := dispatcher.NewRedisResponder(redisClient)
	limiter := dispatcher.NewActorLimiter(5, 10)
	window := envMinutes("RESPONSE_DEADLINE_MIN", dispatcher.DefaultResponseWindow)

	disp := dispatcher.NewDispatcher(
		repo, locks, schedFlow, basicFlow, finalizer,
		responder, limiter, bloom, window,
	)

	// 初始化消息队列适配器（RocketMQ或Redis MQ）并挂接分发器
	mqAdapter := mq.NewAdapter()
	if err := mqAdapter.Initialize(); err != nil {
		log.Fatalf("消息队列初始化失败: %v", err)
	}
	if err := mqAdapter.RegisterHandler(disp.Handle); err != nil {
		log.Fatalf("注册消息处理函数失败: %v", err)
	}
	log.Println("消息队列消费者启动成功")

	// 截止时间巡检：关闭已过期的投票
	stopSweeper := make(chan struct{})
	go deadlineSweeper(repo, bloom, stopSweeper)

	// 运维HTTP服务
	handlers.Init(mqAdapter, repo)
	router := routes.SetupRouter(announce.NewHandler(hub))
	srv := routes.StartServer(router)

	// 等待中断信号以优雅地关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("关闭服务器...")

	close(stopSweeper)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("服务器强制关闭: %v", err)
	}

	mqAdapter.Close()
	cache.CloseRedis()
	database.CloseDB()
	log.Println("服务器优雅关闭")
}

// prewarmBloom 启动时把进行中的投票ID灌进布隆过滤器
func prewarmBloom(repo repository.PollRepository, bloom *cache.BloomFilter) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ids, err := repo.ListOpenPollIDs(ctx)
	if err != nil {
		log.Printf("预热布隆过滤器失败: %v", err)
		return
	}
	for _, id := range ids {
		if err := bloom.Add(ctx, id); err != nil {
			log.Printf("布隆过滤器添加 %s 失败: %v", id, err)
			return
		}
	}
	log.Printf("布隆过滤器预热完成，共 %d 个投票", len(ids))
}

// deadlineSweeper 每分钟关闭已过截止时间的投票，并补一轮布隆过滤器同步
func deadlineSweeper(repo repository.PollRepository, bloom *cache.BloomFilter, stop <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			closed, err := repo.ClosePollsPastDeadline(ctx, time.Now())
			if err != nil {
				log.Printf("关闭过期投票失败: %v", err)
			} else if closed > 0 {
				log.Printf("已关闭 %d 个过期投票", closed)
			}
			prewarmBloomTick(ctx, repo, bloom)
			cancel()
		}
	}
}

func prewarmBloomTick(ctx context.Context, repo repository.PollRepository, bloom *cache.BloomFilter) {
	ids, err := repo.ListOpenPollIDs(ctx)
	if err != nil {
		return
	}
	for _, id := range ids {
		if bloom.Add(ctx, id) != nil {
			return
		}
	}
}
