package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatvote-worker/model"
	"chatvote-worker/mq"
	"chatvote-worker/repository"
)

// 运维接口的依赖，由main在启动时注入
var (
	mqAdapter *mq.Adapter
	pollRepo  repository.PollRepository
	startedAt = time.Now()
)

// Init 注入运维接口依赖
func Init(adapter *mq.Adapter, repo repository.PollRepository) {
	mqAdapter = adapter
	pollRepo = repo
}

// HealthCheck 健康检查端点
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SystemStatus 系统状态：运行时长和队列情况
func SystemStatus(c *gin.Context) {
	status := gin.H{
		"status": "running",
		"uptime": time.Since(startedAt).String(),
	}
	if mqAdapter != nil {
		status["queue"] = mqAdapter.GetQueueStats()
	}
	c.JSON(http.StatusOK, status)
}

// GetPollResults 读取某个投票的定稿结果
func GetPollResults(c *gin.Context) {
	id := c.Param("id")

	poll, err := pollRepo.GetPollByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "poll not found"})
		return
	}
	if poll.Status != model.PollStatusFinalized || poll.ResultJSON == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "poll is not finalized yet"})
		return
	}

	var result json.RawMessage = []byte(poll.ResultJSON)
	c.JSON(http.StatusOK, gin.H{
		"poll_id": poll.ID,
		"title":   poll.Title,
		"kind":    poll.Kind,
		"result":  result,
	})
}

// QueueStats 消息队列统计
func QueueStats(c *gin.Context) {
	if mqAdapter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message queue not initialized"})
		return
	}
	c.JSON(http.StatusOK, mqAdapter.GetQueueStats())
}

// RetryDeadLetters 把死信队列中的消息移回主队列重新处理
func RetryDeadLetters(c *gin.Context) {
	if mqAdapter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message queue not initialized"})
		return
	}
	if err := mqAdapter.RetryDeadLetters(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "requeued"})
}
