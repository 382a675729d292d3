package announce

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Message 定稿公告消息，推给订阅了该投票的观察端
type Message struct {
	Type   string    `json:"type"`
	PollID string    `json:"pollId"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Client 代表一个WebSocket连接客户端
type Client struct {
	// 订阅的投票ID
	PollID string

	hub  *Hub
	conn wsConn

	// 消息发送通道
	send chan []byte
}

// Hub 维护活跃的观察端集合并按投票广播定稿公告
type Hub struct {
	// 已注册的客户端，按投票ID分组
	clients map[string]map[*Client]bool

	// 注册请求
	register chan *Client

	// 注销请求
	unregister chan *Client

	// 互斥锁保护clients map
	mu sync.RWMutex
}

// NewHub 创建一个新的Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run 启动Hub消息处理循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.PollID]; !ok {
				h.clients[client.PollID] = make(map[*Client]bool)
			}
			h.clients[client.PollID][client] = true
			h.mu.Unlock()
			log.Printf("Observer registered for poll %s, total: %d", client.PollID, len(h.clients[client.PollID]))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.PollID]; ok {
				if _, ok := h.clients[client.PollID][client]; ok {
					delete(h.clients[client.PollID], client)
					close(client.send)
					if len(h.clients[client.PollID]) == 0 {
						delete(h.clients, client.PollID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Observer unregistered for poll %s", client.PollID)
		}
	}
}

// Announce 实现定稿服务的公告接口，向订阅者广播自由文本公告
func (h *Hub) Announce(pollID string, text string) {
	h.BroadcastToPoll(pollID, &Message{
		Type:   "POLL_FINALIZED",
		PollID: pollID,
		Text:   text,
		At:     time.Now(),
	})
}

// BroadcastToPoll 向特定投票的所有观察端广播消息
func (h *Hub) BroadcastToPoll(pollID string, message *Message) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error converting message to JSON: %v", err)
		return
	}

	h.mu.RLock()
	clients := h.clients[pollID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.send <- payload:
		default:
			// 发送缓冲已满的客户端直接注销，避免拖慢广播
			h.unregister <- client
		}
	}
}
