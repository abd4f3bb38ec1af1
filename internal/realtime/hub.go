// Package realtime 实现按用户划分房间的实时推送。
//
// 推送始终是尽力而为：没有订阅者或缓冲区已满时直接丢弃，
// 持久化的通知与聊天记录仍可通过 HTTP 接口查询。
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"gigboard/internal/metrics"
)

// 服务端推送的事件名。
const (
	EventAuthenticated     = "authenticated"
	EventReceiveMessage    = "receive_message"
	EventMessageSent       = "message_sent"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventJobAlert          = "job_alert"
	EventNotification      = "notification"
	EventError             = "error"
)

// DefaultBuffer 为每个订阅的默认缓冲长度。
const DefaultBuffer = 64

// Event 是发往客户端的信封。
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Publisher 向某个用户的房间推送事件，永不阻塞调用方，也不返回错误。
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload any)
}

// Hub 维护本进程内的房间与订阅。
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub 创建 Hub；buffer <= 0 时使用 DefaultBuffer。
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscription 是一个连接在某个房间中的成员身份。
type Subscription struct {
	UserID string

	hub    *Hub
	ch     chan Event
	closed bool
}

// Events 返回事件流；Close 之后通道被关闭。
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close 离开房间，可重复调用。
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if room, ok := h.rooms[s.UserID]; ok {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, s.UserID)
		}
	}
	close(s.ch)
}

// Subscribe 将调用方加入 userID 的房间。
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		UserID: userID,
		hub:    h,
		ch:     make(chan Event, h.buffer),
	}
	h.mu.Lock()
	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[*Subscription]struct{})
		h.rooms[userID] = room
	}
	room[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Connected 返回房间内的订阅数量。
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Publish 序列化 payload 后投递到本地房间。
func (h *Hub) Publish(_ context.Context, userID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal realtime payload failed",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return
	}
	h.Deliver(userID, Event{Name: event, Data: data})
}

// Deliver 将已编码的事件投递给房间内全部订阅，返回成功投递的数量。
func (h *Hub) Deliver(userID string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[userID]
	if len(room) == 0 {
		metrics.RealtimePush(ev.Name, metrics.PushNoRoom)
		return 0
	}

	delivered := 0
	for sub := range room {
		select {
		case sub.ch <- ev:
			delivered++
			metrics.RealtimePush(ev.Name, metrics.PushDelivered)
		default:
			metrics.RealtimePush(ev.Name, metrics.PushDropped)
			h.logger.Warn("realtime buffer full, event dropped",
				slog.String("user_id", userID),
				slog.String("event", ev.Name),
			)
		}
	}
	return delivered
}
