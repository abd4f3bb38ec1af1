package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix 为每个用户的 Redis 频道前缀。
const ChannelPrefix = "user_notify:"

// ChannelForUser 返回用户对应的 Redis 频道名。
func ChannelForUser(userID string) string {
	return ChannelPrefix + userID
}

// RedisBroker 通过 Redis Pub/Sub 在多个进程之间转发推送：
// Publish 写入 user_notify:<userID>，Run 订阅全部用户频道并转交本地 Hub。
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger
}

// NewRedisBroker 构造 RedisBroker；hub 为 nil 时只发布不接收（worker 进程）。
func NewRedisBroker(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{client: client, hub: hub, logger: logger}
}

// Publish 将事件写入 Redis；失败时退回本地投递。
func (b *RedisBroker) Publish(ctx context.Context, userID, event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		b.logger.Error("marshal realtime payload failed",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return
	}

	if err := b.client.Publish(ctx, ChannelForUser(userID), data).Err(); err != nil {
		b.logger.Warn("publish realtime event to redis failed",
			slog.String("user_id", userID),
			slog.String("event", event),
			slog.Any("error", err),
		)
		if b.hub != nil {
			var ev Event
			if json.Unmarshal(data, &ev) == nil {
				b.hub.Deliver(userID, ev)
			}
		}
	}
}

// Run 订阅全部用户频道，直到 ctx 结束。
func (b *RedisBroker) Run(ctx context.Context) error {
	if b.hub == nil {
		return errors.New("redis broker has no local hub")
	}

	pubsub := b.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe realtime channels: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, ev, err := decodeMessage(msg.Channel, msg.Payload)
			if err != nil {
				b.logger.Warn("discard malformed realtime message",
					slog.String("channel", msg.Channel),
					slog.Any("error", err),
				)
				continue
			}
			b.hub.Deliver(userID, ev)
		}
	}
}

func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Name: event, Data: data})
}

func decodeMessage(channel, payload string) (string, Event, error) {
	userID, ok := strings.CutPrefix(channel, ChannelPrefix)
	if !ok || userID == "" {
		return "", Event{}, fmt.Errorf("unexpected channel %q", channel)
	}
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return "", Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Name == "" {
		return "", Event{}, errors.New("event name is empty")
	}
	return userID, ev, nil
}
