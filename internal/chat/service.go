// Package chat 实现用户两两之间的消息记录、已读状态与输入状态转发。
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"gigboard/internal/clock"
	"gigboard/internal/domain"
	"gigboard/internal/errcode"
	"gigboard/internal/realtime"
	"gigboard/internal/store"
)

// MaxContentLength 限制单条消息长度（按字节）。
const MaxContentLength = 4000

// TypingPayload 为 user_typing / user_stopped_typing 事件负载。
type TypingPayload struct {
	UserID string `json:"userId"`
}

type Service struct {
	messages  store.MessageRepository
	users     store.UserRepository
	publisher realtime.Publisher
	clock     clock.Clock
	logger    *slog.Logger
}

func NewService(messages store.MessageRepository, users store.UserRepository, publisher realtime.Publisher, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		messages:  messages,
		users:     users,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

// Send 保存消息，向接收方推送 receive_message，并向发送方回显 message_sent。
func (s *Service) Send(ctx context.Context, from, to, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errcode.Validationf("content", "message content is required")
	}
	if len(content) > MaxContentLength {
		return nil, errcode.Validationf("content", "message content exceeds %d bytes", MaxContentLength)
	}
	if to == "" {
		return nil, errcode.Validationf("receiverId", "receiver is required")
	}
	if from == to {
		return nil, errcode.Validationf("receiverId", "cannot send a message to yourself")
	}
	if _, err := s.users.Get(ctx, to); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errcode.NotFoundf("receiver not found")
		}
		return nil, fmt.Errorf("load receiver: %w", err)
	}

	msg, err := s.messages.Create(ctx, s.newMessage(from, to, content))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	s.publisher.Publish(ctx, to, realtime.EventReceiveMessage, msg)
	s.publisher.Publish(ctx, from, realtime.EventMessageSent, msg)
	return msg, nil
}

// OpenConversation 仅在双方之间尚无任何消息时写入开场的两条消息，
// 并分别推送给各自的接收方。
func (s *Service) OpenConversation(ctx context.Context, first, second Draft) ([]domain.ChatMessage, bool, error) {
	a := s.newMessage(first.From, first.To, first.Content)
	b := s.newMessage(second.From, second.To, second.Content)

	created, ok, err := s.messages.CreateOpening(ctx, a, b)
	if err != nil {
		return nil, false, fmt.Errorf("open conversation: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	for i := range created {
		s.publisher.Publish(ctx, created[i].ReceiverID, realtime.EventReceiveMessage, created[i])
	}
	return created, true, nil
}

// Draft 描述一条待写入的消息。
type Draft struct {
	From    string
	To      string
	Content string
}

// History 返回双方之间按时间升序排列的消息。
func (s *Service) History(ctx context.Context, a, b string) ([]domain.ChatMessage, error) {
	return s.messages.Between(ctx, a, b)
}

// MarkRead 将 other 发给 reader 的未读消息置为已读。
func (s *Service) MarkRead(ctx context.Context, reader, other string) (int, error) {
	return s.messages.MarkRead(ctx, reader, other)
}

// Conversations 汇总 userID 的全部会话，最近活跃的在前。
func (s *Service) Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	msgs, err := s.messages.Involving(ctx, userID)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var out []domain.ConversationSummary
	for i := range msgs {
		m := msgs[i]
		other := m.SenderID
		if other == userID {
			other = m.ReceiverID
		}
		pos, ok := index[other]
		if !ok {
			pos = len(out)
			index[other] = pos
			out = append(out, domain.ConversationSummary{UserID: other})
		}
		// msgs 已按时间升序，最后一次赋值即最新消息。
		out[pos].LastMessage = &m
		if m.SenderID == other && !m.Read {
			out[pos].UnreadCount++
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].LastMessage, out[j].LastMessage
		switch {
		case li == nil:
			return false
		case lj == nil:
			return true
		default:
			return lj.Before(*li)
		}
	})
	if out == nil {
		out = []domain.ConversationSummary{}
	}
	return out, nil
}

// Typing 向对方推送输入中状态，不落库。
func (s *Service) Typing(ctx context.Context, from, to string) {
	if to == "" || from == to {
		return
	}
	s.publisher.Publish(ctx, to, realtime.EventUserTyping, TypingPayload{UserID: from})
}

// StopTyping 向对方推送停止输入状态。
func (s *Service) StopTyping(ctx context.Context, from, to string) {
	if to == "" || from == to {
		return
	}
	s.publisher.Publish(ctx, to, realtime.EventUserStoppedTyping, TypingPayload{UserID: from})
}

func (s *Service) newMessage(from, to, content string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   from,
		ReceiverID: to,
		Content:    content,
		CreatedAt:  s.clock.Now(),
	}
}
