package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gigboard/internal/auth"
	"gigboard/internal/chat"
	"gigboard/internal/errcode"
	"gigboard/internal/metrics"
	"gigboard/internal/realtime"
	"gigboard/internal/store"
)

const (
	wsWriteWait    = 5 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxMessage   = 64 << 10
)

// 客户端事件。
const (
	clientEventAuthenticate = "authenticate"
	clientEventSendMessage  = "send_message"
	clientEventTyping       = "typing"
	clientEventStopTyping   = "stop_typing"
)

// WsHandler 负责 WebSocket 鉴权、房间订阅与聊天事件。
type WsHandler struct {
	hub            *realtime.Hub
	chat           *chat.Service
	authService    *auth.AuthService
	users          store.UserRepository
	requireToken   bool
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。requireToken 为 false 时仅校验 userId 对应的用户存在。
func NewWsHandler(hub *realtime.Hub, chatService *chat.Service, authService *auth.AuthService, users store.UserRepository, requireToken bool, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		hub:            hub,
		chat:           chatService,
		authService:    authService,
		users:          users,
		requireToken:   requireToken,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(h.allowedOrigins) == 0 {
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsAuthData struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type wsMessageData struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

type wsErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// wsConn 串行化写操作，gorilla/websocket 不允许并发写。
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) writeRaw(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) writeEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	raw, err := json.Marshal(realtime.Event{Name: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	return w.writeRaw(raw)
}

// HandleConnection 负责升级连接并启动读写循环。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	conn.SetReadLimit(wsMaxMessage)

	ws := &wsConn{conn: conn}
	baseLog := h.logger.With(slog.String("client_ip", c.ClientIP()))

	subCh := make(chan *realtime.Subscription, 1)
	errCh := make(chan error, 2)
	readDone := make(chan struct{})
	// 等 readLoop 退出后再回收它已交出但未被接收的订阅。
	defer func() {
		<-readDone
		select {
		case sub := <-subCh:
			sub.Close()
		default:
		}
	}()
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go func() {
		defer close(readDone)
		h.readLoop(ctx, ws, subCh, errCh, cancel, baseLog)
	}()

	var sub *realtime.Subscription
	select {
	case <-ctx.Done():
		return
	case err := <-errCh:
		if err != nil {
			baseLog.Warn("websocket authentication failed", slog.Any("error", err))
		}
		return
	case sub = <-subCh:
	}
	defer sub.Close()
	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	userLog := baseLog.With(slog.String("user_id", sub.UserID))
	userLog.Info("websocket authenticated")

	go h.subscribeLoop(ctx, ws, sub, errCh, cancel)

	select {
	case <-ctx.Done():
		userLog.Info("websocket connection closed")
	case err := <-errCh:
		if err != nil {
			userLog.Info("websocket connection closed", slog.Any("error", err))
		} else {
			userLog.Info("websocket connection closed")
		}
	}
}

func (h *WsHandler) readLoop(
	ctx context.Context,
	ws *wsConn,
	subCh chan<- *realtime.Subscription,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	var userID string

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			writeClose(ws.conn, websocket.CloseAbnormalClosure, "read error")
			errCh <- fmt.Errorf("read message: %w", err)
			cancel()
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			_ = ws.writeEvent(realtime.EventError, wsErrorData{Message: "invalid message"})
			continue
		}

		if userID == "" {
			if env.Event != clientEventAuthenticate {
				_ = ws.writeEvent(realtime.EventError, wsErrorData{Message: "authentication required"})
				continue
			}
			id, err := h.authenticate(ctx, env.Data)
			if err != nil {
				writeClose(ws.conn, websocket.ClosePolicyViolation, "unauthorized")
				errCh <- err
				cancel()
				return
			}
			// 先加入房间并确认，再处理后续事件，紧随 authenticate 的推送不会丢失。
			sub := h.hub.Subscribe(id)
			if err := ws.writeEvent(realtime.EventAuthenticated, gin.H{"userId": id}); err != nil {
				sub.Close()
				errCh <- fmt.Errorf("write authenticated ack: %w", err)
				cancel()
				return
			}
			userID = id
			subCh <- sub
			continue
		}

		h.handleEvent(ctx, ws, userID, env, log)
	}
}

func (h *WsHandler) authenticate(ctx context.Context, raw json.RawMessage) (string, error) {
	var data wsAuthData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("decode authenticate payload: %w", err)
	}

	userID := strings.TrimSpace(data.UserID)
	if h.requireToken || data.Token != "" {
		claims, err := h.authService.ValidateToken(data.Token)
		if err != nil {
			return "", fmt.Errorf("validate token: %w", err)
		}
		if userID != "" && userID != claims.UserID {
			return "", errors.New("token subject does not match user id")
		}
		userID = claims.UserID
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if _, err := h.users.Get(ctx, userID); err != nil {
		return "", fmt.Errorf("load user %s: %w", userID, err)
	}
	return userID, nil
}

func (h *WsHandler) handleEvent(ctx context.Context, ws *wsConn, userID string, env wsEnvelope, log *slog.Logger) {
	var data wsMessageData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			_ = ws.writeEvent(realtime.EventError, wsErrorData{Message: "invalid payload"})
			return
		}
	}

	switch env.Event {
	case clientEventSendMessage:
		if _, err := h.chat.Send(ctx, userID, data.ReceiverID, data.Content); err != nil {
			var coded *errcode.Error
			if errors.As(err, &coded) {
				_ = ws.writeEvent(realtime.EventError, wsErrorData{Message: coded.Message, Code: coded.Code})
				return
			}
			log.Error("send chat message failed", slog.Any("error", err))
			_ = ws.writeEvent(realtime.EventError, wsErrorData{Message: "internal error"})
		}
	case clientEventTyping:
		h.chat.Typing(ctx, userID, data.ReceiverID)
	case clientEventStopTyping:
		h.chat.StopTyping(ctx, userID, data.ReceiverID)
	case clientEventAuthenticate:
		// 已鉴权，忽略重复的 authenticate。
	default:
		_ = ws.writeEvent(realtime.EventError, wsErrorData{Message: fmt.Sprintf("unknown event %q", env.Event)})
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(wsWriteWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func (h *WsHandler) subscribeLoop(
	ctx context.Context,
	ws *wsConn,
	sub *realtime.Subscription,
	errCh chan<- error,
	cancel context.CancelFunc,
) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				errCh <- errors.New("subscription closed")
				cancel()
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshal realtime event failed", slog.String("event", ev.Name), slog.Any("error", err))
				continue
			}
			if err := ws.writeRaw(raw); err != nil {
				errCh <- fmt.Errorf("write message: %w", err)
				cancel()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteWait)
			if err := ws.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				cancel()
				return
			}
		}
	}
}
