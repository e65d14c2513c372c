package publisher

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/serializer"
)

var (
	// ErrHubClosed 推送中心已关闭
	ErrHubClosed = errors.New("publisher: hub closed")
	// ErrTooManySubscribers 订阅连接数已满
	ErrTooManySubscribers = errors.New("publisher: too many subscribers")
)

// HubConfig WebSocket 推送配置
type HubConfig struct {
	MaxSubscribers int           `mapstructure:"max_subscribers" validate:"gte=0"`
	SendQueueSize  int           `mapstructure:"send_queue_size" validate:"gte=0"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	// AllowedOrigins 为空时只接受无 Origin 的请求
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultHubConfig 返回默认推送配置
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		MaxSubscribers: 1024,
		SendQueueSize:  64,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
	}
}

type subscriber struct {
	id        string
	accountID string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Hub 把变更事件推送给 WebSocket 订阅者，可按账号过滤
type Hub struct {
	cfg      *HubConfig
	upgrader websocket.Upgrader
	ser      serializer.Serializer
	logger   logger.Logger

	mu      sync.RWMutex
	subs    map[string]*subscriber
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewHub 创建推送中心
func NewHub(cfg *HubConfig, l logger.Logger) *Hub {
	if cfg == nil {
		cfg = DefaultHubConfig()
	}
	h := &Hub{
		cfg:    cfg,
		ser:    serializer.NewJSON(),
		logger: logger.OrNoop(l).Named("publisher.hub"),
		subs:   make(map[string]*subscriber),
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 5 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *Hub) Name() string { return "websocket" }

// Count 返回当前订阅者数量
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped 返回因发送队列满而丢弃的事件数
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Subscribe 升级连接并注册订阅者，accountID 为空表示订阅全部账号
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, accountID string) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if h.cfg.MaxSubscribers > 0 && h.Count() >= h.cfg.MaxSubscribers {
		return ErrTooManySubscribers
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "failed to upgrade websocket")
	}

	queue := h.cfg.SendQueueSize
	if queue <= 0 {
		queue = 64
	}
	s := &subscriber{
		id:        uuid.NewString(),
		accountID: accountID,
		conn:      conn,
		send:      make(chan []byte, queue),
		done:      make(chan struct{}),
	}

	if err := h.register(s); err != nil {
		code := websocket.CloseTryAgainLater
		if errors.Is(err, ErrHubClosed) {
			code = websocket.CloseGoingAway
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()), time.Now().Add(time.Second))
		_ = conn.Close()
		return err
	}

	h.logger.Debug("subscriber connected", "sub_id", s.id, "account_id", accountID, "remote_addr", conn.RemoteAddr().String())

	go h.writeLoop(s)
	go h.readLoop(s)
	return nil
}

// register 在锁内再次检查关闭状态与上限，升级期间的 Close 或并发订阅不会越过它们
func (h *Hub) register(s *subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return ErrHubClosed
	}
	if h.cfg.MaxSubscribers > 0 && len(h.subs) >= h.cfg.MaxSubscribers {
		return ErrTooManySubscribers
	}
	h.subs[s.id] = s
	return nil
}

// Publish 非阻塞投递，订阅者队列满时丢弃该事件
func (h *Hub) Publish(_ context.Context, report *reconcile.ChangeReport) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	data, err := h.ser.Marshal(NewEvent(report))
	if err != nil {
		return errors.Wrap(err, "failed to marshal change event")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.accountID != "" && s.accountID != report.AccountID {
			continue
		}
		select {
		case s.send <- data:
		default:
			h.dropped.Add(1)
			h.logger.Debug("subscriber queue full, event dropped", "sub_id", s.id, "account_id", report.AccountID)
		}
	}
	return nil
}

// readLoop 只处理控制帧，读取失败即断开
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s)

	s.conn.SetReadLimit(512)
	if h.cfg.PongTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		})
	}
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("subscriber read error", "sub_id", s.id, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	defer h.remove(s)

	interval := h.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case data := <-s.send:
			if err := h.write(s, websocket.TextMessage, data); err != nil {
				h.logger.Debug("subscriber write error", "sub_id", s.id, "error", err)
				return
			}
		case <-ticker.C:
			if err := h.write(s, websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (h *Hub) write(s *subscriber, messageType int, data []byte) error {
	if h.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
	return s.conn.WriteMessage(messageType, data)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s.id]
	delete(h.subs, s.id)
	h.mu.Unlock()

	s.close()
	if ok {
		h.logger.Debug("subscriber disconnected", "sub_id", s.id)
	}
}

// Close 断开所有订阅者
func (h *Hub) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.subs = make(map[string]*subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		s.close()
	}
	return nil
}
