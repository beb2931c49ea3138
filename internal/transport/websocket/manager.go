package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/protocol"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Config WebSocket管理器配置
type Config struct {
	PodID string
	Path  string

	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	MaxMessageSize    int64
	EnableCompression bool
	SendBufferSize    int

	// 连接管理
	MaxConnections int
	ConnectionTTL  time.Duration

	// 入站限流，MessagesPerSecond <= 0 表示不限流
	MessagesPerSecond float64
	MessageBurst      int

	// 安全配置
	CheckOrigin    bool
	AllowedOrigins []string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		PodID: "csms-local",
		Path:  "/ocpp",

		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      60 * time.Second,
		PongTimeout:       10 * time.Second,
		MaxMessageSize:    64 * 1024,
		EnableCompression: false,
		SendBufferSize:    64,

		MaxConnections: 10000,
		ConnectionTTL:  10 * time.Minute,

		MessagesPerSecond: 20,
		MessageBurst:      40,
	}
}

// ConfigFrom 由应用配置构造
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		PodID:             cfg.PodID,
		Path:              cfg.Server.WebSocketPath,
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		PingInterval:      cfg.WebSocket.PingInterval,
		PongTimeout:       cfg.WebSocket.PongTimeout,
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		EnableCompression: cfg.WebSocket.EnableCompression,
		SendBufferSize:    cfg.WebSocket.SendBufferSize,
		MaxConnections:    cfg.Server.MaxConnections,
		ConnectionTTL:     cfg.OCPP.ConnectionTTL,
		MessagesPerSecond: cfg.OCPP.MessagesPerSecond,
		MessageBurst:      cfg.OCPP.MessageBurst,
		CheckOrigin:       cfg.WebSocket.CheckOrigin,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	}
}

// Dependencies 连接管理器依赖
type Dependencies struct {
	Dispatcher    *protocol16.Dispatcher
	SessionConfig *protocol16.SessionConfig
	// Connections 连接到实例的映射，为空时不登记
	Connections storage.ConnectionStorage
	Publisher   events.Publisher
	Events      *events.EventFactory
	Validator   *validation.Validator
}

// Manager WebSocket连接管理器，每条连接承载一个OCPP会话
type Manager struct {
	config   *Config
	deps     Dependencies
	upgrader *websocket.Upgrader

	// 连接存储，值为 nil 表示握手中的占位
	connections map[string]*ConnectionWrapper
	mutex       sync.RWMutex

	pingService *GlobalPingService

	// 生命周期管理
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time

	logger *logger.Logger
}

// NewManager 创建新的WebSocket管理器
func NewManager(cfg *Config, deps Dependencies, log *logger.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewValidator()
	}
	if deps.Events == nil {
		deps.Events = events.NewEventFactory("central-system", cfg.PodID)
	}

	ctx, cancel := context.WithCancel(context.Background())

	upgrader := &websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		EnableCompression: cfg.EnableCompression,
		Subprotocols:      protocol.GetSupportedVersions(),
		CheckOrigin: func(r *http.Request) bool {
			if !cfg.CheckOrigin || len(cfg.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range cfg.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	m := &Manager{
		config:      cfg,
		deps:        deps,
		upgrader:    upgrader,
		connections: make(map[string]*ConnectionWrapper),
		ctx:         ctx,
		cancel:      cancel,
		startTime:   time.Now(),
		logger:      log.WithComponent("websocket"),
	}
	m.pingService = NewGlobalPingService(cfg.PingInterval, m.refreshConnection, m.logger)
	return m
}

// Start 启动后台保活
func (m *Manager) Start() {
	m.pingService.Start()
}

// ServeWS 是一个HTTP处理器，用于处理 GET {Path}/{chargePointId} 的升级请求
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	chargePointID, err := m.extractChargePointID(r.URL.EscapedPath())
	if err != nil {
		http.Error(w, "Invalid charge point ID", http.StatusBadRequest)
		return
	}

	if err := m.HandleConnection(w, r, chargePointID); err != nil {
		m.logger.Warnf("Rejected WebSocket connection for %s: %v", chargePointID, err)
	}
}

// extractChargePointID 从URL路径中提取充电桩ID，例如 "/ocpp/CP-001" -> "CP-001"
func (m *Manager) extractChargePointID(path string) (string, error) {
	prefix := strings.TrimSuffix(m.config.Path, "/") + "/"
	if !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("path %q is outside %s", path, prefix)
	}
	chargePointID, err := url.PathUnescape(strings.TrimPrefix(path, prefix))
	if err != nil {
		return "", err
	}
	if err := m.deps.Validator.ValidateChargePointID(chargePointID); err != nil {
		return "", err
	}
	return chargePointID, nil
}

// HandleConnection 处理WebSocket连接升级
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, chargePointID string) error {
	subprotocol, ok := protocol.NegotiateSubprotocol(websocket.Subprotocols(r))
	if !ok {
		http.Error(w, "Unsupported subprotocol, expected ocpp1.6", http.StatusBadRequest)
		return fmt.Errorf("no supported subprotocol offered: %v", websocket.Subprotocols(r))
	}

	if err := m.reserve(chargePointID); err != nil {
		status := http.StatusConflict
		switch {
		case errors.Is(err, errTooManyConnections):
			status = http.StatusTooManyRequests
		case errors.Is(err, errShuttingDown):
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return err
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.release(chargePointID, nil)
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	wrapper := m.createConnectionWrapper(conn, chargePointID, subprotocol, r.RemoteAddr)

	m.mutex.Lock()
	m.connections[chargePointID] = wrapper
	m.mutex.Unlock()

	metrics.ActiveConnections.Inc()
	m.pingService.AddConnection(chargePointID, wrapper)
	m.registerConnection(chargePointID)
	m.publish(m.deps.Events.CreateConnectedEvent(chargePointID, events.ConnectionInfo{
		RemoteAddress: wrapper.remoteAddr,
		Subprotocol:   subprotocol,
		At:            wrapper.connectedAt,
	}))

	m.wg.Add(1)
	go m.handleConnectionWrapper(wrapper)

	m.logger.Infof("WebSocket connection established for %s from %s", chargePointID, r.RemoteAddr)
	return nil
}

var (
	errDuplicateConnection = errors.New("connection already exists")
	errTooManyConnections  = errors.New("too many connections")
	errShuttingDown        = errors.New("server is shutting down")
)

// reserve 在握手前占位，保证同一充电桩只有一条连接
func (m *Manager) reserve(chargePointID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.ctx.Err() != nil {
		return errShuttingDown
	}
	if _, exists := m.connections[chargePointID]; exists {
		return errDuplicateConnection
	}
	if m.config.MaxConnections > 0 && len(m.connections) >= m.config.MaxConnections {
		return errTooManyConnections
	}
	m.connections[chargePointID] = nil
	return nil
}

// release 移除占位或指定连接，返回是否确实移除了 wrapper
func (m *Manager) release(chargePointID string, wrapper *ConnectionWrapper) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	current, exists := m.connections[chargePointID]
	if !exists || current != wrapper {
		return false
	}
	delete(m.connections, chargePointID)
	return true
}

// createConnectionWrapper 创建连接包装器及其会话
func (m *Manager) createConnectionWrapper(conn *websocket.Conn, chargePointID, subprotocol, remoteAddr string) *ConnectionWrapper {
	ctx, cancel := context.WithCancel(m.ctx)

	limit := rate.Inf
	if m.config.MessagesPerSecond > 0 {
		limit = rate.Limit(m.config.MessagesPerSecond)
	}
	burst := m.config.MessageBurst
	if burst <= 0 {
		burst = 1
	}
	sendBuffer := m.config.SendBufferSize
	if sendBuffer <= 0 {
		sendBuffer = 1
	}

	wrapper := &ConnectionWrapper{
		conn:          conn,
		chargePointID: chargePointID,
		subprotocol:   subprotocol,
		remoteAddr:    remoteAddr,
		connectedAt:   time.Now().UTC(),
		sendChan:      make(chan []byte, sendBuffer),
		limiter:       rate.NewLimiter(limit, burst),
		ctx:           ctx,
		cancel:        cancel,
		config:        m.config,
		logger:        m.logger.WithChargePoint(chargePointID),
	}
	wrapper.touch()
	wrapper.session = protocol16.NewSession(chargePointID, m.deps.Dispatcher, wrapper, m.sessionConfig(), m.logger)
	return wrapper
}

func (m *Manager) sessionConfig() *protocol16.SessionConfig {
	if m.deps.SessionConfig == nil {
		return protocol16.DefaultSessionConfig()
	}
	cfg := *m.deps.SessionConfig
	return &cfg
}

// handleConnectionWrapper 连接生命周期：读循环退出后关闭会话并清理登记
func (m *Manager) handleConnectionWrapper(wrapper *ConnectionWrapper) {
	defer m.wg.Done()

	go wrapper.sendRoutine()
	reason := wrapper.receiveRoutine()

	wrapper.Close()
	wrapper.session.Close()

	if !m.release(wrapper.chargePointID, wrapper) {
		return
	}
	m.pingService.RemoveConnection(wrapper.chargePointID)
	metrics.ActiveConnections.Dec()
	m.unregisterConnection(wrapper.chargePointID)
	m.publish(m.deps.Events.CreateDisconnectedEvent(wrapper.chargePointID, events.ConnectionInfo{
		RemoteAddress: wrapper.remoteAddr,
		Subprotocol:   wrapper.subprotocol,
		At:            time.Now().UTC(),
		Reason:        reason,
	}))
	m.logger.Infof("Connection removed for charge point: %s (%s)", wrapper.chargePointID, reason)
}

func (m *Manager) registerConnection(chargePointID string) {
	if m.deps.Connections == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()
	if err := m.deps.Connections.SetConnection(ctx, chargePointID, m.config.PodID, m.config.ConnectionTTL); err != nil {
		m.logger.Warnf("Failed to register connection mapping for %s: %v", chargePointID, err)
	}
}

// refreshConnection 保活时续期连接映射
func (m *Manager) refreshConnection(chargePointID string) {
	m.registerConnection(chargePointID)
}

func (m *Manager) unregisterConnection(chargePointID string) {
	if m.deps.Connections == nil {
		return
	}
	// 关闭流程中 m.ctx 可能已取消，清理使用独立的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.deps.Connections.DeleteConnection(ctx, chargePointID); err != nil {
		m.logger.Warnf("Failed to delete connection mapping for %s: %v", chargePointID, err)
	}
}

func (m *Manager) publish(event events.Event) {
	if err := m.deps.Publisher.PublishEvent(event); err != nil {
		m.logger.Warnf("Failed to publish %s event for %s: %v", event.GetType(), event.GetChargePointID(), err)
	}
}

// GetConnection 获取连接
func (m *Manager) GetConnection(chargePointID string) (*ConnectionWrapper, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	wrapper, exists := m.connections[chargePointID]
	return wrapper, exists && wrapper != nil
}

// HasConnection 检查连接是否存在
func (m *Manager) HasConnection(chargePointID string) bool {
	_, exists := m.GetConnection(chargePointID)
	return exists
}

// Caller 返回充电桩会话，供下行指令发起出站Call
func (m *Manager) Caller(chargePointID string) (protocol16.Caller, bool) {
	wrapper, ok := m.GetConnection(chargePointID)
	if !ok {
		return nil, false
	}
	return wrapper.session, true
}

// GetConnectionCount 获取连接数
func (m *Manager) GetConnectionCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	count := 0
	for _, w := range m.connections {
		if w != nil {
			count++
		}
	}
	return count
}

// HandleHealthCheck 处理健康检查请求
func (m *Manager) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":       "healthy",
		"pod_id":       m.config.PodID,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"connections":  m.GetConnectionCount(),
		"uptime":       time.Since(m.startTime).String(),
		"ping_service": m.pingService.GetStats(),
	}
	if m.ctx.Err() != nil {
		status["status"] = "shutting_down"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// Shutdown 优雅关闭：停止接入新连接，关闭现有连接并等待清理结束
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down WebSocket manager...")

	m.pingService.Stop()
	m.cancel()

	m.mutex.RLock()
	for chargePointID, wrapper := range m.connections {
		if wrapper == nil {
			continue
		}
		m.logger.Debugf("Closing connection for charge point: %s", chargePointID)
		wrapper.closeWithReason(websocket.CloseGoingAway, "server shutdown")
	}
	m.mutex.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("WebSocket manager shutdown completed")
		return nil
	case <-ctx.Done():
		m.logger.Warn("WebSocket manager shutdown timeout")
		return ctx.Err()
	}
}
