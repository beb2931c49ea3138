package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charging-platform/central-system/internal/logger"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send queue full")
)

// ConnectionWrapper 单条充电桩连接：读写协程、限流器与OCPP会话
type ConnectionWrapper struct {
	conn          *websocket.Conn
	chargePointID string
	subprotocol   string
	remoteAddr    string
	connectedAt   time.Time

	session *protocol16.Session

	// 所有文本帧经此通道由 sendRoutine 串行写出
	sendChan chan []byte
	limiter  *rate.Limiter

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	lastActivity atomic.Int64

	config *Config
	logger *logger.Logger
}

// ChargePointID 连接所属充电桩
func (w *ConnectionWrapper) ChargePointID() string {
	return w.chargePointID
}

// Session 连接上的OCPP会话
func (w *ConnectionWrapper) Session() *protocol16.Session {
	return w.session
}

// SendMessage 实现 FrameSender：排队一帧文本，队列满时最多等待写超时
func (w *ConnectionWrapper) SendMessage(message []byte) error {
	select {
	case w.sendChan <- message:
		return nil
	case <-w.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(w.config.WriteTimeout)
	defer timer.Stop()
	select {
	case w.sendChan <- message:
		return nil
	case <-w.ctx.Done():
		return ErrConnectionClosed
	case <-timer.C:
		return ErrSendTimeout
	}
}

// Close 关闭连接，可重复调用
func (w *ConnectionWrapper) Close() {
	w.closeOnce.Do(func() {
		w.cancel()
		_ = w.conn.Close()
	})
}

// closeWithReason 发送关闭帧后关闭
func (w *ConnectionWrapper) closeWithReason(code int, text string) {
	deadline := time.Now().Add(time.Second)
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	w.Close()
}

// ping 发送 ping 控制帧。WriteControl 可与 sendRoutine 并发调用
func (w *ConnectionWrapper) ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.config.WriteTimeout))
}

// GetLastActivity 获取最后活动时间
func (w *ConnectionWrapper) GetLastActivity() time.Time {
	return time.Unix(0, w.lastActivity.Load())
}

func (w *ConnectionWrapper) touch() {
	w.lastActivity.Store(time.Now().UnixNano())
}

func (w *ConnectionWrapper) readDeadline() time.Time {
	if w.config.PingInterval <= 0 {
		return time.Time{}
	}
	return time.Now().Add(w.config.PingInterval + w.config.PongTimeout)
}

// sendRoutine 发送协程，统一处理文本帧写入
func (w *ConnectionWrapper) sendRoutine() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case message := <-w.sendChan:
			_ = w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				w.logger.Errorf("Failed to send message to %s: %v", w.chargePointID, err)
				w.Close()
				return
			}
			w.touch()
		}
	}
}

// receiveRoutine 读取协程，按到达顺序把文本帧交给会话；返回断开原因
func (w *ConnectionWrapper) receiveRoutine() string {
	w.conn.SetReadLimit(w.config.MaxMessageSize)
	_ = w.conn.SetReadDeadline(w.readDeadline())
	w.conn.SetPongHandler(func(string) error {
		w.touch()
		return w.conn.SetReadDeadline(w.readDeadline())
	})

	for {
		messageType, message, err := w.conn.ReadMessage()
		if err != nil {
			if w.ctx.Err() != nil {
				return "closed by server"
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Warnf("WebSocket error for %s: %v", w.chargePointID, err)
			}
			return err.Error()
		}
		w.touch()
		_ = w.conn.SetReadDeadline(w.readDeadline())

		if messageType != websocket.TextMessage {
			w.logger.Debugf("Ignoring non-text frame from %s", w.chargePointID)
			continue
		}

		if err := w.limiter.Wait(w.ctx); err != nil {
			return "closed by server"
		}
		w.session.HandleFrame(message)
	}
}
