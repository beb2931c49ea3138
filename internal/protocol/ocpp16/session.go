package ocpp16

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/serialization"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
	"github.com/google/uuid"
)

// FrameSender 向对端写出一帧文本
type FrameSender interface {
	SendMessage(message []byte) error
}

// Caller 向充电桩发起出站Call
type Caller interface {
	Call(ctx context.Context, action ocpp16.Action, request interface{}) (json.RawMessage, error)
}

// SessionConfig 会话配置
type SessionConfig struct {
	CallTimeout time.Duration
	// MaxInflight 同时处理中的入站Call上限（含等待写出的响应），超出后读取方阻塞
	MaxInflight int
}

// DefaultSessionConfig 默认会话配置
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		CallTimeout: 30 * time.Second,
		MaxInflight: 16,
	}
}

// responseSlot 按入站顺序排队的响应位
type responseSlot struct {
	messageID string
	done      chan ocpp16.Message
}

// Session 单个充电桩连接上的OCPP会话。
// 入站Call并发处理，但响应严格按到达顺序写出；出站Call经 Tracker 关联。
type Session struct {
	chargePointID string
	dispatcher    *Dispatcher
	serializer    *serialization.Serializer
	tracker       *Tracker
	sender        FrameSender
	config        *SessionConfig
	logger        *logger.Logger

	// emitLoop 自己持有一个出队的响应位，缓冲区比 MaxInflight 少一
	slots chan *responseSlot

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	emitDone  chan struct{}
	handlers  sync.WaitGroup
}

// NewSession 创建会话并启动响应写出协程
func NewSession(chargePointID string, dispatcher *Dispatcher, sender FrameSender, config *SessionConfig, log *logger.Logger) *Session {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if config.MaxInflight <= 0 {
		config.MaxInflight = 1
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		chargePointID: chargePointID,
		dispatcher:    dispatcher,
		serializer:    serialization.NewSerializer(),
		tracker:       NewTracker(config.CallTimeout),
		sender:        sender,
		config:        config,
		logger:        log.WithChargePoint(chargePointID),
		slots:         make(chan *responseSlot, config.MaxInflight-1),
		ctx:           ctx,
		cancel:        cancel,
		emitDone:      make(chan struct{}),
	}
	go s.emitLoop()
	return s
}

// ChargePointID 会话所属充电桩
func (s *Session) ChargePointID() string {
	return s.chargePointID
}

// Tracker 出站Call关联器
func (s *Session) Tracker() *Tracker {
	return s.tracker
}

// Done 会话关闭后关闭
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// HandleFrame 处理一帧入站文本。须由连接的单个读取协程按到达顺序调用
func (s *Session) HandleFrame(raw []byte) {
	msg, err := s.serializer.Decode(raw)
	if err != nil {
		metrics.FramesReceived.WithLabelValues("invalid").Inc()
		s.reject(err)
		return
	}
	metrics.FramesReceived.WithLabelValues(msg.MessageTypeID().String()).Inc()

	switch m := msg.(type) {
	case *ocpp16.CallMessage:
		s.handleCall(m)
	case *ocpp16.CallResultMessage, *ocpp16.CallErrorMessage:
		if err := s.tracker.Resolve(msg); err != nil {
			metrics.UnsolicitedResponses.Inc()
			s.logger.GetLogger().Warn().Err(err).
				Str("message_id", msg.UniqueID()).
				Str("message_type", msg.MessageTypeID().String()).
				Msg("dropping uncorrelated response")
		}
	}
}

func (s *Session) handleCall(call *ocpp16.CallMessage) {
	slot := &responseSlot{messageID: call.MessageID, done: make(chan ocpp16.Message, 1)}
	if !s.enqueue(slot) {
		return
	}

	s.handlers.Add(1)
	go func() {
		defer s.handlers.Done()
		slot.done <- s.dispatcher.Dispatch(s.ctx, call, NewContext(s.chargePointID, call))
	}()
}

// reject 可回复的解码错误按到达顺序回复CallError，其余记录后丢弃
func (s *Session) reject(err error) {
	resp, ok := s.dispatcher.Reject(err)
	if !ok {
		s.logger.GetLogger().Warn().Err(err).Msg("dropping malformed frame")
		return
	}
	slot := &responseSlot{messageID: resp.UniqueID(), done: make(chan ocpp16.Message, 1)}
	slot.done <- resp
	s.enqueue(slot)
}

func (s *Session) enqueue(slot *responseSlot) bool {
	select {
	case s.slots <- slot:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// emitLoop 按入站顺序等待每个响应并写出
func (s *Session) emitLoop() {
	defer close(s.emitDone)
	for {
		var slot *responseSlot
		select {
		case <-s.ctx.Done():
			return
		case slot = <-s.slots:
		}

		var resp ocpp16.Message
		select {
		case <-s.ctx.Done():
			return
		case resp = <-slot.done:
		}

		frame, err := s.serializer.Encode(resp)
		if err != nil {
			s.logger.GetLogger().Error().Err(err).Str("message_id", slot.messageID).Msg("failed to encode response")
			continue
		}
		if err := s.sender.SendMessage(frame); err != nil {
			s.logger.GetLogger().Warn().Err(err).Str("message_id", slot.messageID).Msg("failed to send response")
		}
	}
}

// Call 向充电桩发起出站Call并等待响应。
// 已有Call等待响应时立即返回 ErrBusy；对端回复CallError时返回 *ocpp16.Error。
func (s *Session) Call(ctx context.Context, action ocpp16.Action, request interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", action, err)
	}

	messageID := uuid.NewString()
	outcome, err := s.tracker.Begin(messageID, action)
	if err != nil {
		metrics.OutboundCalls.WithLabelValues(string(action), outcomeLabel(err)).Inc()
		return nil, err
	}

	frame, err := s.serializer.Encode(&ocpp16.CallMessage{MessageID: messageID, Action: action, Payload: payload})
	if err != nil {
		s.tracker.Abort(messageID, err)
		return nil, err
	}
	if err := s.sender.SendMessage(frame); err != nil {
		s.tracker.Abort(messageID, err)
		metrics.OutboundCalls.WithLabelValues(string(action), "send_failed").Inc()
		return nil, fmt.Errorf("send %s: %w", action, err)
	}

	select {
	case out := <-outcome:
		metrics.OutboundCalls.WithLabelValues(string(action), outcomeLabel(out.Err)).Inc()
		if out.Err != nil {
			return nil, out.Err
		}
		return out.Result.Payload, nil
	case <-ctx.Done():
		s.tracker.Abort(messageID, ctx.Err())
		metrics.OutboundCalls.WithLabelValues(string(action), "cancelled").Inc()
		return nil, ctx.Err()
	}
}

// Close 关闭会话：取消处理中的请求，等待中的出站Call以 ErrConnectionClosed 结束
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.tracker.Close()
		<-s.emitDone
	})
}

// Wait 等待所有处理中的入站Call返回
func (s *Session) Wait() {
	s.handlers.Wait()
}

func outcomeLabel(err error) string {
	var oerr *ocpp16.Error
	switch {
	case err == nil:
		return "result"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrCallTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	case errors.As(err, &oerr):
		return string(oerr.Code)
	default:
		return "error"
	}
}
