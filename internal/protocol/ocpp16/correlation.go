package ocpp16

import (
	"errors"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

var (
	// ErrBusy 连接上已有一个等待响应的出站Call
	ErrBusy = errors.New("ocpp: a call is already awaiting response on this connection")
	// ErrCallTimeout 出站Call在超时时间内未收到响应
	ErrCallTimeout = errors.New("ocpp: call timed out waiting for response")
	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("ocpp: connection closed")
	// ErrUnsolicitedResponse 响应与当前等待的Call不匹配
	ErrUnsolicitedResponse = errors.New("ocpp: response does not match the pending call")
)

// CorrelationState 出站Call的关联状态
type CorrelationState int

const (
	StateIdle CorrelationState = iota
	StateAwaitingResponse
	StateClosed
)

func (s CorrelationState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// CallOutcome 出站Call的最终结果。
// Err 为 *ocpp16.Error（对端回复CallError）、ErrCallTimeout 或 ErrConnectionClosed
type CallOutcome struct {
	Result *ocpp16.CallResultMessage
	Err    error
}

type pendingCall struct {
	messageID string
	action    ocpp16.Action
	sentAt    time.Time
	done      chan CallOutcome
	timer     *time.Timer
}

// Tracker 单连接出站Call关联器，同一时刻最多一个Call等待响应
type Tracker struct {
	mu      sync.Mutex
	state   CorrelationState
	pending *pendingCall
	timeout time.Duration
}

// NewTracker 创建关联器
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{timeout: timeout}
}

// Begin 登记一个即将发送的出站Call，返回结果通道（恰好投递一次）
func (t *Tracker) Begin(messageID string, action ocpp16.Action) (<-chan CallOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateClosed:
		return nil, ErrConnectionClosed
	case StateAwaitingResponse:
		return nil, ErrBusy
	}

	p := &pendingCall{
		messageID: messageID,
		action:    action,
		sentAt:    time.Now(),
		done:      make(chan CallOutcome, 1),
	}
	if t.timeout > 0 {
		p.timer = time.AfterFunc(t.timeout, func() { t.expire(p) })
	}
	t.pending = p
	t.state = StateAwaitingResponse
	return p.done, nil
}

// Resolve 以入站CallResult/CallError完成等待中的Call。
// 不匹配的响应返回 ErrUnsolicitedResponse，状态不变。
func (t *Tracker) Resolve(msg ocpp16.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateClosed {
		return ErrConnectionClosed
	}
	if t.state != StateAwaitingResponse || t.pending.messageID != msg.UniqueID() {
		return ErrUnsolicitedResponse
	}

	var outcome CallOutcome
	switch m := msg.(type) {
	case *ocpp16.CallResultMessage:
		outcome.Result = m
	case *ocpp16.CallErrorMessage:
		outcome.Err = m.AsError()
	default:
		return ErrUnsolicitedResponse
	}
	t.finish(outcome)
	return nil
}

// Abort 放弃等待中的Call（发送失败或调用方取消），messageID 不匹配时无操作
func (t *Tracker) Abort(messageID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateAwaitingResponse || t.pending.messageID != messageID {
		return
	}
	t.finish(CallOutcome{Err: err})
}

// Close 进入终态，等待中的Call以 ErrConnectionClosed 结束
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateAwaitingResponse {
		t.finish(CallOutcome{Err: ErrConnectionClosed})
	}
	t.state = StateClosed
}

// State 当前状态
func (t *Tracker) State() CorrelationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Pending 当前等待中的Call
func (t *Tracker) Pending() (messageID string, action ocpp16.Action, sentAt time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return "", "", time.Time{}, false
	}
	return t.pending.messageID, t.pending.action, t.pending.sentAt, true
}

func (t *Tracker) expire(p *pendingCall) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// 计时器触发时Call可能已被响应或替换
	if t.pending != p {
		return
	}
	t.finish(CallOutcome{Err: ErrCallTimeout})
}

// finish 调用方需持有锁
func (t *Tracker) finish(outcome CallOutcome) {
	p := t.pending
	if p.timer != nil {
		p.timer.Stop()
	}
	t.pending = nil
	t.state = StateIdle
	p.done <- outcome
}
