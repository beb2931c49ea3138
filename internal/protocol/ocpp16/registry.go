package ocpp16

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/validation"
)

var (
	// ErrDuplicateAction 同一动作重复注册
	ErrDuplicateAction = errors.New("ocpp: handler already registered for action")
	// ErrRegistrySealed 注册表已封闭，不再接受注册
	ErrRegistrySealed = errors.New("ocpp: registry is sealed")
)

// Context 单次请求/响应交换的身份信息，由分发器为每个入站Call新建
type Context struct {
	ChargePointID string
	MessageID     string
}

// NewContext 为入站Call创建交换上下文
func NewContext(chargePointID string, call *ocpp16.CallMessage) Context {
	return Context{ChargePointID: chargePointID, MessageID: call.MessageID}
}

// ExecuteFunc 类型擦除后的处理器：解析payload、执行业务、返回响应载荷
type ExecuteFunc func(ctx context.Context, payload json.RawMessage, oc Context) (interface{}, error)

// HandlerDescriptor 动作到处理器的绑定
type HandlerDescriptor struct {
	Action  ocpp16.Action
	Execute ExecuteFunc
}

// Registry 动作注册表。启动阶段注册，Seal 之后只读，查找无需加锁
type Registry struct {
	mu        sync.Mutex
	validator *validation.Validator
	handlers  map[ocpp16.Action]HandlerDescriptor
	sealed    bool
}

// NewRegistry 创建注册表
func NewRegistry(v *validation.Validator) *Registry {
	if v == nil {
		v = validation.NewValidator()
	}
	return &Registry{
		validator: v,
		handlers:  make(map[ocpp16.Action]HandlerDescriptor),
	}
}

// Add 注册类型擦除的处理器
func (r *Registry) Add(desc HandlerDescriptor) error {
	if desc.Action == "" || desc.Execute == nil {
		return fmt.Errorf("ocpp: invalid handler descriptor for action %q", desc.Action)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrRegistrySealed, desc.Action)
	}
	if _, exists := r.handlers[desc.Action]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, desc.Action)
	}
	r.handlers[desc.Action] = desc
	return nil
}

// Register 注册强类型处理器。请求按 Req 的结构解析并校验，处理器返回的 *Resp 作为CallResult载荷
func Register[Req any, Resp any](r *Registry, action ocpp16.Action, handler func(ctx context.Context, req *Req, oc Context) (*Resp, error)) error {
	binder := newPayloadBinder[Req](r.validator)

	return r.Add(HandlerDescriptor{
		Action: action,
		Execute: func(ctx context.Context, payload json.RawMessage, oc Context) (interface{}, error) {
			req, err := binder.bind(payload)
			if err != nil {
				return nil, err
			}
			resp, err := handler(ctx, req, oc)
			if err != nil {
				return nil, err
			}
			if resp == nil {
				return nil, fmt.Errorf("handler for %s returned no response", action)
			}
			return resp, nil
		},
	})
}

// Seal 封闭注册表
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed 是否已封闭
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Lookup 按动作名查找处理器。Seal 之前与 Add 并发调用是不安全的
func (r *Registry) Lookup(action string) (HandlerDescriptor, bool) {
	desc, ok := r.handlers[ocpp16.Action(action)]
	return desc, ok
}

// Actions 已注册的动作，按名称排序
func (r *Registry) Actions() []ocpp16.Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	actions := make([]ocpp16.Action, 0, len(r.handlers))
	for a := range r.handlers {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// Len 已注册的动作数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
