package ocpp16

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/serialization"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
)

// Dispatcher 入站Call分发器。
// Dispatch 对每个入站Call恰好返回一个响应，任何处理器错误或panic都不会向调用方传播。
type Dispatcher struct {
	registry  *Registry
	validator *validation.Validator
	logger    *logger.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(registry *Registry, validator *validation.Validator, log *logger.Logger) *Dispatcher {
	if validator == nil {
		validator = validation.NewValidator()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		registry:  registry,
		validator: validator,
		logger:    log.WithComponent("dispatcher"),
	}
}

// Registry 返回分发器使用的注册表
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch 校验、路由并执行一个入站Call，返回CallResult或CallError
func (d *Dispatcher) Dispatch(ctx context.Context, call *ocpp16.CallMessage, oc Context) ocpp16.Message {
	if oc.MessageID == "" {
		oc.MessageID = call.MessageID
	}

	if err := d.validator.ValidateCall(call); err != nil {
		var verr validation.ValidationError
		code := ocpp16.ErrorCodeFormationViolation
		details := map[string]interface{}(nil)
		if errors.As(err, &verr) {
			code = verr.Code
			details = map[string]interface{}{"field": verr.Field}
		}
		d.observe("invalid", string(code))
		return BuildError(call.MessageID, code, err.Error(), details)
	}

	desc, ok := d.registry.Lookup(string(call.Action))
	if !ok {
		d.observe("unknown", string(ocpp16.ErrorCodeNotImplemented))
		return BuildError(call.MessageID, ocpp16.ErrorCodeNotImplemented,
			fmt.Sprintf("Action '%s' is not implemented", call.Action), nil)
	}

	start := time.Now()
	result, err := d.execute(ctx, desc, call, oc)
	metrics.HandlerDuration.WithLabelValues(string(call.Action)).Observe(time.Since(start).Seconds())

	if err != nil {
		resp := d.renderError(call, oc, err)
		d.observe(call.Action, string(resp.ErrorCode))
		return resp
	}

	resp, err := RenderResult(call.MessageID, result)
	if err != nil {
		d.logger.GetLogger().Error().Err(err).
			Str("charge_point_id", oc.ChargePointID).
			Str("message_id", call.MessageID).
			Str("action", string(call.Action)).
			Msg("failed to encode handler response")
		d.observe(call.Action, string(ocpp16.ErrorCodeInternalError))
		return resp
	}
	d.observe(call.Action, "result")
	return resp
}

// Reject 为无法解码的入站帧构造回复。不可回复的帧返回 false
func (d *Dispatcher) Reject(err error) (ocpp16.Message, bool) {
	var derr *serialization.DecodeError
	if !errors.As(err, &derr) || !derr.Replyable() {
		return nil, false
	}
	d.observe("invalid", string(derr.Code))
	return BuildError(derr.MessageID, derr.Code, derr.Message, nil), true
}

// execute 运行处理器，panic转换为错误
func (d *Dispatcher) execute(ctx context.Context, desc HandlerDescriptor, call *ocpp16.CallMessage, oc Context) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &handlerPanic{value: r, stack: debug.Stack()}
		}
	}()
	return desc.Execute(ctx, call.Payload, oc)
}

// renderError 协议错误原样回复，其余错误记录日志后回复InternalError
func (d *Dispatcher) renderError(call *ocpp16.CallMessage, oc Context, err error) *ocpp16.CallErrorMessage {
	var oerr *ocpp16.Error
	if errors.As(err, &oerr) && oerr.Code.Valid() {
		return BuildError(call.MessageID, oerr.Code, oerr.Description, oerr.Details)
	}

	event := d.logger.GetLogger().Error().Err(err).
		Str("charge_point_id", oc.ChargePointID).
		Str("message_id", call.MessageID).
		Str("action", string(call.Action))
	var p *handlerPanic
	if errors.As(err, &p) {
		event = event.Bytes("stack", p.stack)
	}
	event.Msg("handler failed")

	return BuildInternalError(call.MessageID)
}

func (d *Dispatcher) observe(action ocpp16.Action, outcome string) {
	metrics.CallsDispatched.WithLabelValues(string(action), outcome).Inc()
}

type handlerPanic struct {
	value interface{}
	stack []byte
}

func (p *handlerPanic) Error() string {
	return fmt.Sprintf("handler panic: %v", p.value)
}
