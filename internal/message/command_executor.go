package message

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
)

var (
	ErrChargePointOffline = errors.New("charge point is not connected to this instance")
	ErrUnsupportedCommand = errors.New("unsupported command action")
)

// CallerLookup 按充电桩ID查找本实例上的会话
type CallerLookup func(chargePointID string) (protocol16.Caller, bool)

// 可下发的指令及其请求载荷类型
var commandPayloads = map[ocpp16.Action]func() interface{}{
	ocpp16.ActionReset:               func() interface{} { return &ocpp16.ResetRequest{} },
	ocpp16.ActionChangeAvailability:  func() interface{} { return &ocpp16.ChangeAvailabilityRequest{} },
	ocpp16.ActionDataTransfer:        func() interface{} { return &ocpp16.DataTransferRequest{} },
	ocpp16.ActionSendLocalList:       func() interface{} { return &ocpp16.SendLocalListRequest{} },
	ocpp16.ActionGetLocalListVersion: func() interface{} { return &ocpp16.GetLocalListVersionRequest{} },
}

// CommandExecutor 将下行指令作为出站Call发给充电桩，并发布执行结果事件
type CommandExecutor struct {
	lookup    CallerLookup
	validator *validation.Validator
	publisher events.Publisher
	events    *events.EventFactory
	timeout   time.Duration
	logger    *logger.Logger
}

// NewCommandExecutor 创建指令执行器，timeout 为单条指令的最长执行时间
func NewCommandExecutor(lookup CallerLookup, v *validation.Validator, publisher events.Publisher, factory *events.EventFactory, timeout time.Duration, log *logger.Logger) *CommandExecutor {
	if publisher == nil {
		publisher = events.NopPublisher
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CommandExecutor{
		lookup:    lookup,
		validator: v,
		publisher: publisher,
		events:    factory,
		timeout:   timeout,
		logger:    log.WithComponent("command-executor"),
	}
}

// Handle 实现 CommandHandler
func (e *CommandExecutor) Handle(ctx context.Context, cmd *Command) {
	metrics.CommandsConsumed.WithLabelValues(cmd.Action).Inc()

	start := time.Now()
	response, err := e.Execute(ctx, cmd)
	result := events.CommandResult{
		CommandID: cmd.CommandID,
		Action:    cmd.Action,
		Response:  response,
		Duration:  time.Since(start),
	}

	log := e.logger.GetLogger().With().
		Str("command_id", cmd.CommandID).
		Str("charge_point_id", cmd.ChargePointID).
		Str("action", cmd.Action).
		Logger()
	if err != nil {
		result.Error = err.Error()
		var ocppErr *ocpp16.Error
		if errors.As(err, &ocppErr) {
			result.ErrorCode = string(ocppErr.Code)
			result.Error = ocppErr.Description
		}
		log.Warn().Err(err).Msg("command failed")
	} else {
		log.Info().Dur("duration", result.Duration).Msg("command executed")
	}

	if e.events == nil {
		return
	}
	if perr := e.publisher.PublishEvent(e.events.CreateCommandResultEvent(cmd.ChargePointID, result)); perr != nil {
		log.Warn().Err(perr).Msg("failed to publish command result")
	}
}

// Execute 校验指令载荷并发起出站Call，返回充电桩的 CallResult 载荷
func (e *CommandExecutor) Execute(ctx context.Context, cmd *Command) (json.RawMessage, error) {
	action := ocpp16.Action(cmd.Action)
	newPayload, ok := commandPayloads[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Action)
	}

	request := newPayload()
	raw := cmd.Payload
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(request); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", cmd.Action, err)
	}
	if e.validator != nil {
		if err := e.validator.ValidateStruct(request); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", cmd.Action, err)
		}
	}

	caller, ok := e.lookup(cmd.ChargePointID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChargePointOffline, cmd.ChargePointID)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return caller.Call(ctx, action, request)
}
