package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/charging-platform/central-system/internal/business/chargepoint"
	"github.com/charging-platform/central-system/internal/business/localauth"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
	"github.com/charging-platform/central-system/internal/storage"
)

// ChargePointService 充电桩档案能力
type ChargePointService interface {
	RegisterChargePoint(ctx context.Context, chargePointID string, req *ocpp16.BootNotificationRequest) (*chargepoint.Registration, error)
	Heartbeat(ctx context.Context, chargePointID string) (time.Time, error)
	UpdateConnectorStatus(ctx context.Context, chargePointID string, req *ocpp16.StatusNotificationRequest) (string, error)
	RecordFirmwareStatus(ctx context.Context, chargePointID string, status ocpp16.FirmwareStatus) error
	RecordDiagnosticsStatus(ctx context.Context, chargePointID string, status ocpp16.DiagnosticsStatus) error
}

// TransactionService 交易能力
type TransactionService interface {
	StartTransaction(ctx context.Context, chargePointID string, req *ocpp16.StartTransactionRequest, auth ocpp16.IdTagInfo) (*storage.TransactionRecord, error)
	StopTransaction(ctx context.Context, chargePointID string, req *ocpp16.StopTransactionRequest) (*storage.TransactionRecord, error)
	RecordMeterValues(ctx context.Context, chargePointID string, req *ocpp16.MeterValuesRequest) (int, error)
}

// AuthService 授权与本地列表能力
type AuthService interface {
	Authorize(ctx context.Context, chargePointID, idTag string) (*localauth.Decision, error)
	Apply(ctx context.Context, chargePointID string, req *ocpp16.SendLocalListRequest) (ocpp16.UpdateStatus, error)
	Version(ctx context.Context, chargePointID string) (int, error)
}

// Dependencies 处理器依赖
type Dependencies struct {
	ChargePoints ChargePointService
	Transactions TransactionService
	Auth         AuthService
	Publisher    events.Publisher
	Events       *events.EventFactory
	// VendorIDs DataTransfer 可识别的厂商标识
	VendorIDs []string
}

// Handlers 各OCPP动作的业务处理器
type Handlers struct {
	chargePoints ChargePointService
	transactions TransactionService
	auth         AuthService
	publisher    events.Publisher
	events       *events.EventFactory
	vendors      map[string]struct{}
	logger       *logger.Logger
}

// New 创建处理器集合
func New(deps Dependencies, log *logger.Logger) *Handlers {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher
	}
	if deps.Events == nil {
		deps.Events = events.NewEventFactory("central-system", "")
	}
	if log == nil {
		log = logger.Nop()
	}
	vendors := make(map[string]struct{}, len(deps.VendorIDs))
	for _, v := range deps.VendorIDs {
		vendors[v] = struct{}{}
	}
	return &Handlers{
		chargePoints: deps.ChargePoints,
		transactions: deps.Transactions,
		auth:         deps.Auth,
		publisher:    deps.Publisher,
		events:       deps.Events,
		vendors:      vendors,
		logger:       log.WithComponent("handlers"),
	}
}

// Register 在注册表中登记全部动作
func (h *Handlers) Register(r *protocol16.Registry) error {
	return errors.Join(
		protocol16.Register(r, ocpp16.ActionAuthorize, h.Authorize),
		protocol16.Register(r, ocpp16.ActionBootNotification, h.BootNotification),
		protocol16.Register(r, ocpp16.ActionDataTransfer, h.DataTransfer),
		protocol16.Register(r, ocpp16.ActionDiagnosticsStatusNotification, h.DiagnosticsStatusNotification),
		protocol16.Register(r, ocpp16.ActionFirmwareStatusNotification, h.FirmwareStatusNotification),
		protocol16.Register(r, ocpp16.ActionHeartbeat, h.Heartbeat),
		protocol16.Register(r, ocpp16.ActionMeterValues, h.MeterValues),
		protocol16.Register(r, ocpp16.ActionStartTransaction, h.StartTransaction),
		protocol16.Register(r, ocpp16.ActionStatusNotification, h.StatusNotification),
		protocol16.Register(r, ocpp16.ActionStopTransaction, h.StopTransaction),
		protocol16.Register(r, ocpp16.ActionSendLocalList, h.SendLocalList),
		protocol16.Register(r, ocpp16.ActionGetLocalListVersion, h.GetLocalListVersion),
	)
}

// publish 事件发布失败只记录日志，不影响应答
func (h *Handlers) publish(event events.Event) {
	if err := h.publisher.PublishEvent(event); err != nil {
		h.logger.GetLogger().Warn().Err(err).
			Str("event_type", string(event.GetType())).
			Str("charge_point_id", event.GetChargePointID()).
			Msg("failed to publish event")
	}
}

func (h *Handlers) warn(oc protocol16.Context, action ocpp16.Action, err error, msg string) {
	h.logger.GetLogger().Warn().Err(err).
		Str("charge_point_id", oc.ChargePointID).
		Str("message_id", oc.MessageID).
		Str("action", string(action)).
		Msg(msg)
}

func ciPtr[L ocpp16.Limit](s *ocpp16.CiString[L]) *string {
	if s == nil {
		return nil
	}
	v := s.String()
	return &v
}

func enumPtr[E ~string](e *E) *string {
	if e == nil {
		return nil
	}
	v := string(*e)
	return &v
}
