package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event 统一业务事件接口
type Event interface {
	// GetID 获取事件ID
	GetID() string
	// GetType 获取事件类型
	GetType() EventType
	// GetChargePointID 获取充电桩ID
	GetChargePointID() string
	// GetTimestamp 获取事件时间戳
	GetTimestamp() time.Time
	// GetSeverity 获取事件严重程度
	GetSeverity() EventSeverity
	// GetMetadata 获取事件元数据
	GetMetadata() Metadata
	// GetPayload 获取事件载荷
	GetPayload() interface{}
	// ToJSON 序列化为JSON
	ToJSON() ([]byte, error)
}

// Publisher 事件发布者，业务层只依赖此接口
type Publisher interface {
	PublishEvent(event Event) error
}

// PublisherFunc 函数适配器
type PublisherFunc func(event Event) error

func (f PublisherFunc) PublishEvent(event Event) error { return f(event) }

// NopPublisher 丢弃所有事件
var NopPublisher Publisher = PublisherFunc(func(Event) error { return nil })

// BaseEvent 基础事件结构
type BaseEvent struct {
	ID            string        `json:"id"`
	Type          EventType     `json:"type"`
	ChargePointID string        `json:"charge_point_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Severity      EventSeverity `json:"severity"`
	Metadata      Metadata      `json:"metadata"`
}

func (e *BaseEvent) GetID() string              { return e.ID }
func (e *BaseEvent) GetType() EventType         { return e.Type }
func (e *BaseEvent) GetChargePointID() string   { return e.ChargePointID }
func (e *BaseEvent) GetTimestamp() time.Time    { return e.Timestamp }
func (e *BaseEvent) GetSeverity() EventSeverity { return e.Severity }
func (e *BaseEvent) GetMetadata() Metadata      { return e.Metadata }

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType EventType, chargePointID string, severity EventSeverity, metadata Metadata) *BaseEvent {
	return &BaseEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		ChargePointID: chargePointID,
		Timestamp:     time.Now().UTC(),
		Severity:      severity,
		Metadata:      metadata,
	}
}

// PayloadEvent 携带类型化载荷的事件
type PayloadEvent[P any] struct {
	*BaseEvent
	Payload P `json:"payload"`
}

// GetPayload 实现Event接口
func (e *PayloadEvent[P]) GetPayload() interface{} {
	return e.Payload
}

// ToJSON 实现Event接口
func (e *PayloadEvent[P]) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func newPayloadEvent[P any](eventType EventType, chargePointID string, severity EventSeverity, metadata Metadata, payload P) *PayloadEvent[P] {
	return &PayloadEvent[P]{
		BaseEvent: NewBaseEvent(eventType, chargePointID, severity, metadata),
		Payload:   payload,
	}
}

// EventFactory 事件工厂，统一填充来源元数据
type EventFactory struct {
	source string
	podID  string
}

// NewEventFactory 创建事件工厂
func NewEventFactory(source, podID string) *EventFactory {
	return &EventFactory{source: source, podID: podID}
}

func (f *EventFactory) metadata(messageID string) Metadata {
	return Metadata{Source: f.source, PodID: f.podID, MessageID: messageID}
}

func (f *EventFactory) CreateConnectedEvent(chargePointID string, info ConnectionInfo) Event {
	return newPayloadEvent(EventTypeChargePointConnected, chargePointID, EventSeverityInfo, f.metadata(""), info)
}

func (f *EventFactory) CreateDisconnectedEvent(chargePointID string, info ConnectionInfo) Event {
	return newPayloadEvent(EventTypeChargePointDisconnected, chargePointID, EventSeverityWarning, f.metadata(""), info)
}

// CreateRegistrationEvent 根据注册结果生成 registered 或 rejected 事件
func (f *EventFactory) CreateRegistrationEvent(chargePointID, messageID string, info ChargePointInfo, accepted bool) Event {
	if accepted {
		return newPayloadEvent(EventTypeChargePointRegistered, chargePointID, EventSeverityInfo, f.metadata(messageID), info)
	}
	return newPayloadEvent(EventTypeChargePointRejected, chargePointID, EventSeverityWarning, f.metadata(messageID), info)
}

func (f *EventFactory) CreateHeartbeatEvent(chargePointID, messageID string, at time.Time) Event {
	return newPayloadEvent(EventTypeChargePointHeartbeat, chargePointID, EventSeverityInfo, f.metadata(messageID), at)
}

func (f *EventFactory) CreateConnectorStatusChangedEvent(chargePointID, messageID string, info ConnectorInfo) Event {
	severity := EventSeverityInfo
	if info.Status == "Faulted" {
		severity = EventSeverityError
	}
	return newPayloadEvent(EventTypeConnectorStatusChanged, chargePointID, severity, f.metadata(messageID), info)
}

func (f *EventFactory) CreateTransactionStartedEvent(chargePointID, messageID string, info TransactionInfo) Event {
	return newPayloadEvent(EventTypeTransactionStarted, chargePointID, EventSeverityInfo, f.metadata(messageID), info)
}

func (f *EventFactory) CreateTransactionStoppedEvent(chargePointID, messageID string, info TransactionInfo) Event {
	return newPayloadEvent(EventTypeTransactionStopped, chargePointID, EventSeverityInfo, f.metadata(messageID), info)
}

func (f *EventFactory) CreateMeterValuesEvent(chargePointID, messageID string, info MeterValuesInfo) Event {
	return newPayloadEvent(EventTypeMeterValuesReceived, chargePointID, EventSeverityInfo, f.metadata(messageID), info)
}

func (f *EventFactory) CreateAuthorizationEvent(chargePointID, messageID string, info AuthorizationInfo) Event {
	return newPayloadEvent(EventTypeAuthorizationRequested, chargePointID, EventSeverityInfo, f.metadata(messageID), info)
}

func (f *EventFactory) CreateLocalListUpdatedEvent(chargePointID, messageID string, info LocalListInfo) Event {
	return newPayloadEvent(EventTypeLocalListUpdated, chargePointID, EventSeverityInfo, f.metadata(messageID), info)
}

func (f *EventFactory) CreateFirmwareStatusEvent(chargePointID, messageID string, info StatusInfo) Event {
	return newPayloadEvent(EventTypeFirmwareStatusChanged, chargePointID, EventSeverityInfo, f.metadata(messageID), info)
}

func (f *EventFactory) CreateDiagnosticsStatusEvent(chargePointID, messageID string, info StatusInfo) Event {
	return newPayloadEvent(EventTypeDiagnosticsStatusChanged, chargePointID, EventSeverityInfo, f.metadata(messageID), info)
}

func (f *EventFactory) CreateDataTransferEvent(chargePointID, messageID string, info DataTransferInfo) Event {
	return newPayloadEvent(EventTypeDataTransferReceived, chargePointID, EventSeverityInfo, f.metadata(messageID), info)
}

// CreateCommandResultEvent 远程指令结果，result.Error 非空时为 failed 事件
func (f *EventFactory) CreateCommandResultEvent(chargePointID string, result CommandResult) Event {
	md := f.metadata("")
	md.CorrelationID = result.CommandID
	if result.Error != "" {
		return newPayloadEvent(EventTypeRemoteCommandFailed, chargePointID, EventSeverityError, md, result)
	}
	return newPayloadEvent(EventTypeRemoteCommandExecuted, chargePointID, EventSeverityInfo, md, result)
}
