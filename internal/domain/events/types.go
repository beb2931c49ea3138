package events

import (
	"encoding/json"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// 充电桩生命周期事件
	EventTypeChargePointConnected    EventType = "charge_point.connected"
	EventTypeChargePointDisconnected EventType = "charge_point.disconnected"
	EventTypeChargePointRegistered   EventType = "charge_point.registered"
	EventTypeChargePointRejected     EventType = "charge_point.rejected"
	EventTypeChargePointHeartbeat    EventType = "charge_point.heartbeat"

	// 连接器状态事件
	EventTypeConnectorStatusChanged EventType = "connector.status_changed"

	// 交易事件
	EventTypeTransactionStarted EventType = "transaction.started"
	EventTypeTransactionStopped EventType = "transaction.stopped"

	// 授权事件
	EventTypeAuthorizationRequested EventType = "authorization.requested"
	EventTypeLocalListUpdated       EventType = "authorization.local_list_updated"

	// 电表数据事件
	EventTypeMeterValuesReceived EventType = "meter_values.received"

	// 远程指令事件
	EventTypeRemoteCommandExecuted EventType = "remote_command.executed"
	EventTypeRemoteCommandFailed   EventType = "remote_command.failed"

	// 固件和诊断事件
	EventTypeFirmwareStatusChanged    EventType = "firmware.status_changed"
	EventTypeDiagnosticsStatusChanged EventType = "diagnostics.status_changed"

	// 数据传输事件
	EventTypeDataTransferReceived EventType = "data_transfer.received"
)

// EventSeverity 事件严重程度
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
)

// Metadata 事件元数据
type Metadata struct {
	Source        string `json:"source"`
	PodID         string `json:"pod_id,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ConnectionInfo 连接信息
type ConnectionInfo struct {
	RemoteAddress string    `json:"remote_address"`
	Subprotocol   string    `json:"subprotocol"`
	At            time.Time `json:"at"`
	Reason        string    `json:"reason,omitempty"`
}

// ChargePointInfo 充电桩注册信息
type ChargePointInfo struct {
	ID                string  `json:"id"`
	Vendor            string  `json:"vendor"`
	Model             string  `json:"model"`
	SerialNumber      *string `json:"serial_number,omitempty"`
	FirmwareVersion   *string `json:"firmware_version,omitempty"`
	RegistrationState string  `json:"registration_status"`
}

// ConnectorInfo 连接器状态信息
type ConnectorInfo struct {
	ID              int       `json:"id"`
	Status          string    `json:"status"`
	PreviousStatus  string    `json:"previous_status,omitempty"`
	ErrorCode       string    `json:"error_code"`
	Info            *string   `json:"info,omitempty"`
	VendorErrorCode *string   `json:"vendor_error_code,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// TransactionInfo 交易信息
type TransactionInfo struct {
	ID          int        `json:"id"`
	ConnectorID int        `json:"connector_id"`
	IdTag       string     `json:"id_tag"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	MeterStart  int        `json:"meter_start"`
	MeterStop   *int       `json:"meter_stop,omitempty"`
	StopReason  *string    `json:"stop_reason,omitempty"`
	AuthStatus  string     `json:"auth_status"`
}

// MeterReading 单个采样
type MeterReading struct {
	Measurand string    `json:"measurand"`
	Value     string    `json:"value"`
	Unit      *string   `json:"unit,omitempty"`
	Phase     *string   `json:"phase,omitempty"`
	Context   *string   `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MeterValuesInfo 电表数据
type MeterValuesInfo struct {
	ConnectorID   int            `json:"connector_id"`
	TransactionID *int           `json:"transaction_id,omitempty"`
	Readings      []MeterReading `json:"readings"`
}

// AuthorizationInfo 授权结果
type AuthorizationInfo struct {
	IdTag  string `json:"id_tag"`
	Result string `json:"result"`
	Source string `json:"source"`
}

// LocalListInfo 本地授权列表变更
type LocalListInfo struct {
	Version    int    `json:"version"`
	UpdateType string `json:"update_type"`
	Entries    int    `json:"entries"`
}

// StatusInfo 固件/诊断状态
type StatusInfo struct {
	Status string `json:"status"`
}

// DataTransferInfo 厂商数据
type DataTransferInfo struct {
	VendorID  string  `json:"vendor_id"`
	MessageID *string `json:"message_id,omitempty"`
	Data      *string `json:"data,omitempty"`
	Status    string  `json:"status"`
}

// CommandResult 远程指令执行结果
type CommandResult struct {
	CommandID string          `json:"command_id"`
	Action    string          `json:"action"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Duration  time.Duration   `json:"duration_ns"`
}
