package storage

import (
	"strings"
	"time"
)

// ChargePointRecord 充电桩档案
type ChargePointRecord struct {
	ID                 string    `json:"id"`
	Vendor             string    `json:"vendor"`
	Model              string    `json:"model"`
	SerialNumber       string    `json:"serialNumber,omitempty"`
	FirmwareVersion    string    `json:"firmwareVersion,omitempty"`
	ICCID              string    `json:"iccid,omitempty"`
	IMSI               string    `json:"imsi,omitempty"`
	MeterType          string    `json:"meterType,omitempty"`
	MeterSerialNumber  string    `json:"meterSerialNumber,omitempty"`
	RegistrationStatus string    `json:"registrationStatus"`
	FirmwareStatus     string    `json:"firmwareStatus,omitempty"`
	DiagnosticsStatus  string    `json:"diagnosticsStatus,omitempty"`
	LastBootAt         time.Time `json:"lastBootAt"`
	LastSeenAt         time.Time `json:"lastSeenAt"`
}

// ConnectorRecord 连接器最近一次上报的状态
type ConnectorRecord struct {
	ConnectorID     int       `json:"connectorId"`
	Status          string    `json:"status"`
	ErrorCode       string    `json:"errorCode"`
	Info            string    `json:"info,omitempty"`
	VendorID        string    `json:"vendorId,omitempty"`
	VendorErrorCode string    `json:"vendorErrorCode,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// TransactionRecord 交易记录
type TransactionRecord struct {
	ID            int        `json:"id"`
	ChargePointID string     `json:"chargePointId"`
	ConnectorID   int        `json:"connectorId"`
	IdTag         string     `json:"idTag"`
	MeterStart    int        `json:"meterStart"`
	StartedAt     time.Time  `json:"startedAt"`
	ReservationID *int       `json:"reservationId,omitempty"`
	AuthStatus    string     `json:"authStatus"`
	MeterStop     *int       `json:"meterStop,omitempty"`
	StoppedAt     *time.Time `json:"stoppedAt,omitempty"`
	StopReason    string     `json:"stopReason,omitempty"`
	StopIdTag     string     `json:"stopIdTag,omitempty"`
}

// Active 交易是否仍在进行
func (t *TransactionRecord) Active() bool {
	return t.StoppedAt == nil
}

// MeterSample 单个采样值
type MeterSample struct {
	Timestamp time.Time `json:"timestamp"`
	Measurand string    `json:"measurand"`
	Value     string    `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Context   string    `json:"context,omitempty"`
}

// IdTagRecord 授权标识及其状态，中心授权数据与本地列表条目共用
type IdTagRecord struct {
	IdTag       string     `json:"idTag"`
	Status      string     `json:"status"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"`
	ParentIdTag string     `json:"parentIdTag,omitempty"`
}

// tagKey idTag大小写不敏感
func tagKey(idTag string) string {
	return strings.ToLower(idTag)
}
