package ocpp16

// 载荷约定：json标签不带 omitempty 的字段为必填字段，
// 数值字段的零值是合法取值，因此只用 gte/gt 约束范围。

// IdTagInfo ID标签授权信息
type IdTagInfo struct {
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag *CiString20         `json:"parentIdTag,omitempty"`
	Status      AuthorizationStatus `json:"status" validate:"enum"`
}

// MeterValue 一个时间点的采样集合
type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue" validate:"min=1,dive"`
}

// SampledValue 采样值
type SampledValue struct {
	Value     string          `json:"value"`
	Context   *ReadingContext `json:"context,omitempty" validate:"omitempty,enum"`
	Format    *ValueFormat    `json:"format,omitempty" validate:"omitempty,enum"`
	Measurand *Measurand      `json:"measurand,omitempty" validate:"omitempty,enum"`
	Phase     *Phase          `json:"phase,omitempty" validate:"omitempty,enum"`
	Location  *Location       `json:"location,omitempty" validate:"omitempty,enum"`
	Unit      *UnitOfMeasure  `json:"unit,omitempty" validate:"omitempty,enum"`
}

// AuthorizationData 本地授权列表条目，缺少 IdTagInfo 表示删除
type AuthorizationData struct {
	IdTag     CiString20 `json:"idTag"`
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// AuthorizeRequest 授权请求
type AuthorizeRequest struct {
	IdTag CiString20 `json:"idTag"`
}

// AuthorizeResponse 授权响应
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	ChargePointVendor       CiString20  `json:"chargePointVendor"`
	ChargePointModel        CiString20  `json:"chargePointModel"`
	ChargePointSerialNumber *CiString25 `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   *CiString25 `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         *CiString50 `json:"firmwareVersion,omitempty"`
	Iccid                   *CiString20 `json:"iccid,omitempty"`
	Imsi                    *CiString20 `json:"imsi,omitempty"`
	MeterType               *CiString25 `json:"meterType,omitempty"`
	MeterSerialNumber       *CiString25 `json:"meterSerialNumber,omitempty"`
}

// BootNotificationResponse 启动通知响应
type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status" validate:"enum"`
	CurrentTime DateTime           `json:"currentTime"`
	Interval    int                `json:"interval" validate:"gte=0"`
}

// DataTransferRequest 厂商自定义数据传输请求
type DataTransferRequest struct {
	VendorId  CiString255 `json:"vendorId"`
	MessageId *CiString50 `json:"messageId,omitempty"`
	Data      *string     `json:"data,omitempty"`
}

// DataTransferResponse 数据传输响应
type DataTransferResponse struct {
	Status DataTransferStatus `json:"status" validate:"enum"`
	Data   *string            `json:"data,omitempty"`
}

// DiagnosticsStatusNotificationRequest 诊断状态通知请求
type DiagnosticsStatusNotificationRequest struct {
	Status DiagnosticsStatus `json:"status" validate:"enum"`
}

// DiagnosticsStatusNotificationResponse 诊断状态通知响应
type DiagnosticsStatusNotificationResponse struct{}

// FirmwareStatusNotificationRequest 固件状态通知请求
type FirmwareStatusNotificationRequest struct {
	Status FirmwareStatus `json:"status" validate:"enum"`
}

// FirmwareStatusNotificationResponse 固件状态通知响应
type FirmwareStatusNotificationResponse struct{}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct{}

// HeartbeatResponse 心跳响应
type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime"`
}

// MeterValuesRequest 电表值上报请求
type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId" validate:"gte=0"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" validate:"min=1,dive"`
}

// MeterValuesResponse 电表值上报响应
type MeterValuesResponse struct{}

// StartTransactionRequest 开始交易请求
type StartTransactionRequest struct {
	ConnectorId   int        `json:"connectorId" validate:"gt=0"`
	IdTag         CiString20 `json:"idTag"`
	MeterStart    int        `json:"meterStart" validate:"gte=0"`
	ReservationId *int       `json:"reservationId,omitempty"`
	Timestamp     DateTime   `json:"timestamp"`
}

// StartTransactionResponse 开始交易响应
type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
	TransactionId int       `json:"transactionId"`
}

// StatusNotificationRequest 状态通知请求
type StatusNotificationRequest struct {
	ConnectorId     int                  `json:"connectorId" validate:"gte=0"`
	ErrorCode       ChargePointErrorCode `json:"errorCode" validate:"enum"`
	Info            *CiString50          `json:"info,omitempty"`
	Status          ChargePointStatus    `json:"status" validate:"enum"`
	Timestamp       *DateTime            `json:"timestamp,omitempty"`
	VendorId        *CiString255         `json:"vendorId,omitempty"`
	VendorErrorCode *CiString50          `json:"vendorErrorCode,omitempty"`
}

// StatusNotificationResponse 状态通知响应
type StatusNotificationResponse struct{}

// StopTransactionRequest 停止交易请求
type StopTransactionRequest struct {
	IdTag           *CiString20  `json:"idTag,omitempty"`
	MeterStop       int          `json:"meterStop" validate:"gte=0"`
	Timestamp       DateTime     `json:"timestamp"`
	TransactionId   int          `json:"transactionId"`
	Reason          *Reason      `json:"reason,omitempty" validate:"omitempty,enum"`
	TransactionData []MeterValue `json:"transactionData,omitempty" validate:"omitempty,dive"`
}

// StopTransactionResponse 停止交易响应
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// SendLocalListRequest 下发本地授权列表请求
type SendLocalListRequest struct {
	ListVersion            int                 `json:"listVersion" validate:"gte=0"`
	LocalAuthorizationList []AuthorizationData `json:"localAuthorizationList,omitempty" validate:"omitempty,dive"`
	UpdateType             UpdateType          `json:"updateType" validate:"enum"`
}

// SendLocalListResponse 下发本地授权列表响应
type SendLocalListResponse struct {
	Status UpdateStatus `json:"status" validate:"enum"`
}

// GetLocalListVersionRequest 查询本地授权列表版本请求
type GetLocalListVersionRequest struct{}

// GetLocalListVersionResponse 查询本地授权列表版本响应
type GetLocalListVersionResponse struct {
	ListVersion int `json:"listVersion"`
}

// ResetRequest 重置请求（中心系统发起）
type ResetRequest struct {
	Type ResetType `json:"type" validate:"enum"`
}

// ResetResponse 重置响应
type ResetResponse struct {
	Status ResetStatus `json:"status" validate:"enum"`
}

// ChangeAvailabilityRequest 变更可用性请求（中心系统发起）
type ChangeAvailabilityRequest struct {
	ConnectorId int              `json:"connectorId" validate:"gte=0"`
	Type        AvailabilityType `json:"type" validate:"enum"`
}

// ChangeAvailabilityResponse 变更可用性响应
type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status" validate:"enum"`
}
