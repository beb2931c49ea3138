package chargepoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/storage"
)

// Manager 充电桩档案与连接器状态管理
type Manager struct {
	store  storage.ChargePointStore
	config *ManagerConfig

	// 同一充电桩的并发请求会读改写同一条档案，锁按充电桩划分
	locks sync.Map // map[string]*sync.Mutex

	now    func() time.Time
	logger *logger.Logger
}

// ManagerConfig 管理器配置
type ManagerConfig struct {
	// 下发给充电桩的心跳间隔
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	// BootNotification 返回的注册状态
	RegistrationStatus ocpp16.RegistrationStatus `json:"registration_status"`
}

// DefaultManagerConfig 默认管理器配置
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		HeartbeatInterval:  300 * time.Second, // 5分钟
		RegistrationStatus: ocpp16.RegistrationStatusAccepted,
	}
}

// Registration 一次 BootNotification 的处理结果
type Registration struct {
	Record   *storage.ChargePointRecord
	Status   ocpp16.RegistrationStatus
	Interval time.Duration
	At       time.Time
}

// NewManager 创建新的充电桩管理器
func NewManager(store storage.ChargePointStore, config *ManagerConfig, log *logger.Logger) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		store:  store,
		config: config,
		now:    time.Now,
		logger: log.WithComponent("chargepoint"),
	}
}

// RegisterChargePoint 记录启动通知中的厂商、型号与固件信息
func (m *Manager) RegisterChargePoint(ctx context.Context, chargePointID string, req *ocpp16.BootNotificationRequest) (*Registration, error) {
	defer m.lock(chargePointID)()

	now := m.now().UTC()
	record, err := m.store.GetChargePoint(ctx, chargePointID)
	if errors.Is(err, storage.ErrNotFound) {
		record = &storage.ChargePointRecord{ID: chargePointID}
	} else if err != nil {
		return nil, fmt.Errorf("load charge point %s: %w", chargePointID, err)
	}

	record.Vendor = req.ChargePointVendor.String()
	record.Model = req.ChargePointModel.String()
	record.SerialNumber = optional(req.ChargePointSerialNumber)
	if record.SerialNumber == "" {
		record.SerialNumber = optional(req.ChargeBoxSerialNumber)
	}
	record.FirmwareVersion = optional(req.FirmwareVersion)
	record.ICCID = optional(req.Iccid)
	record.IMSI = optional(req.Imsi)
	record.MeterType = optional(req.MeterType)
	record.MeterSerialNumber = optional(req.MeterSerialNumber)
	record.RegistrationStatus = string(m.config.RegistrationStatus)
	record.LastBootAt = now
	record.LastSeenAt = now

	if err := m.store.SaveChargePoint(ctx, record); err != nil {
		return nil, fmt.Errorf("save charge point %s: %w", chargePointID, err)
	}

	m.logger.GetLogger().Info().
		Str("charge_point_id", chargePointID).
		Str("vendor", record.Vendor).
		Str("model", record.Model).
		Str("status", record.RegistrationStatus).
		Msg("charge point registered")

	return &Registration{
		Record:   record,
		Status:   m.config.RegistrationStatus,
		Interval: m.config.HeartbeatInterval,
		At:       now,
	}, nil
}

// Heartbeat 刷新最近在线时间并返回服务器时间。
// 未注册的充电桩同样得到应答，只是不写档案。
func (m *Manager) Heartbeat(ctx context.Context, chargePointID string) (time.Time, error) {
	now := m.now().UTC()
	err := m.touch(ctx, chargePointID, func(r *storage.ChargePointRecord) {
		r.LastSeenAt = now
	})
	if errors.Is(err, storage.ErrNotFound) {
		m.logger.GetLogger().Debug().Str("charge_point_id", chargePointID).Msg("heartbeat from unregistered charge point")
		return now, nil
	}
	return now, err
}

// UpdateConnectorStatus 保存连接器状态，返回上一次的状态（首次上报为空）
func (m *Manager) UpdateConnectorStatus(ctx context.Context, chargePointID string, req *ocpp16.StatusNotificationRequest) (string, error) {
	defer m.lock(chargePointID)()

	previous := ""
	connectors, err := m.store.GetConnectors(ctx, chargePointID)
	if err != nil {
		return "", fmt.Errorf("load connectors of %s: %w", chargePointID, err)
	}
	for _, c := range connectors {
		if c.ConnectorID == req.ConnectorId {
			previous = c.Status
			break
		}
	}

	timestamp := m.now().UTC()
	if req.Timestamp != nil {
		timestamp = req.Timestamp.UTC()
	}
	record := &storage.ConnectorRecord{
		ConnectorID:     req.ConnectorId,
		Status:          string(req.Status),
		ErrorCode:       string(req.ErrorCode),
		Info:            optional(req.Info),
		VendorID:        optional(req.VendorId),
		VendorErrorCode: optional(req.VendorErrorCode),
		Timestamp:       timestamp,
	}
	if err := m.store.SetConnectorStatus(ctx, chargePointID, record); err != nil {
		return "", fmt.Errorf("save connector %d of %s: %w", req.ConnectorId, chargePointID, err)
	}
	return previous, nil
}

// RecordFirmwareStatus 保存固件升级状态
func (m *Manager) RecordFirmwareStatus(ctx context.Context, chargePointID string, status ocpp16.FirmwareStatus) error {
	return m.touch(ctx, chargePointID, func(r *storage.ChargePointRecord) {
		r.FirmwareStatus = string(status)
	})
}

// RecordDiagnosticsStatus 保存诊断上传状态
func (m *Manager) RecordDiagnosticsStatus(ctx context.Context, chargePointID string, status ocpp16.DiagnosticsStatus) error {
	return m.touch(ctx, chargePointID, func(r *storage.ChargePointRecord) {
		r.DiagnosticsStatus = string(status)
	})
}

// GetChargePoint 读取充电桩档案
func (m *Manager) GetChargePoint(ctx context.Context, chargePointID string) (*storage.ChargePointRecord, error) {
	return m.store.GetChargePoint(ctx, chargePointID)
}

// GetConnectors 读取连接器状态
func (m *Manager) GetConnectors(ctx context.Context, chargePointID string) ([]storage.ConnectorRecord, error) {
	return m.store.GetConnectors(ctx, chargePointID)
}

// HeartbeatInterval 下发给充电桩的心跳间隔
func (m *Manager) HeartbeatInterval() time.Duration {
	return m.config.HeartbeatInterval
}

func (m *Manager) touch(ctx context.Context, chargePointID string, update func(*storage.ChargePointRecord)) error {
	defer m.lock(chargePointID)()

	record, err := m.store.GetChargePoint(ctx, chargePointID)
	if err != nil {
		return err
	}
	update(record)
	return m.store.SaveChargePoint(ctx, record)
}

// lock 锁住单个充电桩的档案，返回解锁函数
func (m *Manager) lock(chargePointID string) func() {
	v, _ := m.locks.LoadOrStore(chargePointID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func optional[L ocpp16.Limit](s *ocpp16.CiString[L]) string {
	if s == nil {
		return ""
	}
	return s.String()
}
