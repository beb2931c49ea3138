package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/storage"
)

var (
	// ErrAlreadyStopped 交易已结束
	ErrAlreadyStopped = errors.New("transaction already stopped")
	// ErrChargePointMismatch 交易不属于上报的充电桩
	ErrChargePointMismatch = errors.New("transaction belongs to another charge point")
)

// Manager 交易管理器
type Manager struct {
	store  storage.TransactionStore
	now    func() time.Time
	logger *logger.Logger
}

// NewManager 创建交易管理器
func NewManager(store storage.TransactionStore, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		store:  store,
		now:    time.Now,
		logger: log.WithComponent("transaction"),
	}
}

// StartTransaction 为每次调用分配新的交易ID并落库。
// 授权未通过的交易同样分配ID，由充电桩根据 idTagInfo 决定是否继续。
func (m *Manager) StartTransaction(ctx context.Context, chargePointID string, req *ocpp16.StartTransactionRequest, auth ocpp16.IdTagInfo) (*storage.TransactionRecord, error) {
	id, err := m.store.NextTransactionID(ctx)
	if err != nil {
		return nil, err
	}

	tx := &storage.TransactionRecord{
		ID:            id,
		ChargePointID: chargePointID,
		ConnectorID:   req.ConnectorId,
		IdTag:         req.IdTag.String(),
		MeterStart:    req.MeterStart,
		StartedAt:     req.Timestamp.UTC(),
		ReservationID: req.ReservationId,
		AuthStatus:    string(auth.Status),
	}
	if err := m.store.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("save transaction %d: %w", id, err)
	}

	m.logger.GetLogger().Info().
		Str("charge_point_id", chargePointID).
		Int("transaction_id", id).
		Int("connector_id", req.ConnectorId).
		Str("auth_status", tx.AuthStatus).
		Msg("transaction started")
	return tx, nil
}

// StopTransaction 结束交易并保存随附的电表数据
func (m *Manager) StopTransaction(ctx context.Context, chargePointID string, req *ocpp16.StopTransactionRequest) (*storage.TransactionRecord, error) {
	tx, err := m.store.GetTransaction(ctx, req.TransactionId)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", req.TransactionId, err)
	}
	if tx.ChargePointID != chargePointID {
		return nil, fmt.Errorf("transaction %d: %w", req.TransactionId, ErrChargePointMismatch)
	}
	if !tx.Active() {
		return tx, ErrAlreadyStopped
	}

	stoppedAt := req.Timestamp.UTC()
	meterStop := req.MeterStop
	tx.StoppedAt = &stoppedAt
	tx.MeterStop = &meterStop
	tx.StopReason = string(ocpp16.ReasonLocal)
	if req.Reason != nil {
		tx.StopReason = string(*req.Reason)
	}
	if req.IdTag != nil {
		tx.StopIdTag = req.IdTag.String()
	}

	if samples := ToSamples(req.TransactionData); len(samples) > 0 {
		if err := m.store.AppendMeterSamples(ctx, tx.ID, samples); err != nil {
			return nil, fmt.Errorf("append transaction data of %d: %w", tx.ID, err)
		}
	}
	if err := m.store.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("save transaction %d: %w", tx.ID, err)
	}

	m.logger.GetLogger().Info().
		Str("charge_point_id", chargePointID).
		Int("transaction_id", tx.ID).
		Int("energy_wh", meterStop-tx.MeterStart).
		Str("reason", tx.StopReason).
		Msg("transaction stopped")
	return tx, nil
}

// RecordMeterValues 保存与交易关联的采样值，未关联交易的采样只计数不落库
func (m *Manager) RecordMeterValues(ctx context.Context, chargePointID string, req *ocpp16.MeterValuesRequest) (int, error) {
	samples := ToSamples(req.MeterValue)
	if req.TransactionId == nil {
		return len(samples), nil
	}

	tx, err := m.store.GetTransaction(ctx, *req.TransactionId)
	if err != nil {
		return 0, fmt.Errorf("transaction %d: %w", *req.TransactionId, err)
	}
	if tx.ChargePointID != chargePointID {
		return 0, fmt.Errorf("transaction %d: %w", tx.ID, ErrChargePointMismatch)
	}
	if err := m.store.AppendMeterSamples(ctx, tx.ID, samples); err != nil {
		return 0, fmt.Errorf("append meter values of %d: %w", tx.ID, err)
	}
	return len(samples), nil
}

// GetTransaction 读取交易
func (m *Manager) GetTransaction(ctx context.Context, transactionID int) (*storage.TransactionRecord, error) {
	return m.store.GetTransaction(ctx, transactionID)
}

// ToSamples 展开为逐个采样，缺省的 measurand 取协议默认值
func ToSamples(values []ocpp16.MeterValue) []storage.MeterSample {
	var samples []storage.MeterSample
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			s := storage.MeterSample{
				Timestamp: mv.Timestamp.UTC(),
				Measurand: string(ocpp16.MeasurandEnergyActiveImportRegister),
				Value:     sv.Value,
			}
			if sv.Measurand != nil {
				s.Measurand = string(*sv.Measurand)
			}
			if sv.Unit != nil {
				s.Unit = string(*sv.Unit)
			}
			if sv.Phase != nil {
				s.Phase = string(*sv.Phase)
			}
			if sv.Context != nil {
				s.Context = string(*sv.Context)
			}
			samples = append(samples, s)
		}
	}
	return samples
}
