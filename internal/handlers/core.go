package handlers

import (
	"context"
	"errors"

	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
	"github.com/charging-platform/central-system/internal/storage"
)

// BootNotification 记录充电桩信息，返回注册状态、服务器时间与心跳间隔
func (h *Handlers) BootNotification(ctx context.Context, req *ocpp16.BootNotificationRequest, oc protocol16.Context) (*ocpp16.BootNotificationResponse, error) {
	reg, err := h.chargePoints.RegisterChargePoint(ctx, oc.ChargePointID, req)
	if err != nil {
		return nil, err
	}

	h.publish(h.events.CreateRegistrationEvent(oc.ChargePointID, oc.MessageID, events.ChargePointInfo{
		ID:                oc.ChargePointID,
		Vendor:            req.ChargePointVendor.String(),
		Model:             req.ChargePointModel.String(),
		SerialNumber:      ciPtr(req.ChargePointSerialNumber),
		FirmwareVersion:   ciPtr(req.FirmwareVersion),
		RegistrationState: string(reg.Status),
	}, reg.Status == ocpp16.RegistrationStatusAccepted))

	return &ocpp16.BootNotificationResponse{
		Status:      reg.Status,
		CurrentTime: ocpp16.NewDateTime(reg.At),
		Interval:    int(reg.Interval.Seconds()),
	}, nil
}

// Heartbeat 返回服务器时间。档案刷新失败只记录日志
func (h *Handlers) Heartbeat(ctx context.Context, req *ocpp16.HeartbeatRequest, oc protocol16.Context) (*ocpp16.HeartbeatResponse, error) {
	at, err := h.chargePoints.Heartbeat(ctx, oc.ChargePointID)
	if err != nil {
		h.warn(oc, ocpp16.ActionHeartbeat, err, "failed to record heartbeat")
	}
	h.publish(h.events.CreateHeartbeatEvent(oc.ChargePointID, oc.MessageID, at))
	return &ocpp16.HeartbeatResponse{CurrentTime: ocpp16.NewDateTime(at)}, nil
}

// Authorize 判定 idTag 授权状态
func (h *Handlers) Authorize(ctx context.Context, req *ocpp16.AuthorizeRequest, oc protocol16.Context) (*ocpp16.AuthorizeResponse, error) {
	decision, err := h.auth.Authorize(ctx, oc.ChargePointID, req.IdTag.String())
	if err != nil {
		return nil, err
	}
	h.publish(h.events.CreateAuthorizationEvent(oc.ChargePointID, oc.MessageID, events.AuthorizationInfo{
		IdTag:  req.IdTag.String(),
		Result: string(decision.Info.Status),
		Source: decision.Source,
	}))
	return &ocpp16.AuthorizeResponse{IdTagInfo: decision.Info}, nil
}

// StartTransaction 每次调用分配新的交易ID，授权结果随 idTagInfo 返回
func (h *Handlers) StartTransaction(ctx context.Context, req *ocpp16.StartTransactionRequest, oc protocol16.Context) (*ocpp16.StartTransactionResponse, error) {
	decision, err := h.auth.Authorize(ctx, oc.ChargePointID, req.IdTag.String())
	if err != nil {
		return nil, err
	}
	tx, err := h.transactions.StartTransaction(ctx, oc.ChargePointID, req, decision.Info)
	if err != nil {
		return nil, err
	}

	h.publish(h.events.CreateTransactionStartedEvent(oc.ChargePointID, oc.MessageID, events.TransactionInfo{
		ID:          tx.ID,
		ConnectorID: tx.ConnectorID,
		IdTag:       tx.IdTag,
		StartTime:   tx.StartedAt,
		MeterStart:  tx.MeterStart,
		AuthStatus:  tx.AuthStatus,
	}))
	return &ocpp16.StartTransactionResponse{IdTagInfo: decision.Info, TransactionId: tx.ID}, nil
}

// StopTransaction 结束交易。未知交易只记录日志，充电桩仍得到应答
func (h *Handlers) StopTransaction(ctx context.Context, req *ocpp16.StopTransactionRequest, oc protocol16.Context) (*ocpp16.StopTransactionResponse, error) {
	resp := &ocpp16.StopTransactionResponse{}
	if req.IdTag != nil {
		decision, err := h.auth.Authorize(ctx, oc.ChargePointID, req.IdTag.String())
		if err != nil {
			return nil, err
		}
		resp.IdTagInfo = &decision.Info
	}

	tx, err := h.transactions.StopTransaction(ctx, oc.ChargePointID, req)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, transaction.ErrAlreadyStopped), errors.Is(err, transaction.ErrChargePointMismatch):
		h.warn(oc, ocpp16.ActionStopTransaction, err, "stop for unknown or finished transaction")
		return resp, nil
	default:
		return nil, err
	}

	h.publish(h.events.CreateTransactionStoppedEvent(oc.ChargePointID, oc.MessageID, events.TransactionInfo{
		ID:          tx.ID,
		ConnectorID: tx.ConnectorID,
		IdTag:       tx.IdTag,
		StartTime:   tx.StartedAt,
		EndTime:     tx.StoppedAt,
		MeterStart:  tx.MeterStart,
		MeterStop:   tx.MeterStop,
		StopReason:  &tx.StopReason,
		AuthStatus:  tx.AuthStatus,
	}))
	return resp, nil
}

// StatusNotification 保存连接器状态，重复上报同一状态结果相同
func (h *Handlers) StatusNotification(ctx context.Context, req *ocpp16.StatusNotificationRequest, oc protocol16.Context) (*ocpp16.StatusNotificationResponse, error) {
	previous, err := h.chargePoints.UpdateConnectorStatus(ctx, oc.ChargePointID, req)
	if err != nil {
		return nil, err
	}

	info := events.ConnectorInfo{
		ID:              req.ConnectorId,
		Status:          string(req.Status),
		PreviousStatus:  previous,
		ErrorCode:       string(req.ErrorCode),
		Info:            ciPtr(req.Info),
		VendorErrorCode: ciPtr(req.VendorErrorCode),
	}
	if req.Timestamp != nil {
		info.Timestamp = req.Timestamp.Time
	}
	h.publish(h.events.CreateConnectorStatusChangedEvent(oc.ChargePointID, oc.MessageID, info))
	return &ocpp16.StatusNotificationResponse{}, nil
}

// MeterValues 保存采样值
func (h *Handlers) MeterValues(ctx context.Context, req *ocpp16.MeterValuesRequest, oc protocol16.Context) (*ocpp16.MeterValuesResponse, error) {
	if _, err := h.transactions.RecordMeterValues(ctx, oc.ChargePointID, req); err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, transaction.ErrChargePointMismatch) {
			return nil, err
		}
		h.warn(oc, ocpp16.ActionMeterValues, err, "meter values for unknown transaction")
	}

	info := events.MeterValuesInfo{ConnectorID: req.ConnectorId, TransactionID: req.TransactionId}
	for _, mv := range req.MeterValue {
		for _, sv := range mv.SampledValue {
			reading := events.MeterReading{
				Measurand: string(ocpp16.MeasurandEnergyActiveImportRegister),
				Value:     sv.Value,
				Unit:      enumPtr(sv.Unit),
				Phase:     enumPtr(sv.Phase),
				Context:   enumPtr(sv.Context),
				Timestamp: mv.Timestamp.Time,
			}
			if sv.Measurand != nil {
				reading.Measurand = string(*sv.Measurand)
			}
			info.Readings = append(info.Readings, reading)
		}
	}
	h.publish(h.events.CreateMeterValuesEvent(oc.ChargePointID, oc.MessageID, info))
	return &ocpp16.MeterValuesResponse{}, nil
}

// DataTransfer 未配置的厂商返回 UnknownVendorId
func (h *Handlers) DataTransfer(ctx context.Context, req *ocpp16.DataTransferRequest, oc protocol16.Context) (*ocpp16.DataTransferResponse, error) {
	status := ocpp16.DataTransferStatusUnknownVendorId
	if _, ok := h.vendors[req.VendorId.String()]; ok {
		status = ocpp16.DataTransferStatusAccepted
	}

	h.publish(h.events.CreateDataTransferEvent(oc.ChargePointID, oc.MessageID, events.DataTransferInfo{
		VendorID:  req.VendorId.String(),
		MessageID: ciPtr(req.MessageId),
		Data:      req.Data,
		Status:    string(status),
	}))
	return &ocpp16.DataTransferResponse{Status: status}, nil
}
