package handlers

import (
	"context"
	"errors"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
	"github.com/charging-platform/central-system/internal/storage"
)

func (h *Handlers) FirmwareStatusNotification(ctx context.Context, req *ocpp16.FirmwareStatusNotificationRequest, oc protocol16.Context) (*ocpp16.FirmwareStatusNotificationResponse, error) {
	if err := h.chargePoints.RecordFirmwareStatus(ctx, oc.ChargePointID, req.Status); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		h.warn(oc, ocpp16.ActionFirmwareStatusNotification, err, "firmware status from unregistered charge point")
	}
	h.publish(h.events.CreateFirmwareStatusEvent(oc.ChargePointID, oc.MessageID, events.StatusInfo{Status: string(req.Status)}))
	return &ocpp16.FirmwareStatusNotificationResponse{}, nil
}

func (h *Handlers) DiagnosticsStatusNotification(ctx context.Context, req *ocpp16.DiagnosticsStatusNotificationRequest, oc protocol16.Context) (*ocpp16.DiagnosticsStatusNotificationResponse, error) {
	if err := h.chargePoints.RecordDiagnosticsStatus(ctx, oc.ChargePointID, req.Status); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		h.warn(oc, ocpp16.ActionDiagnosticsStatusNotification, err, "diagnostics status from unregistered charge point")
	}
	h.publish(h.events.CreateDiagnosticsStatusEvent(oc.ChargePointID, oc.MessageID, events.StatusInfo{Status: string(req.Status)}))
	return &ocpp16.DiagnosticsStatusNotificationResponse{}, nil
}
