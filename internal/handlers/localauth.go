package handlers

import (
	"context"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
)

// SendLocalList 应用本地授权列表更新
func (h *Handlers) SendLocalList(ctx context.Context, req *ocpp16.SendLocalListRequest, oc protocol16.Context) (*ocpp16.SendLocalListResponse, error) {
	status, err := h.auth.Apply(ctx, oc.ChargePointID, req)
	if err != nil {
		return nil, err
	}
	if status == ocpp16.UpdateStatusAccepted {
		h.publish(h.events.CreateLocalListUpdatedEvent(oc.ChargePointID, oc.MessageID, events.LocalListInfo{
			Version:    req.ListVersion,
			UpdateType: string(req.UpdateType),
			Entries:    len(req.LocalAuthorizationList),
		}))
	}
	return &ocpp16.SendLocalListResponse{Status: status}, nil
}

// GetLocalListVersion 返回当前列表版本
func (h *Handlers) GetLocalListVersion(ctx context.Context, req *ocpp16.GetLocalListVersionRequest, oc protocol16.Context) (*ocpp16.GetLocalListVersionResponse, error) {
	version, err := h.auth.Version(ctx, oc.ChargePointID)
	if err != nil {
		return nil, err
	}
	return &ocpp16.GetLocalListVersionResponse{ListVersion: version}, nil
}
