package localauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/storage"
)

// 授权结果来源
const (
	SourceLocalList = "local_list"
	SourceCentral   = "central"
	SourceDefault   = "default"
)

// ManagerConfig 授权配置
type ManagerConfig struct {
	// AcceptUnknown 未登记的 idTag 视为 Accepted
	AcceptUnknown bool `json:"accept_unknown"`
}

// Decision 一次授权判定
type Decision struct {
	Info   ocpp16.IdTagInfo
	Source string
}

// Manager 本地授权列表与 idTag 授权
type Manager struct {
	lists  storage.LocalListStore
	tags   storage.IdTagStore
	config *ManagerConfig
	now    func() time.Time
	logger *logger.Logger
}

// NewManager 创建授权管理器
func NewManager(lists storage.LocalListStore, tags storage.IdTagStore, config *ManagerConfig, log *logger.Logger) *Manager {
	if config == nil {
		config = &ManagerConfig{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		lists:  lists,
		tags:   tags,
		config: config,
		now:    time.Now,
		logger: log.WithComponent("localauth"),
	}
}

// Version 当前本地列表版本，未下发过为0
func (m *Manager) Version(ctx context.Context, chargePointID string) (int, error) {
	return m.lists.GetLocalListVersion(ctx, chargePointID)
}

// Apply 应用一次 SendLocalList。
// 列表内 idTag 重复或 Full 更新缺少 idTagInfo 返回 Failed；
// Differential 更新的版本不大于当前版本返回 VersionMismatch。
func (m *Manager) Apply(ctx context.Context, chargePointID string, req *ocpp16.SendLocalListRequest) (ocpp16.UpdateStatus, error) {
	seen := make(map[string]struct{}, len(req.LocalAuthorizationList))
	for _, entry := range req.LocalAuthorizationList {
		key := entry.IdTag.Key()
		if _, dup := seen[key]; dup {
			m.logger.GetLogger().Warn().Str("charge_point_id", chargePointID).Str("id_tag", entry.IdTag.String()).Msg("duplicate idTag in local list")
			return ocpp16.UpdateStatusFailed, nil
		}
		seen[key] = struct{}{}
	}

	switch req.UpdateType {
	case ocpp16.UpdateTypeFull:
		records := make([]storage.IdTagRecord, 0, len(req.LocalAuthorizationList))
		for _, entry := range req.LocalAuthorizationList {
			if entry.IdTagInfo == nil {
				return ocpp16.UpdateStatusFailed, nil
			}
			records = append(records, toRecord(entry.IdTag.String(), entry.IdTagInfo))
		}
		if err := m.lists.ReplaceLocalList(ctx, chargePointID, req.ListVersion, records); err != nil {
			return "", fmt.Errorf("replace local list of %s: %w", chargePointID, err)
		}

	case ocpp16.UpdateTypeDifferential:
		current, err := m.lists.GetLocalListVersion(ctx, chargePointID)
		if err != nil {
			return "", fmt.Errorf("local list version of %s: %w", chargePointID, err)
		}
		if req.ListVersion <= current {
			return ocpp16.UpdateStatusVersionMismatch, nil
		}
		var upserts []storage.IdTagRecord
		var removals []string
		for _, entry := range req.LocalAuthorizationList {
			if entry.IdTagInfo == nil {
				removals = append(removals, entry.IdTag.String())
				continue
			}
			upserts = append(upserts, toRecord(entry.IdTag.String(), entry.IdTagInfo))
		}
		if err := m.lists.UpdateLocalList(ctx, chargePointID, req.ListVersion, upserts, removals); err != nil {
			return "", fmt.Errorf("update local list of %s: %w", chargePointID, err)
		}

	default:
		return ocpp16.UpdateStatusNotSupported, nil
	}

	m.logger.GetLogger().Info().
		Str("charge_point_id", chargePointID).
		Int("version", req.ListVersion).
		Str("update_type", string(req.UpdateType)).
		Int("entries", len(req.LocalAuthorizationList)).
		Msg("local list applied")
	return ocpp16.UpdateStatusAccepted, nil
}

// Authorize 依次查本地列表、中心授权数据，都未命中时按配置处理
func (m *Manager) Authorize(ctx context.Context, chargePointID, idTag string) (*Decision, error) {
	entry, err := m.lists.GetLocalListEntry(ctx, chargePointID, idTag)
	switch {
	case err == nil:
		return &Decision{Info: m.toInfo(entry), Source: SourceLocalList}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("local list lookup: %w", err)
	}

	tag, err := m.tags.GetIdTag(ctx, idTag)
	switch {
	case err == nil:
		return &Decision{Info: m.toInfo(tag), Source: SourceCentral}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("id tag lookup: %w", err)
	}

	status := ocpp16.AuthorizationStatusInvalid
	if m.config.AcceptUnknown {
		status = ocpp16.AuthorizationStatusAccepted
	}
	return &Decision{Info: ocpp16.IdTagInfo{Status: status}, Source: SourceDefault}, nil
}

// toInfo 过期的 Accepted 记录降级为 Expired，存储中的非法状态视为 Invalid
func (m *Manager) toInfo(r *storage.IdTagRecord) ocpp16.IdTagInfo {
	status, err := ocpp16.ParseEnum[ocpp16.AuthorizationStatus](r.Status)
	if err != nil {
		status = ocpp16.AuthorizationStatusInvalid
	}
	info := ocpp16.IdTagInfo{Status: status}
	if r.ExpiryDate != nil {
		expiry := ocpp16.NewDateTime(*r.ExpiryDate)
		info.ExpiryDate = &expiry
		if status == ocpp16.AuthorizationStatusAccepted && m.now().After(*r.ExpiryDate) {
			info.Status = ocpp16.AuthorizationStatusExpired
		}
	}
	if r.ParentIdTag != "" {
		if parent, err := ocpp16.NewCiString[ocpp16.Len20](r.ParentIdTag); err == nil {
			info.ParentIdTag = &parent
		}
	}
	return info
}

func toRecord(idTag string, info *ocpp16.IdTagInfo) storage.IdTagRecord {
	r := storage.IdTagRecord{IdTag: idTag, Status: string(info.Status)}
	if info.ExpiryDate != nil {
		expiry := info.ExpiryDate.UTC()
		r.ExpiryDate = &expiry
	}
	if info.ParentIdTag != nil {
		r.ParentIdTag = info.ParentIdTag.String()
	}
	return r
}
