package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("storage: record not found")

// ConnectionStorage 定义了管理充电桩连接映射的接口
type ConnectionStorage interface {
	// SetConnection 注册或更新一个充电桩的连接信息
	// chargePointID: 充电桩的唯一标识
	// podID: 当前持有该连接的中心系统实例标识
	// ttl: 键的过期时间，用于自动清理僵尸连接
	SetConnection(ctx context.Context, chargePointID string, podID string, ttl time.Duration) error

	// GetConnection 获取指定充电桩当前连接的实例ID，不存在时返回 ErrNotFound
	GetConnection(ctx context.Context, chargePointID string) (string, error)

	// DeleteConnection 删除一个充电桩的连接信息（例如，充电桩正常断连时）
	DeleteConnection(ctx context.Context, chargePointID string) error
}

// ChargePointStore 充电桩及连接器状态
type ChargePointStore interface {
	SaveChargePoint(ctx context.Context, cp *ChargePointRecord) error
	// GetChargePoint 不存在时返回 ErrNotFound
	GetChargePoint(ctx context.Context, chargePointID string) (*ChargePointRecord, error)
	SetConnectorStatus(ctx context.Context, chargePointID string, connector *ConnectorRecord) error
	// GetConnectors 按连接器ID升序返回
	GetConnectors(ctx context.Context, chargePointID string) ([]ConnectorRecord, error)
}

// TransactionStore 交易记录
type TransactionStore interface {
	// NextTransactionID 分配一个全局唯一、单调递增的交易ID
	NextTransactionID(ctx context.Context) (int, error)
	SaveTransaction(ctx context.Context, tx *TransactionRecord) error
	// GetTransaction 不存在时返回 ErrNotFound
	GetTransaction(ctx context.Context, transactionID int) (*TransactionRecord, error)
	AppendMeterSamples(ctx context.Context, transactionID int, samples []MeterSample) error
	GetMeterSamples(ctx context.Context, transactionID int) ([]MeterSample, error)
}

// IdTagStore 中心授权数据
type IdTagStore interface {
	SaveIdTag(ctx context.Context, tag *IdTagRecord) error
	// GetIdTag 大小写不敏感，不存在时返回 ErrNotFound
	GetIdTag(ctx context.Context, idTag string) (*IdTagRecord, error)
}

// LocalListStore 每个充电桩的本地授权列表
type LocalListStore interface {
	// GetLocalListVersion 未下发过列表时返回0
	GetLocalListVersion(ctx context.Context, chargePointID string) (int, error)
	// ReplaceLocalList 整体替换列表并更新版本
	ReplaceLocalList(ctx context.Context, chargePointID string, version int, entries []IdTagRecord) error
	// UpdateLocalList 增量更新：upserts 写入，removals 删除，并更新版本
	UpdateLocalList(ctx context.Context, chargePointID string, version int, upserts []IdTagRecord, removals []string) error
	// GetLocalListEntry 大小写不敏感，不存在时返回 ErrNotFound
	GetLocalListEntry(ctx context.Context, chargePointID, idTag string) (*IdTagRecord, error)
}

// Storage 中心系统使用的全部存储能力
type Storage interface {
	ConnectionStorage
	ChargePointStore
	TransactionStore
	IdTagStore
	LocalListStore

	// Close 关闭与存储后端的连接
	Close() error
}
