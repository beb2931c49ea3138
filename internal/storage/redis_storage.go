package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/go-redis/redis/v8"
)

// RedisStorage 基于 Redis 的存储实现
type RedisStorage struct {
	Client *redis.Client // 公共字段，以便测试注入 mock 客户端
	Prefix string        // 所有键的命名空间前缀
}

var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage 创建一个新的 RedisStorage 实例
func NewRedisStorage(cfg config.RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// 尝试 ping Redis 以验证连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStorage{Client: client, Prefix: cfg.KeyPrefix}, nil
}

func (r *RedisStorage) connectionKey(chargePointID string) string {
	return r.Prefix + "conn:" + chargePointID
}

func (r *RedisStorage) chargePointKey(chargePointID string) string {
	return r.Prefix + "cp:" + chargePointID
}

func (r *RedisStorage) connectorsKey(chargePointID string) string {
	return r.Prefix + "cp:" + chargePointID + ":connectors"
}

func (r *RedisStorage) transactionSeqKey() string {
	return r.Prefix + "tx:seq"
}

func (r *RedisStorage) transactionKey(id int) string {
	return r.Prefix + "tx:" + strconv.Itoa(id)
}

func (r *RedisStorage) meterKey(id int) string {
	return r.Prefix + "tx:" + strconv.Itoa(id) + ":meter"
}

func (r *RedisStorage) idTagKey(idTag string) string {
	return r.Prefix + "idtag:" + tagKey(idTag)
}

func (r *RedisStorage) localListKey(chargePointID string) string {
	return r.Prefix + "locallist:" + chargePointID
}

func (r *RedisStorage) localListVersionKey(chargePointID string) string {
	return r.Prefix + "locallist:" + chargePointID + ":version"
}

// SetConnection 注册或更新一个充电桩的连接信息
func (r *RedisStorage) SetConnection(ctx context.Context, chargePointID string, podID string, ttl time.Duration) error {
	return r.Client.Set(ctx, r.connectionKey(chargePointID), podID, ttl).Err()
}

// GetConnection 获取指定充电桩当前连接的实例ID
func (r *RedisStorage) GetConnection(ctx context.Context, chargePointID string) (string, error) {
	val, err := r.Client.Get(ctx, r.connectionKey(chargePointID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

// DeleteConnection 删除一个充电桩的连接信息
func (r *RedisStorage) DeleteConnection(ctx context.Context, chargePointID string) error {
	return r.Client.Del(ctx, r.connectionKey(chargePointID)).Err()
}

// SaveChargePoint 保存充电桩档案
func (r *RedisStorage) SaveChargePoint(ctx context.Context, cp *ChargePointRecord) error {
	return r.setJSON(ctx, r.chargePointKey(cp.ID), cp)
}

// GetChargePoint 读取充电桩档案
func (r *RedisStorage) GetChargePoint(ctx context.Context, chargePointID string) (*ChargePointRecord, error) {
	var cp ChargePointRecord
	if err := r.getJSON(ctx, r.chargePointKey(chargePointID), &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// SetConnectorStatus 以连接器ID为字段写入哈希
func (r *RedisStorage) SetConnectorStatus(ctx context.Context, chargePointID string, connector *ConnectorRecord) error {
	data, err := json.Marshal(connector)
	if err != nil {
		return fmt.Errorf("marshal connector: %w", err)
	}
	return r.Client.HSet(ctx, r.connectorsKey(chargePointID), strconv.Itoa(connector.ConnectorID), data).Err()
}

// GetConnectors 读取充电桩全部连接器状态
func (r *RedisStorage) GetConnectors(ctx context.Context, chargePointID string) ([]ConnectorRecord, error) {
	fields, err := r.Client.HGetAll(ctx, r.connectorsKey(chargePointID)).Result()
	if err != nil {
		return nil, err
	}
	connectors := make([]ConnectorRecord, 0, len(fields))
	for field, raw := range fields {
		var c ConnectorRecord
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode connector %s of %s: %w", field, chargePointID, err)
		}
		connectors = append(connectors, c)
	}
	sort.Slice(connectors, func(i, j int) bool { return connectors[i].ConnectorID < connectors[j].ConnectorID })
	return connectors, nil
}

// NextTransactionID 通过 INCR 分配交易ID，跨实例唯一
func (r *RedisStorage) NextTransactionID(ctx context.Context) (int, error) {
	id, err := r.Client.Incr(ctx, r.transactionSeqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate transaction id: %w", err)
	}
	return int(id), nil
}

// SaveTransaction 保存交易记录
func (r *RedisStorage) SaveTransaction(ctx context.Context, tx *TransactionRecord) error {
	return r.setJSON(ctx, r.transactionKey(tx.ID), tx)
}

// GetTransaction 读取交易记录
func (r *RedisStorage) GetTransaction(ctx context.Context, transactionID int) (*TransactionRecord, error) {
	var tx TransactionRecord
	if err := r.getJSON(ctx, r.transactionKey(transactionID), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// AppendMeterSamples 追加采样值
func (r *RedisStorage) AppendMeterSamples(ctx context.Context, transactionID int, samples []MeterSample) error {
	if len(samples) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(samples))
	for _, s := range samples {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal meter sample: %w", err)
		}
		values = append(values, data)
	}
	return r.Client.RPush(ctx, r.meterKey(transactionID), values...).Err()
}

// GetMeterSamples 按写入顺序返回采样值
func (r *RedisStorage) GetMeterSamples(ctx context.Context, transactionID int) ([]MeterSample, error) {
	raws, err := r.Client.LRange(ctx, r.meterKey(transactionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	samples := make([]MeterSample, 0, len(raws))
	for _, raw := range raws {
		var s MeterSample
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode meter sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// SaveIdTag 保存中心授权数据
func (r *RedisStorage) SaveIdTag(ctx context.Context, tag *IdTagRecord) error {
	return r.setJSON(ctx, r.idTagKey(tag.IdTag), tag)
}

// GetIdTag 读取中心授权数据
func (r *RedisStorage) GetIdTag(ctx context.Context, idTag string) (*IdTagRecord, error) {
	var tag IdTagRecord
	if err := r.getJSON(ctx, r.idTagKey(idTag), &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// GetLocalListVersion 读取本地列表版本
func (r *RedisStorage) GetLocalListVersion(ctx context.Context, chargePointID string) (int, error) {
	v, err := r.Client.Get(ctx, r.localListVersionKey(chargePointID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// ReplaceLocalList 在一个 MULTI/EXEC 中整体替换列表
func (r *RedisStorage) ReplaceLocalList(ctx context.Context, chargePointID string, version int, entries []IdTagRecord) error {
	values, err := localListValues(entries)
	if err != nil {
		return err
	}
	_, err = r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.localListKey(chargePointID))
		if len(values) > 0 {
			pipe.HSet(ctx, r.localListKey(chargePointID), values...)
		}
		pipe.Set(ctx, r.localListVersionKey(chargePointID), version, 0)
		return nil
	})
	return err
}

// UpdateLocalList 在一个 MULTI/EXEC 中增量更新列表
func (r *RedisStorage) UpdateLocalList(ctx context.Context, chargePointID string, version int, upserts []IdTagRecord, removals []string) error {
	values, err := localListValues(upserts)
	if err != nil {
		return err
	}
	fields := make([]string, 0, len(removals))
	for _, idTag := range removals {
		fields = append(fields, tagKey(idTag))
	}
	_, err = r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(fields) > 0 {
			pipe.HDel(ctx, r.localListKey(chargePointID), fields...)
		}
		if len(values) > 0 {
			pipe.HSet(ctx, r.localListKey(chargePointID), values...)
		}
		pipe.Set(ctx, r.localListVersionKey(chargePointID), version, 0)
		return nil
	})
	return err
}

// GetLocalListEntry 读取本地列表条目
func (r *RedisStorage) GetLocalListEntry(ctx context.Context, chargePointID, idTag string) (*IdTagRecord, error) {
	raw, err := r.Client.HGet(ctx, r.localListKey(chargePointID), tagKey(idTag)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var entry IdTagRecord
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode local list entry: %w", err)
	}
	return &entry, nil
}

// Close 关闭与存储后端的连接
func (r *RedisStorage) Close() error {
	return r.Client.Close()
}

func (r *RedisStorage) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return r.Client.Set(ctx, key, data, 0).Err()
}

func (r *RedisStorage) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// localListValues 展开为 HSET 的 field/value 参数
func localListValues(entries []IdTagRecord) ([]interface{}, error) {
	values := make([]interface{}, 0, 2*len(entries))
	for i := range entries {
		data, err := json.Marshal(&entries[i])
		if err != nil {
			return nil, fmt.Errorf("marshal local list entry: %w", err)
		}
		values = append(values, tagKey(entries[i].IdTag), data)
	}
	return values, nil
}
