package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/storage"
)

func TestNewRedisStorage_Unreachable(t *testing.T) {
	cfg := config.RedisConfig{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	}

	s, err := storage.NewRedisStorage(cfg)
	assert.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestRedisStorage_SetGetDeleteConnection(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rdb := &storage.RedisStorage{Client: db, Prefix: "csms:"}
	ctx := context.Background()

	chargePointID := "CP001"
	podID := "csms-0"
	ttl := 5 * time.Minute
	key := "csms:conn:CP001"

	mock.ExpectSet(key, podID, ttl).SetVal("OK")
	require.NoError(t, rdb.SetConnection(ctx, chargePointID, podID, ttl))

	mock.ExpectGet(key).SetVal(podID)
	got, err := rdb.GetConnection(ctx, chargePointID)
	require.NoError(t, err)
	assert.Equal(t, podID, got)

	mock.ExpectGet(key).RedisNil()
	got, err = rdb.GetConnection(ctx, chargePointID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, got)

	mock.ExpectDel(key).SetVal(1)
	require.NoError(t, rdb.DeleteConnection(ctx, chargePointID))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_ConnectionErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rdb := &storage.RedisStorage{Client: db}
	ctx := context.Background()

	setErr := errors.New("redis set error")
	mock.ExpectSet("conn:CP002", "csms-0", time.Minute).SetErr(setErr)
	assert.ErrorIs(t, rdb.SetConnection(ctx, "CP002", "csms-0", time.Minute), setErr)

	getErr := errors.New("redis get error")
	mock.ExpectGet("conn:CP003").SetErr(getErr)
	got, err := rdb.GetConnection(ctx, "CP003")
	assert.ErrorIs(t, err, getErr)
	assert.Empty(t, got)

	delErr := errors.New("redis del error")
	mock.ExpectDel("conn:CP004").SetErr(delErr)
	assert.ErrorIs(t, rdb.DeleteConnection(ctx, "CP004"), delErr)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_ChargePoint(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rdb := &storage.RedisStorage{Client: db, Prefix: "csms:"}
	ctx := context.Background()

	cp := &storage.ChargePointRecord{
		ID:                 "CP001",
		Vendor:             "Acme",
		Model:              "X1",
		RegistrationStatus: "Accepted",
		LastBootAt:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastSeenAt:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(cp)
	require.NoError(t, err)

	mock.ExpectSet("csms:cp:CP001", data, 0).SetVal("OK")
	require.NoError(t, rdb.SaveChargePoint(ctx, cp))

	mock.ExpectGet("csms:cp:CP001").SetVal(string(data))
	got, err := rdb.GetChargePoint(ctx, "CP001")
	require.NoError(t, err)
	assert.Equal(t, cp, got)

	mock.ExpectGet("csms:cp:CP404").RedisNil()
	_, err = rdb.GetChargePoint(ctx, "CP404")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	mock.ExpectGet("csms:cp:BAD").SetVal("{not json")
	_, err = rdb.GetChargePoint(ctx, "BAD")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_Connectors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rdb := &storage.RedisStorage{Client: db}
	ctx := context.Background()

	c1 := storage.ConnectorRecord{ConnectorID: 1, Status: "Charging", ErrorCode: "NoError"}
	c0 := storage.ConnectorRecord{ConnectorID: 0, Status: "Available", ErrorCode: "NoError"}
	d1, _ := json.Marshal(&c1)
	d0, _ := json.Marshal(&c0)

	mock.ExpectHSet("cp:CP001:connectors", "1", d1).SetVal(1)
	require.NoError(t, rdb.SetConnectorStatus(ctx, "CP001", &c1))

	mock.ExpectHGetAll("cp:CP001:connectors").SetVal(map[string]string{"1": string(d1), "0": string(d0)})
	got, err := rdb.GetConnectors(ctx, "CP001")
	require.NoError(t, err)
	assert.Equal(t, []storage.ConnectorRecord{c0, c1}, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_Transactions(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rdb := &storage.RedisStorage{Client: db}
	ctx := context.Background()

	mock.ExpectIncr("tx:seq").SetVal(42)
	id, err := rdb.NextTransactionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	mock.ExpectIncr("tx:seq").SetErr(errors.New("READONLY"))
	_, err = rdb.NextTransactionID(ctx)
	assert.Error(t, err)

	tx := &storage.TransactionRecord{ID: 42, ChargePointID: "CP001", ConnectorID: 1, IdTag: "TAG", AuthStatus: "Accepted"}
	data, _ := json.Marshal(tx)
	mock.ExpectSet("tx:42", data, 0).SetVal("OK")
	require.NoError(t, rdb.SaveTransaction(ctx, tx))

	mock.ExpectGet("tx:42").SetVal(string(data))
	got, err := rdb.GetTransaction(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, tx, got)
	assert.True(t, got.Active())

	mock.ExpectGet("tx:7").RedisNil()
	_, err = rdb.GetTransaction(ctx, 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	sample := storage.MeterSample{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Measurand: "Energy.Active.Import.Register", Value: "100", Unit: "Wh"}
	sd, _ := json.Marshal(sample)
	mock.ExpectRPush("tx:42:meter", sd).SetVal(1)
	require.NoError(t, rdb.AppendMeterSamples(ctx, 42, []storage.MeterSample{sample}))
	// 空追加不访问 Redis
	require.NoError(t, rdb.AppendMeterSamples(ctx, 42, nil))

	mock.ExpectLRange("tx:42:meter", 0, -1).SetVal([]string{string(sd)})
	samples, err := rdb.GetMeterSamples(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []storage.MeterSample{sample}, samples)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_IdTagsAndLocalList(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rdb := &storage.RedisStorage{Client: db}
	ctx := context.Background()

	tag := &storage.IdTagRecord{IdTag: "AbC123", Status: "Accepted"}
	data, _ := json.Marshal(tag)

	// 键按小写存储，大小写不敏感
	mock.ExpectSet("idtag:abc123", data, 0).SetVal("OK")
	require.NoError(t, rdb.SaveIdTag(ctx, tag))
	mock.ExpectGet("idtag:abc123").SetVal(string(data))
	got, err := rdb.GetIdTag(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "AbC123", got.IdTag)

	mock.ExpectGet("locallist:CP001:version").RedisNil()
	v, err := rdb.GetLocalListVersion(ctx, "CP001")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	mock.ExpectGet("locallist:CP001:version").SetVal("5")
	v, err = rdb.GetLocalListVersion(ctx, "CP001")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	mock.ExpectHGet("locallist:CP001", "abc123").SetVal(string(data))
	entry, err := rdb.GetLocalListEntry(ctx, "CP001", "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "Accepted", entry.Status)

	mock.ExpectHGet("locallist:CP001", "nobody").SetErr(redis.Nil)
	_, err = rdb.GetLocalListEntry(ctx, "CP001", "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_Close(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rdb := &storage.RedisStorage{Client: db}

	assert.NoError(t, rdb.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
