package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type connectionEntry struct {
	podID     string
	expiresAt time.Time
}

// MemoryStorage 进程内存储，用于单实例部署和测试
type MemoryStorage struct {
	mu           sync.RWMutex
	connections  map[string]connectionEntry
	chargePoints map[string]ChargePointRecord
	connectors   map[string]map[int]ConnectorRecord
	txSeq        int
	transactions map[int]TransactionRecord
	meter        map[int][]MeterSample
	idTags       map[string]IdTagRecord
	localLists   map[string]map[string]IdTagRecord
	listVersions map[string]int

	now func() time.Time
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage 创建进程内存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		connections:  make(map[string]connectionEntry),
		chargePoints: make(map[string]ChargePointRecord),
		connectors:   make(map[string]map[int]ConnectorRecord),
		transactions: make(map[int]TransactionRecord),
		meter:        make(map[int][]MeterSample),
		idTags:       make(map[string]IdTagRecord),
		localLists:   make(map[string]map[string]IdTagRecord),
		listVersions: make(map[string]int),
		now:          time.Now,
	}
}

func (m *MemoryStorage) SetConnection(ctx context.Context, chargePointID string, podID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := connectionEntry{podID: podID}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.connections[chargePointID] = entry
	return nil
}

func (m *MemoryStorage) GetConnection(ctx context.Context, chargePointID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.connections[chargePointID]
	if !ok || (!entry.expiresAt.IsZero() && m.now().After(entry.expiresAt)) {
		return "", ErrNotFound
	}
	return entry.podID, nil
}

func (m *MemoryStorage) DeleteConnection(ctx context.Context, chargePointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, chargePointID)
	return nil
}

func (m *MemoryStorage) SaveChargePoint(ctx context.Context, cp *ChargePointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chargePoints[cp.ID] = *cp
	return nil
}

func (m *MemoryStorage) GetChargePoint(ctx context.Context, chargePointID string) (*ChargePointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.chargePoints[chargePointID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cp, nil
}

func (m *MemoryStorage) SetConnectorStatus(ctx context.Context, chargePointID string, connector *ConnectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.connectors[chargePointID]
	if !ok {
		byID = make(map[int]ConnectorRecord)
		m.connectors[chargePointID] = byID
	}
	byID[connector.ConnectorID] = *connector
	return nil
}

func (m *MemoryStorage) GetConnectors(ctx context.Context, chargePointID string) ([]ConnectorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	connectors := make([]ConnectorRecord, 0, len(m.connectors[chargePointID]))
	for _, c := range m.connectors[chargePointID] {
		connectors = append(connectors, c)
	}
	sort.Slice(connectors, func(i, j int) bool { return connectors[i].ConnectorID < connectors[j].ConnectorID })
	return connectors, nil
}

func (m *MemoryStorage) NextTransactionID(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txSeq++
	return m.txSeq, nil
}

func (m *MemoryStorage) SaveTransaction(ctx context.Context, tx *TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[tx.ID] = *tx
	return nil
}

func (m *MemoryStorage) GetTransaction(ctx context.Context, transactionID int) (*TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &tx, nil
}

func (m *MemoryStorage) AppendMeterSamples(ctx context.Context, transactionID int, samples []MeterSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meter[transactionID] = append(m.meter[transactionID], samples...)
	return nil
}

func (m *MemoryStorage) GetMeterSamples(ctx context.Context, transactionID int) ([]MeterSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MeterSample(nil), m.meter[transactionID]...), nil
}

func (m *MemoryStorage) SaveIdTag(ctx context.Context, tag *IdTagRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idTags[tagKey(tag.IdTag)] = *tag
	return nil
}

func (m *MemoryStorage) GetIdTag(ctx context.Context, idTag string) (*IdTagRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tag, ok := m.idTags[tagKey(idTag)]
	if !ok {
		return nil, ErrNotFound
	}
	return &tag, nil
}

func (m *MemoryStorage) GetLocalListVersion(ctx context.Context, chargePointID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listVersions[chargePointID], nil
}

func (m *MemoryStorage) ReplaceLocalList(ctx context.Context, chargePointID string, version int, entries []IdTagRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make(map[string]IdTagRecord, len(entries))
	for _, e := range entries {
		list[tagKey(e.IdTag)] = e
	}
	m.localLists[chargePointID] = list
	m.listVersions[chargePointID] = version
	return nil
}

func (m *MemoryStorage) UpdateLocalList(ctx context.Context, chargePointID string, version int, upserts []IdTagRecord, removals []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.localLists[chargePointID]
	if !ok {
		list = make(map[string]IdTagRecord)
		m.localLists[chargePointID] = list
	}
	for _, idTag := range removals {
		delete(list, tagKey(idTag))
	}
	for _, e := range upserts {
		list[tagKey(e.IdTag)] = e
	}
	m.listVersions[chargePointID] = version
	return nil
}

func (m *MemoryStorage) GetLocalListEntry(ctx context.Context, chargePointID, idTag string) (*IdTagRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.localLists[chargePointID][tagKey(idTag)]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
