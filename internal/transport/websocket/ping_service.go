package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charging-platform/central-system/internal/logger"
)

// GlobalPingService 全局Ping服务，一个协程为所有连接发送 ping 并续期连接映射
type GlobalPingService struct {
	connections sync.Map // map[string]*ConnectionWrapper
	interval    time.Duration
	refresh     func(chargePointID string)
	logger      *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	startOnce   sync.Once
	stopOnce    sync.Once

	totalPings  atomic.Int64
	failedPings atomic.Int64
}

// NewGlobalPingService 创建全局Ping服务，refresh 可为空
func NewGlobalPingService(interval time.Duration, refresh func(chargePointID string), log *logger.Logger) *GlobalPingService {
	ctx, cancel := context.WithCancel(context.Background())
	return &GlobalPingService{
		interval: interval,
		refresh:  refresh,
		logger:   log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动全局Ping服务，interval <= 0 时不发送 ping
func (s *GlobalPingService) Start() {
	if s.interval <= 0 {
		return
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()

			s.logger.Infof("Global ping service started with interval %v", s.interval)
			for {
				select {
				case <-s.ctx.Done():
					return
				case <-ticker.C:
					s.pingAllConnections()
				}
			}
		}()
	})
}

// Stop 停止全局Ping服务
func (s *GlobalPingService) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// AddConnection 添加连接到ping服务
func (s *GlobalPingService) AddConnection(chargePointID string, wrapper *ConnectionWrapper) {
	s.connections.Store(chargePointID, wrapper)
}

// RemoveConnection 从ping服务中移除连接
func (s *GlobalPingService) RemoveConnection(chargePointID string) {
	s.connections.Delete(chargePointID)
}

func (s *GlobalPingService) pingAllConnections() {
	s.connections.Range(func(key, value interface{}) bool {
		chargePointID := key.(string)
		wrapper := value.(*ConnectionWrapper)

		s.totalPings.Add(1)
		if err := wrapper.ping(); err != nil {
			// 写失败说明连接已坏，读协程会随之退出并清理
			s.failedPings.Add(1)
			s.logger.Debugf("Ping to %s failed: %v", chargePointID, err)
			return true
		}
		if s.refresh != nil {
			s.refresh(chargePointID)
		}
		return true
	})
}

// GetStats 获取ping服务统计信息
func (s *GlobalPingService) GetStats() map[string]interface{} {
	var active int64
	s.connections.Range(func(key, value interface{}) bool {
		active++
		return true
	})

	return map[string]interface{}{
		"active_connections": active,
		"total_pings":        s.totalPings.Load(),
		"failed_pings":       s.failedPings.Load(),
		"ping_interval":      s.interval.String(),
	}
}
