package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charging-platform/central-system/internal/business/chargepoint"
	"github.com/charging-platform/central-system/internal/business/localauth"
	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/cache"
	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/handlers"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/message"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/transport/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	log.Infof("Starting central system pod %s", cfg.PodID)

	// 3. 初始化存储
	store, err := newStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Infof("Storage initialized (%s)", cfg.Storage.Backend)

	// 4. 事件发布：Kafka 未启用时事件直接丢弃
	factory := events.NewEventFactory("central-system", cfg.PodID)
	var publisher events.Publisher = events.NopPublisher
	var producer *message.KafkaProducer
	if cfg.Kafka.Enabled {
		producer, err = message.NewKafkaProducer(cfg.Kafka, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		publisher = producer
		log.Infof("Kafka producer initialized, topic: %s", cfg.Kafka.EventTopic)
	}

	// 5. 业务管理器
	chargePoints := chargepoint.NewManager(store, &chargepoint.ManagerConfig{
		HeartbeatInterval:  cfg.OCPP.HeartbeatInterval,
		RegistrationStatus: ocpp16.RegistrationStatus(cfg.OCPP.RegistrationStatus),
	}, log)
	transactions := transaction.NewManager(store, log)
	var idTags storage.IdTagStore = store
	var tagCache *cache.LRUCache[storage.IdTagRecord]
	if cfg.Cache.Enabled {
		tagCache = cache.NewLRUCache[storage.IdTagRecord](&cache.Config{
			MaxSize:         cfg.Cache.MaxSize,
			DefaultTTL:      cfg.Cache.IdTagTTL,
			CleanupInterval: cfg.Cache.CleanupInterval,
			ShardCount:      cfg.Cache.ShardCount,
		})
		if err := tagCache.Start(); err != nil {
			log.Fatalf("Failed to start id tag cache: %v", err)
		}
		idTags = storage.NewCachedIdTagStore(store, tagCache, cfg.Cache.IdTagTTL)
		log.Infof("Id tag cache enabled, ttl %s", cfg.Cache.IdTagTTL)
	}
	auth := localauth.NewManager(store, idTags, &localauth.ManagerConfig{
		AcceptUnknown: cfg.OCPP.AcceptUnknownIdTags,
	}, log)

	// 6. 动作注册表与分发器，启动前封存
	validator := validation.NewValidator()
	registry := protocol16.NewRegistry(validator)
	h := handlers.New(handlers.Dependencies{
		ChargePoints: chargePoints,
		Transactions: transactions,
		Auth:         auth,
		Publisher:    publisher,
		Events:       factory,
		VendorIDs:    cfg.OCPP.VendorIDs,
	}, log)
	if err := h.Register(registry); err != nil {
		log.Fatalf("Failed to register OCPP handlers: %v", err)
	}
	registry.Seal()
	dispatcher := protocol16.NewDispatcher(registry, validator, log)
	log.Infof("Registered %d OCPP actions", registry.Len())

	// 7. WebSocket 管理器
	wsConfig := websocket.ConfigFrom(cfg)
	wsManager := websocket.NewManager(wsConfig, websocket.Dependencies{
		Dispatcher: dispatcher,
		SessionConfig: &protocol16.SessionConfig{
			CallTimeout: cfg.OCPP.CallTimeout,
			MaxInflight: cfg.OCPP.MaxInflightCalls,
		},
		Connections: store,
		Publisher:   publisher,
		Events:      factory,
		Validator:   validator,
	}, log)
	wsManager.Start()

	// 8. 下行指令消费
	var consumer *message.KafkaConsumer
	if cfg.Kafka.Enabled {
		consumer, err = message.NewKafkaConsumer(cfg.Kafka, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka consumer: %v", err)
		}
		executor := message.NewCommandExecutor(wsManager.Caller, validator, publisher, factory, cfg.OCPP.CallTimeout, log)
		if err := consumer.Start(context.Background(), executor.Handle); err != nil {
			log.Fatalf("Failed to start Kafka consumer: %v", err)
		}
		log.Infof("Kafka consumer started, brokers: %v, group: %s", cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup)
	}

	// 9. 监控服务器
	metricsServer := &http.Server{Addr: cfg.GetMetricsAddr(), Handler: metricsHandler()}
	go func() {
		log.Infof("Metrics server listening on %s", cfg.GetMetricsAddr())
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()

	// 10. 主服务器
	mainMux := http.NewServeMux()
	wsPath := wsConfig.Path + "/"
	mainMux.HandleFunc(wsPath, wsManager.ServeWS)
	mainMux.HandleFunc("/health", wsManager.HandleHealthCheck)

	listener, err := net.Listen("tcp", cfg.GetServerAddr())
	if err != nil {
		log.Fatalf("Failed to create listener: %v", err)
	}
	server := &http.Server{
		Handler:        mainMux,
		ReadTimeout:    cfg.Server.ReadTimeout,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		log.Infof("Central system listening on %s, websocket path %s", listener.Addr().String(), wsPath)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Main server failed: %v", err)
		}
	}()

	// 11. 优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 先停止接入并关闭充电桩连接，再停止指令消费与事件发布
	if err := wsManager.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down WebSocket manager: %v", err)
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down main server: %v", err)
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Errorf("Error closing Kafka consumer: %v", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("Error closing Kafka producer: %v", err)
		}
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down metrics server: %v", err)
	}
	if tagCache != nil && tagCache.IsRunning() {
		_ = tagCache.Stop()
	}
	if err := store.Close(); err != nil {
		log.Errorf("Error closing storage: %v", err)
	}

	log.Info("Server gracefully stopped.")
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.Storage.Backend == config.StorageBackendMemory {
		return storage.NewMemoryStorage(), nil
	}
	return storage.NewRedisStorage(cfg.Redis)
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
