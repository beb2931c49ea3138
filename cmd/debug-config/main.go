package main

import (
	"fmt"
	"os"

	"github.com/charging-platform/central-system/internal/business/chargepoint"
	"github.com/charging-platform/central-system/internal/business/localauth"
	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/handlers"
	"github.com/charging-platform/central-system/internal/logger"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
	"github.com/charging-platform/central-system/internal/storage"
)

// 配置调试工具
// 用于验证配置加载结果，并列出中心系统会注册的OCPP动作
func main() {
	fmt.Println("=== Central System Configuration Test ===")

	// 显示环境变量
	fmt.Println("\n--- Environment Variables ---")
	envVars := []string{
		"CSMS_POD_ID",
		"CSMS_SERVER_PORT",
		"CSMS_REDIS_ADDR",
		"CSMS_KAFKA_ENABLED",
		"CSMS_STORAGE_BACKEND",
		"CSMS_LOG_LEVEL",
	}

	for _, env := range envVars {
		value := os.Getenv(env)
		if value != "" {
			fmt.Printf("%s = %s\n", env, value)
		} else {
			fmt.Printf("%s = (not set)\n", env)
		}
	}

	// 加载配置
	fmt.Println("\n--- Loading Configuration ---")
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// 显示最终配置
	fmt.Println("\n--- Final Configuration ---")
	fmt.Printf("Pod ID: %s\n", cfg.PodID)
	fmt.Printf("Server Address: %s\n", cfg.GetServerAddr())
	fmt.Printf("WebSocket Path: %s\n", cfg.Server.WebSocketPath)
	fmt.Printf("Storage Backend: %s\n", cfg.Storage.Backend)
	fmt.Printf("Redis Address: %s\n", cfg.Redis.Addr)
	fmt.Printf("Kafka Enabled: %v\n", cfg.Kafka.Enabled)
	fmt.Printf("Kafka Brokers: %v\n", cfg.Kafka.Brokers)
	fmt.Printf("Kafka Topics: events=%s commands=%s\n", cfg.Kafka.EventTopic, cfg.Kafka.CommandTopic)
	fmt.Printf("Log Level: %s\n", cfg.Log.Level)
	fmt.Printf("Metrics Address: %s\n", cfg.GetMetricsAddr())
	fmt.Printf("Heartbeat Interval: %s\n", cfg.OCPP.HeartbeatInterval)
	fmt.Printf("Call Timeout: %s\n", cfg.OCPP.CallTimeout)
	fmt.Printf("Registration Status: %s\n", cfg.OCPP.RegistrationStatus)

	// 注册表检查：用内存存储装配处理器，不连接外部依赖
	fmt.Println("\n--- Registered OCPP Actions ---")
	store := storage.NewMemoryStorage()
	validator := validation.NewValidator()
	registry := protocol16.NewRegistry(validator)
	h := handlers.New(handlers.Dependencies{
		ChargePoints: chargepoint.NewManager(store, nil, logger.Nop()),
		Transactions: transaction.NewManager(store, logger.Nop()),
		Auth:         localauth.NewManager(store, store, nil, logger.Nop()),
		VendorIDs:    cfg.OCPP.VendorIDs,
	}, logger.Nop())
	if err := h.Register(registry); err != nil {
		fmt.Printf("Error registering handlers: %v\n", err)
		os.Exit(1)
	}
	for _, action := range registry.Actions() {
		fmt.Printf("  %s\n", action)
	}

	fmt.Println("\n=== Configuration Test Complete ===")
}
