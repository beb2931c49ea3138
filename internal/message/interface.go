package message

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/charging-platform/central-system/internal/domain/events"
)

// EventProducer 定义了向消息队列发布统一业务事件的接口
type EventProducer interface {
	// PublishEvent 异步发布一个事件
	PublishEvent(event events.Event) error
	// Close 关闭生产者
	Close() error
}

// SaramaConsumerGroup 消费者组中实际用到的方法，便于测试替换
type SaramaConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Close() error
}

// Command 下行指令，由上游业务系统写入指令主题
type Command struct {
	CommandID     string          `json:"commandId"`
	ChargePointID string          `json:"chargePointId"`
	Action        string          `json:"action"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// CommandHandler 指令处理函数
type CommandHandler func(ctx context.Context, cmd *Command)
