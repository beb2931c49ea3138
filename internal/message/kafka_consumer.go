package message

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/logger"
)

type KafkaConsumer struct {
	consumerGroup SaramaConsumerGroup
	topic         string
	logger        *logger.Logger
	cancel        context.CancelFunc
	handler       CommandHandler
	wg            sync.WaitGroup
	retryDelay    time.Duration
}

// NewKafkaConsumer 初始化指令消费者
func NewKafkaConsumer(cfg config.KafkaConfig, log *logger.Logger) (*KafkaConsumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Return.Errors = cfg.Consumer.ReturnErrors
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.Consumer.OffsetsInitial == "oldest" {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	sc.Consumer.Group.Session.Timeout = 10 * time.Second
	sc.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama consumer group: %w", err)
	}

	c := NewKafkaConsumerWithGroup(consumerGroup, cfg.CommandTopic, log)
	if cfg.Consumer.ReturnErrors {
		go func() {
			for err := range consumerGroup.Errors() {
				c.logger.Errorf("Sarama consumer group error: %v", err)
			}
		}()
	}
	return c, nil
}

// NewKafkaConsumerWithGroup 注入消费者组，测试时使用
func NewKafkaConsumerWithGroup(group SaramaConsumerGroup, topic string, log *logger.Logger) *KafkaConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaConsumer{
		consumerGroup: group,
		topic:         topic,
		logger:        log.WithComponent("kafka-consumer"),
		retryDelay:    time.Second,
	}
}

// Start 启动消费者组
func (c *KafkaConsumer) Start(ctx context.Context, handler CommandHandler) error {
	if handler == nil {
		return fmt.Errorf("command handler is required")
	}
	c.handler = handler

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		for {
			// Consume 在一次再均衡周期内阻塞，结束后重新加入
			if err := c.consumerGroup.Consume(ctx, []string{c.topic}, c); err != nil {
				c.logger.Errorf("Error from Kafka consumer group: %v", err)
			}
			if ctx.Err() != nil {
				c.logger.Info("Kafka consumer context cancelled, stopping consumption.")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
		}
	}()
	return nil
}

// Close 关闭消费者
func (c *KafkaConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.consumerGroup != nil {
		return c.consumerGroup.Close()
	}
	return nil
}

// -- sarama.ConsumerGroupHandler 接口实现 --

func (c *KafkaConsumer) Setup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group setup completed.")
	return nil
}

func (c *KafkaConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group cleanup completed.")
	return nil
}

// ConsumeClaim 逐条处理指令。处理完成（或无法解析）后立即提交位点
func (c *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c.logger.Debugf("consuming commands from partition %d", claim.Partition())

	for message := range claim.Messages() {
		var cmd Command
		if err := json.Unmarshal(message.Value, &cmd); err != nil {
			c.logger.Errorf("Failed to unmarshal Kafka message: %v, message: %s", err, string(message.Value))
			session.MarkMessage(message, "")
			continue
		}

		c.handler(session.Context(), &cmd)
		session.MarkMessage(message, "")

		c.logger.Debugf("Message consumed and marked: Topic=%s, Partition=%d, Offset=%d, Key=%s",
			message.Topic, message.Partition, message.Offset, string(message.Key))
	}
	return nil
}
