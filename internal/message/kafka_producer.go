package message

import (
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
)

type KafkaProducer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *logger.Logger
	wg       sync.WaitGroup
}

// NewKafkaProducer 创建一个新的 KafkaProducer
func NewKafkaProducer(cfg config.KafkaConfig, log *logger.Logger) (*KafkaProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForLocal     // 只等待本地确认
	sc.Producer.Compression = sarama.CompressionSnappy // 压缩
	sc.Producer.Flush.Frequency = cfg.Producer.FlushFrequency
	sc.Producer.Retry.Max = cfg.Producer.RetryMax
	sc.Producer.Return.Successes = cfg.Producer.ReturnSuccess
	sc.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka async producer: %w", err)
	}
	return NewKafkaProducerWithClient(producer, cfg.EventTopic, log), nil
}

// NewKafkaProducerWithClient 使用已有的 AsyncProducer 创建生产者
func NewKafkaProducerWithClient(producer sarama.AsyncProducer, topic string, log *logger.Logger) *KafkaProducer {
	if log == nil {
		log = logger.Nop()
	}
	kp := &KafkaProducer{
		producer: producer,
		topic:    topic,
		logger:   log.WithComponent("kafka-producer"),
	}

	// 启动 goroutine 处理成功和失败的 Kafka 消息
	kp.wg.Add(2)
	go kp.handleSuccesses()
	go kp.handleErrors()

	return kp
}

func (p *KafkaProducer) PublishEvent(event events.Event) error {
	eventData, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		// 使用充电桩ID作为Key，保证同一桩的事件落入同一分区
		Key:   sarama.StringEncoder(event.GetChargePointID()),
		Value: sarama.ByteEncoder(eventData),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.GetType())},
			{Key: []byte("event_id"), Value: []byte(event.GetID())},
		},
		Metadata: event.GetType(),
	}

	p.producer.Input() <- msg
	return nil
}

// Close 关闭生产者，等待成功/失败通道排空
func (p *KafkaProducer) Close() error {
	err := p.producer.Close()
	p.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (p *KafkaProducer) handleSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		eventType, _ := msg.Metadata.(events.EventType)
		metrics.EventsPublished.WithLabelValues(string(eventType)).Inc()
		p.logger.GetLogger().Debug().
			Str("topic", msg.Topic).
			Str("key", messageKey(msg)).
			Str("event_type", string(eventType)).
			Msg("Kafka message sent successfully")
	}
}

func (p *KafkaProducer) handleErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		ev := p.logger.GetLogger().Error().Err(perr.Err)
		if perr.Msg != nil {
			ev = ev.Str("topic", perr.Msg.Topic).Str("key", messageKey(perr.Msg))
		}
		ev.Msg("Failed to send Kafka message")
	}
}

func messageKey(msg *sarama.ProducerMessage) string {
	if key, ok := msg.Key.(sarama.StringEncoder); ok {
		return string(key)
	}
	return ""
}
