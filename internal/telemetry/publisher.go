package telemetry

import (
	"fmt"

	"github.com/IBM/sarama"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/logger"
)

// Publisher 站点事件的Kafka发布器，按站点ID分区保证单站点事件有序
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *logger.Logger
}

// NewPublisher 创建Kafka发布器
func NewPublisher(cfg config.TelemetryConfig, log *logger.Logger) (*Publisher, error) {
	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = cfg.Producer.RetryMax
	saramaConfig.Producer.Return.Successes = cfg.Producer.ReturnSuccess
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Flush.Frequency = cfg.Producer.FlushFrequency
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	p := &Publisher{
		producer: producer,
		topic:    cfg.Topic,
		logger:   log.WithComponent("telemetry"),
	}

	go p.drainResults(cfg.Producer.ReturnSuccess)

	return p, nil
}

// drainResults 消费生产者结果通道
func (p *Publisher) drainResults(successes bool) {
	if successes {
		go func() {
			for range p.producer.Successes() {
			}
		}()
	}
	for err := range p.producer.Errors() {
		p.logger.Errorf("Failed to publish telemetry event: %v", err.Err)
	}
}

// Publish 发布一条站点事件
func (p *Publisher) Publish(event *events.Event) error {
	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", event.ID, err)
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.StationID),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Run 从事件总线转发到Kafka，直到总线关闭
func (p *Publisher) Run(bus *events.Bus) {
	for event := range bus.Events() {
		if err := p.Publish(event); err != nil {
			p.logger.Errorf("Dropping telemetry event %s: %v", event.ID, err)
		}
	}
}

// Close 关闭发布器
func (p *Publisher) Close() error {
	return p.producer.Close()
}
