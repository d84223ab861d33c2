package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/models"

	"github.com/IBM/sarama"
)

// Analyzer 消费者只依赖分析入口
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) models.AnalysisResponse
}

// Result 发往结果 topic 的消息
type Result struct {
	RequestKey string                  `json:"request_key,omitempty"`
	AnalyzedAt time.Time               `json:"analyzed_at"`
	Response   models.AnalysisResponse `json:"response"`
}

type Consumer struct {
	consumer    sarama.ConsumerGroup
	producer    sarama.SyncProducer
	analyzer    Analyzer
	resultTopic string
	ready       chan bool
}

// NewSaramaConfig 消费者和生产者共用的 sarama 配置
func NewSaramaConfig() (*sarama.Config, error) {
	config := sarama.NewConfig()
	version, err := sarama.ParseKafkaVersion("2.1.0")
	if err != nil {
		return nil, err
	}
	config.Version = version
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Session.Timeout = 20 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Net.DialTimeout = 30 * time.Second
	config.Net.ReadTimeout = 30 * time.Second
	config.Net.WriteTimeout = 30 * time.Second
	return config, nil
}

// NewConsumer 连接 Kafka，resultTopic 为空时不回写结果
func NewConsumer(brokers []string, groupID, resultTopic string, analyzer Analyzer) (*Consumer, error) {
	config, err := NewSaramaConfig()
	if err != nil {
		return nil, err
	}

	logger.Log.Infof("正在连接 Kafka brokers: %v", brokers)
	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	var producer sarama.SyncProducer
	if resultTopic != "" {
		producer, err = sarama.NewSyncProducer(brokers, config)
		if err != nil {
			group.Close()
			return nil, err
		}
	}

	return newConsumer(group, producer, resultTopic, analyzer), nil
}

func newConsumer(group sarama.ConsumerGroup, producer sarama.SyncProducer, resultTopic string, analyzer Analyzer) *Consumer {
	return &Consumer{
		consumer:    group,
		producer:    producer,
		analyzer:    analyzer,
		resultTopic: resultTopic,
		ready:       make(chan bool),
	}
}

// Start 阻塞消费直到 ctx 结束
func (c *Consumer) Start(ctx context.Context, topic string) error {
	topics := []string{topic}

	go func() {
		for err := range c.consumer.Errors() {
			logger.Log.Errorf("消费者组错误: %v", err)
		}
	}()

	logger.Log.Infof("开始消费 topic: %s", topic)
	for {
		if err := c.consumer.Consume(ctx, topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Log.Errorf("消费出错: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if ctx.Err() != nil {
			logger.Log.Infof("停止消费: %v", ctx.Err())
			return ctx.Err()
		}

		c.ready = make(chan bool)
	}
}

// Setup Required methods for sarama.ConsumerGroupHandler interface
func (c *Consumer) Setup(_ sarama.ConsumerGroupSession) error {
	close(c.ready)
	return nil
}

func (c *Consumer) Cleanup(_ sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			logger.Log.Debugf("收到消息: topic=%s, partition=%d, offset=%d",
				message.Topic, message.Partition, message.Offset)

			if err := c.handle(session.Context(), message); err != nil {
				logger.Log.Errorf("处理消息失败: %v", err)
			}
			// 解析失败的消息同样标记，避免反复消费
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var req models.AnalysisRequest
	if err := json.Unmarshal(message.Value, &req); err != nil {
		logger.Log.Warnf("解析消息失败: %v, raw message: %s", err, string(message.Value))
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		logger.Log.Debugf("空文本消息: offset=%d", message.Offset)
	}

	resp := c.analyzer.Analyze(ctx, req)
	if c.producer == nil {
		return nil
	}

	payload, err := json.Marshal(Result{
		RequestKey: string(message.Key),
		AnalyzedAt: time.Now().UTC(),
		Response:   resp,
	})
	if err != nil {
		return err
	}
	out := &sarama.ProducerMessage{
		Topic: c.resultTopic,
		Value: sarama.ByteEncoder(payload),
	}
	if len(message.Key) > 0 {
		out.Key = sarama.ByteEncoder(message.Key)
	}
	partition, offset, err := c.producer.SendMessage(out)
	if err != nil {
		return err
	}
	logger.Log.Debugf("结果已发送: topic=%s, partition=%d, offset=%d", c.resultTopic, partition, offset)
	return nil
}

func (c *Consumer) Close() error {
	var err error
	if c.producer != nil {
		err = c.producer.Close()
	}
	if cerr := c.consumer.Close(); cerr != nil {
		err = cerr
	}
	return err
}
