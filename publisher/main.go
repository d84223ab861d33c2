// Command publisher sends analysis requests to the service's Kafka topic,
// either replaying corpus rows or a single ad-hoc text.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"go-threatnet/pkg/config"
	"go-threatnet/pkg/consumer"
	"go-threatnet/pkg/corpus"
	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

type keyedRequest struct {
	key string
	req models.AnalysisRequest
}

func main() {
	configPath := flag.String("config", "", "配置文件路径, 默认 config/config.yaml")
	text := flag.String("text", "", "只发送这一条文本")
	messageType := flag.String("type", "email", "message_type")
	limit := flag.Int("limit", 0, "最多发送的语料条数, 0 表示全部")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Fatal("初始化配置失败:", err)
	}
	if err := logger.InitWith(cfg.Log.Level, cfg.Log.Path); err != nil {
		logger.Log.Fatal("初始化日志失败:", err)
	}
	defer logger.Sync()

	requests, err := buildRequests(cfg.Corpus.Path, *text, *messageType, *limit)
	if err != nil {
		logger.Log.Fatal("准备请求失败:", err)
	}

	saramaCfg, err := consumer.NewSaramaConfig()
	if err != nil {
		logger.Log.Fatal("初始化sarama配置失败:", err)
	}
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, saramaCfg)
	if err != nil {
		logger.Log.Fatal("连接Kafka失败:", err)
	}
	defer producer.Close()

	sent := 0
	for _, kr := range requests {
		payload, err := json.Marshal(kr.req)
		if err != nil {
			logger.Log.Errorf("序列化请求失败: %v", err)
			continue
		}
		partition, offset, err := producer.SendMessage(&sarama.ProducerMessage{
			Topic: cfg.Kafka.Topic,
			Key:   sarama.StringEncoder(kr.key),
			Value: sarama.ByteEncoder(payload),
		})
		if err != nil {
			logger.Log.Errorf("发送消息失败: key=%s, err=%v", kr.key, err)
			continue
		}
		sent++
		logger.Log.Debugf("消息已发送: key=%s, partition=%d, offset=%d", kr.key, partition, offset)
	}
	logger.Log.Infof("发送完成: %d/%d 条, topic=%s", sent, len(requests), cfg.Kafka.Topic)
}

// buildRequests text 非空时只发这一条，key 用随机 uuid；否则按语料顺序发送，key 为 report_id
func buildRequests(corpusPath, text, messageType string, limit int) ([]keyedRequest, error) {
	if strings.TrimSpace(text) != "" {
		return []keyedRequest{{
			key: uuid.NewString(),
			req: models.AnalysisRequest{Text: text, MessageType: messageType},
		}}, nil
	}

	records, err := corpus.ReadXLSX(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	out := make([]keyedRequest, len(records))
	for i, r := range records {
		out[i] = keyedRequest{
			key: r.ReportID,
			req: models.AnalysisRequest{Text: r.ThreatText, MessageType: messageType},
		}
	}
	return out, nil
}
