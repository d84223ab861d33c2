package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go-threatnet/pkg/alerter"
	"go-threatnet/pkg/analyzer"
	"go-threatnet/pkg/api"
	"go-threatnet/pkg/artifacts"
	"go-threatnet/pkg/assistant"
	"go-threatnet/pkg/config"
	"go-threatnet/pkg/consumer"
	"go-threatnet/pkg/corpus"
	"go-threatnet/pkg/indicators"
	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/metrics"
	"go-threatnet/pkg/models"
	"go-threatnet/pkg/storage"
)

func init() {
	// 初始化配置
	if err := config.Init(); err != nil {
		logger.Log.Fatal("初始化配置失败:", err)
	}

	// 初始化日志
	if err := logger.Init(); err != nil {
		logger.Log.Fatal("初始化日志失败:", err)
	}
}

func main() {
	defer logger.Sync()
	cfg := config.GlobalConfig

	logger.Log.Info("开始启动威胁分析服务...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储层 (InfluxDB 和 MySQL)，都是可选的
	store, err := storage.NewStorage(&cfg)
	if err != nil {
		logger.Log.Fatal("初始化存储层失败:", err)
	}
	defer store.Close()
	logger.Log.Infow("存储层初始化成功", "mysql", store.HasMySQL(), "influxdb", store.HasInflux())
	if store.HasMySQL() {
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Log.Fatal("初始化MySQL表结构失败:", err)
		}
	}

	index := corpus.NewIndex(loadCorpus(ctx, cfg, store))
	logger.Log.Infof("语料加载完成: %d 条记录", index.Len())

	bundle, err := artifacts.Load(cfg.Model.Dir)
	switch {
	case err == nil:
		metrics.ModelAccuracy.Set(bundle.Accuracy)
		logger.Log.Infow("模型加载成功", "run_id", bundle.Header.RunID, "dim", bundle.Header.Dim, "accuracy", bundle.Accuracy)
	case errors.Is(err, artifacts.ErrNotFound):
		logger.Log.Warnf("未找到模型文件, 模型信号关闭: %v", err)
	default:
		logger.Log.Errorf("加载模型失败, 模型信号关闭: %v", err)
	}

	svcCtx := analyzer.Context{
		Corpus:           index,
		Bundle:           bundle,
		AssistantTimeout: cfg.LLM.Timeout,
	}

	client, err := assistant.New(assistant.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		logger.Log.Warnf("大模型信号关闭: %v", err)
	} else {
		svcCtx.Assistant = client
	}

	// 初始化GeoIP和ASN数据库
	enricher := indicators.Open(cfg.GeoIP.CityPath, cfg.GeoIP.ASNPath)
	defer enricher.Close()
	svcCtx.Indicators = enricher

	opts := []analyzer.Option{analyzer.WithRecorder(store)}
	alert := alerter.NewAlerter(ctx, alerter.Config{
		WebhookURL:    cfg.Webhook.URL,
		MinConfidence: cfg.Webhook.MinConfidence,
		Cooldown:      cfg.Webhook.Cooldown,
		Timeout:       cfg.Webhook.Timeout,
	}, store)
	if alert.Enabled() {
		go alert.Run(ctx)
		opts = append(opts, analyzer.WithNotifier(alert))
	}

	service := analyzer.NewService(svcCtx, opts...)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewServer(service).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Log.Infof("HTTP服务监听: %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Kafka.Enabled {
		logger.Log.Infof("Kafka配置: brokers=%v, topic=%s", cfg.Kafka.Brokers, cfg.Kafka.Topic)
		c, err := consumer.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.ResultTopic, service)
		if err != nil {
			logger.Log.Fatal("初始化Kafka消费者失败:", err)
		}
		defer c.Close()
		logger.Log.Info("Kafka消费者初始化成功")

		go func() {
			if err := c.Start(ctx, cfg.Kafka.Topic); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.Errorf("Kafka消费启动失败: %v", err)
				errCh <- err
			}
		}()
	}

	logger.Log.Info("服务启动完成，等待请求...")

	select {
	case <-ctx.Done():
		logger.Log.Info("接收到退出信号, 开始优雅退出")
	case err := <-errCh:
		logger.Log.Errorf("服务异常退出: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("关闭HTTP服务失败: %v", err)
	}
	service.Wait()
	stop()
}

// loadCorpus 优先读取 xlsx 文件，没有文件时尝试 MySQL 镜像，都没有则为空语料
func loadCorpus(ctx context.Context, cfg config.Config, store *storage.Storage) []models.ThreatRecord {
	records, err := corpus.ReadXLSX(cfg.Corpus.Path)
	if err == nil {
		return records
	}
	logger.Log.Warnf("读取语料文件失败: %v", err)

	if store.HasMySQL() {
		records, err := store.LoadCorpus(ctx)
		if err != nil {
			logger.Log.Errorf("从MySQL加载语料失败: %v", err)
			return nil
		}
		return records
	}
	return nil
}
