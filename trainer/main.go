// Command trainer generates the threat corpus and trains the classifier
// artifacts served by the analysis service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"math/rand"
	"time"

	"go-threatnet/pkg/artifacts"
	"go-threatnet/pkg/config"
	"go-threatnet/pkg/corpus"
	"go-threatnet/pkg/features"
	"go-threatnet/pkg/forest"
	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/metrics"
	"go-threatnet/pkg/models"
	"go-threatnet/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径, 默认 config/config.yaml")
	generate := flag.Bool("generate", false, "重新生成语料")
	seed := flag.Int64("seed", 0, "语料生成随机种子, 0 表示按时间")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Fatal("初始化配置失败:", err)
	}
	if err := logger.InitWith(cfg.Log.Level, cfg.Log.Path); err != nil {
		logger.Log.Fatal("初始化日志失败:", err)
	}
	defer logger.Sync()

	if *seed != 0 {
		cfg.Corpus.Seed = *seed
	}

	if err := run(context.Background(), cfg, *generate); err != nil {
		logger.Log.Fatal("训练失败:", err)
	}
}

func run(ctx context.Context, cfg *config.Config, generate bool) error {
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("初始化存储层: %w", err)
	}
	defer store.Close()

	records, err := prepareCorpus(ctx, cfg, store, generate)
	if err != nil {
		return err
	}

	texts := make([]string, len(records))
	labels := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.ThreatText
		labels[i] = string(r.AttackType)
	}

	logger.Log.Info("正在向量化文本...")
	space, err := features.Fit(texts, cfg.Model.MaxFeatures)
	if err != nil {
		return fmt.Errorf("fit vectorizer: %w", err)
	}
	X := space.TransformAll(texts)

	train, test := forest.Split(X, labels, cfg.Model.TestRatio, cfg.Model.Seed)
	logger.Log.Infow("数据集划分完成", "vocabulary", space.Dim(), "train", train.Len(), "test", test.Len())

	logger.Log.Info("正在训练随机森林...")
	start := time.Now()
	model, err := forest.Train(train.X, train.Y, forest.Params{
		Trees:    cfg.Model.Trees,
		MaxDepth: cfg.Model.MaxDepth,
		Seed:     cfg.Model.Seed,
	})
	if err != nil {
		return fmt.Errorf("train forest: %w", err)
	}

	eval := forest.Evaluate(model, test)
	metrics.ModelAccuracy.Set(eval.Accuracy)
	logger.Log.Infof("训练完成, 耗时 %s, 准确率: %.2f", time.Since(start).Round(time.Millisecond), eval.Accuracy)
	fmt.Print(eval.String())

	header, err := artifacts.Save(cfg.Model.Dir, space, model, eval.Accuracy)
	if err != nil {
		return fmt.Errorf("save artifacts: %w", err)
	}
	logger.Log.Infow("模型产物已保存", "dir", cfg.Model.Dir, "run_id", header.RunID)

	if err := store.RecordTraining(ctx, header.RunID, eval.Accuracy, len(records)); err != nil {
		logger.Log.Errorf("写入训练记录失败: %v", err)
	}
	return nil
}

// prepareCorpus 需要时重新生成语料并写入 xlsx 和 MySQL，否则读取已有文件
func prepareCorpus(ctx context.Context, cfg *config.Config, store *storage.Storage, generate bool) ([]models.ThreatRecord, error) {
	if !generate {
		records, err := corpus.ReadXLSX(cfg.Corpus.Path)
		switch {
		case err == nil:
			logger.Log.Infof("读取已有语料: %s, %d 条", cfg.Corpus.Path, len(records))
			return records, nil
		case errors.Is(err, fs.ErrNotExist):
			logger.Log.Infof("语料文件不存在, 重新生成: %s", cfg.Corpus.Path)
		default:
			return nil, fmt.Errorf("read corpus: %w", err)
		}
	}

	seed := cfg.Corpus.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	size := cfg.Corpus.Size
	if size <= 0 {
		size = corpus.DefaultSize
	}

	records := corpus.NewGenerator(rand.New(rand.NewSource(seed))).Generate(size)
	if err := corpus.WriteXLSX(cfg.Corpus.Path, records); err != nil {
		return nil, fmt.Errorf("write corpus: %w", err)
	}
	logger.Log.Infow("语料已生成", "path", cfg.Corpus.Path, "records", len(records), "seed", seed)

	if store.HasMySQL() {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		if err := store.ReplaceCorpus(ctx, records); err != nil {
			return nil, fmt.Errorf("mirror corpus: %w", err)
		}
		logger.Log.Info("语料已同步到 MySQL")
	}
	return records, nil
}
