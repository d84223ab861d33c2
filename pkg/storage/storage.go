package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go-threatnet/pkg/config"
	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// insertBatch 单条 INSERT 最多写入的行数
const insertBatch = 100

// Storage MySQL 保存语料镜像和告警记录，InfluxDB 保存分析遥测
// 两者都是可选的，未配置时对应方法直接返回
type Storage struct {
	influxClient influxdb2.Client
	writeAPI     api.WriteAPIBlocking
	mysqlDB      *sql.DB
	org          string
	bucket       string
}

func NewStorage(cfg *config.Config) (*Storage, error) {
	s := &Storage{org: cfg.InfluxDB.Org, bucket: cfg.InfluxDB.Bucket}

	if cfg.InfluxDB.URL != "" {
		s.influxClient = influxdb2.NewClient(cfg.InfluxDB.URL, cfg.InfluxDB.Token)
		s.writeAPI = s.influxClient.WriteAPIBlocking(cfg.InfluxDB.Org, cfg.InfluxDB.Bucket)
	}

	if cfg.MySQL.DSN != "" {
		mysqlDB, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, err
		}
		mysqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdle)
		mysqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpen)
		s.mysqlDB = mysqlDB
	}
	return s, nil
}

func (s *Storage) HasMySQL() bool {
	return s != nil && s.mysqlDB != nil
}

func (s *Storage) HasInflux() bool {
	return s != nil && s.writeAPI != nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS threat_records (
		report_id   VARCHAR(32)  NOT NULL PRIMARY KEY,
		threat_text TEXT         NOT NULL,
		attack_type VARCHAR(32)  NOT NULL,
		severity    VARCHAR(16)  NOT NULL,
		source      VARCHAR(32)  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alert_events (
		id          BIGINT AUTO_INCREMENT PRIMARY KEY,
		fingerprint VARCHAR(64)  NOT NULL,
		threat_type VARCHAR(32)  NOT NULL,
		confidence  DOUBLE       NOT NULL,
		method      VARCHAR(16)  NOT NULL,
		created_at  DATETIME(3)  NOT NULL,
		INDEX idx_alert_created (created_at)
	)`,
}

// EnsureSchema 建表
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if !s.HasMySQL() {
		return nil
	}
	for _, stmt := range schema {
		if _, err := s.mysqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// ReplaceCorpus 在一个事务里整体替换语料表，读者要么看到旧语料要么看到新语料
func (s *Storage) ReplaceCorpus(ctx context.Context, records []models.ThreatRecord) error {
	if !s.HasMySQL() {
		return nil
	}

	tx, err := s.mysqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM threat_records`); err != nil {
		return fmt.Errorf("clear threat_records: %w", err)
	}

	for start := 0; start < len(records); start += insertBatch {
		end := start + insertBatch
		if end > len(records) {
			end = len(records)
		}
		query, args := insertRecordsQuery(records[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert threat_records [%d,%d): %w", start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Log.Infof("成功写入语料镜像: %d 条", len(records))
	return nil
}

func insertRecordsQuery(records []models.ThreatRecord) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO threat_records (report_id, threat_text, attack_type, severity, source) VALUES `)
	args := make([]interface{}, 0, len(records)*5)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, r.ReportID, r.ThreatText, string(r.AttackType), string(r.Severity), string(r.Source))
	}
	return sb.String(), args
}

// LoadCorpus 按报告编号顺序读回语料
func (s *Storage) LoadCorpus(ctx context.Context) ([]models.ThreatRecord, error) {
	if !s.HasMySQL() {
		return nil, nil
	}
	rows, err := s.mysqlDB.QueryContext(ctx,
		`SELECT report_id, threat_text, attack_type, severity, source FROM threat_records ORDER BY report_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ThreatRecord
	for rows.Next() {
		var r models.ThreatRecord
		var attack, severity, source string
		if err := rows.Scan(&r.ReportID, &r.ThreatText, &attack, &severity, &source); err != nil {
			return nil, err
		}
		r.AttackType, _ = models.ParseAttackType(attack)
		r.Severity = models.Severity(severity)
		r.Source = models.Source(source)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveAlertEvent 保存告警事件到 MySQL
func (s *Storage) SaveAlertEvent(ctx context.Context, e models.AlertEvent) error {
	if !s.HasMySQL() {
		return nil
	}
	query := `
        INSERT INTO alert_events (
            fingerprint, threat_type, confidence, method, created_at
        ) VALUES (?, ?, ?, ?, ?)
    `
	result, err := s.mysqlDB.ExecContext(ctx, query,
		e.Fingerprint,
		string(e.ThreatType),
		e.Confidence,
		string(e.Method),
		e.CreatedAt,
	)
	if err != nil {
		logger.Log.Errorf("保存告警事件失败: %v", err)
		return err
	}

	affected, _ := result.RowsAffected()
	logger.Log.Infof("成功保存告警事件，影响行数: %d", affected)
	return nil
}

// RecentAlertEvents 读取 since 之后的告警
func (s *Storage) RecentAlertEvents(ctx context.Context, since time.Time) ([]models.AlertEvent, error) {
	if !s.HasMySQL() {
		return nil, nil
	}
	query := `
		SELECT fingerprint, threat_type, confidence, method, created_at
		FROM alert_events
		WHERE created_at > ?
	`
	rows, err := s.mysqlDB.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		var e models.AlertEvent
		var threat, method string
		if err := rows.Scan(&e.Fingerprint, &threat, &e.Confidence, &method, &e.CreatedAt); err != nil {
			logger.Log.Errorf("扫描告警记录失败: %v", err)
			continue
		}
		e.ThreatType = models.AttackType(threat)
		e.Method = models.Method(method)
		events = append(events, e)
	}
	return events, rows.Err()
}

// analysisPoint 每次分析一个点，不包含请求原文
func analysisPoint(resp models.AnalysisResponse, latency time.Duration, at time.Time) *write.Point {
	primary := resp.Primary()
	fields := map[string]interface{}{
		"confidence": primary.Confidence,
		"latency_ms": float64(latency.Microseconds()) / 1000,
		"indicators": len(resp.Indicators),
	}
	if resp.DatasetResult != nil {
		fields["dataset_confidence"] = resp.DatasetResult.Confidence
		fields["spam_score"] = resp.DatasetResult.SpamScore
	}
	if resp.MLResult != nil {
		fields["model_confidence"] = resp.MLResult.Confidence
	}
	if resp.AIResult != nil {
		fields["ai_confidence"] = resp.AIResult.Confidence
	}

	return influxdb2.NewPoint(
		"threat_analysis",
		map[string]string{
			"method":       string(primary.Method),
			"category":     string(primary.ThreatType),
			"model_loaded": fmt.Sprint(resp.ModelLoaded),
			"ai":           fmt.Sprint(resp.AIResult != nil),
		},
		fields,
		at,
	)
}

// RecordAnalysis 写入分析遥测到 InfluxDB
func (s *Storage) RecordAnalysis(ctx context.Context, resp models.AnalysisResponse, latency time.Duration) error {
	if !s.HasInflux() {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, analysisPoint(resp, latency, time.Now())); err != nil {
		return fmt.Errorf("write threat_analysis point: %w", err)
	}
	return nil
}

// RecordTraining 写入一次训练的评估结果
func (s *Storage) RecordTraining(ctx context.Context, runID string, accuracy float64, samples int) error {
	if !s.HasInflux() {
		return nil
	}
	p := influxdb2.NewPoint(
		"model_training",
		map[string]string{"run_id": runID},
		map[string]interface{}{"accuracy": accuracy, "samples": samples},
		time.Now(),
	)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write model_training point: %w", err)
	}
	return nil
}

func (s *Storage) Close() {
	if s == nil {
		return
	}
	if s.influxClient != nil {
		s.influxClient.Close()
	}
	if s.mysqlDB != nil {
		s.mysqlDB.Close()
	}
}
