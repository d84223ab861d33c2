package alerter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-threatnet/pkg/catalog"
	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/metrics"
	"go-threatnet/pkg/models"

	"github.com/cespare/xxhash/v2"
)

// Store 告警记录的持久化，可选
type Store interface {
	SaveAlertEvent(ctx context.Context, e models.AlertEvent) error
	RecentAlertEvents(ctx context.Context, since time.Time) ([]models.AlertEvent, error)
}

type Config struct {
	WebhookURL    string
	MinConfidence float64
	Cooldown      time.Duration
	Timeout       time.Duration // 单次 webhook 调用上限
}

// DefaultTimeout 未配置时的 webhook 调用上限
const DefaultTimeout = 5 * time.Second

// Alerter 告警处理器
type Alerter struct {
	store             Store
	webhookURL        string
	minConfidence     float64
	client            *http.Client
	alertHistory      map[string]time.Time // 文本指纹 -> 最后告警时间
	alertHistoryMu    sync.RWMutex
	alertCooldownTime time.Duration
}

// NewAlerter 创建告警处理器，store 为空时只在内存中记录冷却
func NewAlerter(ctx context.Context, cfg Config, store Store) *Alerter {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	a := &Alerter{
		store:             store,
		webhookURL:        cfg.WebhookURL,
		minConfidence:     cfg.MinConfidence,
		client:            &http.Client{Timeout: cfg.Timeout},
		alertHistory:      make(map[string]time.Time),
		alertCooldownTime: cfg.Cooldown,
	}

	if store != nil {
		if err := a.loadRecentAlerts(ctx); err != nil {
			logger.Log.Errorf("加载最近告警记录失败: %v", err)
		}
	}
	return a
}

// Enabled 未配置 webhook 时不发送告警
func (a *Alerter) Enabled() bool {
	return a != nil && a.webhookURL != ""
}

// Run 定时清理过期的冷却记录，直到 ctx 结束
func (a *Alerter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.CleanupOldHistory()
			a.alertHistoryMu.RLock()
			n := len(a.alertHistory)
			a.alertHistoryMu.RUnlock()
			logger.Log.Debugf("已完成告警历史清理，当前记录数: %d", n)
		}
	}
}

// loadRecentAlerts 从数据库恢复冷却期内的告警
func (a *Alerter) loadRecentAlerts(ctx context.Context) error {
	events, err := a.store.RecentAlertEvents(ctx, time.Now().Add(-a.alertCooldownTime))
	if err != nil {
		return err
	}

	a.alertHistoryMu.Lock()
	defer a.alertHistoryMu.Unlock()
	for _, e := range events {
		if last, ok := a.alertHistory[e.Fingerprint]; !ok || e.CreatedAt.After(last) {
			a.alertHistory[e.Fingerprint] = e.CreatedAt
		}
	}

	logger.Log.Infof("已加载 %d 条最近告警记录", len(a.alertHistory))
	return nil
}

// Fingerprint 类别 + 归一化文本的摘要
func Fingerprint(attack models.AttackType, text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return string(attack) + ":" + strconv.FormatUint(xxhash.Sum64String(normalized), 16)
}

// Notify 主结果属于处置表中的攻击类别且置信度达到阈值时发送告警，同一文本在冷却期内只告警一次
func (a *Alerter) Notify(ctx context.Context, text string, resp models.AnalysisResponse) error {
	if !a.Enabled() {
		return nil
	}
	primary := resp.Primary()
	if !catalog.Known(string(primary.ThreatType)) || primary.Confidence < a.minConfidence {
		return nil
	}

	fingerprint := Fingerprint(primary.ThreatType, text)

	// 检查是否在冷却期内
	a.alertHistoryMu.RLock()
	lastAlertTime, exists := a.alertHistory[fingerprint]
	a.alertHistoryMu.RUnlock()

	now := time.Now()
	if exists && now.Sub(lastAlertTime) < a.alertCooldownTime {
		logger.Log.Infof("指纹 %s 在冷却期内，跳过告警", fingerprint)
		return nil
	}

	if err := a.sendAlertNotification(ctx, primary, now); err != nil {
		return fmt.Errorf("发送告警通知失败: %w", err)
	}

	a.alertHistoryMu.Lock()
	a.alertHistory[fingerprint] = now
	a.alertHistoryMu.Unlock()
	metrics.AlertsTriggered.Inc()

	if a.store != nil {
		event := models.AlertEvent{
			Fingerprint: fingerprint,
			ThreatType:  primary.ThreatType,
			Confidence:  primary.Confidence,
			Method:      primary.Method,
			CreatedAt:   now,
		}
		if err := a.store.SaveAlertEvent(ctx, event); err != nil {
			logger.Log.Errorf("保存告警记录失败: %v", err)
		}
	}

	logger.Log.Infof("成功触发告警: 类别=%s, 置信度=%.2f", primary.ThreatType, primary.Confidence)
	return nil
}

type alertPayload struct {
	Timestamp  time.Time         `json:"timestamp"`
	ThreatType models.AttackType `json:"threat_type"`
	Confidence float64           `json:"confidence"`
	Method     models.Method     `json:"method"`
	Caution    string            `json:"caution"`
	Action     string            `json:"action"`
	Message    string            `json:"message"`
}

// sendAlertNotification 发送告警通知
func (a *Alerter) sendAlertNotification(ctx context.Context, primary models.AnalysisResult, now time.Time) error {
	alert := alertPayload{
		Timestamp:  now,
		ThreatType: primary.ThreatType,
		Confidence: primary.Confidence,
		Method:     primary.Method,
		Caution:    primary.Mitigation.Caution,
		Action:     primary.Mitigation.Solution,
		Message: fmt.Sprintf("THREATNET ALERT\n\nThreat Type: %s\nConfidence: %.1f%%\n\nWarning: %s\n\nAction Required: %s",
			primary.ThreatType, primary.Confidence*100, primary.Mitigation.Caution, primary.Mitigation.Solution),
	}

	jsonData, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// CleanupOldHistory 清理过期的告警历史
func (a *Alerter) CleanupOldHistory() {
	a.alertHistoryMu.Lock()
	defer a.alertHistoryMu.Unlock()

	now := time.Now()
	for fingerprint, lastAlertTime := range a.alertHistory {
		if now.Sub(lastAlertTime) > a.alertCooldownTime {
			delete(a.alertHistory, fingerprint)
		}
	}
}
