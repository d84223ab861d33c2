package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-threatnet/pkg/artifacts"
	"go-threatnet/pkg/assistant"
	"go-threatnet/pkg/catalog"
	"go-threatnet/pkg/corpus"
	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/metrics"
	"go-threatnet/pkg/models"

	"github.com/sourcegraph/conc"
)

// DefaultAssistantTimeout 外部大模型调用的默认超时
const DefaultAssistantTimeout = 15 * time.Second

// Assistant 外部大模型信号
type Assistant interface {
	Analyze(ctx context.Context, text, messageType string) (*models.AIResult, error)
}

// IndicatorExtractor 从文本中提取IP指标
type IndicatorExtractor interface {
	Extract(text string) []models.Indicator
}

// Recorder 分析完成后的遥测写入
type Recorder interface {
	RecordAnalysis(ctx context.Context, resp models.AnalysisResponse, latency time.Duration) error
}

// Notifier 高置信度威胁的告警
type Notifier interface {
	Notify(ctx context.Context, text string, resp models.AnalysisResponse) error
}

// Context 启动时构建一次，之后只读
// Bundle、Assistant、Indicators 为空表示对应能力不可用
type Context struct {
	Corpus           *corpus.Index
	Bundle           *artifacts.Bundle
	Assistant        Assistant
	Indicators       IndicatorExtractor
	AssistantTimeout time.Duration
}

// Service 推理服务，可被并发调用
type Service struct {
	c        Context
	recorder Recorder
	notifier Notifier
	alerts   conc.WaitGroup
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(c Context, opts ...Option) *Service {
	if c.AssistantTimeout <= 0 {
		c.AssistantTimeout = DefaultAssistantTimeout
	}
	s := &Service{c: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ModelLoaded() bool {
	return s.c.Bundle != nil
}

func (s *Service) AssistantEnabled() bool {
	return s.c.Assistant != nil
}

func (s *Service) CorpusRecords() int {
	return s.c.Corpus.Len()
}

// Analyze 三个信号并发计算后合并，任何可选信号失败都只会让对应字段为空
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) models.AnalysisResponse {
	req = req.WithDefaults()
	start := time.Now()

	resp := models.AnalysisResponse{ModelLoaded: s.ModelLoaded()}

	// 每个 goroutine 只写自己的字段
	var wg conc.WaitGroup
	wg.Go(func() {
		d := datasetSignal(s.c.Corpus, req.Text)
		resp.DatasetResult = &d
	})
	wg.Go(func() {
		resp.MLResult = s.modelSignal(req.Text)
	})
	wg.Go(func() {
		resp.AIResult = s.assistantSignal(ctx, req)
	})
	if s.c.Indicators != nil {
		wg.Go(func() {
			resp.Indicators = s.c.Indicators.Extract(req.Text)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		logger.Log.Errorf("信号计算异常: %v", r.Value)
	}

	if resp.DatasetResult == nil {
		d := noMatch()
		resp.DatasetResult = &d
	}
	resp.AttackPath = catalog.Path(string(pathCategory(resp)))

	latency := time.Since(start)
	s.observe(resp)
	logger.Log.Infof("分析完成: dataset=%s/%s, model=%v, ai=%v, 耗时=%s",
		resp.DatasetResult.Method, resp.DatasetResult.ThreatType,
		resp.MLResult != nil, resp.AIResult != nil, latency)

	if s.recorder != nil {
		if err := s.recorder.RecordAnalysis(ctx, resp, latency); err != nil {
			logger.Log.Errorf("写入分析遥测失败: %v", err)
		}
	}
	if s.notifier != nil {
		// 告警不占用请求路径，请求结束也不取消；超时由告警器自己控制
		nctx := context.WithoutCancel(ctx)
		text := req.Text
		s.alerts.Go(func() {
			if err := s.notifier.Notify(nctx, text, resp); err != nil {
				logger.Log.Errorf("触发告警失败: %v", err)
			}
		})
	}
	return resp
}

// Wait 等待已派发的告警发送完成，退出前调用
func (s *Service) Wait() {
	if r := s.alerts.WaitAndRecover(); r != nil {
		logger.Log.Errorf("告警发送异常: %v", r.Value)
	}
}

// pathCategory 攻击路径以模型预测为准，没有模型时取语料信号
func pathCategory(resp models.AnalysisResponse) models.AttackType {
	if resp.MLResult != nil {
		return resp.MLResult.ThreatType
	}
	return resp.DatasetResult.ThreatType
}

func (s *Service) modelSignal(text string) *models.MLResult {
	if s.c.Bundle == nil {
		metrics.SignalAbsent.WithLabelValues("model", "not_loaded").Inc()
		return nil
	}
	label, confidence, proba := s.c.Bundle.Classify(text)
	attack, _ := models.ParseAttackType(label)
	return &models.MLResult{
		AnalysisResult: models.AnalysisResult{
			ThreatType:  attack,
			Confidence:  confidence,
			Method:      models.MethodModel,
			Explanation: fmt.Sprintf("Random forest vote across %d trees", len(s.c.Bundle.Model.Forest)),
			Mitigation:  catalog.Lookup(label),
		},
		Probabilities: proba,
	}
}

type assistantReply struct {
	result *models.AIResult
	err    error
}

// assistantSignal 超时后立即返回，不等待未响应的调用
func (s *Service) assistantSignal(ctx context.Context, req models.AnalysisRequest) *models.AIResult {
	if s.c.Assistant == nil {
		metrics.SignalAbsent.WithLabelValues("assistant", "no_credential").Inc()
		return nil
	}
	if strings.TrimSpace(req.Text) == "" {
		metrics.SignalAbsent.WithLabelValues("assistant", "empty_input").Inc()
		return nil
	}

	actx, cancel := context.WithTimeout(ctx, s.c.AssistantTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan assistantReply, 1)
	go func() {
		res, err := s.c.Assistant.Analyze(actx, req.Text, req.MessageType)
		done <- assistantReply{res, err}
	}()

	var reply assistantReply
	select {
	case reply = <-done:
	case <-actx.Done():
		reply.err = actx.Err()
	}
	metrics.AssistantLatency.Observe(time.Since(start).Seconds())

	if reply.err == nil && reply.result == nil {
		reply.err = assistant.ErrNoJSON
	}
	if reply.err != nil {
		reason := absentReason(reply.err)
		metrics.SignalAbsent.WithLabelValues("assistant", reason).Inc()
		logger.Log.Warnf("外部大模型信号缺失: reason=%s, err=%v", reason, reply.err)
		return nil
	}
	return reply.result
}

func absentReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, assistant.ErrNoJSON), errors.Is(err, assistant.ErrInvalidReply):
		return "unparseable"
	default:
		return "error"
	}
}

func (s *Service) observe(resp models.AnalysisResponse) {
	if d := resp.DatasetResult; d != nil {
		metrics.AnalysesTotal.WithLabelValues(string(d.Method)).Inc()
		metrics.ConfidenceHistogram.WithLabelValues("dataset").Observe(d.Confidence)
	}
	if m := resp.MLResult; m != nil {
		metrics.AnalysesTotal.WithLabelValues(string(m.Method)).Inc()
		metrics.ConfidenceHistogram.WithLabelValues("model").Observe(m.Confidence)
	}
	if a := resp.AIResult; a != nil {
		metrics.AnalysesTotal.WithLabelValues(string(a.Method)).Inc()
		metrics.ConfidenceHistogram.WithLabelValues("assistant").Observe(a.Confidence)
	}
}
