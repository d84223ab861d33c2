package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatnet_analyses_total",
		Help: "按信号方法统计的分析结果总数",
	}, []string{"method"})

	SignalAbsent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatnet_signal_absent_total",
		Help: "缺失的可选信号次数",
	}, []string{"signal", "reason"})

	ConfidenceHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "threatnet_confidence",
		Help:    "各信号置信度分布",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	}, []string{"signal"})

	AssistantLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "threatnet_assistant_seconds",
		Help:    "外部大模型调用耗时",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	ModelAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "threatnet_model_accuracy",
		Help: "最近一次训练在留出集上的准确率",
	})

	AlertsTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threatnet_alerts_triggered_total",
		Help: "触发的告警总数",
	})
)
