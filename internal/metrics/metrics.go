// Package metrics 提供通话、对话和实时连接的Prometheus指标
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ai_call_agent"

var (
	// TurnsTotal 按意图统计的客户轮次
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_turns_total",
			Help:      "Total number of customer turns processed, by detected intent",
		},
		[]string{"intent"},
	)

	// TransfersTotal 按原因统计的转人工次数
	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_transfers_total",
			Help:      "Total number of transfers to a human agent, by reason",
		},
		[]string{"reason"},
	)

	// ReasoningDuration 推理流水线耗时
	ReasoningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialog_reasoning_duration_seconds",
			Help:      "Duration of the per-turn reasoning pipeline in seconds",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	// ReasoningFailures 被吸收的推理失败次数
	ReasoningFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_reasoning_failures_total",
			Help:      "Total number of reasoning failures converted into fallback responses",
		},
	)

	// QualificationScore 每轮结束时的资质评分
	QualificationScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialog_qualification_score",
			Help:      "Qualification score observed after each customer turn",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	// RealtimeMessagesSent 按类型统计的出站协议消息
	RealtimeMessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_messages_sent_total",
			Help:      "Total number of protocol messages written to the realtime engine, by type",
		},
		[]string{"type"},
	)

	// RealtimeMessagesReceived 按类型统计的入站协议消息
	RealtimeMessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_messages_received_total",
			Help:      "Total number of protocol messages received from the realtime engine, by type",
		},
		[]string{"type"},
	)

	// RealtimeReconnects 按结果统计的重连次数
	RealtimeReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_reconnects_total",
			Help:      "Total number of reconnect attempts, by outcome",
		},
		[]string{"status"}, // status: success, error, exhausted
	)

	// ToolCallsTotal 按工具和结果统计的工具调用
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_tool_calls_total",
			Help:      "Total number of tool invocations requested by the realtime engine",
		},
		[]string{"tool", "status"}, // status: success, error, timeout, unknown
	)

	// HTTPRequestsTotal 按路由和状态码统计的HTTP请求
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served, by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	// ActiveCalls 当前活跃通话数
	ActiveCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of calls currently owned by this process",
		},
	)
)

// Register 将全部指标注册到给定注册器，重复注册会被忽略
func Register(reg prometheus.Registerer) {
	collectors := []prometheus.Collector{
		TurnsTotal,
		TransfersTotal,
		ReasoningDuration,
		ReasoningFailures,
		QualificationScore,
		RealtimeMessagesSent,
		RealtimeMessagesReceived,
		RealtimeReconnects,
		ToolCallsTotal,
		HTTPRequestsTotal,
		ActiveCalls,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}
