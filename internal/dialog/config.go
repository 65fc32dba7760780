package dialog

import (
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"

	"ai_call_agent/internal/models"
)

// 默认参数
const (
	DefaultMaxInputLength         = 1000
	DefaultLowConfidenceThreshold = 0.3
	DefaultClarificationThreshold = 0.5
	DefaultMaxClarifications      = 3
	DefaultQualifiedScore         = 7.0
	DefaultSentimentWindow        = 5
	DefaultMaxObjections          = 2
)

// Config 对话引擎参数
type Config struct {
	MaxInputLength         int     // 超过该长度（按字符）的输入会被截断
	LowConfidenceThreshold float64 // 低于该置信度直接转人工
	ClarificationThreshold float64 // 低于该置信度需要追问
	MaxClarifications      int     // 连续追问达到该次数后转人工
	QualifiedScore         float64 // 达到该分数视为合格线索
	SentimentWindow        int     // 情绪趋势统计的客户轮次窗口
	MaxObjections          int     // 异议达到该次数后结束通话

	Clock          clockwork.Clock
	TracerProvider trace.TracerProvider
	Scheduler      models.Scheduler
}

// withDefaults 补全未设置的参数
func (c Config) withDefaults() Config {
	if c.MaxInputLength <= 0 {
		c.MaxInputLength = DefaultMaxInputLength
	}
	if c.LowConfidenceThreshold <= 0 {
		c.LowConfidenceThreshold = DefaultLowConfidenceThreshold
	}
	if c.ClarificationThreshold <= 0 {
		c.ClarificationThreshold = DefaultClarificationThreshold
	}
	if c.MaxClarifications <= 0 {
		c.MaxClarifications = DefaultMaxClarifications
	}
	if c.QualifiedScore <= 0 {
		c.QualifiedScore = DefaultQualifiedScore
	}
	if c.SentimentWindow <= 0 {
		c.SentimentWindow = DefaultSentimentWindow
	}
	if c.MaxObjections <= 0 {
		c.MaxObjections = DefaultMaxObjections
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}
