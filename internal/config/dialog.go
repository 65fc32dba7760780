package config

import "ai_call_agent/internal/dialog"

// DialogConfig 对话引擎配置
type DialogConfig struct {
	MaxInputLength         int     `yaml:"max_input_length"`         // 输入最大字符数，超出截断
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"` // 低于该置信度转人工
	ClarificationThreshold float64 `yaml:"clarification_threshold"`  // 低于该置信度追问
	MaxClarifications      int     `yaml:"max_clarifications"`       // 连续追问上限
	QualifiedScore         float64 `yaml:"qualified_score"`          // 合格线索分数
	SentimentWindow        int     `yaml:"sentiment_window"`         // 情绪趋势窗口
	MaxObjections          int     `yaml:"max_objections"`           // 异议上限
}

func (c *DialogConfig) setDefaults() {
	if c.MaxInputLength == 0 {
		c.MaxInputLength = dialog.DefaultMaxInputLength
	}
	if c.LowConfidenceThreshold == 0 {
		c.LowConfidenceThreshold = dialog.DefaultLowConfidenceThreshold
	}
	if c.ClarificationThreshold == 0 {
		c.ClarificationThreshold = dialog.DefaultClarificationThreshold
	}
	if c.MaxClarifications == 0 {
		c.MaxClarifications = dialog.DefaultMaxClarifications
	}
	if c.QualifiedScore == 0 {
		c.QualifiedScore = dialog.DefaultQualifiedScore
	}
	if c.SentimentWindow == 0 {
		c.SentimentWindow = dialog.DefaultSentimentWindow
	}
	if c.MaxObjections == 0 {
		c.MaxObjections = dialog.DefaultMaxObjections
	}
}

// Validate 验证对话引擎配置
func (c *DialogConfig) Validate() error {
	if c.LowConfidenceThreshold < 0 || c.ClarificationThreshold > 1 ||
		c.LowConfidenceThreshold > c.ClarificationThreshold {
		return ErrInvalidThreshold
	}
	if c.MaxClarifications < 1 {
		return ErrInvalidClarifications
	}
	if c.QualifiedScore <= 0 || c.QualifiedScore > 10 {
		return ErrInvalidQualifiedScore
	}
	if c.MaxInputLength < 1 {
		return ErrInvalidInputLength
	}
	return nil
}

// EngineConfig 转换为对话引擎配置
func (c *DialogConfig) EngineConfig() dialog.Config {
	return dialog.Config{
		MaxInputLength:         c.MaxInputLength,
		LowConfidenceThreshold: c.LowConfidenceThreshold,
		ClarificationThreshold: c.ClarificationThreshold,
		MaxClarifications:      c.MaxClarifications,
		QualifiedScore:         c.QualifiedScore,
		SentimentWindow:        c.SentimentWindow,
		MaxObjections:          c.MaxObjections,
	}
}
