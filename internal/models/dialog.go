package models

import "context"

// Script 行业话术脚本，由外部话术服务或内置脚本提供
type Script struct {
	ID                     string                `json:"id" yaml:"id"`
	Industry               string                `json:"industry" yaml:"industry"`
	Name                   string                `json:"name" yaml:"name"`
	Greeting               string                `json:"greeting" yaml:"greeting"`
	Introduction           string                `json:"introduction" yaml:"introduction"`
	BookingPrompt          string                `json:"booking_prompt" yaml:"booking_prompt"`
	Closing                string                `json:"closing" yaml:"closing"`
	TransferMessage        string                `json:"transfer_message" yaml:"transfer_message"`
	ClarificationQuestions []string              `json:"clarification_questions" yaml:"clarification_questions"`
	Criteria               []CriterionDefinition `json:"criteria" yaml:"criteria"`
	Knowledge              []KnowledgeEntry      `json:"knowledge" yaml:"knowledge"`
	Objections             []ObjectionTemplate   `json:"objections" yaml:"objections"`
}

// CriterionDefinition 资质评估项
type CriterionDefinition struct {
	Name     string           `json:"name" yaml:"name"`
	Weight   float64          `json:"weight" yaml:"weight"`
	Question string           `json:"question" yaml:"question"`
	Values   []CriterionValue `json:"values,omitempty" yaml:"values,omitempty"` // 为空时使用内置提取规则
}

// CriterionValue 评估项的一个取值及其匹配关键词
type CriterionValue struct {
	Value    string   `json:"value" yaml:"value"`
	Score    float64  `json:"score" yaml:"score"` // 0~1，越高越接近成交
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// KnowledgeEntry 领域问答片段
type KnowledgeEntry struct {
	Topic    string   `json:"topic" yaml:"topic"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Answer   string   `json:"answer" yaml:"answer"`
}

// ObjectionTemplate 异议应对话术
type ObjectionTemplate struct {
	Keywords []string `json:"keywords" yaml:"keywords"`
	Response string   `json:"response" yaml:"response"`
}

// ScriptProvider 话术脚本来源
type ScriptProvider interface {
	// GetScript 按租户和行业获取脚本
	GetScript(ctx context.Context, tenantID, industry string) (*Script, error)
}
