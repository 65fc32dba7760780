package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// errNoAnswer 知识库中没有相关内容
var errNoAnswer = errors.New("no answer for this question")

type knowledgeArgs struct {
	Question string `json:"question"`
}

// registerTools 为远端声明可调用的本地工具
func registerTools(c *Call) error {
	knowledgeSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string", "description": "The caller's question"},
		},
		"required": []string{"question"},
	}
	if err := c.rt.AddTool("lookup_knowledge", "Look up an approved answer about pricing, services or policies.",
		knowledgeSchema, c.lookupKnowledge); err != nil {
		return fmt.Errorf("注册工具失败: %w", err)
	}

	statusSchema := map[string]any{"type": "object", "properties": map[string]any{}}
	if err := c.rt.AddTool("get_call_status", "Get the current conversation stage and lead qualification.",
		statusSchema, c.callStatus); err != nil {
		return fmt.Errorf("注册工具失败: %w", err)
	}
	return nil
}

// lookupKnowledge 按主题或关键词匹配脚本中的问答
func (c *Call) lookupKnowledge(_ context.Context, raw json.RawMessage) (any, error) {
	var args knowledgeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	q := strings.ToLower(strings.TrimSpace(args.Question))
	if q == "" {
		return nil, errors.New("question is required")
	}

	best, bestHits := "", 0
	for _, e := range c.script.Knowledge {
		hits := 0
		if strings.Contains(q, strings.ToLower(e.Topic)) {
			hits++
		}
		for _, kw := range e.Keywords {
			if strings.Contains(q, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = e.Answer, hits
		}
	}
	if bestHits == 0 {
		return nil, errNoAnswer
	}
	return map[string]string{"answer": best}, nil
}

// callStatus 当前阶段与资质评分
func (c *Call) callStatus(context.Context, json.RawMessage) (any, error) {
	return map[string]any{
		"state":               c.engine.CurrentState(),
		"qualification_score": c.engine.QualificationScore(),
		"qualified":           c.engine.Qualified(),
		"status":              c.Status(),
	}, nil
}
