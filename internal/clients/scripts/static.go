package scripts

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ai_call_agent/internal/models"
)

// GeneralIndustry 找不到行业脚本时使用的通用脚本
const GeneralIndustry = "general"

//go:embed builtin.yaml
var builtinYAML []byte

// scriptFile 脚本文件格式
type scriptFile struct {
	Scripts []models.Script `yaml:"scripts"`
}

// Static 本地脚本，按行业索引，与租户无关
type Static struct {
	scripts map[string]models.Script
}

// Builtin 内置的 hvac 与 general 脚本
func Builtin() (*Static, error) {
	return ParseStatic(builtinYAML)
}

// LoadStatic 从YAML文件加载脚本
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取脚本文件失败: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic 解析YAML格式的脚本列表
func ParseStatic(data []byte) (*Static, error) {
	var f scriptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析脚本文件失败: %w", err)
	}
	s := &Static{scripts: make(map[string]models.Script, len(f.Scripts))}
	for _, script := range f.Scripts {
		if script.Industry == "" {
			return nil, fmt.Errorf("脚本 %q 缺少行业", script.ID)
		}
		s.scripts[strings.ToLower(script.Industry)] = script
	}
	return s, nil
}

// Industries 已加载的行业
func (s *Static) Industries() []string {
	out := make([]string, 0, len(s.scripts))
	for k := range s.scripts {
		out = append(out, k)
	}
	return out
}

// GetScript 按行业返回脚本副本，未知行业回退到通用脚本
func (s *Static) GetScript(_ context.Context, tenantID, industry string) (*models.Script, error) {
	script, ok := s.scripts[strings.ToLower(industry)]
	if !ok {
		script, ok = s.scripts[GeneralIndustry]
		if !ok {
			return nil, fmt.Errorf("%w: industry=%s", ErrNotFound, industry)
		}
		log.Printf("[DEBUG] 使用通用脚本: tenant=%s, industry=%s", tenantID, industry)
	}
	return &script, nil
}

// Chain 依次尝试多个来源，返回第一个成功的结果
type Chain []models.ScriptProvider

// GetScript 实现 models.ScriptProvider
func (c Chain) GetScript(ctx context.Context, tenantID, industry string) (*models.Script, error) {
	var lastErr error = ErrNotFound
	for _, p := range c {
		script, err := p.GetScript(ctx, tenantID, industry)
		if err == nil {
			return script, nil
		}
		log.Printf("[WARN] 话术来源失败，尝试下一个: tenant=%s, industry=%s, err=%v", tenantID, industry, err)
		lastErr = err
	}
	return nil, lastErr
}
