// Package scripts 提供话术脚本：远端话术服务与内置脚本
package scripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"ai_call_agent/internal/models"
)

// ErrNotFound 租户或行业没有对应脚本
var ErrNotFound = errors.New("话术脚本不存在")

// Config 话术服务客户端配置
type Config struct {
	BaseURL    string        // 话术服务地址（完整URL）
	APIKey     string        // 访问令牌，可为空
	Timeout    time.Duration // 单次请求超时
	MaxRetries uint          // 服务端错误时的最大尝试次数
	RetryDelay time.Duration // 首次重试间隔
}

// Client 话术服务客户端
type Client struct {
	config Config
	client *http.Client
}

// NewClient 创建新的话术服务客户端
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// GetScript 获取租户在某行业下的脚本，5xx 和网络错误会按指数退避重试
func (c *Client) GetScript(ctx context.Context, tenantID, industry string) (*models.Script, error) {
	endpoint := fmt.Sprintf("%s/tenants/%s/scripts/%s",
		c.config.BaseURL, url.PathEscape(tenantID), url.PathEscape(industry))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryDelay

	script, err := backoff.Retry(ctx, func() (*models.Script, error) {
		return c.fetch(ctx, endpoint, tenantID)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.config.MaxRetries))
	if err != nil {
		return nil, fmt.Errorf("获取话术脚本失败: tenant=%s, industry=%s: %w", tenantID, industry, err)
	}
	if script.Industry == "" {
		script.Industry = industry
	}
	log.Printf("[INFO] 获取话术脚本: tenant=%s, industry=%s, script=%s", tenantID, industry, script.ID)
	return script, nil
}

func (c *Client) fetch(ctx context.Context, endpoint, tenantID string) (*models.Script, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("创建请求失败: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[WARN] 话术服务返回错误，准备重试: status=%d, body=%s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("服务器返回错误: status=%d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, backoff.Permanent(fmt.Errorf("服务器返回错误: status=%d, body=%s", resp.StatusCode, string(body)))
	}

	var script models.Script
	if err := json.NewDecoder(resp.Body).Decode(&script); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("解析响应失败: %w", err))
	}
	return &script, nil
}
