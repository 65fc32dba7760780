// Package scheduling 预约排期服务客户端
package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"ai_call_agent/internal/models"
)

// ErrUnexpectedStatus 排期服务返回了无法识别的结果
var ErrUnexpectedStatus = errors.New("排期服务返回未知状态")

// Config 排期服务客户端配置
type Config struct {
	BaseURL string        // 排期服务地址（完整URL）
	APIKey  string        // 访问令牌，可为空
	Timeout time.Duration // 请求超时
}

// Client 排期服务客户端，实现 models.Scheduler
type Client struct {
	config Config
	client *http.Client
}

// NewClient 创建新的排期服务客户端
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Book 提交预约；409 表示时段冲突，响应体携带备选时段
func (c *Client) Book(ctx context.Context, booking models.BookingRequest) (*models.BookingResult, error) {
	jsonData, err := json.Marshal(booking)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/appointments", c.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", booking.TenantID)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("服务器返回错误: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result models.BookingResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if resp.StatusCode == http.StatusConflict {
		result.Status = models.BookingConflict
	}

	switch result.Status {
	case models.BookingConfirmed:
		log.Printf("[INFO] 预约已确认: tenant=%s, call_id=%s, confirmation=%s",
			booking.TenantID, booking.CallID, result.ConfirmationID)
	case models.BookingConflict:
		log.Printf("[INFO] 预约时段冲突: tenant=%s, call_id=%s, alternatives=%d",
			booking.TenantID, booking.CallID, len(result.Alternatives))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedStatus, result.Status)
	}
	return &result, nil
}
