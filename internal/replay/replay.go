package replay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"ai_call_agent/internal/types"
)

// MaxGap 两个包之间最长的等待时间，抓包中的长时间静音会被压缩
const MaxGap = 100 * time.Millisecond

// Sender 接收回放音频的一端
type Sender interface {
	SendAudio(payload []byte) error
}

// Stats 回放统计
type Stats struct {
	Packets  int
	Bytes    int
	Duration time.Duration
}

// Gaps 每个包发送前的等待时间，按抓包时间间隔计算并限制在 MaxGap 以内
func Gaps(packets []Packet) []time.Duration {
	gaps := make([]time.Duration, len(packets))
	for i := 1; i < len(packets); i++ {
		gap := packets[i].Captured.Sub(packets[i-1].Captured)
		switch {
		case gap < 0:
			gap = 0
		case gap > MaxGap:
			gap = MaxGap
		}
		gaps[i] = gap
	}
	return gaps
}

// Play 按原始节奏发送音频，ctx 结束时停止
func Play(ctx context.Context, clock clockwork.Clock, packets []Packet, sender Sender) (Stats, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var stats Stats
	start := clock.Now()
	for i, gap := range Gaps(packets) {
		if gap > 0 {
			select {
			case <-ctx.Done():
				stats.Duration = clock.Since(start)
				return stats, ctx.Err()
			case <-clock.After(gap):
			}
		}
		if err := sender.SendAudio(packets[i].Payload); err != nil {
			stats.Duration = clock.Since(start)
			return stats, fmt.Errorf("发送第%d个音频包失败: %w", i+1, err)
		}
		stats.Packets++
		stats.Bytes += len(packets[i].Payload)
	}
	stats.Duration = clock.Since(start)
	return stats, nil
}

// Uploader 通过媒体 WebSocket 向通话发送音频
type Uploader struct {
	conn *websocket.Conn
	done chan struct{}
}

// Dial 连接通话的媒体通道
func Dial(ctx context.Context, url, tenantID string) (*Uploader, error) {
	header := http.Header{}
	if tenantID != "" {
		header.Set("X-Tenant-ID", tenantID)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("连接媒体通道失败: status=%d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("连接媒体通道失败: %w", err)
	}
	u := &Uploader{conn: conn, done: make(chan struct{})}
	go u.readLoop()
	return u, nil
}

// SendAudio 发送一段客户音频
func (u *Uploader) SendAudio(payload []byte) error {
	return u.conn.WriteMessage(websocket.BinaryMessage, payload)
}

// Commit 提交已发送的音频
func (u *Uploader) Commit() error {
	return u.conn.WriteJSON(types.MediaMessage{Event: types.MediaEventCommit})
}

// Done 服务端关闭媒体通道后关闭
func (u *Uploader) Done() <-chan struct{} {
	return u.done
}

// Close 发送关闭帧并断开连接
func (u *Uploader) Close() error {
	_ = u.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return u.conn.Close()
}

// readLoop 记录服务端的控制消息，同时处理心跳
func (u *Uploader) readLoop() {
	defer close(u.done)
	for {
		typ, data, err := u.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				log.Printf("[INFO] 媒体通道已关闭: code=%d, reason=%s", ce.Code, ce.Text)
			}
			return
		}
		if typ == websocket.TextMessage {
			log.Printf("[INFO] 收到控制消息: %s", data)
		}
	}
}

// Options 回放参数
type Options struct {
	PCAP     string
	URL      string
	TenantID string
	Filter   Filter
	Commit   bool // 回放结束后提交音频缓冲
}

// Run 读取抓包并回放到通话
func Run(ctx context.Context, opts Options) (Stats, error) {
	packets, err := ReadFile(opts.PCAP, opts.Filter)
	if err != nil {
		return Stats{}, err
	}
	u, err := Dial(ctx, opts.URL, opts.TenantID)
	if err != nil {
		return Stats{}, err
	}
	defer u.Close()

	stats, err := Play(ctx, nil, packets, u)
	if err != nil {
		return stats, err
	}
	if opts.Commit {
		if err := u.Commit(); err != nil {
			return stats, fmt.Errorf("提交音频失败: %w", err)
		}
	}
	log.Printf("[INFO] 回放完成: packets=%d, bytes=%d, duration=%s", stats.Packets, stats.Bytes, stats.Duration)
	return stats, nil
}
