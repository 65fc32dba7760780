package realtime

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"ai_call_agent/internal/metrics"
)

// outboundFrame 已编码的出站消息
type outboundFrame struct {
	typ  string
	data []byte
}

// connection 一条WebSocket连接及其写协程
type connection struct {
	ws        *websocket.Conn
	out       chan outboundFrame
	done      chan struct{}
	closeOnce sync.Once

	// established 收到 session.created 后关闭
	established chan struct{}
	estOnce     sync.Once
	// failed 会话建立前的读错误
	failed chan error

	reconnect   bool
	clientClose atomic.Bool
}

func newConnection(ws *websocket.Conn, reconnect bool) *connection {
	return &connection{
		ws:          ws,
		out:         make(chan outboundFrame, outboundQueueSize),
		done:        make(chan struct{}),
		established: make(chan struct{}),
		failed:      make(chan error, 1),
		reconnect:   reconnect,
	}
}

// enqueue 将消息交给写协程，保持调用顺序
func (cn *connection) enqueue(f outboundFrame) error {
	select {
	case <-cn.done:
		return ErrClosed
	default:
	}
	select {
	case cn.out <- f:
		return nil
	case <-cn.done:
		return ErrClosed
	}
}

func (cn *connection) markEstablished() {
	cn.estOnce.Do(func() { close(cn.established) })
}

func (cn *connection) isClosed() bool {
	select {
	case <-cn.done:
		return true
	default:
		return false
	}
}

// close 停止写协程并关闭底层连接，可重复调用
func (cn *connection) close() {
	cn.closeOnce.Do(func() {
		close(cn.done)
		_ = cn.ws.Close()
	})
}

// closeNormal 发送正常关闭帧后关闭连接
func (cn *connection) closeNormal(timeout time.Duration) {
	cn.clientClose.Store(true)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := cn.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout)); err != nil {
		log.Printf("[DEBUG] 发送关闭帧失败: %v", err)
	}
	cn.close()
}

// writeLoop 单写协程：按序写出消息并定时发送心跳
func (cn *connection) writeLoop(clock clockwork.Clock, writeTimeout, pingInterval time.Duration) {
	var ping <-chan time.Time
	if pingInterval > 0 {
		ticker := clock.NewTicker(pingInterval)
		defer ticker.Stop()
		ping = ticker.Chan()
	}

	for {
		select {
		case <-cn.done:
			return
		case <-ping:
			if err := cn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Printf("[WARN] 发送心跳失败: %v", err)
				_ = cn.ws.Close()
				return
			}
		case f := <-cn.out:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cn.ws.WriteMessage(websocket.TextMessage, f.data); err != nil {
				log.Printf("[ERROR] 写入实时消息失败: type=%s, err=%v", f.typ, err)
				// 关闭底层连接，由读协程统一处理断线
				_ = cn.ws.Close()
				return
			}
			metrics.RealtimeMessagesSent.WithLabelValues(f.typ).Inc()
		}
	}
}
