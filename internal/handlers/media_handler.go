package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"ai_call_agent/internal/call"
	"ai_call_agent/internal/middleware"
	"ai_call_agent/internal/types"
)

const writeWait = 10 * time.Second

var (
	errPeerClosed = errors.New("电话层断开媒体连接")
	errCallClosed = errors.New("通话已结束")
)

// MediaConfig 媒体WebSocket参数
type MediaConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingPeriod      time.Duration
	PongWait        time.Duration
}

// MediaHandler 电话层媒体通道：二进制帧为音频，文本帧为控制消息
type MediaHandler struct {
	manager  *call.Manager
	upgrader websocket.Upgrader
	cfg      MediaConfig
}

// NewMediaHandler 创建媒体通道处理器
func NewMediaHandler(manager *call.Manager, cfg MediaConfig) *MediaHandler {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.PongWait <= cfg.PingPeriod {
		cfg.PongWait = cfg.PingPeriod * 2
	}
	return &MediaHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		cfg: cfg,
	}
}

// HandleWebSocket 处理媒体 WebSocket 连接
func (h *MediaHandler) HandleWebSocket(c *gin.Context) {
	cl, err := h.manager.Get(middleware.TenantID(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	select {
	case <-cl.Done():
		abortWithError(c, call.ErrCallEnded)
		return
	default:
	}

	// 升级 HTTP 连接为 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ERROR] 升级 WebSocket 连接失败: call_id=%s, err=%v", cl.ID(), err)
		return
	}
	defer conn.Close()
	log.Printf("[INFO] 媒体连接建立: call_id=%s, remote=%s", cl.ID(), conn.RemoteAddr())

	errs := make(chan types.MediaMessage, 16)
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error { return h.readLoop(conn, cl, errs) })
	g.Go(func() error { return h.writeLoop(ctx, conn, cl, errs) })
	g.Go(func() error {
		// 解除 readLoop 的阻塞读取
		<-ctx.Done()
		conn.Close()
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, errPeerClosed) && !errors.Is(err, errCallClosed) {
		log.Printf("[WARN] 媒体连接异常结束: call_id=%s, err=%v", cl.ID(), err)
		return
	}
	log.Printf("[INFO] 媒体连接关闭: call_id=%s, reason=%v", cl.ID(), err)
}

// readLoop 读取电话层的音频和控制消息
func (h *MediaHandler) readLoop(conn *websocket.Conn, cl *call.Call, errs chan<- types.MediaMessage) error {
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WARN] 读取媒体消息错误: call_id=%s, err=%v", cl.ID(), err)
			}
			return errPeerClosed
		}

		if err := h.handleMessage(cl, messageType, message); err != nil {
			log.Printf("[WARN] 处理媒体消息失败: call_id=%s, err=%v", cl.ID(), err)
			select {
			case errs <- types.MediaMessage{Event: types.MediaEventError, Reason: err.Error()}:
			default:
			}
		}
	}
}

// handleMessage 二进制帧转发为客户音频，文本帧解析为控制命令
func (h *MediaHandler) handleMessage(cl *call.Call, messageType int, message []byte) error {
	switch messageType {
	case websocket.BinaryMessage:
		return cl.SendAudio(message)

	case websocket.TextMessage:
		var msg types.MediaMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return errors.New("无法解析控制消息")
		}
		switch msg.Event {
		case types.MediaEventCommit:
			return cl.Commit()
		case types.MediaEventInterrupt:
			return cl.Interrupt()
		}
		return errors.New("不支持的控制消息: " + string(msg.Event))
	}
	return nil
}

// writeLoop 发送合成音频、控制消息和心跳，同一连接只有它写入
func (h *MediaHandler) writeLoop(ctx context.Context, conn *websocket.Conn, cl *call.Call, errs <-chan types.MediaMessage) error {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-cl.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			flushNotices(conn, cl)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(cl.Status())))
			return errCallClosed

		case audio := <-cl.Audio():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
				return err
			}

		case notice := <-cl.Notices():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(notice); err != nil {
				return err
			}

		case msg := <-errs:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

// flushNotices 通话结束前发出剩余的控制消息
func flushNotices(conn *websocket.Conn, cl *call.Call) {
	for {
		select {
		case notice := <-cl.Notices():
			if err := conn.WriteJSON(notice); err != nil {
				return
			}
		default:
			return
		}
	}
}
