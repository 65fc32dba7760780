// Package servers 提供HTTP服务器的启动与优雅退出
package servers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPServer 绑定上下文生命周期的HTTP服务器
type HTTPServer struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	onShutdown      []func()
}

// NewHTTPServer 创建HTTP服务器
func NewHTTPServer(addr string, handler http.Handler, shutdownTimeout time.Duration) *HTTPServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// OnShutdown 注册在HTTP服务停止后执行的清理函数
func (s *HTTPServer) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Run 监听配置的地址，直到 ctx 结束
func (s *HTTPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定监听器上提供服务，ctx 结束后优雅退出
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] HTTP服务器启动: addr=%s", ln.Addr())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.cleanup()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("[INFO] HTTP服务器正在关闭: timeout=%s", s.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	s.cleanup()
	if err != nil {
		return fmt.Errorf("关闭HTTP服务器失败: %w", err)
	}
	log.Printf("[INFO] HTTP服务器已关闭")
	return nil
}

func (s *HTTPServer) cleanup() {
	for _, fn := range s.onShutdown {
		fn()
	}
}
