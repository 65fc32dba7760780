package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"ai_call_agent/internal/call"
	"ai_call_agent/internal/clients/scheduling"
	"ai_call_agent/internal/clients/scripts"
	"ai_call_agent/internal/config"
	"ai_call_agent/internal/handlers"
	"ai_call_agent/internal/models"
	"ai_call_agent/internal/routes"
	"ai_call_agent/internal/servers"
	"ai_call_agent/internal/store"
)

var (
	configPath string
	debugMode  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动通话管理 HTTP 服务和媒体 WebSocket",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")
	serveCmd.Flags().BoolVar(&debugMode, "debug", false, "gin 调试模式")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("AI 电话系统启动中...")

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	provider, err := newScriptProvider(cfg.Scripts)
	if err != nil {
		return err
	}

	dialogCfg := cfg.Dialog.EngineConfig()
	if cfg.Scheduling.BaseURL != "" {
		dialogCfg.Scheduler = scheduling.NewClient(scheduling.Config{
			BaseURL: cfg.Scheduling.BaseURL,
			APIKey:  cfg.Scheduling.APIKey,
			Timeout: cfg.Scheduling.Timeout,
		})
		log.Printf("[INFO] 已启用排期服务: %s", cfg.Scheduling.BaseURL)
	}

	var checkpoints call.Checkpointer
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, checkpoints, err = newCheckpointStore(cmd.Context(), cfg.Redis)
		if err != nil {
			return err
		}
	} else {
		log.Printf("[WARN] 未配置Redis，通话检查点不会保存")
	}

	manager := call.NewManager(call.Config{
		Realtime:       cfg.Realtime.ClientConfig(),
		Dialog:         dialogCfg,
		EnableRealtime: cfg.Realtime.Enabled,
	}, provider, checkpoints)

	if !debugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engine := routes.NewEngine(routes.Options{
		Manager: manager,
		Media: handlers.MediaConfig{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			PingPeriod:      cfg.WebSocket.PingPeriod,
			PongWait:        cfg.WebSocket.PongWait,
		},
		Registry: reg,
	})

	server := servers.NewHTTPServer(cfg.Server.Addr(), engine, cfg.Server.ShutdownTimeout)
	server.OnShutdown(manager.Shutdown)
	if redisClient != nil {
		server.OnShutdown(func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("[WARN] 关闭Redis连接失败: %v", err)
			}
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Printf("[INFO] 服务配置: addr=%s, realtime=%t, model=%s", cfg.Server.Addr(), cfg.Realtime.Enabled, cfg.Realtime.Model)
	return server.Run(ctx)
}

// newScriptProvider 远端话术服务优先，本地脚本兜底
func newScriptProvider(cfg config.ScriptsConfig) (models.ScriptProvider, error) {
	var chain scripts.Chain
	if cfg.BaseURL != "" {
		chain = append(chain, scripts.NewClient(scripts.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}))
		log.Printf("[INFO] 已启用话术服务: %s", cfg.BaseURL)
	}

	var static *scripts.Static
	var err error
	if cfg.File != "" {
		static, err = scripts.LoadStatic(cfg.File)
	} else {
		static, err = scripts.Builtin()
	}
	if err != nil {
		return nil, fmt.Errorf("加载本地话术失败: %w", err)
	}
	log.Printf("[INFO] 本地话术: industries=%v", static.Industries())
	return append(chain, static), nil
}

// newCheckpointStore 连接Redis并创建检查点存储
func newCheckpointStore(ctx context.Context, cfg config.RedisConfig) (*redis.Client, *store.RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	st := store.NewRedisStore(client, store.WithTTL(cfg.TTL), store.WithPrefix(cfg.Prefix))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("连接Redis失败: %w", err)
	}
	log.Printf("[INFO] 已连接Redis: addr=%s, ttl=%s", cfg.Addr(), cfg.TTL)
	return client, st, nil
}
