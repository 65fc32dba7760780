package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ai_call_agent/internal/replay"
)

var (
	replayOpts  replay.Options
	replaySSRC  uint32
	payloadType int
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "把抓包中的RTP音频按原始节奏回放到通话媒体通道",
	Long: `replay 读取 pcap 抓包，提取 UDP 上的 RTP 音频负载，
通过 /calls/:id/media WebSocket 发送给正在进行的通话。
包之间的间隔按抓包时间计算，长于100ms的静音会被压缩。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		replayOpts.Filter = replay.Filter{SSRC: replaySSRC, PayloadType: payloadType}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		_, err := replay.Run(ctx, replayOpts)
		return err
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayOpts.PCAP, "pcap", "", "pcap 抓包文件")
	f.StringVar(&replayOpts.URL, "url", "", "媒体通道地址，例如 ws://localhost:8080/calls/<id>/media")
	f.StringVar(&replayOpts.TenantID, "tenant", "", "租户ID")
	f.Uint32Var(&replaySSRC, "ssrc", 0, "只回放指定SSRC的流，0表示第一个流")
	f.IntVar(&payloadType, "payload-type", -1, "只回放指定负载类型，-1表示不限制")
	f.BoolVar(&replayOpts.Commit, "commit", true, "回放结束后提交音频缓冲")
	_ = replayCmd.MarkFlagRequired("pcap")
	_ = replayCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(replayCmd)
}
