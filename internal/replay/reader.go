// Package replay 从抓包文件中提取RTP音频并回放到通话的媒体通道
package replay

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"
)

// ErrNoAudio 抓包中没有可用的RTP音频
var ErrNoAudio = errors.New("抓包中没有RTP音频")

// Packet 一个RTP音频包
type Packet struct {
	Captured       time.Time // 抓包时间
	SSRC           uint32
	SequenceNumber uint16
	Timestamp      uint32 // RTP时间戳
	PayloadType    uint8
	Payload        []byte
}

// Filter 选择回放的RTP流
type Filter struct {
	SSRC        uint32 // 0 表示使用第一个出现的流
	PayloadType int    // 负数表示不限制
}

// ReadFile 读取 pcap 文件中的RTP音频
func ReadFile(filename string, filter Filter) ([]Packet, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("打开PCAP文件失败: %w", err)
	}
	defer f.Close()
	return Read(f, filter)
}

// Read 解析 pcap 数据，按抓包顺序返回所选流的RTP包
func Read(r io.Reader, filter Filter) ([]Packet, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析PCAP文件头失败: %w", err)
	}

	var (
		packets []Packet
		total   int
		skipped int
	)
	ssrc := filter.SSRC
	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取数据包失败: %w", err)
		}
		total++

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		p, ok := decodeRTP(packet)
		if !ok {
			skipped++
			continue
		}
		if ssrc == 0 {
			ssrc = p.SSRC
		}
		if p.SSRC != ssrc || (filter.PayloadType >= 0 && int(p.PayloadType) != filter.PayloadType) {
			skipped++
			continue
		}
		p.Captured = ci.Timestamp
		packets = append(packets, p)
	}

	log.Printf("[INFO] PCAP解析完成: packets=%d, rtp=%d, skipped=%d, ssrc=%d", total, len(packets), skipped, ssrc)
	if len(packets) == 0 {
		return nil, ErrNoAudio
	}
	return packets, nil
}

// decodeRTP 从UDP负载解析RTP，RTCP和非RTP数据被跳过
func decodeRTP(packet gopacket.Packet) (Packet, bool) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return Packet{}, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok || len(udp.Payload) < 12 {
		return Packet{}, false
	}

	var p rtp.Packet
	if err := p.Unmarshal(udp.Payload); err != nil || p.Version != 2 {
		return Packet{}, false
	}
	// RTCP 的包类型 200~204 去掉标记位后落在 72~76
	if p.PayloadType >= 72 && p.PayloadType <= 76 {
		return Packet{}, false
	}
	if len(p.Payload) == 0 {
		return Packet{}, false
	}

	payload := make([]byte, len(p.Payload))
	copy(payload, p.Payload)
	return Packet{
		SSRC:           p.SSRC,
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
		PayloadType:    p.PayloadType,
		Payload:        payload,
	}, true
}
