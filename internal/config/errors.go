package config

import "errors"

// 配置相关错误
var (
	ErrInvalidPort           = errors.New("服务器端口必须在1~65535之间")
	ErrEmptyAPIKey           = errors.New("实时引擎API密钥不能为空")
	ErrInvalidVAD            = errors.New("VAD阈值必须在0~1之间")
	ErrInvalidReconnect      = errors.New("重连参数无效")
	ErrInvalidThreshold      = errors.New("置信度阈值无效")
	ErrInvalidClarifications = errors.New("追问次数上限必须大于0")
	ErrInvalidQualifiedScore = errors.New("合格分数必须在0~10之间")
	ErrInvalidInputLength    = errors.New("输入长度上限必须大于0")
	ErrInvalidPongWait       = errors.New("pong_wait 必须大于 ping_period")
)
