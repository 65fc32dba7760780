package realtime

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newReconnectBackOff 按重连策略构建无抖动的指数退避
func newReconnectBackOff(p ReconnectPolicy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// ReconnectDelays 返回策略下每次重连前的等待时长
func ReconnectDelays(p ReconnectPolicy) []time.Duration {
	if p.MaxAttempts <= 0 {
		return nil
	}
	b := newReconnectBackOff(p)
	delays := make([]time.Duration, 0, p.MaxAttempts)
	for i := 0; i < p.MaxAttempts; i++ {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}
