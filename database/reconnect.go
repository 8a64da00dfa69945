package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"

	"golang.org/x/time/rate"

	"github.com/BaSui01/dbmux/config"
	"github.com/BaSui01/dbmux/types"
)

// ReconnectPolicy 判断一次失败是否值得重连后重试
type ReconnectPolicy interface {
	ShouldReconnect(err error) bool
}

// NeverReconnect 默认策略：从不重连
type NeverReconnect struct{}

// ShouldReconnect 实现 ReconnectPolicy
func (NeverReconnect) ShouldReconnect(error) bool { return false }

// ReconnectPolicyFunc 函数适配器
type ReconnectPolicyFunc func(err error) bool

// ShouldReconnect 实现 ReconnectPolicy
func (f ReconnectPolicyFunc) ShouldReconnect(err error) bool { return f(err) }

// LostConnectionPolicy 仅在连接丢失类错误时重连，可选限速
type LostConnectionPolicy struct {
	limiter *rate.Limiter
}

// NewLostConnectionPolicy 创建策略；limiter 为 nil 时不限速
func NewLostConnectionPolicy(limiter *rate.Limiter) *LostConnectionPolicy {
	return &LostConnectionPolicy{limiter: limiter}
}

// ShouldReconnect 实现 ReconnectPolicy
func (p *LostConnectionPolicy) ShouldReconnect(err error) bool {
	if !CausedByLostConnection(err) {
		return false
	}
	if p.limiter != nil && !p.limiter.Allow() {
		return false
	}
	return true
}

// ReconnectPolicyFromConfig 由配置构建策略
func ReconnectPolicyFromConfig(cfg config.ReconnectConfig) ReconnectPolicy {
	switch cfg.Policy {
	case "lost_connection":
		var limiter *rate.Limiter
		if cfg.RatePerSecond > 0 {
			burst := cfg.Burst
			if burst < 1 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
		}
		return NewLostConnectionPolicy(limiter)
	default:
		return NeverReconnect{}
	}
}

var lostConnectionMessages = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"server has gone away",
	"lost connection",
	"no connection to the server",
	"is dead or not enabled",
	"error while sending",
	"decryption failed or bad record mac",
	"ssl connection has been closed unexpectedly",
	"connection timed out",
	"connection is closed",
	"conn closed",
	"invalid connection",
	"bad connection",
}

// CausedByLostConnection 判断错误是否由物理连接丢失引起
func CausedByLostConnection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if types.IsRetryable(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range lostConnectionMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
