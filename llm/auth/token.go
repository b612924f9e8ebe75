// Package auth 提供凭据抽象：静态密钥、服务账号 JWT 交换与 ADC。
package auth

import "context"

// TokenProvider 按需提供 Bearer 令牌。实现必须并发安全。
type TokenProvider interface {
	// Token 返回当前有效令牌，必要时刷新。
	Token(ctx context.Context) (string, error)

	// Invalidate 作废缓存的令牌，下次 Token 调用强制刷新。
	// 执行引擎在 401 重建时调用。
	Invalidate()
}

// StaticKey 是固定 API Key 的 TokenProvider。
type StaticKey string

func (k StaticKey) Token(context.Context) (string, error) { return string(k), nil }

func (StaticKey) Invalidate() {}
