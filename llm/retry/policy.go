package retry

import (
	"sync"
	"time"
)

// PolicyTable 按 Provider 查找静态重试策略，未命中时回退到默认策略。
type PolicyTable struct {
	mu         sync.RWMutex
	byProvider map[string]*RetryPolicy
	fallback   *RetryPolicy
}

// NewPolicyTable 创建策略表
func NewPolicyTable(fallback *RetryPolicy) *PolicyTable {
	if fallback == nil {
		fallback = DefaultRetryPolicy()
	}
	return &PolicyTable{
		byProvider: make(map[string]*RetryPolicy),
		fallback:   fallback,
	}
}

// Set 设置指定 Provider 的策略
func (t *PolicyTable) Set(provider string, policy *RetryPolicy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byProvider[provider] = policy
}

// Lookup 查找 Provider 策略，未配置时返回默认策略
func (t *PolicyTable) Lookup(provider string) *RetryPolicy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.byProvider[provider]; ok {
		return p
	}
	return t.fallback
}

// DefaultPolicyTable 返回内置的各 Provider 策略。
// 限流较严格的 Provider 使用更长的初始退避。
func DefaultPolicyTable() *PolicyTable {
	t := NewPolicyTable(DefaultRetryPolicy())
	t.Set("openai", &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	})
	t.Set("claude", &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	})
	t.Set("gemini", &RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	})
	return t
}
