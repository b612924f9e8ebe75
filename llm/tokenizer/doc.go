// Package tokenizer 提供统一的 Token 计数接口,
// 支持 tiktoken 精确计数与 CJK 感知估算器,用于用量估算与上下文预算。
package tokenizer
