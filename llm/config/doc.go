// 版权所有 2026 UniLLM Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供统一的配置加载,支持 YAML 文件、.env 凭证文件与
// 环境变量覆盖,并可监听配置文件变更触发重载回调。
package config
