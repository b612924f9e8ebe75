package llm

import (
	"context"
	"net/http"
)

// ProviderSpec 描述一个 Provider 家族的协议形状：如何签名请求、
// 如何定位端点、如何在请求/响应与统一类型之间转换。
// 实现为开放集合，新 Provider 通过实现该接口接入，无需修改运行时。
type ProviderSpec interface {
	// ProviderID 返回 Provider 标识（如 openai、claude、gemini）。
	ProviderID() string

	// BuildHeaders 构建基础请求头。每次调用都重新读取凭据，
	// 401 重建时运行时会再次调用以获取新鲜令牌。
	BuildHeaders(ctx context.Context) (http.Header, error)

	// ChatURL 解析聊天端点。stream 为 true 时部分 Provider 使用不同路径。
	ChatURL(req *ChatRequest, stream bool) string

	// TransformRequest 将统一请求转换为 Provider 线格式请求体。
	TransformRequest(req *ChatRequest, stream bool) (any, error)

	// TransformResponse 将 Provider 响应体解析为统一响应。
	TransformResponse(body []byte) (*ChatResponse, error)

	// NewSSEConverter 为一条 SSE 流创建新的有状态转换器；
	// 不支持 SSE 的 Provider 返回 nil。
	NewSSEConverter() EventConverter

	// NewJSONLConverter 为一条 JSONL 流创建新的有状态转换器；
	// 不支持 JSONL 的 Provider 返回 nil。
	NewJSONLConverter() EventConverter

	// ClassifyError 解析 Provider 错误信封。无法识别时返回 nil，
	// 运行时回退到状态码启发式分类。
	ClassifyError(status int, body []byte) error
}

// RemoteCanceler 是可选扩展：支持按响应 ID 远程取消生成的 Provider 实现它。
// 取消是尽力而为的异步操作，失败会被吞掉。
type RemoteCanceler interface {
	CancelRemote(ctx context.Context, responseID string) error
}
