package middleware

import (
	"context"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/llm/tokenizer"
)

// UsageEstimationMiddleware 在上游未返回用量时本地估算 Token 数。
// 对 OpenAI 系模型使用 tiktoken 精确计数,其余模型退化为字符估算。
func UsageEstimationMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			resp, err := next(ctx, req)
			if err != nil || resp == nil {
				return resp, err
			}
			if resp.Usage.TotalTokens > 0 {
				return resp, nil
			}

			tok := tokenizer.GetTokenizerOrEstimator(req.Model)

			msgs := make([]tokenizer.Message, len(req.Messages))
			for i, m := range req.Messages {
				msgs[i] = tokenizer.Message{Role: string(m.Role), Content: m.Content}
			}
			prompt, cErr := tok.CountMessages(msgs)
			if cErr != nil {
				return resp, nil
			}

			completion := 0
			for _, c := range resp.Choices {
				n, cErr := tok.CountTokens(c.Message.Content)
				if cErr != nil {
					return resp, nil
				}
				completion += n
			}

			resp.Usage = llm.ChatUsage{
				PromptTokens:     prompt,
				CompletionTokens: completion,
				TotalTokens:      prompt + completion,
			}
			return resp, nil
		}
	}
}
