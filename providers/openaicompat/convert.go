package openaicompat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// ===== 线格式结构 =====

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	// DeepSeek R1 等推理模型的思维链字段
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type wireStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatBody struct {
	Model         string             `json:"model"`
	Messages      []wireMessage      `json:"messages"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
	Temperature   float32            `json:"temperature,omitempty"`
	TopP          float32            `json:"top_p,omitempty"`
	Stop          []string           `json:"stop,omitempty"`
	Tools         []wireTool         `json:"tools,omitempty"`
	ToolChoice    any                `json:"tool_choice,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	StreamOptions *wireStreamOptions `json:"stream_options,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	PromptDetails    *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
	CompletionDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details,omitempty"`
}

type chatCompletion struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      wireMessage `json:"message"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage,omitempty"`
}

// ===== 请求转换 =====

func buildChatBody(req *llm.ChatRequest, model string, stream bool) (*chatBody, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "消息列表不能为空")
	}
	body := &chatBody{
		Model:       model,
		Messages:    make([]wireMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
	if stream {
		// 请求最终 chunk 携带用量统计
		body.StreamOptions = &wireStreamOptions{IncludeUsage: true}
	}
	for i := range req.Messages {
		m := &req.Messages[i]
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		body.Messages = append(body.Messages, wm)
	}
	for _, t := range req.Tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		body.Tools = append(body.Tools, wt)
	}
	if tc := req.ToolChoice; tc != "" {
		switch tc {
		case "auto", "none", "required":
			body.ToolChoice = tc
		default:
			// 指定工具名时转换为强制调用形式
			body.ToolChoice = map[string]any{
				"type":     "function",
				"function": map[string]string{"name": tc},
			}
		}
	}
	return body, nil
}

// ===== 响应转换 =====

func parseChatResponse(provider string, body []byte) (*llm.ChatResponse, error) {
	var raw chatCompletion
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, types.NewError(types.ErrParse,
			fmt.Sprintf("解析 %s 响应失败: %v", provider, err)).
			WithProvider(provider).WithCause(err)
	}
	resp := &llm.ChatResponse{
		ID:       raw.ID,
		Provider: provider,
		Model:    raw.Model,
	}
	if raw.Created > 0 {
		resp.CreatedAt = time.Unix(raw.Created, 0)
	}
	for _, c := range raw.Choices {
		msg := llm.Message{
			Role:     llm.RoleAssistant,
			Content:  c.Message.Content,
			Thinking: c.Message.ReasoningContent,
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
		resp.Choices = append(resp.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}
	if raw.Usage != nil {
		resp.Usage = convertUsage(raw.Usage)
	}
	return resp, nil
}

func convertUsage(u *wireUsage) llm.ChatUsage {
	cu := llm.ChatUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptDetails != nil {
		cu.CachedTokens = u.PromptDetails.CachedTokens
	}
	if u.CompletionDetails != nil {
		cu.ReasoningTokens = u.CompletionDetails.ReasoningTokens
	}
	return cu
}
