package claude

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// ===== 线格式结构 =====

// wireMessage Claude 的消息 content 是内容块数组。
type wireMessage struct {
	Role    string        `json:"role"` // user 或 assistant
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type      string          `json:"type"` // text, thinking, tool_use, tool_result
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"` // tool_result 的结果文本
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireToolChoice struct {
	Type string `json:"type"` // auto, any, none, tool
	Name string `json:"name,omitempty"`
}

type messagesBody struct {
	Model       string          `json:"model"`
	Messages    []wireMessage   `json:"messages"`
	System      string          `json:"system,omitempty"` // system 消息单独传递
	MaxTokens   int             `json:"max_tokens"`
	Temperature float32         `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	StopSeq     []string        `json:"stop_sequences,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []wireTool      `json:"tools,omitempty"`
	ToolChoice  *wireToolChoice `json:"tool_choice,omitempty"`
}

type wireUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

type messagesResponse struct {
	ID         string        `json:"id"`
	Model      string        `json:"model"`
	Role       string        `json:"role"`
	Content    []contentPart `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      *wireUsage    `json:"usage,omitempty"`
}

// ===== 请求转换 =====

// buildMessagesBody 将统一请求转换为 Messages API 形状。
// Claude 的特殊要求:system 消息单独提取;tool 结果包装为 user 消息的
// tool_result 块;max_tokens 必填。
func buildMessagesBody(req *llm.ChatRequest, model string, stream bool) (*messagesBody, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "消息列表不能为空")
	}
	body := &messagesBody{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopSeq:     req.Stop,
		Stream:      stream,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}

	for i := range req.Messages {
		m := &req.Messages[i]
		switch m.Role {
		case llm.RoleSystem:
			body.System = m.Content
			continue
		case llm.RoleTool:
			body.Messages = append(body.Messages, wireMessage{
				Role: "user",
				Content: []contentPart{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
			continue
		}

		wm := wireMessage{Role: string(m.Role)}
		if m.Content != "" {
			wm.Content = append(wm.Content, contentPart{Type: "text", Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			wm.Content = append(wm.Content, contentPart{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Name,
				Input: tc.Arguments,
			})
		}
		if len(wm.Content) > 0 {
			body.Messages = append(body.Messages, wm)
		}
	}

	for _, t := range req.Tools {
		body.Tools = append(body.Tools, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	if tc := req.ToolChoice; tc != "" && len(body.Tools) > 0 {
		switch tc {
		case "auto":
			body.ToolChoice = &wireToolChoice{Type: "auto"}
		case "none":
			body.ToolChoice = &wireToolChoice{Type: "none"}
		case "required":
			body.ToolChoice = &wireToolChoice{Type: "any"}
		default:
			body.ToolChoice = &wireToolChoice{Type: "tool", Name: tc}
		}
	}
	return body, nil
}

// ===== 响应转换 =====

func parseMessagesResponse(provider string, body []byte) (*llm.ChatResponse, error) {
	var raw messagesResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, types.NewError(types.ErrParse,
			fmt.Sprintf("解析 claude 响应失败: %v", err)).
			WithProvider(provider).WithCause(err)
	}

	msg := llm.Message{Role: llm.RoleAssistant}
	for _, part := range raw.Content {
		switch part.Type {
		case "text":
			msg.Content += part.Text
		case "thinking":
			msg.Thinking += part.Thinking
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        part.ID,
				Name:      part.Name,
				Arguments: part.Input,
			})
		}
	}

	resp := &llm.ChatResponse{
		ID:       raw.ID,
		Provider: provider,
		Model:    raw.Model,
		Choices: []llm.ChatChoice{{
			FinishReason: raw.StopReason,
			Message:      msg,
		}},
	}
	if raw.Usage != nil {
		resp.Usage = convertUsage(raw.Usage)
	}
	return resp, nil
}

func convertUsage(u *wireUsage) llm.ChatUsage {
	return llm.ChatUsage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
		CachedTokens:     u.CacheReadInputTokens,
	}
}
