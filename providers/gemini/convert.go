package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// ===== 线格式结构 =====

type wirePart struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"` // 思维摘要片段
	FunctionCall     *wireFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResp `json:"functionResponse,omitempty"`
}

type wireFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type wireFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"` // user 或 model
	Parts []wirePart `json:"parts"`
}

type wireFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireToolConfig struct {
	FunctionCallingConfig struct {
		Mode                 string   `json:"mode"` // AUTO, ANY, NONE
		AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
	} `json:"functionCallingConfig"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     float32  `json:"temperature,omitempty"`
	TopP            float32  `json:"topP,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type generateBody struct {
	Contents          []wireContent     `json:"contents"`
	SystemInstruction *wireContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []struct {
		FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations"`
	} `json:"tools,omitempty"`
	ToolConfig *wireToolConfig `json:"toolConfig,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount,omitempty"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason"`
		Index        int         `json:"index"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
}

// ===== 请求转换 =====

// buildGenerateBody 将统一请求转换为 generateContent 形状。
// Gemini 的特殊要求:system 消息提取到 systemInstruction;
// assistant 角色映射为 model;tool 结果映射为 user 的 functionResponse。
func buildGenerateBody(req *llm.ChatRequest) (*generateBody, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "消息列表不能为空")
	}
	body := &generateBody{}

	// 工具调用 ID 不在 Gemini 线格式中传递,用 ID→函数名映射还原 tool 结果归属
	callName := make(map[string]string)

	for i := range req.Messages {
		m := &req.Messages[i]
		switch m.Role {
		case llm.RoleSystem:
			body.SystemInstruction = &wireContent{
				Parts: []wirePart{{Text: m.Content}},
			}
			continue
		case llm.RoleTool:
			var result map[string]any
			if err := json.Unmarshal([]byte(m.Content), &result); err != nil {
				result = map[string]any{"output": m.Content}
			}
			body.Contents = append(body.Contents, wireContent{
				Role: "user",
				Parts: []wirePart{{FunctionResponse: &wireFunctionResp{
					Name:     callName[m.ToolCallID],
					Response: result,
				}}},
			})
			continue
		}

		role := string(m.Role)
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		wc := wireContent{Role: role}
		if m.Content != "" {
			wc.Parts = append(wc.Parts, wirePart{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			callName[tc.ID] = tc.Name
			wc.Parts = append(wc.Parts, wirePart{FunctionCall: &wireFunctionCall{
				Name: tc.Name,
				Args: tc.Arguments,
			}})
		}
		if len(wc.Parts) > 0 {
			body.Contents = append(body.Contents, wc)
		}
	}

	if req.MaxTokens > 0 || req.Temperature > 0 || req.TopP > 0 || len(req.Stop) > 0 {
		body.GenerationConfig = &generationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			StopSequences:   req.Stop,
		}
	}

	if len(req.Tools) > 0 {
		var decls []wireFunctionDecl
		for _, t := range req.Tools {
			decls = append(decls, wireFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		body.Tools = append(body.Tools, struct {
			FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations"`
		}{FunctionDeclarations: decls})

		if tc := req.ToolChoice; tc != "" {
			cfg := &wireToolConfig{}
			switch tc {
			case "auto":
				cfg.FunctionCallingConfig.Mode = "AUTO"
			case "none":
				cfg.FunctionCallingConfig.Mode = "NONE"
			case "required":
				cfg.FunctionCallingConfig.Mode = "ANY"
			default:
				cfg.FunctionCallingConfig.Mode = "ANY"
				cfg.FunctionCallingConfig.AllowedFunctionNames = []string{tc}
			}
			body.ToolConfig = cfg
		}
	}
	return body, nil
}

// ===== 响应转换 =====

func parseGenerateResponse(provider string, body []byte) (*llm.ChatResponse, error) {
	var raw generateResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, types.NewError(types.ErrParse,
			fmt.Sprintf("解析 gemini 响应失败: %v", err)).
			WithProvider(provider).WithCause(err)
	}
	resp := &llm.ChatResponse{
		ID:       raw.ResponseID,
		Provider: provider,
		Model:    raw.ModelVersion,
	}
	for _, cand := range raw.Candidates {
		msg := llm.Message{Role: llm.RoleAssistant}
		callSeq := 0
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:        syntheticCallID(callSeq),
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
				callSeq++
			case part.Thought:
				msg.Thinking += part.Text
			default:
				msg.Content += part.Text
			}
		}
		resp.Choices = append(resp.Choices, llm.ChatChoice{
			Index:        cand.Index,
			FinishReason: mapFinishReason(cand.FinishReason),
			Message:      msg,
		})
	}
	if raw.UsageMetadata != nil {
		resp.Usage = convertUsage(raw.UsageMetadata)
	}
	return resp, nil
}

// syntheticCallID Gemini 不返回调用 ID,按序合成以满足统一类型。
func syntheticCallID(seq int) string { return fmt.Sprintf("call_%d", seq) }

func mapFinishReason(r string) string {
	switch r {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "content_filter"
	case "":
		return ""
	}
	return r
}

func convertUsage(u *usageMetadata) llm.ChatUsage {
	return llm.ChatUsage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
		CachedTokens:     u.CachedContentTokenCount,
		ReasoningTokens:  u.ThoughtsTokenCount,
	}
}
