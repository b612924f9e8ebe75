// 版权所有 2026 UniLLM Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 image 提供统一的图像生成提供者接口与实现。

# 概述

支持 OpenAI(DALL-E / gpt-image)与 Google Gemini 两种后端。OpenAI
额外支持图像编辑与变体(multipart 上传);Gemini 通过 generateContent
的 IMAGE 响应模态生成图像。所有 HTTP 调用走统一执行引擎。

# 使用方式

	p := image.NewOpenAIProvider(image.OpenAIConfig{APIKey: "sk-..."})
	resp, err := p.Generate(ctx, &image.GenerateRequest{Prompt: "一只赛博朋克猫"})
*/
package image
