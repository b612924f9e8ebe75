// 版权所有 2026 UniLLM Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 speech 提供统一的语音合成(TTS)与语音识别(STT)提供者接口。

# 概述

TTS 通过 OpenAI /v1/audio/speech 返回原始音频字节;STT 通过
/v1/audio/transcriptions 以 multipart 上传音频并解析 Whisper 响应。
所有 HTTP 调用走统一执行引擎,沿用其错误分类与重试语义。

# 使用方式

	tts := speech.NewOpenAITTSProvider(speech.OpenAITTSConfig{APIKey: "sk-..."})
	resp, err := tts.Synthesize(ctx, &speech.TTSRequest{Text: "你好"})
*/
package speech
