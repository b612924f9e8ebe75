package streaming

import (
	"bufio"
	"io"
	"strings"

	"github.com/BaSui01/unillm/llm"
)

// sseDecoder 按 SSE 规范把字节流切分为帧：
// event:/data: 行收集到当前帧，空行结束一帧，多行 data 以 \n 连接。
type sseDecoder struct {
	reader *bufio.Reader

	event string
	data  []string
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{reader: bufio.NewReader(r)}
}

// Next 返回下一帧。流结束返回 io.EOF，其余错误原样返回。
func (d *sseDecoder) Next() (llm.StreamFrame, error) {
	for {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			// 带着半行结尾的流：最后一帧若有内容则先交付
			if err == io.EOF && (len(d.data) > 0 || strings.TrimSpace(line) != "") {
				d.appendLine(line)
				return d.flush(), io.EOF
			}
			return llm.StreamFrame{}, err
		}

		line = strings.TrimRight(line, "\r\n")

		// 空行结束一帧
		if line == "" {
			if len(d.data) == 0 && d.event == "" {
				continue
			}
			return d.flush(), nil
		}

		d.appendLine(line)
	}
}

func (d *sseDecoder) appendLine(line string) {
	switch {
	case strings.HasPrefix(line, ":"):
		// 注释行，忽略
	case strings.HasPrefix(line, "event:"):
		d.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data:"):
		d.data = append(d.data, strings.TrimPrefix(strings.TrimPrefix(line, "data: "), "data:"))
	}
}

func (d *sseDecoder) flush() llm.StreamFrame {
	frame := llm.StreamFrame{
		Event: d.event,
		Data:  strings.Join(d.data, "\n"),
	}
	d.event = ""
	d.data = nil
	return frame
}

// jsonlDecoder 把字节流按行切分，每行一个 JSON 对象。
type jsonlDecoder struct {
	reader *bufio.Reader
}

func newJSONLDecoder(r io.Reader) *jsonlDecoder {
	return &jsonlDecoder{reader: bufio.NewReader(r)}
}

// Next 返回下一帧（Data 为一整行），跳过空行。流结束返回 io.EOF。
func (d *jsonlDecoder) Next() (llm.StreamFrame, error) {
	for {
		line, err := d.reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if err != nil {
			if err == io.EOF && trimmed != "" {
				return llm.StreamFrame{Data: trimmed}, io.EOF
			}
			return llm.StreamFrame{}, err
		}
		if trimmed == "" {
			continue
		}
		return llm.StreamFrame{Data: trimmed}, nil
	}
}
