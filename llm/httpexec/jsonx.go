package httpexec

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"

	"github.com/BaSui01/unillm/types"
)

// DecodeJSON 解析 JSON 响应体。部分 Provider 会返回轻微畸形的 JSON
// （尾逗号、未闭合括号等），标准解析失败时先修复再重试一次。
func DecodeJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(string(data))
	if repairErr != nil {
		return types.NewError(types.ErrParse, "JSON 解析失败且无法修复").
			WithCause(err).
			WithDetail("repair_error", repairErr.Error())
	}
	if err2 := json.Unmarshal([]byte(repaired), v); err2 != nil {
		return types.NewError(types.ErrParse, "修复后的 JSON 仍无法解析").WithCause(err2)
	}
	return nil
}
