package domain

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// PayloadKind 负载的标签类型
type PayloadKind string

const (
	PayloadEmpty  PayloadKind = "empty"
	PayloadJSON   PayloadKind = "json"
	PayloadText   PayloadKind = "text"
	PayloadBinary PayloadKind = "binary"
	PayloadError  PayloadKind = "error"
)

// 占位文本
const (
	MarkerNonText     = "[non-text response]"
	MarkerUnparseable = "[unparseable response]"
)

// Payload 请求或响应负载，在创建日志条目时确定一次类型
type Payload struct {
	Kind PayloadKind `json:"kind"`
	Raw  string      `json:"raw,omitempty"`
}

// JSONPayload 构造 JSON 负载，调用方需保证 raw 为合法 JSON
func JSONPayload(raw []byte) Payload {
	return Payload{Kind: PayloadJSON, Raw: string(raw)}
}

// TextPayload 构造文本负载
func TextPayload(s string) Payload {
	return Payload{Kind: PayloadText, Raw: s}
}

// BinaryPayload 构造二进制占位负载
func BinaryPayload() Payload {
	return Payload{Kind: PayloadBinary, Raw: MarkerNonText}
}

// ErrorPayload 构造错误描述负载
func ErrorPayload(msg string) Payload {
	return Payload{Kind: PayloadError, Raw: msg}
}

// ParsePayload 优先按 JSON 解析，失败则退回文本；binary 为 true 时直接返回占位
func ParsePayload(data []byte, binary bool) Payload {
	if binary {
		return BinaryPayload()
	}
	if len(data) == 0 {
		return Payload{Kind: PayloadEmpty}
	}
	if gjson.ValidBytes(data) {
		return JSONPayload(data)
	}
	return TextPayload(string(data))
}

// IsJSON 是否为 JSON 负载
func (p Payload) IsJSON() bool { return p.Kind == PayloadJSON }

// String 返回原始文本
func (p Payload) String() string { return p.Raw }

// Value 返回便于展示的值：JSON 负载展开为结构，其余为字符串
func (p Payload) Value() any {
	switch p.Kind {
	case PayloadEmpty:
		return nil
	case PayloadJSON:
		return gjson.Parse(p.Raw).Value()
	default:
		return p.Raw
	}
}

// MarshalJSON JSON 负载原样输出，其余输出为字符串
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadEmpty, "":
		return []byte("null"), nil
	case PayloadJSON:
		return []byte(p.Raw), nil
	default:
		return json.Marshal(p.Raw)
	}
}

// UnmarshalJSON 与 MarshalJSON 对称：字符串还原为文本，其余还原为 JSON
func (p *Payload) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	switch {
	case res.Type == gjson.Null:
		*p = Payload{Kind: PayloadEmpty}
	case res.Type == gjson.String:
		s := res.String()
		switch s {
		case MarkerNonText:
			*p = BinaryPayload()
		default:
			*p = TextPayload(s)
		}
	default:
		*p = JSONPayload(data)
	}
	return nil
}
