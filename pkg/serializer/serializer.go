package serializer

import (
	"encoding/json"
)

// Serializer 序列化器接口
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// ContentType 内容类型（用于日志、消息头）
	ContentType() string
}

// JSON JSON 序列化器
type JSON struct{}

func NewJSON() JSON { return JSON{} }

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) ContentType() string                { return "application/json" }

// Msgpack msgpack 序列化器
type Msgpack struct{}

func NewMsgpack() Msgpack { return Msgpack{} }

func (Msgpack) Marshal(v any) ([]byte, error)      { return Encode(v) }
func (Msgpack) Unmarshal(data []byte, v any) error { return Decode(data, v) }
func (Msgpack) ContentType() string                { return "application/msgpack" }

// ByName 按名称返回序列化器，未知名称返回 JSON
func ByName(name string) Serializer {
	switch name {
	case "msgpack":
		return NewMsgpack()
	default:
		return NewJSON()
	}
}
