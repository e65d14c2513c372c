package serializer

import (
	"bytes"
	"reflect"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/valyala/bytebufferpool"
)

// msgpackHandle: RawToString=true, MapType=map[string]interface{}
// 结构体字段名取 codec/json tag，与 JSON 输出保持一致
var msgpackHandle = &codec.MsgpackHandle{}

func init() {
	msgpackHandle.MapType = reflect.TypeOf(map[string]interface{}{})
	msgpackHandle.RawToString = true
}

var bufPool bytebufferpool.Pool

// Encode 使用 msgpack 编码
func Encode(v any) ([]byte, error) {
	buf := bufPool.Get()
	defer bufPool.Put(buf)

	if err := codec.NewEncoder(buf, msgpackHandle).Encode(v); err != nil {
		return nil, err
	}
	// buf 会被复用，复制一份返回
	return append([]byte(nil), buf.B...), nil
}

// Decode 使用 msgpack 解码
func Decode(data []byte, v any) error {
	return codec.NewDecoder(bytes.NewReader(data), msgpackHandle).Decode(v)
}
