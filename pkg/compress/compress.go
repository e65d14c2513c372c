package compress

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Type 压缩算法
type Type string

const (
	TypeNone   Type = "none"
	TypeSnappy Type = "snappy"
	TypeZstd   Type = "zstd"
	TypeLZ4    Type = "lz4"
)

var (
	ErrUnsupported = errors.New("compress: unsupported type")
	ErrCorrupt     = errors.New("compress: corrupt input")
)

// Compressor 压缩器
type Compressor interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
	Type() Type
}

// 每种算法一个字节的标签，写在 Codec 输出的首字节
var tags = map[Type]byte{
	TypeNone:   0,
	TypeSnappy: 1,
	TypeZstd:   2,
	TypeLZ4:    3,
}

var (
	mu        sync.Mutex
	instances = make(map[Type]Compressor)
)

// New 返回 t 对应的压缩器，实例按类型缓存复用
func New(t Type) (Compressor, error) {
	if t == "" {
		t = TypeNone
	}
	mu.Lock()
	defer mu.Unlock()
	if c, ok := instances[t]; ok {
		return c, nil
	}

	var (
		c   Compressor
		err error
	)
	switch t {
	case TypeNone:
		c = noneCompressor{}
	case TypeSnappy:
		c = snappyCompressor{}
	case TypeZstd:
		c, err = newZstdCompressor()
	case TypeLZ4:
		c = lz4Compressor{}
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%q", t)
	}
	if err != nil {
		return nil, err
	}
	instances[t] = c
	return c, nil
}

// Codec 带算法标签的压缩编解码，解码时按标签选择算法
type Codec struct {
	c Compressor
}

// NewCodec 创建以 t 压缩的 Codec
func NewCodec(t Type) (*Codec, error) {
	c, err := New(t)
	if err != nil {
		return nil, err
	}
	return &Codec{c: c}, nil
}

// Type 写入使用的算法
func (c *Codec) Type() Type {
	return c.c.Type()
}

// Encode 压缩并在首字节写入算法标签
func (c *Codec) Encode(src []byte) ([]byte, error) {
	body, err := c.c.Compress(src)
	if err != nil {
		return nil, errors.Wrapf(err, "%s compress", c.c.Type())
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, tags[c.c.Type()])
	return append(out, body...), nil
}

// Decode 读取标签并解压，与当前写入算法无关
func (c *Codec) Decode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, errors.Wrap(ErrCorrupt, "empty input")
	}
	for t, tag := range tags {
		if tag != src[0] {
			continue
		}
		dc, err := New(t)
		if err != nil {
			return nil, err
		}
		out, err := dc.Decompress(src[1:])
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "%s decompress", t), ErrCorrupt)
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrCorrupt, "unknown tag %d", src[0])
}
