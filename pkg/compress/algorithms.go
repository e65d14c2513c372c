package compress

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type noneCompressor struct{}

func (noneCompressor) Compress(src []byte) ([]byte, error)   { return append([]byte(nil), src...), nil }
func (noneCompressor) Decompress(src []byte) ([]byte, error) { return append([]byte(nil), src...), nil }
func (noneCompressor) Type() Type                            { return TypeNone }

type snappyCompressor struct{}

func (snappyCompressor) Compress(src []byte) ([]byte, error)   { return snappy.Encode(nil, src), nil }
func (snappyCompressor) Decompress(src []byte) ([]byte, error) { return snappy.Decode(nil, src) }
func (snappyCompressor) Type() Type                            { return TypeSnappy }

// zstd Encoder/Decoder 的 EncodeAll/DecodeAll 可并发调用
type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

func (c *zstdCompressor) Compress(src []byte) ([]byte, error)   { return c.enc.EncodeAll(src, nil), nil }
func (c *zstdCompressor) Decompress(src []byte) ([]byte, error) { return c.dec.DecodeAll(src, nil) }
func (c *zstdCompressor) Type() Type                            { return TypeZstd }

// lz4 块格式：uvarint(原始长度) + 块；块长度为 0 表示原样存储
type lz4Compressor struct{}

// 单个缓存值上限，防止损坏输入导致超大分配
const lz4MaxSize = 64 << 20

func (lz4Compressor) Compress(src []byte) ([]byte, error) {
	head := binary.AppendUvarint(nil, uint64(len(src)))
	if len(src) == 0 {
		return head, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(src) {
		head = append(head, 0)
		return append(head, src...), nil
	}
	head = append(head, 1)
	return append(head, dst[:n]...), nil
}

func (lz4Compressor) Decompress(src []byte) ([]byte, error) {
	size, k := binary.Uvarint(src)
	if k <= 0 || size > lz4MaxSize {
		return nil, errors.New("lz4: bad length header")
	}
	src = src[k:]
	if size == 0 {
		return []byte{}, nil
	}
	if len(src) == 0 {
		return nil, errors.New("lz4: missing block")
	}
	mode, body := src[0], src[1:]
	if mode == 0 {
		if uint64(len(body)) != size {
			return nil, errors.New("lz4: stored length mismatch")
		}
		return append([]byte(nil), body...), nil
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, err
	}
	if uint64(n) != size {
		return nil, errors.New("lz4: length mismatch")
	}
	return dst, nil
}

func (lz4Compressor) Type() Type { return TypeLZ4 }
