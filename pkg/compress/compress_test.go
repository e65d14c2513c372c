package compress

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allTypes = []Type{TypeNone, TypeSnappy, TypeZstd, TypeLZ4}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":      {},
		"short":      []byte("roster"),
		"repetitive": bytes.Repeat([]byte(`{"characterId":1205,"level":80}`), 200),
		"binary":     {0x00, 0xff, 0x10, 0x7f, 0x80, 0x01},
	}
	for _, typ := range allTypes {
		codec, err := NewCodec(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, codec.Type())

		for name, in := range inputs {
			t.Run(string(typ)+"/"+name, func(t *testing.T) {
				enc, err := codec.Encode(in)
				require.NoError(t, err)
				out, err := codec.Decode(enc)
				require.NoError(t, err)
				assert.Equal(t, len(in), len(out))
				assert.True(t, bytes.Equal(in, out))
			})
		}
	}
}

func TestDecodeUsesTag(t *testing.T) {
	in := bytes.Repeat([]byte("abc"), 100)
	zstdCodec, err := NewCodec(TypeZstd)
	require.NoError(t, err)
	enc, err := zstdCodec.Encode(in)
	require.NoError(t, err)

	// 配置切换到 snappy 后仍能读出旧值
	snappyCodec, err := NewCodec(TypeSnappy)
	require.NoError(t, err)
	out, err := snappyCodec.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeCorrupt(t *testing.T) {
	codec, err := NewCodec(TypeLZ4)
	require.NoError(t, err)

	_, err = codec.Decode(nil)
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = codec.Decode([]byte{0x42, 1, 2})
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = codec.Decode([]byte{tags[TypeSnappy], 0xff, 0xff, 0xff})
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestNewUnsupported(t *testing.T) {
	_, err := New("brotli")
	assert.True(t, errors.Is(err, ErrUnsupported))

	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, TypeNone, c.Type())
}
