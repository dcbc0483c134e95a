package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/momentics/wsgate/codec"
)

func TestJSONDecodeDocument(t *testing.T) {
	c := codec.JSON{}
	v, err := c.Decode([]byte(`{"cmd":"join","room":7,"tags":["a","b"],"x":null}`))
	require.NoError(t, err)

	s := v.GetStructValue()
	require.NotNil(t, s)
	assert.Equal(t, "join", s.Fields["cmd"].GetStringValue())
	assert.Equal(t, float64(7), s.Fields["room"].GetNumberValue())
	assert.Len(t, s.Fields["tags"].GetListValue().GetValues(), 2)

	out, err := c.Encode(v)
	require.NoError(t, err)
	back, err := c.Decode(out)
	require.NoError(t, err)
	assert.True(t, proto.Equal(v, back))
}

func TestJSONScalarsAndErrors(t *testing.T) {
	c := codec.JSON{}
	v, err := c.Decode([]byte(`"ping-test"`))
	require.NoError(t, err)
	assert.Equal(t, "ping-test", v.GetStringValue())

	_, err = c.Decode([]byte(`{not json`))
	assert.Error(t, err)

	b, err := c.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = c.Encode(structpb.NewBoolValue(true))
	require.NoError(t, err)
	assert.Equal(t, "true", string(b))
	assert.Equal(t, "json", c.Name())
}
