package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestMultiBulk(t *testing.T) {
	buf := []byte("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n")
	consumed, argv, err := ParseRequest(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.Equal(t, []string{"GET", "k"}, argv)
}

func TestParseRequestNeedsMore(t *testing.T) {
	buf := []byte("*2\r\n$3\r\nGET\r\n$1\r\nk")
	_, _, err := ParseRequest(buf)
	assert.Equal(t, ErrNeedMore, err)
}

func TestParseRequestProtocolError(t *testing.T) {
	buf := []byte("*2\r\n$3\r\nGET\r\n$abc\r\nk\r\n")
	_, _, err := ParseRequest(buf)
	assert.True(t, IsProtocolError(err))
}

func TestParseRequestInline(t *testing.T) {
	consumed, argv, err := ParseRequest([]byte("PING\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, consumed)
	assert.Equal(t, []string{"PING"}, argv)
}

func TestParseRequestInlineQuoted(t *testing.T) {
	_, argv, err := ParseRequest([]byte(`SET k "hello \"world\""` + "\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "k", `hello "world"`}, argv)
}

func TestParseRequestPipelined(t *testing.T) {
	buf := []byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n")
	consumed, argv, err := ParseRequest(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, argv)
	assert.Less(t, consumed, len(buf))

	consumed2, argv2, err := ParseRequest(buf[consumed:])
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, argv2)
	assert.Equal(t, len(buf)-consumed, consumed2)
}

func TestEncodeRoundTrip(t *testing.T) {
	assert.Equal(t, []byte("+OK\r\n"), EncodeSimpleString("OK"))
	assert.Equal(t, []byte("-ERR bad\r\n"), EncodeError("ERR bad"))
	assert.Equal(t, []byte(":42\r\n"), EncodeInteger(42))
	assert.Equal(t, []byte("$-1\r\n"), EncodeNullBulkString())
	assert.Equal(t, []byte("*-1\r\n"), EncodeNilArray())
	assert.Equal(t, []byte("$5\r\nhello\r\n"), EncodeBulkString("hello"))
}

func TestEncodeCommandParsesBack(t *testing.T) {
	argv := []string{"SET", "k", "v"}
	wire := EncodeCommand(argv)
	_, parsed, err := ParseRequest(wire)
	require.NoError(t, err)
	assert.Equal(t, argv, parsed)
}
