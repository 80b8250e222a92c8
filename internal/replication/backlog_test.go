package replication

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacklogRoundsSizeToPowerOfTwo(t *testing.T) {
	b := NewBacklog(10)
	assert.Equal(t, 16, b.size)
}

func TestBacklogAppendAndGetRangeWithinWindow(t *testing.T) {
	b := NewBacklog(16)
	b.Append([]byte("hello"))
	b.Append([]byte("world"))
	assert.Equal(t, int64(10), b.Offset())

	data, ok := b.GetRange(5)
	require.True(t, ok)
	assert.Equal(t, []byte("world"), data)

	data, ok = b.GetRange(0)
	require.True(t, ok)
	assert.Equal(t, []byte("helloworld"), data)
}

func TestBacklogGetRangeOutsideWindow(t *testing.T) {
	b := NewBacklog(8)
	b.Append(bytes.Repeat([]byte("a"), 20)) // overflows an 8-byte ring repeatedly

	_, ok := b.GetRange(0)
	assert.False(t, ok, "offset 0 should have been evicted from an 8-byte backlog after 20 bytes")

	data, ok := b.GetRange(b.Offset())
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestBacklogWrapAround(t *testing.T) {
	b := NewBacklog(8)
	b.Append([]byte("abcd"))
	b.Append([]byte("efgh")) // fills exactly 8
	b.Append([]byte("ij"))   // wraps: evicts "ab"

	assert.False(t, b.InWindow(0))
	assert.True(t, b.InWindow(2))

	data, ok := b.GetRange(2)
	require.True(t, ok)
	assert.Equal(t, []byte("cdefghij"), data)
}

func TestBacklogFutureOffsetRejected(t *testing.T) {
	b := NewBacklog(16)
	b.Append([]byte("abc"))
	_, ok := b.GetRange(100)
	assert.False(t, ok)
}
