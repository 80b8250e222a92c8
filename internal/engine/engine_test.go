package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(Config{NumDatabases: 1})
}

// TestTransactionPoisoning mirrors spec.md §8 scenario 2: a watched
// key mutated by another connection poisons the watcher's transaction,
// and EXEC on it returns a nil array without applying the queued write.
func TestTransactionPoisoning(t *testing.T) {
	e := newTestEngine(t)
	connA := NewConn(1)
	connB := NewConn(2)
	e.Register(connA)
	e.Register(connB)

	require.Equal(t, "+OK\r\n", string(e.Execute(connA, []string{"WATCH", "k"})))
	require.Equal(t, "+OK\r\n", string(e.Execute(connA, []string{"MULTI"})))
	require.Equal(t, "+QUEUED\r\n", string(e.Execute(connA, []string{"SET", "k", "1"})))

	e.Execute(connB, []string{"SET", "k", "2"})

	reply := e.Execute(connA, []string{"EXEC"})
	assert.Equal(t, "*-1\r\n", string(reply))

	got := e.Execute(connA, []string{"GET", "k"})
	assert.Equal(t, "$1\r\n2\r\n", string(got))
}

// TestTransactionExecRunsQueueWhenClean covers the non-poisoned path:
// every queued command runs in order and EXEC returns their replies as
// one array.
func TestTransactionExecRunsQueueWhenClean(t *testing.T) {
	e := newTestEngine(t)
	conn := NewConn(1)
	e.Register(conn)

	e.Execute(conn, []string{"MULTI"})
	e.Execute(conn, []string{"SET", "k", "1"})
	e.Execute(conn, []string{"INCR", "k"})
	reply := e.Execute(conn, []string{"EXEC"})

	assert.Equal(t, "*2\r\n+OK\r\n:2\r\n", string(reply))
	assert.False(t, conn.InTransaction)
}

// TestBlockingPopHandoff mirrors spec.md §8 scenario 3: BLPOP on an
// empty key blocks, and a subsequent RPUSH serves the waiter
// synchronously within the same write, leaving the list empty again.
func TestBlockingPopHandoff(t *testing.T) {
	e := newTestEngine(t)
	conn := NewConn(1)
	e.Register(conn)

	reply := e.Execute(conn, []string{"BLPOP", "q", "0"})
	require.Nil(t, reply)
	require.True(t, conn.Blocked)

	pusher := NewConn(2)
	e.Register(pusher)
	pushReply := e.Execute(pusher, []string{"RPUSH", "q", "hello"})
	assert.Equal(t, ":1\r\n", string(pushReply))

	select {
	case res := <-conn.Wake:
		assert.False(t, conn.Blocked)
		assert.Equal(t, "*2\r\n$1\r\nq\r\n$5\r\nhello\r\n", string(res.Reply))
	case <-time.After(time.Second):
		t.Fatal("blocked connection was never woken")
	}

	assert.Equal(t, ":0\r\n", string(e.Execute(pusher, []string{"LLEN", "q"})))
}

// TestBRPopServedFromTail covers spec.md §4.4's BRPOP side: a waiter
// registered by BRPOP must be served via RPop (the list's tail), not
// the LPop a BLPOP waiter on the same key would get.
func TestBRPopServedFromTail(t *testing.T) {
	e := newTestEngine(t)
	conn := NewConn(1)
	e.Register(conn)

	reply := e.Execute(conn, []string{"BRPOP", "q", "0"})
	require.Nil(t, reply)
	require.True(t, conn.Blocked)

	pusher := NewConn(2)
	e.Register(pusher)
	pushReply := e.Execute(pusher, []string{"RPUSH", "q", "first", "second"})
	assert.Equal(t, ":2\r\n", string(pushReply))

	select {
	case res := <-conn.Wake:
		assert.False(t, conn.Blocked)
		assert.Equal(t, "*2\r\n$1\r\nq\r\n$6\r\nsecond\r\n", string(res.Reply))
	case <-time.After(time.Second):
		t.Fatal("blocked connection was never woken")
	}

	assert.Equal(t, ":1\r\n", string(e.Execute(pusher, []string{"LLEN", "q"})))
}

// TestBlockingCommandDegradesInsideExec covers spec.md §4.4's "a
// transaction cannot yield" rule: BLPOP inside EXEC behaves like LPOP
// on an empty list instead of registering a waiter.
func TestBlockingCommandDegradesInsideExec(t *testing.T) {
	e := newTestEngine(t)
	conn := NewConn(1)
	e.Register(conn)

	e.Execute(conn, []string{"MULTI"})
	e.Execute(conn, []string{"BLPOP", "q", "0"})
	reply := e.Execute(conn, []string{"EXEC"})

	assert.Equal(t, "*1\r\n*-1\r\n", string(reply))
	assert.False(t, conn.Blocked)
}

// TestExpiryReadPath mirrors spec.md §8 scenario 1: a key past its
// deadline is deleted on the read path and reports absent.
func TestExpiryReadPath(t *testing.T) {
	e := newTestEngine(t)
	conn := NewConn(1)
	e.Register(conn)

	e.Execute(conn, []string{"SET", "k", "v", "PX", "1"})
	time.Sleep(5 * time.Millisecond)

	reply := e.Execute(conn, []string{"EXISTS", "k"})
	assert.Equal(t, ":0\r\n", string(reply))
}

// TestWrongTypeError covers §7's WRONGTYPE error kind: a type-specific
// handler must reject a key holding a different variant.
func TestWrongTypeError(t *testing.T) {
	e := newTestEngine(t)
	conn := NewConn(1)
	e.Register(conn)

	e.Execute(conn, []string{"SET", "k", "v"})
	reply := e.Execute(conn, []string{"LPUSH", "k", "a"})
	assert.Contains(t, string(reply), "WRONGTYPE")
}
