package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryInvariant(t *testing.T) {
	db := NewDatabase(0)
	db.Set("k", "v", false)
	require.True(t, db.SetExpireAt("k", nowMS()-1))

	_, ok := db.Lookup("k")
	assert.False(t, ok)
	assert.False(t, db.Exists("k"))
	_, hasExp := db.expires["k"]
	assert.False(t, hasExp)
}

func TestEmptyContainerRemoved(t *testing.T) {
	db := NewDatabase(0)
	_, err := db.LPush("list", "a")
	require.NoError(t, err)
	_, err = db.LPop("list", 1)
	require.NoError(t, err)

	assert.False(t, db.Exists("list"))
	_, ok := db.data["list"]
	assert.False(t, ok)
}

func TestWrongType(t *testing.T) {
	db := NewDatabase(0)
	db.Set("k", "v", false)
	_, err := db.LPush("k", "a")
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestWatchMapOnlyHoldsWatchedKeys(t *testing.T) {
	db := NewDatabase(0)
	db.Watch("k", 1)
	db.UnwatchAll(1, []string{"k"})
	_, ok := db.watched["k"]
	assert.False(t, ok)
}

func TestRenameNXRejectsExistingDest(t *testing.T) {
	db := NewDatabase(0)
	db.Set("a", "1", false)
	db.Set("b", "2", false)
	renamed, srcExisted := db.RenameNX("a", "b")
	assert.True(t, srcExisted)
	assert.False(t, renamed)
}

func TestIncrByNonIntegerLeavesStateUnmutated(t *testing.T) {
	db := NewDatabase(0)
	db.Set("k", "not-a-number", false)
	_, err := db.IncrBy("k", 1)
	assert.ErrorIs(t, err, ErrNotInteger)
	v, _, _ := db.Get("k")
	assert.Equal(t, "not-a-number", v)
}

func TestGlobMatch(t *testing.T) {
	assert.True(t, globMatch("*", "anything"))
	assert.True(t, globMatch("foo*", "foobar"))
	assert.False(t, globMatch("foo*", "barfoo"))
	assert.True(t, globMatch("h?llo", "hello"))
	assert.True(t, globMatch("h[ae]llo", "hallo"))
	assert.False(t, globMatch("h[ae]llo", "hillo"))
}
