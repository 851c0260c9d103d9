package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/beacon/pkg/db"
)

func TestKVStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{
			name: "basic_put_get",
			fn:   testBasicPutGet,
		},
		{
			name: "has",
			fn:   testHas,
		},
		{
			name: "delete_operations",
			fn:   testDelete,
		},
		{
			name: "store_closure",
			fn:   testStoreClosure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewKVStore()
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck

			tc.fn(t, store)
		})
	}
}

func testBasicPutGet(t *testing.T, store db.KVStore) {
	key := []byte("group-0")
	value := []byte("public-key")

	require.NoError(t, store.Put(key, value))

	retrieved, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)

	// returned slices must not alias pebble memory
	retrieved[0] = 'X'
	again, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, value, again)

	_, err = store.Get([]byte("non-existent"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func testHas(t *testing.T, store db.KVStore) {
	ok, err := store.Has([]byte("relay"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put([]byte("relay"), []byte{1}))

	ok, err = store.Has([]byte("relay"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func testDelete(t *testing.T, store db.KVStore) {
	key := []byte("delete-test")

	require.NoError(t, store.Put(key, []byte("to-be-deleted")))
	require.NoError(t, store.Delete(key))

	_, err := store.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)

	// Delete non-existent key should not error
	assert.NoError(t, store.Delete([]byte("non-existent")))
}

func testStoreClosure(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Close())

	_, err := store.Get([]byte("key"))
	assert.ErrorIs(t, err, ErrClosed)

	err = store.Put([]byte("key"), []byte("value"))
	assert.ErrorIs(t, err, ErrClosed)

	err = store.Delete([]byte("key"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = store.NewIterator(nil, nil)
	assert.ErrorIs(t, err, ErrClosed)

	// Double close should not error
	assert.NoError(t, store.Close())
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put([]byte("k"), []byte("v")))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	v, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
