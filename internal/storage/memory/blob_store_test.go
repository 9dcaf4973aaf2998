package memory

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("<urlset/>")
	uri, err := store.PutObject(context.Background(), "run/casino/casino.xml", "application/xml", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://run/casino/casino.xml", uri)

	payload[0] = 'X'
	obj, ok := store.Get("run/casino/casino.xml")
	require.True(t, ok)
	assert.Equal(t, "<urlset/>", string(obj.Data))
	assert.Equal(t, "application/xml", obj.ContentType)
}

func TestBlobStoreKeysSorted(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, k := range []string{"b", "a", "c"} {
		_, err := store.PutObject(context.Background(), k, "", strings.NewReader(k))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, store.Keys())

	_, err := store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
	_, ok := store.Get("missing")
	assert.False(t, ok)
}
