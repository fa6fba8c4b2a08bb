package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("air: {}\n")
	uri, err := store.PutObject(context.Background(), "noaa_catalog.yaml", "application/yaml", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://noaa_catalog.yaml", uri)
	assert.Equal(t, "application/yaml", store.ContentType("noaa_catalog.yaml"))

	got, ok := store.Get("noaa_catalog.yaml")
	require.True(t, ok)
	got[0] = 'X'
	again, _ := store.Get("noaa_catalog.yaml")
	assert.Equal(t, "air: {}\n", string(again), "Get returns a copy")

	_, ok = store.Get("missing")
	assert.False(t, ok)

	_, err = store.PutObject(context.Background(), "", "", bytes.NewReader(nil))
	assert.Error(t, err)
}
