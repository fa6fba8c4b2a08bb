package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/psl-catalog-crawler/internal/storage"
	"github.com/JakeFAU/psl-catalog-crawler/internal/storage/memory"
)

func TestWriteAllContinuesPastFailures(t *testing.T) {
	t.Parallel()

	broken := &storage.MockBlobStore{}
	broken.On("PutObject", "catalog.yaml", "application/yaml", "doc").
		Return("", errors.New("bucket missing")).Once()
	mem := memory.NewBlobStore()

	uris, err := storage.WriteAll(context.Background(), []storage.Target{
		{Name: "gcs", Store: broken, Path: "catalog.yaml"},
		{Name: "skipped"},
		{Name: "memory", Store: mem, Path: "out/catalog.yaml"},
	}, "application/yaml", []byte("doc"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gcs: bucket missing")
	assert.Equal(t, []string{"memory://out/catalog.yaml"}, uris)
	body, ok := mem.Get("out/catalog.yaml")
	require.True(t, ok)
	assert.Equal(t, "doc", string(body))
	broken.AssertExpectations(t)
	broken.AssertNumberOfCalls(t, "PutObject", 1)
	broken.AssertCalled(t, "PutObject", "catalog.yaml", mock.Anything, "doc")
}
