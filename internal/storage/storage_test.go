package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aciencia/apiserver/config"
)

type fakeBackend struct {
	contentType string
	objects     map[string]string
}

func (f *fakeBackend) EnsureBucket(context.Context) error { return nil }

func (f *fakeBackend) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.contentType = contentType
	f.objects[key] = string(body)
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeBackend) Bucket() string { return "images" }

func TestStorageDefaultsContentType(t *testing.T) {
	backend := &fakeBackend{objects: map[string]string{}}
	s := NewStorage(backend)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "elements/person/1/a.png", strings.NewReader("png"), 3, ""))
	assert.Equal(t, "application/octet-stream", backend.contentType)
	assert.Equal(t, "png", backend.objects["elements/person/1/a.png"])

	require.NoError(t, s.Delete(ctx, "elements/person/1/a.png"))
	assert.Empty(t, backend.objects)
	assert.Equal(t, "images", s.Bucket())
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.StorageConfig{Backend: BackendMinio})
	assert.Error(t, err)
}
