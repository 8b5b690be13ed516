package s3

import (
	"bytes"
	"context"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NIU1599156/CameraManager/internal/models"
)

// fakeS3 accepts every PUT and remembers the bodies by path.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	buckets map[string]bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.Trim(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodHead && !strings.Contains(path, "/"):
		if !f.buckets[path] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && !strings.Contains(path, "/"):
		f.buckets[path] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[path] = body
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, buckets: map[string]bool{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewMinioClient(strings.TrimPrefix(srv.URL, "http://"), "access", "secret", "snapshots")
	require.NoError(t, err)
	return c, fake
}

func TestSnapshotKey(t *testing.T) {
	ts := time.Unix(0, 1700000000123456789)
	assert.Equal(t, "3/1700000000123456789.jpg", SnapshotKey(models.MotionEvent{CameraID: 3, Timestamp: ts}))
}

func TestEnsureBucketExists(t *testing.T) {
	c, fake := newTestClient(t)

	require.NoError(t, c.EnsureBucketExists(context.Background()))
	assert.True(t, fake.buckets["snapshots"])
	require.NoError(t, c.EnsureBucketExists(context.Background()))
}

func TestSaveSnapshot(t *testing.T) {
	c, fake := newTestClient(t)

	event := models.MotionEvent{
		CameraID:  1,
		Timestamp: time.Unix(0, 42),
		Frame:     image.NewRGBA(image.Rect(0, 0, 32, 16)),
	}
	key, err := c.SaveSnapshot(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "1/42.jpg", key)

	fake.mu.Lock()
	body, ok := fake.objects["snapshots/1/42.jpg"]
	fake.mu.Unlock()
	require.True(t, ok)
	// JPEG start-of-image marker
	assert.True(t, bytes.Contains(body, []byte{0xFF, 0xD8, 0xFF}))
}

func TestSaveSnapshotWithoutFrame(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.SaveSnapshot(context.Background(), models.MotionEvent{CameraID: 1})
	assert.ErrorIs(t, err, ErrNoFrame)
}
