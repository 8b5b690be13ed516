package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NIU1599156/CameraManager/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	cameras []models.Camera
	saves   int
	fail    bool
}

func (s *memStore) Load(context.Context) ([]models.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Camera{}, s.cameras...), nil
}

func (s *memStore) Save(_ context.Context, cameras []models.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.cameras = append([]models.Camera{}, cameras...)
	s.saves++
	return nil
}

func newTestRegistry(t *testing.T, store Store) *Registry {
	t.Helper()
	r := New(store, zerolog.Nop())
	require.NoError(t, r.Load(context.Background()))
	return r
}

func TestAddAssignsIDs(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	r := newTestRegistry(t, store)

	a, err := r.Add(ctx, "Front door", "rtsp://cam1")
	require.NoError(t, err)
	b, err := r.Add(ctx, "Garage", "rtsp://cam2")
	require.NoError(t, err)

	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, r.List(), store.cameras)
}

func TestAddUsesHighestID(t *testing.T) {
	store := &memStore{cameras: []models.Camera{{ID: 7, Name: "a", Address: "x"}, {ID: 3, Name: "b", Address: "y"}}}
	r := newTestRegistry(t, store)

	c, err := r.Add(context.Background(), "c", "z")
	require.NoError(t, err)
	assert.Equal(t, 8, c.ID)
}

func TestAddRejectsInvalid(t *testing.T) {
	r := newTestRegistry(t, &memStore{})

	_, err := r.Add(context.Background(), "", "rtsp://cam1")
	assert.ErrorIs(t, err, ErrInvalidCamera)
	_, err = r.Add(context.Background(), "Front door", "  ")
	assert.ErrorIs(t, err, ErrInvalidCamera)
	assert.Empty(t, r.List())
}

func TestGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, &memStore{})

	c, err := r.Add(ctx, "Front door", "rtsp://cam1")
	require.NoError(t, err)

	got, err := r.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	updated, err := r.Update(ctx, c.ID, "Back door", "rtsp://cam9")
	require.NoError(t, err)
	assert.Equal(t, models.Camera{ID: c.ID, Name: "Back door", Address: "rtsp://cam9"}, updated)

	_, err = r.Update(ctx, 42, "x", "y")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Delete(ctx, c.ID))
	assert.ErrorIs(t, r.Delete(ctx, c.ID), ErrNotFound)
	_, err = r.Get(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	r := newTestRegistry(t, store)

	_, _ = r.Add(ctx, "a", "x")
	_, _ = r.Add(ctx, "b", "y")
	require.NoError(t, r.DeleteAll(ctx))

	assert.Empty(t, r.List())
	assert.Empty(t, store.cameras)

	c, err := r.Add(ctx, "c", "z")
	require.NoError(t, err)
	assert.Equal(t, 1, c.ID)
}

func TestListIsSnapshot(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, &memStore{})
	c, _ := r.Add(ctx, "Front door", "rtsp://cam1")

	snapshot := r.List()
	_, err := r.Update(ctx, c.ID, "Renamed", "rtsp://cam1")
	require.NoError(t, err)
	_, _ = r.Add(ctx, "Garage", "rtsp://cam2")

	require.Len(t, snapshot, 1)
	assert.Equal(t, "Front door", snapshot[0].Name)

	snapshot[0].Name = "mutated"
	got, _ := r.Get(c.ID)
	assert.Equal(t, "Renamed", got.Name)
}

func TestFailedSaveLeavesRegistryUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	r := newTestRegistry(t, store)
	c, _ := r.Add(ctx, "Front door", "rtsp://cam1")

	store.fail = true
	_, err := r.Add(ctx, "Garage", "rtsp://cam2")
	assert.Error(t, err)
	_, err = r.Update(ctx, c.ID, "x", "y")
	assert.Error(t, err)
	assert.Error(t, r.Delete(ctx, c.ID))

	assert.Equal(t, []models.Camera{c}, r.List())
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cameras.json")

	r := newTestRegistry(t, NewFileStore(path))
	assert.Empty(t, r.List())

	_, err := r.Add(ctx, "Front door", "rtsp://cam1")
	require.NoError(t, err)
	_, err = r.Add(ctx, "Garage", "rtsp://cam2")
	require.NoError(t, err)

	reloaded := newTestRegistry(t, NewFileStore(path))
	assert.Equal(t, r.List(), reloaded.List())
}

func TestFileStoreReadsLegacyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "Front door", "ip": "rtsp://cam1", "id": 1}]`), 0o644))

	cameras, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Camera{{ID: 1, Name: "Front door", Address: "rtsp://cam1"}}, cameras)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	r := New(NewFileStore(path), zerolog.Nop())
	assert.Error(t, r.Load(context.Background()))
}
