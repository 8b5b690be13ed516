package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/NIU1599156/CameraManager/internal/models"
)

// FileStore keeps the cameras as a JSON array in a single file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns an empty list when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) ([]models.Camera, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Camera{}, nil
	}
	if err != nil {
		return nil, err
	}

	var cameras []models.Camera
	if err := json.Unmarshal(data, &cameras); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if cameras == nil {
		cameras = []models.Camera{}
	}
	return cameras, nil
}

// Save replaces the file atomically: a crash mid-write leaves the previous
// list in place.
func (s *FileStore) Save(_ context.Context, cameras []models.Camera) error {
	if cameras == nil {
		cameras = []models.Camera{}
	}
	data, err := json.MarshalIndent(cameras, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
