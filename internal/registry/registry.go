// Package registry keeps the list of configured cameras and persists it
// after every change.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/NIU1599156/CameraManager/internal/models"
)

var (
	ErrNotFound      = errors.New("camera not found")
	ErrInvalidCamera = errors.New("invalid camera")
)

// Store persists the full camera list.
type Store interface {
	Load(ctx context.Context) ([]models.Camera, error)
	Save(ctx context.Context, cameras []models.Camera) error
}

// Registry is safe for concurrent use. List returns a copy, so callers can
// iterate while the registry is edited.
type Registry struct {
	mu      sync.RWMutex
	cameras []models.Camera
	store   Store
	logger  zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Load replaces the in-memory list with the stored one.
func (r *Registry) Load(ctx context.Context) error {
	cameras, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cameras: %w", err)
	}

	r.mu.Lock()
	r.cameras = cameras
	r.mu.Unlock()

	r.logger.Info().Int("cameras", len(cameras)).Msg("cameras loaded")
	return nil
}

func (r *Registry) List() []models.Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Camera, len(r.cameras))
	copy(out, r.cameras)
	return out
}

func (r *Registry) Get(id int) (models.Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	camera, ok := lo.Find(r.cameras, func(c models.Camera) bool { return c.ID == id })
	if !ok {
		return models.Camera{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return camera, nil
}

// Add registers a camera under the next id (highest id + 1, starting at 1).
func (r *Registry) Add(ctx context.Context, name, address string) (models.Camera, error) {
	if err := validate(name, address); err != nil {
		return models.Camera{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	camera := models.Camera{
		ID:      nextID(r.cameras),
		Name:    strings.TrimSpace(name),
		Address: strings.TrimSpace(address),
	}

	next := append(r.snapshot(), camera)
	if err := r.commit(ctx, next); err != nil {
		return models.Camera{}, err
	}

	r.logger.Info().Int("camera_id", camera.ID).Str("camera", camera.Name).Msg("camera added")
	return camera, nil
}

func (r *Registry) Update(ctx context.Context, id int, name, address string) (models.Camera, error) {
	if err := validate(name, address); err != nil {
		return models.Camera{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, idx, ok := lo.FindIndexOf(r.cameras, func(c models.Camera) bool { return c.ID == id })
	if !ok {
		return models.Camera{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	next := r.snapshot()
	next[idx].Name = strings.TrimSpace(name)
	next[idx].Address = strings.TrimSpace(address)
	if err := r.commit(ctx, next); err != nil {
		return models.Camera{}, err
	}

	r.logger.Info().Int("camera_id", id).Str("camera", next[idx].Name).Msg("camera updated")
	return next[idx], nil
}

func (r *Registry) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := lo.Reject(r.cameras, func(c models.Camera, _ int) bool { return c.ID == id })
	if len(next) == len(r.cameras) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err := r.commit(ctx, next); err != nil {
		return err
	}

	r.logger.Info().Int("camera_id", id).Msg("camera deleted")
	return nil
}

// DeleteAll empties the registry.
func (r *Registry) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.commit(ctx, []models.Camera{}); err != nil {
		return err
	}

	r.logger.Info().Msg("all cameras deleted")
	return nil
}

func (r *Registry) snapshot() []models.Camera {
	out := make([]models.Camera, len(r.cameras))
	copy(out, r.cameras)
	return out
}

// commit persists next and only then makes it current. Callers hold mu.
func (r *Registry) commit(ctx context.Context, next []models.Camera) error {
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save cameras: %w", err)
	}
	r.cameras = next
	return nil
}

func nextID(cameras []models.Camera) int {
	if len(cameras) == 0 {
		return 1
	}
	return lo.MaxBy(cameras, func(a, b models.Camera) bool { return a.ID > b.ID }).ID + 1
}

func validate(name, address string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCamera)
	}
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidCamera)
	}
	return nil
}
