package detection

import (
	"context"
	"image"
	"sync"

	"github.com/NIU1599156/CameraManager/internal/framesource"
	"github.com/NIU1599156/CameraManager/internal/models"
)

type fakeSource struct {
	mu     sync.Mutex
	frames []*image.RGBA
	loop   *image.RGBA // returned forever once frames run out; nil means end of stream
	closed bool
	reads  int
}

func (s *fakeSource) Read() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, framesource.ErrReadFailure
	}
	s.reads++
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		return f, nil
	}
	if s.loop != nil {
		return s.loop, nil
	}
	return nil, framesource.ErrReadFailure
}

func (s *fakeSource) Skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := s.Read(); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeOpener builds a fresh source per Open call from the factory registered
// for the address.
type fakeOpener struct {
	mu        sync.Mutex
	factories map[string]func(ctx context.Context) (framesource.Source, error)
	opened    map[string][]*fakeSource
	opens     map[string]int
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		factories: make(map[string]func(ctx context.Context) (framesource.Source, error)),
		opened:    make(map[string][]*fakeSource),
		opens:     make(map[string]int),
	}
}

func (o *fakeOpener) set(address string, fn func(ctx context.Context) (framesource.Source, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.factories[address] = fn
}

func (o *fakeOpener) Open(ctx context.Context, address string) (framesource.Source, error) {
	o.mu.Lock()
	fn, ok := o.factories[address]
	o.opens[address]++
	o.mu.Unlock()

	if !ok {
		return nil, framesource.ErrSourceUnavailable
	}
	src, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if fs, ok := src.(*fakeSource); ok {
		o.mu.Lock()
		o.opened[address] = append(o.opened[address], fs)
		o.mu.Unlock()
	}
	return src, nil
}

func (o *fakeOpener) openCount(address string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[address]
}

func (o *fakeOpener) sources(address string) []*fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeSource(nil), o.opened[address]...)
}

type fakeLister struct {
	mu      sync.Mutex
	cameras []models.Camera
}

func (l *fakeLister) List() []models.Camera {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Camera(nil), l.cameras...)
}

func (l *fakeLister) set(cameras ...models.Camera) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cameras = cameras
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.MotionEvent
}

func (r *recordingSink) Publish(_ context.Context, event models.MotionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) all() []models.MotionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.MotionEvent(nil), r.events...)
}
