package detection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/NIU1599156/CameraManager/internal/metrics"
	"github.com/NIU1599156/CameraManager/internal/models"
	"github.com/NIU1599156/CameraManager/internal/motion"
)

var ErrAlreadyRunning = errors.New("detection already running")

// CameraLister returns a snapshot of the registry. The slice must not be
// shared with the registry.
type CameraLister interface {
	List() []models.Camera
}

// EventSink receives every motion event, in the order each worker produced them.
type EventSink interface {
	Publish(ctx context.Context, event models.MotionEvent)
}

type Config struct {
	SweepInterval time.Duration
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Worker        WorkerConfig
}

// WorkerStatus describes one camera as seen by the last sweep.
type WorkerStatus struct {
	CameraID   int       `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	State      string    `json:"state"`
	LastError  string    `json:"last_error,omitempty"`
	RetryAt    time.Time `json:"retry_at,omitempty"`
}

type workerHandle struct {
	camera models.Camera
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

type retry struct {
	camera  models.Camera
	delay   time.Duration
	retryAt time.Time
	lastErr error
}

// Supervisor keeps one detector worker per registered camera and forwards
// their events to the sink.
type Supervisor struct {
	cameras  CameraLister
	opener   Opener
	detector *motion.Detector
	sink     EventSink
	cfg      Config
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statusMu sync.RWMutex
	status   []WorkerStatus
}

func NewSupervisor(cameras CameraLister, opener Opener, detector *motion.Detector, sink EventSink, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		cameras:  cameras,
		opener:   opener,
		detector: detector,
		sink:     sink,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With().Str("component", "detection").Logger(),
	}
}

// Start launches the sweep loop. It returns ErrAlreadyRunning if the loop is
// already active.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)

	s.logger.Info().Dur("sweep_interval", s.cfg.SweepInterval).Msg("motion loop started")
	return nil
}

// Stop cancels every worker and waits until all of them released their
// sources and every pending event reached the sink. Calling Stop on a
// stopped supervisor does nothing.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info().Msg("motion loop stopped")
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Workers returns the per-camera status recorded by the last sweep.
func (s *Supervisor) Workers() []WorkerStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return append([]WorkerStatus(nil), s.status...)
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	events := make(chan models.MotionEvent, 64)
	forwarded := make(chan struct{})
	go s.forward(context.WithoutCancel(ctx), events, forwarded)

	workers := make(map[int]*workerHandle)
	retries := make(map[int]*retry)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		s.sweep(ctx, workers, retries, events)

		select {
		case <-ctx.Done():
			s.stopWorkers(lo.Values(workers))
			close(events)
			<-forwarded

			s.setStatus(nil)
			s.metrics.ActiveWorkers.Set(0)
			return
		case <-ticker.C:
		}
	}
}

// forward hands events to the sink as they arrive. A single forwarder keeps
// every worker's events in production order.
func (s *Supervisor) forward(ctx context.Context, events <-chan models.MotionEvent, done chan struct{}) {
	defer close(done)
	for event := range events {
		s.metrics.MotionEvents.WithLabelValues(event.CameraName).Inc()
		s.logger.Debug().Str("camera", event.CameraName).Msg(event.Message())
		s.sink.Publish(ctx, event)
	}
}

// sweep reconciles the worker table against a fresh registry snapshot.
func (s *Supervisor) sweep(ctx context.Context, workers map[int]*workerHandle, retries map[int]*retry, events chan<- models.MotionEvent) {
	if ctx.Err() != nil {
		return
	}
	s.metrics.Sweeps.Inc()

	snapshot := s.cameras.List()
	byID := lo.SliceToMap(snapshot, func(c models.Camera) (int, models.Camera) {
		return c.ID, c
	})
	now := time.Now()

	for id, h := range workers {
		select {
		case <-h.done:
			delete(workers, id)
			s.reap(h, retries, now)
		default:
		}
	}

	stale := lo.PickBy(workers, func(id int, h *workerHandle) bool {
		cam, ok := byID[id]
		return !ok || cam != h.camera
	})
	if len(stale) > 0 {
		s.stopWorkers(lo.Values(stale))
		for id, h := range stale {
			delete(workers, id)
			s.logger.Info().Int("camera_id", id).Str("camera", h.camera.Name).Msg("worker stopped")
		}
	}

	for id, r := range retries {
		if cam, ok := byID[id]; !ok || cam != r.camera {
			delete(retries, id)
		}
	}

	for _, cam := range snapshot {
		if _, ok := workers[cam.ID]; ok {
			continue
		}
		if r, ok := retries[cam.ID]; ok && now.Before(r.retryAt) {
			continue
		}
		workers[cam.ID] = s.startWorker(ctx, cam, events)
	}

	s.metrics.ActiveWorkers.Set(float64(len(workers)))
	s.recordStatus(snapshot, workers, retries)
}

func (s *Supervisor) startWorker(ctx context.Context, cam models.Camera, events chan<- models.MotionEvent) *workerHandle {
	wctx, cancel := context.WithCancel(ctx)
	h := &workerHandle{
		camera: cam,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	worker := NewWorker(cam, s.opener, s.detector, s.cfg.Worker, s.logger)
	go func() {
		defer close(h.done)
		h.result = worker.Run(wctx, events)
	}()

	return h
}

// reap records the outcome of a finished worker. Faults back off
// exponentially; a detection restarts the camera on this same sweep.
func (s *Supervisor) reap(h *workerHandle, retries map[int]*retry, now time.Time) {
	h.cancel()
	id := h.camera.ID

	switch h.result.State {
	case StateFaulted:
		s.metrics.WorkerFaults.WithLabelValues(h.camera.Name).Inc()

		delay := s.cfg.RetryDelay
		if r, ok := retries[id]; ok && r.camera == h.camera {
			delay = min(r.delay*2, s.cfg.MaxRetryDelay)
		}
		retries[id] = &retry{
			camera:  h.camera,
			delay:   delay,
			retryAt: now.Add(delay),
			lastErr: h.result.Err,
		}
		s.logger.Warn().Err(h.result.Err).Int("camera_id", id).Dur("retry_in", delay).Msg("worker faulted")
	default:
		delete(retries, id)
	}
}

// stopWorkers cancels all handles first, then waits for each one, so slow
// sources are released in parallel.
func (s *Supervisor) stopWorkers(handles []*workerHandle) {
	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		<-h.done
	}
}

func (s *Supervisor) recordStatus(snapshot []models.Camera, workers map[int]*workerHandle, retries map[int]*retry) {
	status := lo.Map(snapshot, func(cam models.Camera, _ int) WorkerStatus {
		st := WorkerStatus{CameraID: cam.ID, CameraName: cam.Name, State: "idle"}
		if _, ok := workers[cam.ID]; ok {
			st.State = "running"
		} else if r, ok := retries[cam.ID]; ok {
			st.State = "backoff"
			st.RetryAt = r.retryAt
			if r.lastErr != nil {
				st.LastError = r.lastErr.Error()
			}
		}
		return st
	})
	sort.Slice(status, func(i, j int) bool { return status[i].CameraID < status[j].CameraID })
	s.setStatus(status)
}

func (s *Supervisor) setStatus(status []WorkerStatus) {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()
}
