// Package notify fans motion events out to connected observers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NIU1599156/CameraManager/internal/metrics"
	"github.com/NIU1599156/CameraManager/internal/models"
)

// ErrNotifyFailure wraps a failed send to one observer.
var ErrNotifyFailure = errors.New("notify failed")

// Observer is one open connection receiving text events.
type Observer interface {
	Send(ctx context.Context, text string) error
	Close() error
}

// Handle identifies a subscription.
type Handle string

// Hub owns the observer set. Broadcast holds the lock for the whole fanout,
// so an observer is never used after removal and no subscription is lost.
type Hub struct {
	mu        sync.Mutex
	observers map[Handle]Observer

	sendTimeout time.Duration
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewHub(sendTimeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		observers:   make(map[Handle]Observer),
		sendTimeout: sendTimeout,
		metrics:     m,
		logger:      logger.With().Str("component", "notify").Logger(),
	}
}

func (h *Hub) Subscribe(o Observer) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	handle := Handle(uuid.NewString())
	h.observers[handle] = o
	h.metrics.Observers.Set(float64(len(h.observers)))

	h.logger.Debug().Str("observer", string(handle)).Int("observers", len(h.observers)).Msg("observer connected")
	return handle
}

// Unsubscribe removes the observer. It reports false when the handle is not
// (or no longer) subscribed, e.g. after being pruned by a failed send.
func (h *Hub) Unsubscribe(handle Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.observers[handle]; !ok {
		return false
	}
	delete(h.observers, handle)
	h.metrics.Observers.Set(float64(len(h.observers)))

	h.logger.Debug().Str("observer", string(handle)).Int("observers", len(h.observers)).Msg("observer disconnected")
	return true
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Broadcast sends the event text to every observer concurrently, each send
// bounded by the hub's send timeout. Observers whose send fails are removed
// and closed. It returns the number of observers that received the event.
func (h *Hub) Broadcast(ctx context.Context, event models.MotionEvent) int {
	return h.BroadcastText(ctx, event.Message())
}

// BroadcastText is Broadcast for an already rendered message.
func (h *Hub) BroadcastText(ctx context.Context, text string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.metrics.Broadcasts.Inc()
	if len(h.observers) == 0 {
		return 0
	}

	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed = make(map[Handle]error)
	)
	for handle, o := range h.observers {
		wg.Add(1)
		go func(handle Handle, o Observer) {
			defer wg.Done()

			sendCtx := ctx
			if h.sendTimeout > 0 {
				var cancel context.CancelFunc
				sendCtx, cancel = context.WithTimeout(ctx, h.sendTimeout)
				defer cancel()
			}
			if err := o.Send(sendCtx, text); err != nil {
				failMu.Lock()
				failed[handle] = fmt.Errorf("%w: %v", ErrNotifyFailure, err)
				failMu.Unlock()
			}
		}(handle, o)
	}
	wg.Wait()

	for handle, err := range failed {
		o := h.observers[handle]
		delete(h.observers, handle)
		_ = o.Close()

		h.metrics.SendFailures.Inc()
		h.logger.Error().Err(err).Str("observer", string(handle)).Msg("failed to send message to client")
	}
	h.metrics.Observers.Set(float64(len(h.observers)))

	delivered := len(h.observers)
	h.logger.Debug().Str("message", text).Int("delivered", delivered).Msg("notified clients")
	return delivered
}

// Publish lets the hub act as the detection event sink.
func (h *Hub) Publish(ctx context.Context, event models.MotionEvent) {
	h.Broadcast(ctx, event)
}

// CloseAll disconnects every observer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for handle, o := range h.observers {
		_ = o.Close()
		delete(h.observers, handle)
	}
	h.metrics.Observers.Set(0)
}
