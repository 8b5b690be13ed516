package detection

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NIU1599156/CameraManager/internal/framesource"
	"github.com/NIU1599156/CameraManager/internal/models"
	"github.com/NIU1599156/CameraManager/internal/motion"
	"github.com/NIU1599156/CameraManager/internal/motion/motiontest"
)

const (
	frameW = 320
	frameH = 240
)

var frontDoor = models.Camera{ID: 1, Name: "Front door", Address: "rtsp://cam1"}

func blank() *image.RGBA { return motiontest.Blank(frameW, frameH) }

// blobFrame returns a frame whose detected blob has bounding box b.
func blobFrame(b image.Rectangle) *image.RGBA {
	return motiontest.WithRect(frameW, frameH, motiontest.RectForBlob(b))
}

// bigBlob is 3000 px² and sits inside the band [roi_y1+5, roi_y2-5].
func bigBlob() *image.RGBA {
	roi := motion.ROIFor(frameH, 0.1)
	return blobFrame(image.Rect(100, roi.Y1+5, 150, roi.Y1+65))
}

// smallBlob is 1000 px².
func smallBlob() *image.RGBA {
	return blobFrame(image.Rect(100, 100, 125, 140))
}

func newTestWorker(opener Opener) *Worker {
	return NewWorker(frontDoor, opener, motion.NewDetector(motion.DefaultThresholds()),
		WorkerConfig{SkipFrames: 1, PollDelay: time.Millisecond}, zerolog.Nop())
}

func TestWorkerEmitsMotionEvent(t *testing.T) {
	src := &fakeSource{frames: []*image.RGBA{blank(), blank(), bigBlob()}}
	opener := newFakeOpener()
	opener.set(frontDoor.Address, func(context.Context) (framesource.Source, error) { return src, nil })

	events := make(chan models.MotionEvent, 1)
	res := newTestWorker(opener).Run(context.Background(), events)

	assert.Equal(t, StateDetected, res.State)
	assert.NoError(t, res.Err)
	require.Len(t, events, 1)

	ev := <-events
	assert.Equal(t, "Front door", ev.CameraName)
	assert.Equal(t, 1, ev.CameraID)
	assert.Equal(t, "Motion detected Front door", ev.Message())
	assert.NotNil(t, ev.Frame)
	assert.False(t, ev.Timestamp.IsZero())
	assert.True(t, src.isClosed())
}

func TestWorkerIgnoresSmallBlobs(t *testing.T) {
	src := &fakeSource{frames: []*image.RGBA{blank(), blank(), smallBlob(), blank(), blank()}}
	opener := newFakeOpener()
	opener.set(frontDoor.Address, func(context.Context) (framesource.Source, error) { return src, nil })

	events := make(chan models.MotionEvent, 1)
	res := newTestWorker(opener).Run(context.Background(), events)

	assert.Equal(t, StateFaulted, res.State)
	assert.ErrorIs(t, res.Err, framesource.ErrReadFailure)
	assert.Empty(t, events)
	assert.True(t, src.isClosed())
}

func TestWorkerSamplesEveryOtherFrame(t *testing.T) {
	// motion only ever appears on the skipped frames
	src := &fakeSource{frames: []*image.RGBA{blank(), bigBlob(), blank(), bigBlob(), blank()}}
	opener := newFakeOpener()
	opener.set(frontDoor.Address, func(context.Context) (framesource.Source, error) { return src, nil })

	events := make(chan models.MotionEvent, 1)
	res := newTestWorker(opener).Run(context.Background(), events)

	assert.Equal(t, StateFaulted, res.State)
	assert.Empty(t, events)
}

func TestWorkerOpenFailure(t *testing.T) {
	events := make(chan models.MotionEvent, 1)
	res := newTestWorker(newFakeOpener()).Run(context.Background(), events)

	assert.Equal(t, StateFaulted, res.State)
	assert.ErrorIs(t, res.Err, framesource.ErrSourceUnavailable)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	src := &fakeSource{loop: blank()}
	opener := newFakeOpener()
	opener.set(frontDoor.Address, func(context.Context) (framesource.Source, error) { return src, nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() {
		done <- newTestWorker(opener).Run(ctx, make(chan models.MotionEvent))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.Equal(t, StateClosed, res.State)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.True(t, src.isClosed())
}
