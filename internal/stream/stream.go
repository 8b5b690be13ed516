// Package stream supervises one external relay process per camera. Every
// relay runs as the leader of its own process group so that stopping it also
// stops whatever it spawned.
package stream

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/NIU1599156/CameraManager/internal/metrics"
	"github.com/NIU1599156/CameraManager/internal/models"
	"github.com/NIU1599156/CameraManager/internal/procgroup"
)

var (
	ErrAlreadyRunning = errors.New("stream already running")
	ErrNotFound       = errors.New("stream not running")
	ErrSpawnFailure   = errors.New("failed to spawn relay")
)

type State string

const (
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateExited   State = "exited"
)

type Config struct {
	Binary string
	// Destination may contain {id}, replaced with the camera id.
	Destination string
	StopTimeout time.Duration
}

// ArgsBuilder renders the relay arguments for a camera. The binary comes
// from Config.
type ArgsBuilder func(camera models.Camera, destination string) []string

// RelayArgs transcodes the camera to a low bitrate flv stream.
func RelayArgs(camera models.Camera, destination string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", camera.Address,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-b:v", "300k",
		"-maxrate", "200k",
		"-bufsize", "600k",
		"-s", "320x240",
		"-f", "flv",
		"-reconnect", "1",
		"-reconnect_at_eof", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "2",
		destination,
	}
}

// Handle describes a tracked relay.
type Handle struct {
	CameraID   int       `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	PGID       int       `json:"pgid"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
}

type relay struct {
	handle Handle
	exited chan struct{}
}

type Supervisor struct {
	cfg     Config
	args    ArgsBuilder
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu     sync.Mutex
	relays map[int]*relay
}

// NewSupervisor uses RelayArgs when args is nil.
func NewSupervisor(cfg Config, args ArgsBuilder, m *metrics.Metrics, logger zerolog.Logger) *Supervisor {
	if args == nil {
		args = RelayArgs
	}
	return &Supervisor{
		cfg:     cfg,
		args:    args,
		metrics: m,
		logger:  logger.With().Str("component", "stream").Logger(),
		relays:  make(map[int]*relay),
	}
}

func (s *Supervisor) destination(id int) string {
	return strings.ReplaceAll(s.cfg.Destination, "{id}", strconv.Itoa(id))
}

// Start launches the relay for camera. A camera already tracked, running or
// still stopping, gets ErrAlreadyRunning.
func (s *Supervisor) Start(camera models.Camera) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.relays[camera.ID]; ok {
		return Handle{}, fmt.Errorf("%w: camera %d", ErrAlreadyRunning, camera.ID)
	}

	cmd := exec.Command(s.cfg.Binary, s.args(camera, s.destination(camera.ID))...)
	procgroup.Setpgid(cmd)
	if err := cmd.Start(); err != nil {
		s.metrics.SpawnFailures.Inc()
		return Handle{}, fmt.Errorf("%w: camera %d: %v", ErrSpawnFailure, camera.ID, err)
	}

	r := &relay{
		handle: Handle{
			CameraID:   camera.ID,
			CameraName: camera.Name,
			PGID:       cmd.Process.Pid,
			State:      StateRunning,
			StartedAt:  time.Now(),
		},
		exited: make(chan struct{}),
	}
	s.relays[camera.ID] = r
	s.metrics.ActiveStreams.Set(float64(len(s.relays)))

	go s.wait(cmd, r)

	s.logger.Info().Int("camera_id", camera.ID).Str("camera", camera.Name).Int("pgid", r.handle.PGID).Msg("relay started")
	return r.handle, nil
}

func (s *Supervisor) wait(cmd *exec.Cmd, r *relay) {
	err := cmd.Wait()
	close(r.exited)

	s.mu.Lock()
	if s.relays[r.handle.CameraID] != r || r.handle.State == StateStopping {
		s.mu.Unlock()
		return
	}
	r.handle.State = StateExited
	delete(s.relays, r.handle.CameraID)
	s.metrics.ActiveStreams.Set(float64(len(s.relays)))
	s.metrics.AbnormalExits.Inc()
	s.mu.Unlock()

	s.logger.Warn().Err(err).Int("camera_id", r.handle.CameraID).Msg("relay exited on its own")

	// children of the relay may outlive it
	if err := procgroup.Reap(r.handle.PGID, s.cfg.StopTimeout); err != nil {
		s.logger.Error().Err(err).Int("camera_id", r.handle.CameraID).Int("pgid", r.handle.PGID).Msg("failed to reap relay process group")
	}
}

// Stop terminates the relay's process group: SIGTERM, then SIGKILL after
// StopTimeout. The handle is removed once the group is gone.
func (s *Supervisor) Stop(cameraID int) error {
	s.mu.Lock()
	r, ok := s.relays[cameraID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: camera %d", ErrNotFound, cameraID)
	}
	if r.handle.State == StateStopping {
		// another Stop owns the teardown
		s.mu.Unlock()
		<-r.exited
		return nil
	}
	r.handle.State = StateStopping
	s.mu.Unlock()

	err := procgroup.Terminate(r.handle.PGID, r.exited, s.cfg.StopTimeout)

	s.mu.Lock()
	if s.relays[cameraID] == r {
		delete(s.relays, cameraID)
	}
	r.handle.State = StateExited
	s.metrics.ActiveStreams.Set(float64(len(s.relays)))
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to stop relay for camera %d: %w", cameraID, err)
	}
	s.logger.Info().Int("camera_id", cameraID).Msg("relay stopped")
	return nil
}

// StopAll stops every tracked relay concurrently.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := lo.Keys(s.relays)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := s.Stop(id); err != nil && !errors.Is(err, ErrNotFound) {
				s.logger.Error().Err(err).Int("camera_id", id).Msg("failed to stop relay")
			}
		}(id)
	}
	wg.Wait()
}

// List returns the tracked relays ordered by camera id.
func (s *Supervisor) List() []Handle {
	s.mu.Lock()
	handles := lo.MapToSlice(s.relays, func(_ int, r *relay) Handle { return r.handle })
	s.mu.Unlock()

	sort.Slice(handles, func(i, j int) bool { return handles[i].CameraID < handles[j].CameraID })
	return handles
}

func (s *Supervisor) Running(cameraID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.relays[cameraID]
	return ok
}
