package framesource

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/NIU1599156/CameraManager/internal/procgroup"
)

const closeGrace = 2 * time.Second

// FFmpeg opens camera streams through an ffmpeg child process that scales
// every frame to Width x Height and writes raw RGBA to stdout.
type FFmpeg struct {
	binary      string
	width       int
	height      int
	openTimeout time.Duration
	logger      zerolog.Logger
}

func NewFFmpeg(binary string, width, height int, openTimeout time.Duration, logger zerolog.Logger) *FFmpeg {
	return &FFmpeg{
		binary:      binary,
		width:       width,
		height:      height,
		openTimeout: openTimeout,
		logger:      logger.With().Str("component", "framesource").Logger(),
	}
}

func (f *FFmpeg) args(address string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if strings.HasPrefix(address, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	return append(args,
		"-i", address,
		"-an",
		"-s", strconv.Itoa(f.width)+"x"+strconv.Itoa(f.height),
		"-pix_fmt", "rgba",
		"-f", "rawvideo",
		"pipe:1",
	)
}

// Open starts the decoder and waits for the first frame, so an unreachable
// camera fails here with ErrSourceUnavailable rather than on the first Read.
func (f *FFmpeg) Open(ctx context.Context, address string) (Source, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	cmd := exec.Command(f.binary, f.args(address)...)
	cmd.Stdout = pw
	procgroup.Setpgid(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: could not start decoder: %v", ErrSourceUnavailable, err)
	}
	// the child holds its own copy of the write end
	pw.Close()

	src := &ffmpegSource{
		cmd:       cmd,
		pgid:      cmd.Process.Pid,
		pipe:      pr,
		r:         bufio.NewReaderSize(pr, f.width*f.height*4),
		width:     f.width,
		height:    f.height,
		frameSize: f.width * f.height * 4,
		exited:    make(chan struct{}),
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			f.logger.Debug().Str("address", address).Msg(scanner.Text())
		}
	}()
	go func() {
		_ = cmd.Wait()
		close(src.exited)
	}()

	type result struct {
		frame *image.RGBA
		err   error
	}
	first := make(chan result, 1)
	go func() {
		frame, err := src.readFrame()
		first <- result{frame, err}
	}()

	timer := time.NewTimer(f.openTimeout)
	defer timer.Stop()

	select {
	case res := <-first:
		if res.err != nil {
			src.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, address, res.err)
		}
		src.pending = res.frame
	case <-timer.C:
		src.Close()
		return nil, fmt.Errorf("%w: %s: no frame within %s", ErrSourceUnavailable, address, f.openTimeout)
	case <-ctx.Done():
		src.Close()
		return nil, ctx.Err()
	}

	f.logger.Debug().Str("address", address).Int("pgid", src.pgid).Msg("decoder started")
	return src, nil
}

type ffmpegSource struct {
	cmd       *exec.Cmd
	pgid      int
	pipe      *os.File
	r         *bufio.Reader
	width     int
	height    int
	frameSize int
	pending   *image.RGBA
	exited    chan struct{}
	closeOnce sync.Once
}

func (s *ffmpegSource) readFrame() (*image.RGBA, error) {
	buf := make([]byte, s.frameSize)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, err
	}
	return &image.RGBA{
		Pix:    buf,
		Stride: s.width * 4,
		Rect:   image.Rect(0, 0, s.width, s.height),
	}, nil
}

func (s *ffmpegSource) Read() (*image.RGBA, error) {
	if s.pending != nil {
		frame := s.pending
		s.pending = nil
		return frame, nil
	}

	frame, err := s.readFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	return frame, nil
}

func (s *ffmpegSource) Skip(n int) error {
	if n > 0 && s.pending != nil {
		s.pending = nil
		n--
	}
	if n <= 0 {
		return nil
	}
	if _, err := s.r.Discard(n * s.frameSize); err != nil {
		return fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	return nil
}

// Close terminates the decoder's process group and releases the pipe.
func (s *ffmpegSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = procgroup.Terminate(s.pgid, s.exited, closeGrace)
		s.pipe.Close()
	})
	return err
}
