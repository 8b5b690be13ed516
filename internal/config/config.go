package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/NIU1599156/CameraManager/internal/motion"
)

// Config структура конфига
type Config struct {
	Server struct {
		Addr string `yaml:"addr" env:"SERVER_ADDR"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`

	Registry struct {
		File string `yaml:"file" env:"REGISTRY_FILE"`
	} `yaml:"registry"`

	Minio struct {
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
	} `yaml:"minio"`

	Kafka struct {
		Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID      string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		MotionTopic  string   `yaml:"motion_topic" env:"MOTION_TOPIC"`
		CommandTopic string   `yaml:"command_topic" env:"COMMAND_TOPIC"`
	} `yaml:"kafka"`

	Detection Detection `yaml:"detection"`

	Stream struct {
		Binary      string        `yaml:"binary" env:"STREAM_BINARY"`
		Destination string        `yaml:"destination" env:"STREAM_DESTINATION"`
		StopTimeout time.Duration `yaml:"stop_timeout" env:"STREAM_STOP_TIMEOUT"`
	} `yaml:"stream"`

	Alarm struct {
		Pin      string        `yaml:"pin" env:"ALARM_PIN"`
		Duration time.Duration `yaml:"duration" env:"ALARM_DURATION"`
	} `yaml:"alarm"`

	Notify struct {
		SendTimeout time.Duration `yaml:"send_timeout" env:"NOTIFY_SEND_TIMEOUT"`
	} `yaml:"notify"`
}

// Detection groups the sweep cadence, frame source and algorithm settings.
type Detection struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env:"DETECTION_SWEEP_INTERVAL"`
	PollDelay     time.Duration `yaml:"poll_delay" env:"DETECTION_POLL_DELAY"`
	SkipFrames    int           `yaml:"skip_frames" env:"DETECTION_SKIP_FRAMES"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"DETECTION_RETRY_DELAY"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" env:"DETECTION_MAX_RETRY_DELAY"`

	Decoder     string        `yaml:"decoder" env:"DETECTION_DECODER"`
	FrameWidth  int           `yaml:"frame_width" env:"DETECTION_FRAME_WIDTH"`
	FrameHeight int           `yaml:"frame_height" env:"DETECTION_FRAME_HEIGHT"`
	OpenTimeout time.Duration `yaml:"open_timeout" env:"DETECTION_OPEN_TIMEOUT"`

	Thresholds struct {
		NoiseFloor       uint8   `yaml:"noise_floor" env:"MOTION_NOISE_FLOOR"`
		MinBlobArea      int     `yaml:"min_blob_area" env:"MOTION_MIN_BLOB_AREA"`
		ROIMargin        float64 `yaml:"roi_margin" env:"MOTION_ROI_MARGIN"`
		DilateIterations int     `yaml:"dilate_iterations" env:"MOTION_DILATE_ITERATIONS"`
	} `yaml:"thresholds"`
}

// Default returns the configuration used when neither the file nor the
// environment set a value.
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Addr = ":5000"
	cfg.Log.Level = "info"
	cfg.Registry.File = "cameras.json"
	cfg.Minio.Bucket = "snapshots"
	cfg.Kafka.GroupID = "camera-manager"
	cfg.Kafka.MotionTopic = "motion-events"
	cfg.Kafka.CommandTopic = "stream-commands"

	cfg.Detection.SweepInterval = time.Second
	cfg.Detection.PollDelay = 100 * time.Millisecond
	cfg.Detection.SkipFrames = 1
	cfg.Detection.RetryDelay = time.Second
	cfg.Detection.MaxRetryDelay = 30 * time.Second
	cfg.Detection.Decoder = "ffmpeg"
	cfg.Detection.FrameWidth = 640
	cfg.Detection.FrameHeight = 360
	cfg.Detection.OpenTimeout = 10 * time.Second

	th := motion.DefaultThresholds()
	cfg.Detection.Thresholds.NoiseFloor = th.NoiseFloor
	cfg.Detection.Thresholds.MinBlobArea = th.MinBlobArea
	cfg.Detection.Thresholds.ROIMargin = th.ROIMargin
	cfg.Detection.Thresholds.DilateIterations = th.DilateIterations

	cfg.Stream.Binary = "ffmpeg"
	cfg.Stream.Destination = "rtmp://localhost/live"
	cfg.Stream.StopTimeout = 5 * time.Second

	cfg.Alarm.Pin = "GPIO2"
	cfg.Alarm.Duration = 3 * time.Second

	cfg.Notify.SendTimeout = 2 * time.Second

	return cfg
}

// LoadConfig reads defaults, then the YAML file at path (if it exists), then
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = "config.yaml"
	}

	// Читаем YAML
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// Парсим переменные окружения с приоритетом
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the values the core cannot run without.
func (c *Config) Validate() error {
	d := c.Detection
	if d.SweepInterval <= 0 {
		return fmt.Errorf("detection.sweep_interval must be positive, got %s", d.SweepInterval)
	}
	if d.SkipFrames < 0 {
		return fmt.Errorf("detection.skip_frames must not be negative, got %d", d.SkipFrames)
	}
	if d.FrameWidth <= 0 || d.FrameHeight <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", d.FrameWidth, d.FrameHeight)
	}
	if d.Thresholds.ROIMargin < 0 || d.Thresholds.ROIMargin >= 0.5 {
		return fmt.Errorf("detection.thresholds.roi_margin must be in [0, 0.5), got %v", d.Thresholds.ROIMargin)
	}
	if d.Thresholds.MinBlobArea < 0 {
		return fmt.Errorf("detection.thresholds.min_blob_area must not be negative")
	}
	if c.Alarm.Duration <= 0 {
		return fmt.Errorf("alarm.duration must be positive, got %s", c.Alarm.Duration)
	}
	if c.Stream.Binary == "" {
		return errors.New("stream.binary is required")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}
