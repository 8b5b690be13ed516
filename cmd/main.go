package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/NIU1599156/CameraManager/internal/alarm"
	"github.com/NIU1599156/CameraManager/internal/api"
	"github.com/NIU1599156/CameraManager/internal/app"
	"github.com/NIU1599156/CameraManager/internal/config"
	"github.com/NIU1599156/CameraManager/internal/database"
	"github.com/NIU1599156/CameraManager/internal/framesource"
	"github.com/NIU1599156/CameraManager/internal/kafka"
	"github.com/NIU1599156/CameraManager/internal/metrics"
	"github.com/NIU1599156/CameraManager/internal/registry"
	"github.com/NIU1599156/CameraManager/internal/s3"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Чтение конфига
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище камер: postgres, если задан DSN, иначе файл
	var store registry.Store = registry.NewFileStore(cfg.Registry.File)
	if cfg.Postgres.DSN != "" {
		db, err := database.New(ctx, cfg.Postgres.DSN, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer db.Close()
		if err := db.Init(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to init database")
		}
		store = db
	}

	reg := registry.New(store, logger)
	if err := reg.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load cameras")
	}

	var line alarm.Line
	gpioLine, err := alarm.OpenGPIO(cfg.Alarm.Pin)
	if err != nil {
		logger.Warn().Err(err).Str("pin", cfg.Alarm.Pin).Msg("GPIO unavailable, alarm will only be logged")
		line = alarm.NewNopLine(logger)
	} else {
		line = gpioLine
	}

	deps := app.Deps{
		Registry: reg,
		Opener: framesource.NewFFmpeg(cfg.Detection.Decoder,
			cfg.Detection.FrameWidth, cfg.Detection.FrameHeight, cfg.Detection.OpenTimeout, logger),
		Line: line,
	}

	if cfg.Minio.Endpoint != "" {
		minioClient, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to MinIO")
		}
		if err := minioClient.EnsureBucketExists(ctx); err != nil {
			logger.Fatal().Err(err).Str("bucket", cfg.Minio.Bucket).Msg("failed to prepare snapshot bucket")
		}
		deps.Snapshots = minioClient
	}

	var consumer *kafka.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MotionTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create Kafka producer")
		}
		defer producer.Close()
		deps.Motion = producer

		consumer, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.CommandTopic, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create Kafka consumer")
		}
		defer consumer.Close()
	}

	m := metrics.New()
	a := app.New(cfg, deps, m, logger)

	if consumer != nil {
		consumer.StartListening(ctx)
		go a.ListenForCommands(ctx, consumer.Messages())
	}

	if err := a.StartDetection(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start motion detection")
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewHandlers(a, logger).Router(),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting API server")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("API server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// closing the observers ends the websocket handlers
	if err := a.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shut down API server")
	}
}
