package kafka

import (
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/NIU1599156/CameraManager/internal/models"
)

// motionPayload is the value written to the motion topic.
type motionPayload struct {
	CameraID   int       `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer создаёт продюсер с настройками
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return NewProducerWith(producer, topic), nil
}

// NewProducerWith wraps an existing sync producer.
func NewProducerWith(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
	}
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// PublishMotion writes one event. The camera id is the key, so events of one
// camera stay ordered within their partition.
func (p *Producer) PublishMotion(event models.MotionEvent) error {
	payload, err := json.Marshal(motionPayload{
		CameraID:   event.CameraID,
		CameraName: event.CameraName,
		Message:    event.Message(),
		Timestamp:  event.Timestamp.UTC(),
	})
	if err != nil {
		return err
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.Itoa(event.CameraID)),
		Value: sarama.ByteEncoder(payload),
	}

	if _, _, err := p.producer.SendMessage(kafkaMsg); err != nil {
		return fmt.Errorf("failed to publish motion event: %w", err)
	}
	return nil
}
