package events

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Events  []string `yaml:"events"`
}

// KafkaSink produces events keyed by subject, so changes to one disk or role
// keep their order within a partition.
type KafkaSink struct {
	Producer sarama.SyncProducer
	Topic    string
}

// NewKafkaSink returns nil when the sink is disabled.
func NewKafkaSink(c KafkaConfig) (*KafkaSink, error) {
	if !c.Enabled || len(c.Brokers) == 0 {
		return nil, nil
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_1_0_0
	prod, err := sarama.NewSyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, err
	}
	topic := c.Topic
	if topic == "" {
		topic = DefaultPrefix
	}
	return &KafkaSink{Producer: prod, Topic: topic}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Emit(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Permanent(err)
	}
	_, _, err = s.Producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.Topic,
		Key:   sarama.StringEncoder(e.Subject),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(e.Name)},
			{Key: []byte("id"), Value: []byte(e.ID)},
		},
	})
	return err
}

// Close flushes the producer.
func (s *KafkaSink) Close() error {
	if s == nil || s.Producer == nil {
		return nil
	}
	return s.Producer.Close()
}
