package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix names Redis keys and the Kafka topic when none is configured.
const DefaultPrefix = "gcdisk.events"

type RedisConfig struct {
	Enabled bool     `yaml:"enabled"`
	DSN     string   `yaml:"dsn"`
	Prefix  string   `yaml:"prefix"`
	Stream  bool     `yaml:"stream"`
	MaxLen  int64    `yaml:"max_len"`
	Events  []string `yaml:"events"`
}

// RedisSink publishes each event on "<prefix>.<resource>", either as a
// Pub/Sub message or as a stream entry.
type RedisSink struct {
	Client redis.UniversalClient
	Prefix string
	Stream bool
	MaxLen int64
}

// NewRedisSink returns nil when the sink is disabled.
func NewRedisSink(c RedisConfig) (*RedisSink, error) {
	if !c.Enabled || c.DSN == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(c.DSN)
	if err != nil {
		return nil, err
	}
	prefix := c.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisSink{Client: redis.NewClient(opt), Prefix: prefix, Stream: c.Stream, MaxLen: c.MaxLen}, nil
}

func (s *RedisSink) Name() string { return "redis" }

// Key returns the channel or stream for e.
func (s *RedisSink) Key(e Event) string {
	return s.Prefix + "." + e.Resource
}

func (s *RedisSink) Emit(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return Permanent(err)
	}
	if !s.Stream {
		return s.Client.Publish(ctx, s.Key(e), data).Err()
	}
	return s.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.Key(e),
		MaxLen: s.MaxLen,
		Approx: s.MaxLen > 0,
		Values: map[string]any{"name": e.Name, "subject": e.Subject, "event": data},
	}).Err()
}
