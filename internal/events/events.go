// Package events fans disk and role changes out to external sinks.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faciam-dev/gcdisk/internal/logger"
	"github.com/faciam-dev/gcdisk/internal/metrics"
	"github.com/faciam-dev/gcdisk/pkg/util"
)

// Event names are "<resource>.<change>".
const (
	DiskCreated = "disk.created"
	DiskUpdated = "disk.updated"
	DiskDeleted = "disk.deleted"
	RoleCreated = "role.created"
	RoleUpdated = "role.updated"
	RoleDeleted = "role.deleted"
)

// Default is the dispatcher used by Emit. Nil disables delivery.
var Default *Dispatcher

type Event struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Resource string    `json:"resource"`
	Subject  string    `json:"subject"`
	Actor    string    `json:"actor,omitempty"`
	Time     time.Time `json:"time"`
	Data     any       `json:"data,omitempty"`
}

// New stamps an event about subject, the uuid of the changed disk or role.
func New(name, subject string, data any) Event {
	res, _, _ := strings.Cut(name, ".")
	return Event{
		ID:       uuid.NewString(),
		Name:     name,
		Resource: res,
		Subject:  subject,
		Time:     time.Now().UTC(),
		Data:     data,
	}
}

// By records the user that caused the change.
func (e Event) By(actor string) Event {
	e.Actor = actor
	return e
}

type Sink interface {
	Name() string
	Emit(ctx context.Context, e Event) error
}

// DLQ keeps events a sink could not take.
type DLQ interface {
	Store(ctx context.Context, sink string, e Event, attempts int, lastErr string) error
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Filter restricts s to events whose name matches one of patterns
// (path.Match syntax, e.g. "disk.*"). No patterns means every event.
func Filter(s Sink, patterns ...string) Sink {
	if len(patterns) == 0 {
		return s
	}
	return &filtered{Sink: s, patterns: patterns}
}

type filtered struct {
	Sink
	patterns []string
}

func (f *filtered) accepts(name string) bool {
	for _, p := range f.patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Dispatcher delivers each event to every sink that accepts it, retrying
// with exponential backoff.
type Dispatcher struct {
	sinks        []Sink
	maxAttempts  int
	initialDelay time.Duration
	dlq          DLQ
	wg           sync.WaitGroup
}

type Config struct {
	Sinks struct {
		Webhook WebhookConfig `yaml:"webhook"`
		Redis   RedisConfig   `yaml:"redis"`
		Kafka   KafkaConfig   `yaml:"kafka"`
	} `yaml:"sinks"`
	Retry RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

func NewDispatcher(cfg Config, dlq DLQ, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{maxAttempts: 3, initialDelay: time.Second, dlq: dlq}
	if cfg.Retry.MaxAttempts > 0 {
		d.maxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelay > 0 {
		d.initialDelay = cfg.Retry.InitialDelay
	}
	d.sinks = append(d.sinks, sinks...)
	return d
}

// FromConfig builds the enabled sinks of cfg.
func FromConfig(cfg Config, dlq DLQ) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var sinks []Sink
	if wh := NewWebhookSink(cfg.Sinks.Webhook); wh != nil {
		sinks = append(sinks, Filter(wh, cfg.Sinks.Webhook.Events...))
	}
	rs, err := NewRedisSink(cfg.Sinks.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis sink: %w", err)
	}
	if rs != nil {
		sinks = append(sinks, Filter(rs, cfg.Sinks.Redis.Events...))
	}
	ks, err := NewKafkaSink(cfg.Sinks.Kafka)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: %w", err)
	}
	if ks != nil {
		sinks = append(sinks, Filter(ks, cfg.Sinks.Kafka.Events...))
	}
	return NewDispatcher(cfg, dlq, sinks...), nil
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Emit hands e to Default.
func Emit(ctx context.Context, e Event) {
	if Default != nil {
		Default.Dispatch(ctx, e)
	}
}

// Dispatch returns immediately. Delivery outlives the request that
// triggered it.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		if f, ok := s.(*filtered); ok && !f.accepts(e.Name) {
			continue
		}
		d.wg.Add(1)
		go func(sink Sink) {
			defer d.wg.Done()
			d.deliver(ctx, sink, e)
		}(s)
	}
}

// Wait blocks until pending deliveries finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) deliver(ctx context.Context, s Sink, e Event) {
	delay := d.initialDelay
	var err error
	attempts := 0
	for attempts < d.maxAttempts {
		attempts++
		if err = s.Emit(ctx, e); err == nil {
			return
		}
		if isPermanent(err) || attempts == d.maxAttempts {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	metrics.EventsFailed.WithLabelValues(e.Name, s.Name()).Inc()
	logger.L.Warn("event delivery failed", "event", e.Name, "id", e.ID, "sink", s.Name(), "attempts", attempts, "err", err)
	if d.dlq == nil {
		return
	}
	if derr := d.dlq.Store(ctx, s.Name(), e, attempts, err.Error()); derr != nil {
		logger.L.Error("store failed event", "event", e.Name, "sink", s.Name(), "err", derr)
	}
}

// SQLDLQ writes failed deliveries to the events_failed table.
type SQLDLQ struct {
	DB          *sql.DB
	Driver      string
	TablePrefix string
}

func (q *SQLDLQ) Store(ctx context.Context, sink string, e Event, attempts int, lastErr string) error {
	if q == nil || q.DB == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	stmt := util.Rebind(q.Driver, fmt.Sprintf(
		"INSERT INTO %sevents_failed(sink, name, subject, payload, attempts, last_error) VALUES (?, ?, ?, ?, ?, ?)", q.TablePrefix))
	_, err = q.DB.ExecContext(ctx, stmt, sink, e.Name, e.Subject, string(data), attempts, lastErr)
	return err
}
