package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

type countSink struct {
	mu    sync.Mutex
	count int
	names []string
	err   error
}

func (c *countSink) Name() string { return "count" }

func (c *countSink) Emit(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	c.names = append(c.names, e.Name)
	return c.err
}

type memDLQ struct {
	mu       sync.Mutex
	sink     string
	stored   []Event
	attempts int
	lastErr  string
}

func (m *memDLQ) Store(_ context.Context, sink string, e Event, attempts int, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
	m.stored = append(m.stored, e)
	m.attempts = attempts
	m.lastErr = lastErr
	return nil
}

func fastRetry(n int) Config {
	return Config{Retry: RetryConfig{MaxAttempts: n, InitialDelay: time.Millisecond}}
}

func TestNew(t *testing.T) {
	e := New(DiskUpdated, "d-1", nil).By("7")
	if e.Resource != "disk" || e.Subject != "d-1" || e.Actor != "7" || e.ID == "" || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestRetryThenDeadLetter(t *testing.T) {
	s := &countSink{err: errors.New("fail")}
	dlq := &memDLQ{}
	d := NewDispatcher(fastRetry(2), dlq, s)
	d.Dispatch(context.Background(), New(DiskCreated, "d-1", nil))
	d.Wait()
	if s.count != 2 {
		t.Fatalf("attempts=%d", s.count)
	}
	if len(dlq.stored) != 1 || dlq.sink != "count" || dlq.attempts != 2 || dlq.lastErr != "fail" {
		t.Fatalf("unexpected dlq: %+v", dlq)
	}
}

func TestPermanentErrorSkipsRetry(t *testing.T) {
	s := &countSink{err: Permanent(errors.New("rejected"))}
	dlq := &memDLQ{}
	d := NewDispatcher(fastRetry(5), dlq, s)
	d.Dispatch(context.Background(), New(RoleDeleted, "r-1", nil))
	d.Wait()
	if s.count != 1 || dlq.attempts != 1 || dlq.lastErr != "rejected" {
		t.Fatalf("count=%d dlq=%+v", s.count, dlq)
	}
}

func TestFilter(t *testing.T) {
	disks := &countSink{}
	all := &countSink{}
	d := NewDispatcher(Config{}, nil, Filter(disks, "disk.*"), Filter(all))
	for _, name := range []string{DiskCreated, RoleCreated, DiskDeleted} {
		d.Dispatch(context.Background(), New(name, "x", nil))
	}
	d.Wait()
	if diff := cmp.Diff([]string{DiskCreated, DiskDeleted}, disks.names); diff != "" {
		t.Fatalf("filtered sink (-want +got):\n%s", diff)
	}
	if all.count != 3 {
		t.Fatalf("unfiltered sink got %d events", all.count)
	}
}

func TestDispatchSurvivesCancelledContext(t *testing.T) {
	s := &countSink{}
	d := NewDispatcher(Config{}, nil, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, New(RoleDeleted, "r-1", nil))
	d.Wait()
	if s.count != 1 {
		t.Fatalf("event not delivered")
	}
}

func TestWebhookSignature(t *testing.T) {
	var hdr http.Header
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		hdr = r.Header.Clone()
	}))
	defer srv.Close()
	wh := NewWebhookSink(WebhookConfig{Enabled: true, Endpoint: srv.URL, Secret: "s"})
	wh.now = func() time.Time { return time.Unix(1700000000, 0) }
	e := New(DiskUpdated, "d-1", map[string]any{"name": "backups"})
	if err := wh.Emit(context.Background(), e); err != nil {
		t.Fatalf("emit: %v", err)
	}
	ts, _ := strconv.ParseInt(hdr.Get(TimestampHeader), 10, 64)
	if ts != 1700000000 || !Verify("s", hdr.Get(SignatureHeader), ts, body) {
		t.Fatalf("bad signature %q at %d", hdr.Get(SignatureHeader), ts)
	}
	if Verify("s", hdr.Get(SignatureHeader), ts+1, body) {
		t.Fatalf("signature must cover the timestamp")
	}
	if hdr.Get(EventHeader) != DiskUpdated || hdr.Get(DeliveryHeader) != e.ID {
		t.Fatalf("unexpected headers %v", hdr)
	}
}

func TestWebhookStatus(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadGateway, false},
		{http.StatusTooManyRequests, false},
		{http.StatusGone, true},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		wh := NewWebhookSink(WebhookConfig{Enabled: true, Endpoint: srv.URL})
		err := wh.Emit(context.Background(), New(DiskDeleted, "d-1", nil))
		srv.Close()
		if err == nil || isPermanent(err) != tt.permanent {
			t.Fatalf("status %d: err=%v permanent=%v", tt.status, err, isPermanent(err))
		}
	}
	if NewWebhookSink(WebhookConfig{Endpoint: "http://x"}) != nil {
		t.Fatalf("disabled sink should be nil")
	}
}

func TestRedisPubSub(t *testing.T) {
	s := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: s.Addr()})
	sink := &RedisSink{Client: cli, Prefix: DefaultPrefix}
	sub := cli.Subscribe(context.Background(), "gcdisk.events.role")
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("sub: %v", err)
	}
	if err := sink.Emit(context.Background(), New(RoleCreated, "r-1", map[string]string{"name": "ops"})); err != nil {
		t.Fatalf("emit: %v", err)
	}
	select {
	case msg := <-sub.Channel():
		var got Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Name != RoleCreated || got.Subject != "r-1" {
			t.Fatalf("event mismatch: %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout")
	}
}

func TestRedisStream(t *testing.T) {
	s := miniredis.RunT(t)
	sink, err := NewRedisSink(RedisConfig{Enabled: true, DSN: "redis://" + s.Addr(), Stream: true})
	if err != nil {
		t.Fatalf("NewRedisSink: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"d-1", "d-2"} {
		if err := sink.Emit(ctx, New(DiskCreated, id, nil)); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	msgs, err := sink.Client.XRange(ctx, "gcdisk.events.disk", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Values["subject"] != "d-2" || msgs[0].Values["name"] != DiskCreated {
		t.Fatalf("unexpected stream %+v", msgs)
	}
}

func TestKafkaSink(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	prod := mocks.NewSyncProducer(t, cfg)
	prod.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "d-9" {
			return errors.New("unexpected key " + string(key))
		}
		if len(msg.Headers) == 0 || string(msg.Headers[0].Value) != DiskCreated {
			return errors.New("missing event header")
		}
		return nil
	})
	sink := &KafkaSink{Producer: prod, Topic: "disks"}
	if err := sink.Emit(context.Background(), New(DiskCreated, "d-9", nil)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSQLDLQ(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	q := &SQLDLQ{DB: db, Driver: "postgres", TablePrefix: "gcdisk_"}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gcdisk_events_failed(sink, name, subject, payload, attempts, last_error) VALUES ($1, $2, $3, $4, $5, $6)")).
		WithArgs("webhook", DiskDeleted, "d-1", sqlmock.AnyArg(), 3, "boom").
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := q.Store(context.Background(), "webhook", New(DiskDeleted, "d-1", nil), 3, "boom"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestLoadConfigAndFromConfig(t *testing.T) {
	t.Setenv("HOOK_SECRET", "xyz")
	path := filepath.Join(t.TempDir(), "events.yaml")
	src := `sinks:
  webhook:
    enabled: true
    endpoint: https://hooks.example.com/disks
    secret: ${HOOK_SECRET}
    events: ["disk.*"]
retry:
  max_attempts: 5
`
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Sinks.Webhook.Secret != "xyz" || cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	d, err := FromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if diff := cmp.Diff([]string{"webhook"}, d.Sinks()); diff != "" {
		t.Fatalf("sinks mismatch:\n%s", diff)
	}
	if empty, err := LoadConfig(""); err != nil || empty.Sinks.Webhook.Enabled {
		t.Fatalf("empty path should give zero config: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.Sinks.Webhook = WebhookConfig{Enabled: true, Endpoint: "ftp://x", Events: []string{"["}}
	c.Sinks.Kafka = KafkaConfig{Enabled: true}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"webhook: endpoint", "bad event pattern", "kafka: no brokers"} {
		if !regexp.MustCompile(regexp.QuoteMeta(want)).MatchString(err.Error()) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}
