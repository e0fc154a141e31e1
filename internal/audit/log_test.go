package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"resturant.app/internal/auth"
	"resturant.app/internal/obs"
)

type recordingPublisher struct {
	event string
	body  []byte
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, event string, body []byte) error {
	p.event = event
	p.body = body
	return p.err
}

func TestLogEvent(t *testing.T) {
	hook := test.NewLocal(obs.Logger())
	defer hook.Reset()

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{UserID: "user-42"})

	if err := LogEvent(ctx, "auth.login", map[string]any{"outcome": "success"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected log output")
	}
	if entry.Data["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry.Data["type"])
	}
	if entry.Data["event"] != "auth.login" {
		t.Fatalf("unexpected event: %v", entry.Data["event"])
	}
	if entry.Data["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry.Data["request_id"])
	}
	if entry.Data["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry.Data["user_id"])
	}
	fields, ok := entry.Data["fields"].(map[string]any)
	if !ok || fields["outcome"] != "success" {
		t.Fatalf("fields missing or incorrect: %v", entry.Data["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestLogEventPublishes(t *testing.T) {
	hook := test.NewLocal(obs.Logger())
	defer hook.Reset()
	pub := &recordingPublisher{}
	SetPublisher(pub)
	defer SetPublisher(nil)

	if err := LogEvent(WithRequestID(context.Background(), "r1"), "auth.logout", nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if pub.event != "auth.logout" {
		t.Fatalf("unexpected routing event %q", pub.event)
	}
	var ev Event
	if err := json.Unmarshal(pub.body, &ev); err != nil {
		t.Fatalf("published body not JSON: %v", err)
	}
	if ev.Type != "audit" || ev.RequestID != "r1" || ev.Fields == nil {
		t.Fatalf("unexpected published event: %+v", ev)
	}

	pub.err = errors.New("broker down")
	if err := LogEvent(context.Background(), "auth.logout", nil); err != nil {
		t.Fatalf("publish failure must not fail LogEvent: %v", err)
	}
	if hook.LastEntry().Level != logrus.WarnLevel {
		t.Fatalf("expected a warning for the failed publish")
	}
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
	closed        bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestAMQPPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch, exchange: DefaultExchange}

	if err := p.Publish(context.Background(), "auth.register", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ch.exchange != DefaultExchange || ch.key != "auth.register" {
		t.Fatalf("unexpected routing %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.DeliveryMode != amqp.Persistent || ch.msg.ContentType != "application/json" {
		t.Fatalf("unexpected message properties: %+v", ch.msg)
	}
	if err := p.Close(); err != nil || !ch.closed {
		t.Fatalf("Close: %v closed=%v", err, ch.closed)
	}
}
