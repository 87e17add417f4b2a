package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"

	"trashdrop/events"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (c *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange, key, msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublishEvent(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{channel: ch, exchange: "trashdrop"}

	e := events.Event{Type: events.RequestAccepted, RequestID: "req-1", CollectorID: "c1"}
	if err := p.Events().Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: unexpected error %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("Publish: expected 1 message, got %d", len(ch.sent))
	}
	sent := ch.sent[0]
	if sent.exchange != "trashdrop" || sent.key != "request.accepted" {
		t.Errorf("Publish: expected trashdrop/request.accepted, got %s/%s", sent.exchange, sent.key)
	}
	if sent.msg.ContentType != "application/json" || sent.msg.DeliveryMode != amqp.Persistent {
		t.Errorf("Publish: unexpected publishing %+v", sent.msg)
	}
	var got events.Event
	if err := json.Unmarshal(sent.msg.Body, &got); err != nil || got.RequestID != "req-1" {
		t.Errorf("Publish: unexpected body %s (%v)", sent.msg.Body, err)
	}
}

func TestPublishErrors(t *testing.T) {
	p := &Publisher{channel: &fakeChannel{err: errors.New("channel closed")}, exchange: "x"}
	if err := p.PublishEvent(context.Background(), events.Event{Type: events.RequestCreated}); err == nil {
		t.Errorf("PublishEvent: expected channel error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = &Publisher{channel: &fakeChannel{}, exchange: "x"}
	if err := p.PublishEvent(ctx, events.Event{}); !errors.Is(err, context.Canceled) {
		t.Errorf("PublishEvent: expected context.Canceled, got %v", err)
	}
}

func TestClose(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{channel: ch}
	if err := p.Close(); err != nil || !ch.closed {
		t.Errorf("Close: expected channel closed, got %v", err)
	}
	if p.IsConnected() {
		t.Errorf("IsConnected: expected false without a connection")
	}
}
