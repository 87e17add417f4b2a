package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	skafka "github.com/segmentio/kafka-go"

	"trashdrop/events"
)

type fakeWriter struct {
	msgs   []skafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...skafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), events.Event{
		Type:      events.RequestCompleted,
		RequestID: "req-9",
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Publish: unexpected error %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("Publish: expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "req-9" {
		t.Errorf("Publish: expected key req-9, got %s", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "request.completed" {
		t.Errorf("Publish: unexpected headers %v", msg.Headers)
	}
	if !msg.Time.Equal(ts) {
		t.Errorf("Publish: expected message time %v, got %v", ts, msg.Time)
	}
	var got events.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil || got.Type != events.RequestCompleted {
		t.Errorf("Publish: unexpected value %s (%v)", msg.Value, err)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close: expected writer closed")
	}
}

func TestPublishWriteError(t *testing.T) {
	boom := errors.New("leader not available")
	p := NewProducerWithWriter(&fakeWriter{err: boom})
	if err := p.Publish(context.Background(), events.Event{RequestID: "x"}); !errors.Is(err, boom) {
		t.Errorf("Publish: expected write error, got %v", err)
	}
}
