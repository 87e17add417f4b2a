package events

import (
	"context"
	"errors"
	"time"

	"trashdrop/request"
)

type Type string

const (
	RequestCreated   Type = "request.created"
	RequestAccepted  Type = "request.accepted"
	RequestStarted   Type = "request.started"
	RequestCompleted Type = "request.completed"
	RequestCancelled Type = "request.cancelled"
	RequestDisposed  Type = "request.disposed"
)

// Event announces a change to a request.
type Event struct {
	Type        Type             `json:"type"`
	RequestID   string           `json:"request_id"`
	Status      request.Status   `json:"status"`
	CollectorID string           `json:"collector_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Request     *request.Request `json:"request,omitempty"`
}

var actionTypes = map[request.Action]Type{
	request.ActionCreate:   RequestCreated,
	request.ActionAccept:   RequestAccepted,
	request.ActionStart:    RequestStarted,
	request.ActionComplete: RequestCompleted,
	request.ActionCancel:   RequestCancelled,
	request.ActionDispose:  RequestDisposed,
}

// For builds the event announcing that r went through action a.
func For(a request.Action, r *request.Request, now time.Time) (Event, bool) {
	t, ok := actionTypes[a]
	if !ok || r == nil {
		return Event{}, false
	}
	return Event{
		Type:        t,
		RequestID:   r.ID,
		Status:      r.Status,
		CollectorID: r.CollectorID,
		Timestamp:   now,
		Request:     r,
	}, true
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher, returning all failures joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
