package request

import (
	"reflect"
	"testing"
	"time"
)

func TestWrapSkipsNil(t *testing.T) {
	got := Wrap([]Fields{
		{"name": "A", "lat": 1.0, "lng": 2.0, "bags": 1.0},
		nil,
		{"name": "B", "lat": 3.0, "lng": 4.0, "bags": 2.0},
	})
	if len(got) != 2 {
		t.Fatalf("Wrap: want 2 requests, got %d", len(got))
	}
	if got[1].UserID != "legacy-user-b" || Value(got[1].EstimatedWeight) != 10 {
		t.Errorf("Wrap: second request not migrated: %+v", got[1])
	}
}

func TestUnwrapNil(t *testing.T) {
	if got := Unwrap(nil); got != nil {
		t.Errorf("Unwrap(nil): want nil, got %v", got)
	}
	if got := UnwrapAll([]*Request{nil}); len(got) != 0 {
		t.Errorf("UnwrapAll: want nil entries skipped, got %v", got)
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	created := create(Fields{
		"user_id":          "u1",
		"type":             "mixed",
		"address":          "4 Spintex Road",
		"coordinates":      map[string]interface{}{"lat": 5.62, "lng": -0.11},
		"bags":             2,
		"estimated_weight": 10.0,
		"fee":              12.5,
		"points":           60,
		"tags":             []interface{}{"weekly"},
		"preferred_time": map[string]interface{}{
			"start": "08:00",
			"end":   "10:00",
		},
		"client_version": "1.4.2",
	}, testNow)

	accepted, err := Accept(created, "c9", &Coordinates{Lat: 5.6, Lng: -0.1}, testNow.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	started, err := Start(accepted, testNow.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	completed, err := Complete(started, Evidence{
		Photos:      []string{"pickup.jpg"},
		ScannedBags: []ScannedBag{{Code: "QR-7", Material: "metal", Weight: 1.25}},
	}, testNow.Add(3*time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	for _, r := range []*Request{created, accepted, completed} {
		x := Unwrap(r)
		wrapped := Wrap([]Fields{x})
		if len(wrapped) != 1 {
			t.Fatalf("Wrap: want 1 request, got %d", len(wrapped))
		}
		if back := Unwrap(wrapped[0]); !reflect.DeepEqual(back, x) {
			t.Errorf("round trip of %s request changed it:\nbefore %v\nafter  %v", r.Status, x, back)
		}
	}

	f := Unwrap(completed)
	if f["client_version"] != "1.4.2" {
		t.Errorf("Unwrap: unknown field lost: %v", f["client_version"])
	}
	if _, ok := f["Warnings"]; ok {
		t.Errorf("Unwrap: bookkeeping leaked into plain form")
	}
}

func TestWrapUnwrapKeepsZeroValues(t *testing.T) {
	created := create(Fields{
		"user_id":          "u2",
		"type":             "general",
		"address":          "",
		"coordinates":      map[string]interface{}{"lat": 0.0, "lng": 0.0},
		"bags":             1,
		"estimated_weight": 0.0,
		"fee":              0.0,
		"points":           0,
		"description":      "",
		"images":           []interface{}{},
	}, testNow)
	if res := created.Validate(true); !res.Valid {
		t.Fatalf("Validate: zero valued request should be strictly valid, got %v", res.Errors)
	}

	x := Unwrap(created)
	for _, field := range []string{"estimated_weight", "fee", "points"} {
		if v, ok := x[field]; !ok || v != float64(0) {
			t.Errorf("Unwrap: want %s 0, got %v (present=%v)", field, v, ok)
		}
	}
	if v, ok := x["description"]; !ok || v != "" {
		t.Errorf("Unwrap: want empty description kept, got %v (present=%v)", v, ok)
	}
	if v, ok := x["address"]; !ok || v != "" {
		t.Errorf("Unwrap: want empty address kept, got %v (present=%v)", v, ok)
	}
	if !reflect.DeepEqual(x["images"], []interface{}{}) {
		t.Errorf("Unwrap: want empty images kept, got %v", x["images"])
	}

	wrapped := Wrap([]Fields{x})
	if len(wrapped) != 1 {
		t.Fatalf("Wrap: want 1 request, got %d", len(wrapped))
	}
	if back := Unwrap(wrapped[0]); !reflect.DeepEqual(back, x) {
		t.Errorf("round trip changed zero values:\nbefore %v\nafter  %v", x, back)
	}
}
