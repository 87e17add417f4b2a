package request

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func pendingRequest() *Request {
	return create(Fields{
		"id":          "req-test",
		"user_id":     "u1",
		"type":        "recyclable",
		"address":     "12 Oxford Street",
		"coordinates": map[string]interface{}{"lat": 5.6037, "lng": -0.187},
		"bags":        4,
		"fee":         10.0,
		"points":      100,
	}, testNow)
}

func inStatus(t *testing.T, s Status) *Request {
	t.Helper()
	r := pendingRequest()
	var err error
	steps := map[Status][]func(*Request) (*Request, error){
		StatusPending: nil,
		StatusAccepted: {
			func(r *Request) (*Request, error) { return Accept(r, "c1", nil, testNow) },
		},
		StatusInProgress: {
			func(r *Request) (*Request, error) { return Accept(r, "c1", nil, testNow) },
			func(r *Request) (*Request, error) { return Start(r, testNow) },
		},
		StatusCompleted: {
			func(r *Request) (*Request, error) { return Accept(r, "c1", nil, testNow) },
			func(r *Request) (*Request, error) { return Start(r, testNow) },
			func(r *Request) (*Request, error) {
				return Complete(r, Evidence{Location: &Coordinates{Lat: 5.6, Lng: -0.18}}, testNow)
			},
		},
		StatusCancelled: {
			func(r *Request) (*Request, error) { return Cancel(r, "", testNow) },
		},
	}
	for _, step := range steps[s] {
		if r, err = step(r); err != nil {
			t.Fatalf("moving request to %s: %v", s, err)
		}
	}
	return r
}

func TestAcceptPending(t *testing.T) {
	r := pendingRequest()
	loc := &Coordinates{Lat: 5.61, Lng: -0.19}

	got, err := Accept(r, "c1", loc, testNow)
	if err != nil {
		t.Fatalf("Accept: unexpected error %v", err)
	}
	if got.Status != StatusAccepted {
		t.Errorf("Accept: want status accepted, got %q", got.Status)
	}
	if got.CollectorID != "c1" {
		t.Errorf("Accept: want collector c1, got %q", got.CollectorID)
	}
	if got.AcceptedAt == nil || !got.AcceptedAt.Equal(testNow) {
		t.Errorf("Accept: want accepted_at %v, got %v", testNow, got.AcceptedAt)
	}
	if len(got.ChainOfCustody) != 1 {
		t.Fatalf("Accept: want 1 custody entry, got %d", len(got.ChainOfCustody))
	}
	want := CustodyEntry{
		Timestamp:   testNow,
		HandlerID:   "c1",
		HandlerType: HandlerCollector,
		Action:      CustodyAccepted,
		Location:    &Coordinates{Lat: 5.61, Lng: -0.19},
	}
	if !reflect.DeepEqual(got.ChainOfCustody[0], want) {
		t.Errorf("Accept: want custody %+v, got %+v", want, got.ChainOfCustody[0])
	}
	if r.Status != StatusPending || len(r.ChainOfCustody) != 0 {
		t.Errorf("Accept mutated its input: %+v", r)
	}
}

func TestAcceptAlreadyAccepted(t *testing.T) {
	r := inStatus(t, StatusAccepted)
	before := r.Clone()

	got, err := Accept(r, "c2", nil, testNow.Add(time.Minute))
	if got != nil {
		t.Errorf("Accept: expected no request on failure, got %+v", got)
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("Accept: want InvalidTransitionError, got %v", err)
	}
	if ite.Current != StatusAccepted || ite.Action != ActionAccept {
		t.Errorf("Accept: want error naming accepted/accept, got %+v", ite)
	}
	if !reflect.DeepEqual(r, before) {
		t.Errorf("Accept: request changed on failure:\nbefore %+v\nafter  %+v", before, r)
	}
}

func TestAcceptRequiresCollector(t *testing.T) {
	_, err := Accept(pendingRequest(), "", nil, testNow)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) || ite.Reason == "" {
		t.Errorf("Accept without collector: want InvalidTransitionError with reason, got %v", err)
	}
}

func TestStart(t *testing.T) {
	got, err := Start(inStatus(t, StatusAccepted), testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Start: unexpected error %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("Start: want in_progress, got %q", got.Status)
	}
	if got.PickupStartedAt == nil || !got.PickupStartedAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("Start: pickup_started_at not set: %v", got.PickupStartedAt)
	}

	if _, err := Start(pendingRequest(), testNow); err == nil {
		t.Errorf("Start from pending: expected error")
	}
}

func TestCompleteFromPending(t *testing.T) {
	_, err := Complete(pendingRequest(), Evidence{Photos: []string{"p.jpg"}}, testNow)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("Complete from pending: want InvalidTransitionError, got %v", err)
	}
	if ite.Current != StatusPending || ite.Action != ActionComplete {
		t.Errorf("Complete from pending: want pending/complete, got %+v", ite)
	}
}

func TestCompleteRequiresEvidence(t *testing.T) {
	_, err := Complete(inStatus(t, StatusInProgress), Evidence{SortedMaterials: map[string]float64{"plastic": 1}}, testNow)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) || ite.Reason == "" {
		t.Errorf("Complete without photo or location: want InvalidTransitionError, got %v", err)
	}
}

func TestCompleteRejectsNegativeWeights(t *testing.T) {
	_, err := Complete(inStatus(t, StatusInProgress), Evidence{
		Photos:          []string{"p.jpg"},
		SortedMaterials: map[string]float64{"glass": -1},
	}, testNow)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Errorf("Complete with negative weight: want InvalidTransitionError, got %v", err)
	}
}

func TestCompleteImpact(t *testing.T) {
	testCases := []struct {
		name     string
		evidence Evidence
		want     Impact
		wantQR   []string
		wantMats map[string]float64
		wantImgs []string
	}{
		{
			name: "Plastic",
			evidence: Evidence{
				Location:        &Coordinates{Lat: 5.6, Lng: -0.18},
				SortedMaterials: map[string]float64{"plastic": 10},
			},
			want:     Impact{CO2Saved: 25.0, WaterSaved: 1000, TreesSaved: 0},
			wantMats: map[string]float64{"plastic": 10},
		}, {
			name:     "Bag estimate",
			evidence: Evidence{Photos: []string{"bags.jpg"}},
			want:     Impact{CO2Saved: 10.0, WaterSaved: 400, TreesSaved: 0.2},
			wantImgs: []string{"bags.jpg"},
		}, {
			name: "Scanned bags",
			evidence: Evidence{
				Photos: []string{"a.jpg"},
				ScannedBags: []ScannedBag{
					{Code: "QR-1", Material: "plastic", Weight: 2},
					{Code: "QR-2"},
				},
			},
			want:     Impact{CO2Saved: 10.0, WaterSaved: 350, TreesSaved: 0},
			wantQR:   []string{"QR-1", "QR-2"},
			wantMats: map[string]float64{"plastic": 2, "other": 5},
			wantImgs: []string{"a.jpg"},
		},
	}

	for _, testCase := range testCases {
		got, err := Complete(inStatus(t, StatusInProgress), testCase.evidence, testNow)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", testCase.name, err)
		}
		if got.EnvironmentalImpact == nil || *got.EnvironmentalImpact != testCase.want {
			t.Errorf("%s: want impact %+v, got %+v", testCase.name, testCase.want, got.EnvironmentalImpact)
		}
		if !reflect.DeepEqual(got.QRCodes, testCase.wantQR) {
			t.Errorf("%s: want qr codes %v, got %v", testCase.name, testCase.wantQR, got.QRCodes)
		}
		if !reflect.DeepEqual(got.SortedMaterials, testCase.wantMats) {
			t.Errorf("%s: want materials %v, got %v", testCase.name, testCase.wantMats, got.SortedMaterials)
		}
		if !reflect.DeepEqual(got.Images, testCase.wantImgs) {
			t.Errorf("%s: want images %v, got %v", testCase.name, testCase.wantImgs, got.Images)
		}
		if got.PaymentStatus != PaymentPending {
			t.Errorf("%s: want payment pending, got %q", testCase.name, got.PaymentStatus)
		}
		if got.CompletedAt == nil || !got.CompletedAt.Equal(testNow) {
			t.Errorf("%s: completed_at not set", testCase.name)
		}
	}
}

func TestCancelReachability(t *testing.T) {
	testCases := []struct {
		from    Status
		allowed bool
	}{
		{StatusPending, true},
		{StatusAccepted, true},
		{StatusInProgress, true},
		{StatusCompleted, false},
		{StatusCancelled, false},
	}
	for _, testCase := range testCases {
		r := inStatus(t, testCase.from)
		got, err := Cancel(r, "requester unavailable", testNow.Add(time.Hour))
		if testCase.allowed != (err == nil) {
			t.Errorf("Cancel from %s: allowed=%v, got error %v", testCase.from, testCase.allowed, err)
			continue
		}
		if CanTransition(testCase.from, ActionCancel) != testCase.allowed {
			t.Errorf("CanTransition(%s, cancel) disagrees with Cancel", testCase.from)
		}
		if err != nil {
			continue
		}
		if got.Status != StatusCancelled || got.CancellationReason != "requester unavailable" {
			t.Errorf("Cancel from %s: got %q / %q", testCase.from, got.Status, got.CancellationReason)
		}
		last := got.ChainOfCustody[len(got.ChainOfCustody)-1]
		if last.Action != CustodyCancelled {
			t.Errorf("Cancel from %s: last custody action %q", testCase.from, last.Action)
		}
		wantHandler := HandlerCollector
		if testCase.from == StatusPending {
			wantHandler = HandlerRequester
		}
		if last.HandlerType != wantHandler {
			t.Errorf("Cancel from %s: want handler type %s, got %s", testCase.from, wantHandler, last.HandlerType)
		}
	}
}

func TestNilRequest(t *testing.T) {
	_, errAccept := Accept(nil, "c1", nil, testNow)
	_, errStart := Start(nil, testNow)
	_, errComplete := Complete(nil, Evidence{}, testNow)
	_, errCancel := Cancel(nil, "", testNow)
	for _, err := range []error{errAccept, errStart, errComplete, errCancel} {
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("nil request: want ErrMalformedInput, got %v", err)
		}
	}
}

func TestDispose(t *testing.T) {
	completed := inStatus(t, StatusCompleted)
	before := len(completed.ChainOfCustody)

	// Clock behind the completion entry.
	r, err := Dispose(completed, "facility-7", "sorted on arrival", testNow.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if r.Status != StatusCompleted {
		t.Errorf("Dispose: status changed to %q", r.Status)
	}
	if r.ProcessingFacilityID != "facility-7" || r.ProcessingNotes != "sorted on arrival" {
		t.Errorf("Dispose: facility not recorded: %q %q", r.ProcessingFacilityID, r.ProcessingNotes)
	}
	if r.PaymentStatus != PaymentProcessing {
		t.Errorf("Dispose: want payment processing, got %q", r.PaymentStatus)
	}
	if len(r.ChainOfCustody) != before+1 {
		t.Fatalf("Dispose: want one custody entry added, got %d", len(r.ChainOfCustody)-before)
	}
	last := r.ChainOfCustody[len(r.ChainOfCustody)-1]
	if last.Action != CustodyDisposed || last.HandlerType != HandlerFacility || last.HandlerID != "facility-7" {
		t.Errorf("Dispose: unexpected custody entry %+v", last)
	}
	if prev := r.ChainOfCustody[len(r.ChainOfCustody)-2]; last.Timestamp.Before(prev.Timestamp) {
		t.Errorf("Dispose: custody timestamp went backwards")
	}
	if completed.ProcessingFacilityID != "" || len(completed.ChainOfCustody) != before {
		t.Errorf("Dispose: input request was mutated")
	}

	testCases := []struct {
		name     string
		r        *Request
		facility string
	}{
		{name: "Pending", r: pendingRequest(), facility: "facility-7"},
		{name: "InProgress", r: inStatus(t, StatusInProgress), facility: "facility-7"},
		{name: "Cancelled", r: inStatus(t, StatusCancelled), facility: "facility-7"},
		{name: "NoFacility", r: completed, facility: ""},
		{name: "Twice", r: r, facility: "facility-8"},
	}
	for _, testCase := range testCases {
		_, err := Dispose(testCase.r, testCase.facility, "", testNow)
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) || ite.Action != ActionDispose {
			t.Errorf("%s: want InvalidTransitionError for dispose, got %v", testCase.name, err)
		}
	}

	if _, err := Dispose(nil, "facility-7", "", testNow); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("Dispose(nil): want ErrMalformedInput, got %v", err)
	}
}

func TestCustodyTimestampsNeverDecrease(t *testing.T) {
	r, err := Accept(pendingRequest(), "c1", nil, testNow.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	r, err = Start(r, testNow)
	if err != nil {
		t.Fatal(err)
	}
	// Clock went backwards between accept and complete.
	r, err = Complete(r, Evidence{Photos: []string{"p.jpg"}}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(r.ChainOfCustody); i++ {
		if r.ChainOfCustody[i].Timestamp.Before(r.ChainOfCustody[i-1].Timestamp) {
			t.Errorf("custody entry %d precedes entry %d", i, i-1)
		}
	}
}

func TestTransitionTable(t *testing.T) {
	testCases := []struct {
		from    Status
		action  Action
		allowed bool
	}{
		{StatusPending, ActionAccept, true},
		{StatusPending, ActionStart, false},
		{StatusPending, ActionComplete, false},
		{StatusAccepted, ActionStart, true},
		{StatusAccepted, ActionAccept, false},
		{StatusAccepted, ActionComplete, false},
		{StatusInProgress, ActionComplete, true},
		{StatusInProgress, ActionStart, false},
		{StatusCompleted, ActionCancel, false},
		{StatusCompleted, ActionAccept, false},
		{StatusCancelled, ActionAccept, false},
		{StatusPending, Action("teleport"), false},
	}
	for _, testCase := range testCases {
		if got := CanTransition(testCase.from, testCase.action); got != testCase.allowed {
			t.Errorf("CanTransition(%s, %s): want %v, got %v", testCase.from, testCase.action, testCase.allowed, got)
		}
	}
}

func TestEndToEnd(t *testing.T) {
	r := create(Fields{"user_id": "u1", "bags": 3, "address": "7 Ring Road",
		"coordinates": map[string]interface{}{"lat": 5.6, "lng": -0.2}}, testNow)

	var err error
	if r, err = Accept(r, "c1", &Coordinates{Lat: 5.6, Lng: -0.2}, testNow.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if r, err = Start(r, testNow.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	r, err = Complete(r, Evidence{
		Location:        &Coordinates{Lat: 5.6, Lng: -0.2},
		SortedMaterials: map[string]float64{"paper": 5, "glass": 2},
	}, testNow.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	if r.Status != StatusCompleted {
		t.Errorf("end to end: want completed, got %q", r.Status)
	}
	if len(r.ChainOfCustody) != 2 ||
		r.ChainOfCustody[0].Action != CustodyAccepted ||
		r.ChainOfCustody[1].Action != CustodyCompleted {
		t.Errorf("end to end: want accepted+completed custody, got %+v", r.ChainOfCustody)
	}
	if r.EnvironmentalImpact == nil || r.EnvironmentalImpact.CO2Saved != 10.2 {
		t.Errorf("end to end: want co2 10.2, got %+v", r.EnvironmentalImpact)
	}
	if r.PaymentStatus != PaymentPending {
		t.Errorf("end to end: want payment pending, got %q", r.PaymentStatus)
	}
}
