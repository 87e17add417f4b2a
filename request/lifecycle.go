package request

import (
	"fmt"
	"time"
)

// Action names a lifecycle transition.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"

	// ActionDispose hands a completed collection to a processing facility.
	// The status does not change.
	ActionDispose Action = "dispose"
)

// Custody actions recorded for transitions.
const (
	CustodyAccepted  = "accepted"
	CustodyCompleted = "completed"
	CustodyCancelled = "cancelled"
	CustodyDisposed  = "disposed"
)

var transitions = map[Action]struct {
	from []Status
	to   Status
}{
	ActionAccept:   {from: []Status{StatusPending}, to: StatusAccepted},
	ActionStart:    {from: []Status{StatusAccepted}, to: StatusInProgress},
	ActionComplete: {from: []Status{StatusInProgress}, to: StatusCompleted},
	ActionCancel:   {from: []Status{StatusPending, StatusAccepted, StatusInProgress}, to: StatusCancelled},
}

// CanTransition reports whether action is allowed from status.
func CanTransition(from Status, a Action) bool {
	t, ok := transitions[a]
	if !ok {
		return false
	}
	for _, s := range t.from {
		if s == from {
			return true
		}
	}
	return false
}

// Target returns the status an action leads to.
func Target(a Action) (Status, bool) {
	t, ok := transitions[a]
	return t.to, ok
}

// Evidence is what a collector supplies when completing a pickup.
type Evidence struct {
	SortedMaterials map[string]float64 `json:"sorted_materials,omitempty"`
	ScannedBags     []ScannedBag       `json:"scanned_bags,omitempty"`
	QRCodes         []string           `json:"qr_codes,omitempty"`
	Photos          []string           `json:"photos,omitempty"`
	Location        *Coordinates       `json:"location,omitempty"`
}

func (e Evidence) provided() bool {
	return e.Location != nil || len(e.Photos) > 0
}

// Accept assigns a pending request to a collector.
func Accept(r *Request, collectorID string, location *Coordinates, now time.Time) (*Request, error) {
	if r == nil {
		return nil, &MalformedInputError{Op: "accept", Detail: "nil request"}
	}
	if !CanTransition(r.Status, ActionAccept) {
		return nil, invalidTransition(r, ActionAccept, "")
	}
	if collectorID == "" {
		return nil, invalidTransition(r, ActionAccept, "collector id is required")
	}

	out := r.Clone()
	out.Status = StatusAccepted
	out.CollectorID = collectorID
	out.AcceptedAt = &now
	out.appendCustody(now, collectorID, HandlerCollector, CustodyAccepted, location)
	return out, nil
}

// Start marks the pickup of an accepted request as under way.
func Start(r *Request, now time.Time) (*Request, error) {
	if r == nil {
		return nil, &MalformedInputError{Op: "start", Detail: "nil request"}
	}
	if !CanTransition(r.Status, ActionStart) {
		return nil, invalidTransition(r, ActionStart, "")
	}

	out := r.Clone()
	out.Status = StatusInProgress
	out.PickupStartedAt = &now
	return out, nil
}

// Complete closes an in-progress pickup, records the evidence and computes
// the environmental impact.
func Complete(r *Request, ev Evidence, now time.Time) (*Request, error) {
	if r == nil {
		return nil, &MalformedInputError{Op: "complete", Detail: "nil request"}
	}
	if !CanTransition(r.Status, ActionComplete) {
		return nil, invalidTransition(r, ActionComplete, "")
	}
	if !ev.provided() {
		return nil, invalidTransition(r, ActionComplete, "a photo or location is required as evidence")
	}

	materials := ev.SortedMaterials
	if len(materials) == 0 && len(ev.ScannedBags) > 0 {
		materials = AggregateMaterials(ev.ScannedBags)
	}
	for name, kg := range materials {
		if kg < 0 {
			return nil, invalidTransition(r, ActionComplete, fmt.Sprintf("negative weight for material %s", name))
		}
	}

	out := r.Clone()
	out.Status = StatusCompleted
	out.CompletedAt = &now

	qrCodes := ev.QRCodes
	if len(qrCodes) == 0 {
		for _, b := range ev.ScannedBags {
			if b.Code != "" {
				qrCodes = append(qrCodes, b.Code)
			}
		}
	}
	if len(qrCodes) > 0 {
		out.QRCodes = cloneStrings(qrCodes)
	}
	if len(materials) > 0 {
		out.SortedMaterials = make(map[string]float64, len(materials))
		for k, v := range materials {
			out.SortedMaterials[k] = v
		}
	}
	out.Images = append(out.Images, ev.Photos...)

	out.appendCustody(now, out.CollectorID, HandlerCollector, CustodyCompleted, ev.Location)

	impact := ImpactFor(out)
	out.EnvironmentalImpact = &impact
	out.PaymentStatus = PaymentPending
	return out, nil
}

// Cancel withdraws a request that has not reached a terminal state.
func Cancel(r *Request, reason string, now time.Time) (*Request, error) {
	if r == nil {
		return nil, &MalformedInputError{Op: "cancel", Detail: "nil request"}
	}
	if !CanTransition(r.Status, ActionCancel) {
		return nil, invalidTransition(r, ActionCancel, "")
	}

	out := r.Clone()
	out.Status = StatusCancelled
	out.CancelledAt = &now
	if reason != "" {
		out.CancellationReason = reason
	}

	handlerID, handlerType := out.CollectorID, HandlerCollector
	if handlerID == "" {
		handlerID, handlerType = out.UserID, HandlerRequester
	}
	out.appendCustody(now, handlerID, handlerType, CustodyCancelled, out.Coordinates)
	return out, nil
}

// Dispose records that the waste of a completed request was delivered to a
// processing facility and moves its payment to processing. A request is
// disposed of once.
func Dispose(r *Request, facilityID, notes string, now time.Time) (*Request, error) {
	if r == nil {
		return nil, &MalformedInputError{Op: "dispose", Detail: "nil request"}
	}
	if r.Status != StatusCompleted {
		return nil, invalidTransition(r, ActionDispose, "only completed requests can be disposed of")
	}
	if facilityID == "" {
		return nil, invalidTransition(r, ActionDispose, "facility id is required")
	}
	if r.ProcessingFacilityID != "" {
		return nil, invalidTransition(r, ActionDispose, "already disposed at "+r.ProcessingFacilityID)
	}

	out := r.Clone()
	out.ProcessingFacilityID = facilityID
	if notes != "" {
		out.ProcessingNotes = notes
	}
	out.PaymentStatus = PaymentProcessing
	out.appendCustody(now, facilityID, HandlerFacility, CustodyDisposed, nil)
	return out, nil
}

// appendCustody adds an entry, never letting time run backwards along the
// chain.
func (r *Request) appendCustody(now time.Time, handlerID, handlerType, action string, location *Coordinates) {
	ts := now
	if n := len(r.ChainOfCustody); n > 0 {
		if last := r.ChainOfCustody[n-1].Timestamp; ts.Before(last) {
			ts = last
		}
	}
	var loc *Coordinates
	if location != nil {
		l := *location
		loc = &l
	}
	r.ChainOfCustody = append(r.ChainOfCustody, CustodyEntry{
		Timestamp:   ts,
		HandlerID:   handlerID,
		HandlerType: handlerType,
		Action:      action,
		Location:    loc,
	})
}
