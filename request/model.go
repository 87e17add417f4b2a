package request

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a collection request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type WasteType string

const (
	TypeRecyclable WasteType = "recyclable"
	TypeGeneral    WasteType = "general"
	TypeHazardous  WasteType = "hazardous"
	TypeMixed      WasteType = "mixed"
	TypeOrganic    WasteType = "organic"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

// SyncStatus marks offline reconciliation state. The engine only sets the
// default; the persistence layer owns the other values.
type SyncStatus string

const (
	SyncSynced   SyncStatus = "synced"
	SyncPending  SyncStatus = "pending"
	SyncConflict SyncStatus = "conflict"
)

// Handler types recorded in the chain of custody.
const (
	HandlerCollector = "collector"
	HandlerRequester = "requester"
	HandlerFacility  = "facility"
)

type Coordinates struct {
	Lat float64 `json:"lat" mapstructure:"lat"`
	Lng float64 `json:"lng" mapstructure:"lng"`
}

type TimeWindow struct {
	Start string `json:"start,omitempty" mapstructure:"start"`
	End   string `json:"end,omitempty" mapstructure:"end"`
}

// Impact is the environmental effect of a collection.
type Impact struct {
	CO2Saved   float64 `json:"co2_saved" mapstructure:"co2_saved"`     // kg
	WaterSaved float64 `json:"water_saved" mapstructure:"water_saved"` // liters
	TreesSaved float64 `json:"trees_saved" mapstructure:"trees_saved"`
}

// CustodyEntry is one record of the append-only chain of custody.
type CustodyEntry struct {
	Timestamp   time.Time    `json:"timestamp" mapstructure:"timestamp"`
	HandlerID   string       `json:"handler_id" mapstructure:"handler_id"`
	HandlerType string       `json:"handler_type" mapstructure:"handler_type"`
	Action      string       `json:"action" mapstructure:"action"`
	Location    *Coordinates `json:"location,omitempty" mapstructure:"location"`
}

// Request is a single waste collection job.
type Request struct {
	ID          string `json:"id,omitempty" mapstructure:"id"`
	LocalID     string `json:"local_id,omitempty" mapstructure:"local_id"`
	UserID      string `json:"user_id,omitempty" mapstructure:"user_id"`
	Name        string `json:"name,omitempty" mapstructure:"name"`
	CollectorID string `json:"collector_id,omitempty" mapstructure:"collector_id"`

	Status   Status    `json:"status,omitempty" mapstructure:"status"`
	Type     WasteType `json:"type,omitempty" mapstructure:"type"`
	Priority Priority  `json:"priority,omitempty" mapstructure:"priority"`

	Address     *string      `json:"address,omitempty" mapstructure:"address"`
	Coordinates *Coordinates `json:"coordinates,omitempty" mapstructure:"coordinates"`

	CreatedAt       time.Time   `json:"created_at,omitzero" mapstructure:"created_at"`
	AcceptedAt      *time.Time  `json:"accepted_at,omitempty" mapstructure:"accepted_at"`
	PickupStartedAt *time.Time  `json:"pickup_started_at,omitempty" mapstructure:"pickup_started_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty" mapstructure:"completed_at"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty" mapstructure:"cancelled_at"`
	Deadline        *time.Time  `json:"deadline,omitempty" mapstructure:"deadline"`
	PreferredTime   *TimeWindow `json:"preferred_time,omitempty" mapstructure:"preferred_time"`

	EstimatedWeight *float64 `json:"estimated_weight,omitempty" mapstructure:"estimated_weight"`
	Bags            int      `json:"bags,omitempty" mapstructure:"bags"`
	Fee             *float64 `json:"fee,omitempty" mapstructure:"fee"`
	Points          *float64 `json:"points,omitempty" mapstructure:"points"`

	Description         *string            `json:"description,omitempty" mapstructure:"description"`
	Images              []string           `json:"images,omitzero" mapstructure:"images"`
	EnvironmentalImpact *Impact            `json:"environmental_impact,omitempty" mapstructure:"environmental_impact"`
	SortedMaterials     map[string]float64 `json:"sorted_materials,omitzero" mapstructure:"sorted_materials"`
	QRCodes             []string           `json:"qr_codes,omitzero" mapstructure:"qr_codes"`
	ChainOfCustody      []CustodyEntry     `json:"chain_of_custody,omitzero" mapstructure:"chain_of_custody"`

	PaymentStatus        PaymentStatus `json:"payment_status,omitempty" mapstructure:"payment_status"`
	PaymentID            string        `json:"payment_id,omitempty" mapstructure:"payment_id"`
	ProcessingNotes      string        `json:"processing_notes,omitempty" mapstructure:"processing_notes"`
	ProcessingFacilityID string        `json:"processing_facility_id,omitempty" mapstructure:"processing_facility_id"`
	CancellationReason   string        `json:"cancellation_reason,omitempty" mapstructure:"cancellation_reason"`

	SyncStatus SyncStatus `json:"sync_status,omitempty" mapstructure:"sync_status"`
	Version    int        `json:"version,omitempty" mapstructure:"version"`
	Tags       []string   `json:"tags,omitzero" mapstructure:"tags"`

	// Extra keeps fields the schema does not know, plus known fields whose
	// value could not be decoded, so nothing is lost on a round trip.
	Extra map[string]interface{} `json:"-" mapstructure:",remain"`

	// Warnings collected by non-strict validation at creation time.
	Warnings []string `json:"-" mapstructure:"-"`
}

// Ptr returns a pointer to v. Optional fields whose zero value is
// meaningful are pointers so that absent and zero stay distinct.
func Ptr[T any](v T) *T {
	return &v
}

// Value dereferences p, returning the zero value for nil.
func Value[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Fields is the plain object form of a request, as produced by json decoding.
type Fields map[string]interface{}

type requestAlias Request

// MarshalJSON merges Extra into the encoded object. Typed fields win over
// Extra entries with the same key.
func (r Request) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(requestAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	merged := make(map[string]json.RawMessage, len(r.Extra))
	for k, v := range r.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	var typed map[string]json.RawMessage
	if err := json.Unmarshal(base, &typed); err != nil {
		return nil, err
	}
	for k, v := range typed {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes through Decode so unknown and malformed fields end
// up in Extra instead of failing the whole document.
func (r *Request) UnmarshalJSON(data []byte) error {
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	decoded, _ := Decode(f)
	*r = *decoded
	return nil
}

// Fields returns the plain object form of the request.
func (r *Request) Fields() Fields {
	data, err := json.Marshal(r)
	if err != nil {
		return Fields{}
	}
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return Fields{}
	}
	return f
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Coordinates != nil {
		coords := *r.Coordinates
		c.Coordinates = &coords
	}
	c.Address = clonePtr(r.Address)
	c.AcceptedAt = clonePtr(r.AcceptedAt)
	c.PickupStartedAt = clonePtr(r.PickupStartedAt)
	c.CompletedAt = clonePtr(r.CompletedAt)
	c.CancelledAt = clonePtr(r.CancelledAt)
	c.Deadline = clonePtr(r.Deadline)
	c.EstimatedWeight = clonePtr(r.EstimatedWeight)
	c.Fee = clonePtr(r.Fee)
	c.Points = clonePtr(r.Points)
	c.Description = clonePtr(r.Description)
	if r.PreferredTime != nil {
		pt := *r.PreferredTime
		c.PreferredTime = &pt
	}
	if r.EnvironmentalImpact != nil {
		imp := *r.EnvironmentalImpact
		c.EnvironmentalImpact = &imp
	}
	c.Images = cloneStrings(r.Images)
	c.QRCodes = cloneStrings(r.QRCodes)
	c.Tags = cloneStrings(r.Tags)
	c.Warnings = cloneStrings(r.Warnings)
	if r.SortedMaterials != nil {
		c.SortedMaterials = make(map[string]float64, len(r.SortedMaterials))
		for k, v := range r.SortedMaterials {
			c.SortedMaterials[k] = v
		}
	}
	if r.ChainOfCustody != nil {
		c.ChainOfCustody = make([]CustodyEntry, len(r.ChainOfCustody))
		for i, e := range r.ChainOfCustody {
			if e.Location != nil {
				loc := *e.Location
				e.Location = &loc
			}
			c.ChainOfCustody[i] = e
		}
	}
	if r.Extra != nil {
		c.Extra = make(map[string]interface{}, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
