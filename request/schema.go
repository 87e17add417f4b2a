package request

// Kind is the value kind a schema field accepts.
type Kind string

const (
	KindString    Kind = "string"
	KindNumber    Kind = "number"
	KindInteger   Kind = "integer"
	KindTimestamp Kind = "timestamp"
	KindArray     Kind = "array"
	KindObject    Kind = "object"
)

// FieldSpec declares the constraints of one request field. Adding a field to
// the schema does not require touching the lifecycle code.
type FieldSpec struct {
	Name       string
	Kind       Kind
	Required   bool
	Enum       []string
	MaxLength  int
	Min        *float64
	Max        *float64
	Default    interface{}
	Properties []FieldSpec
}

func bound(v float64) *float64 { return &v }

func enumOf[T ~string](values ...T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// Schema is the canonical field table, in the order errors are reported.
var Schema = []FieldSpec{
	{Name: "id", Kind: KindString, Required: true},
	{Name: "user_id", Kind: KindString, Required: true},
	{Name: "status", Kind: KindString, Required: true, Default: string(StatusPending),
		Enum: enumOf(StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled)},
	{Name: "type", Kind: KindString, Required: true,
		Enum: enumOf(TypeRecyclable, TypeGeneral, TypeHazardous, TypeMixed, TypeOrganic)},

	{Name: "address", Kind: KindString, Required: true},
	{Name: "coordinates", Kind: KindObject, Required: true, Properties: []FieldSpec{
		{Name: "lat", Kind: KindNumber, Required: true},
		{Name: "lng", Kind: KindNumber, Required: true},
	}},

	{Name: "created_at", Kind: KindTimestamp, Required: true},

	{Name: "estimated_weight", Kind: KindNumber, Required: true, Min: bound(0)},
	{Name: "bags", Kind: KindInteger, Required: true, Min: bound(1)},
	{Name: "fee", Kind: KindNumber, Required: true, Min: bound(0)},
	{Name: "points", Kind: KindNumber, Required: true, Min: bound(0)},

	{Name: "name", Kind: KindString},
	{Name: "description", Kind: KindString, MaxLength: 500},
	{Name: "images", Kind: KindArray},
	{Name: "priority", Kind: KindString, Default: string(PriorityMedium),
		Enum: enumOf(PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent)},

	{Name: "preferred_time", Kind: KindObject, Properties: []FieldSpec{
		{Name: "start", Kind: KindString},
		{Name: "end", Kind: KindString},
	}},
	{Name: "deadline", Kind: KindTimestamp},

	{Name: "collector_id", Kind: KindString},
	{Name: "accepted_at", Kind: KindTimestamp},
	{Name: "pickup_started_at", Kind: KindTimestamp},
	{Name: "completed_at", Kind: KindTimestamp},
	{Name: "cancelled_at", Kind: KindTimestamp},
	{Name: "cancellation_reason", Kind: KindString, MaxLength: 500},

	{Name: "processing_notes", Kind: KindString},
	{Name: "processing_facility_id", Kind: KindString},

	{Name: "payment_status", Kind: KindString,
		Enum: enumOf(PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed)},
	{Name: "payment_id", Kind: KindString},

	{Name: "environmental_impact", Kind: KindObject, Properties: []FieldSpec{
		{Name: "co2_saved", Kind: KindNumber},
		{Name: "water_saved", Kind: KindNumber},
		{Name: "trees_saved", Kind: KindNumber},
	}},
	{Name: "sorted_materials", Kind: KindObject},

	{Name: "qr_codes", Kind: KindArray},
	{Name: "chain_of_custody", Kind: KindArray},

	{Name: "sync_status", Kind: KindString, Default: string(SyncSynced),
		Enum: enumOf(SyncSynced, SyncPending, SyncConflict)},
	{Name: "local_id", Kind: KindString},

	{Name: "version", Kind: KindInteger, Default: 1, Min: bound(1)},
	{Name: "tags", Kind: KindArray},
}

var schemaIndex = func() map[string]*FieldSpec {
	idx := make(map[string]*FieldSpec, len(Schema))
	for i := range Schema {
		idx[Schema[i].Name] = &Schema[i]
	}
	return idx
}()

// Lookup returns the spec of a known field.
func Lookup(name string) (*FieldSpec, bool) {
	spec, ok := schemaIndex[name]
	return spec, ok
}
