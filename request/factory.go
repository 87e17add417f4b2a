package request

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/mitchellh/mapstructure"
)

// Weight assumed per bag when only a bag count is known.
const KilogramsPerBag = 5.0

const legacyUserPrefix = "legacy-user-"

var (
	idSeq      uint64
	whitespace = regexp.MustCompile(`\s+`)
)

// NewID returns a request id unique within the running process.
func NewID(now time.Time) string {
	return fmt.Sprintf("req-%d-%d", now.UnixMilli(), atomic.AddUint64(&idSeq, 1))
}

// LegacyUserID derives a stable user id from a requester name.
func LegacyUserID(name string) string {
	return legacyUserPrefix + strings.ToLower(whitespace.ReplaceAllString(name, "-"))
}

// Create builds a request from partial data, applying defaults. Malformed
// input is tolerated: validation problems are logged and kept in Warnings.
func Create(partial Fields) *Request {
	return create(partial, time.Now())
}

// FromLegacy migrates an older request shape into the canonical form.
// Applying it to its own output changes nothing.
func FromLegacy(old Fields) *Request {
	return fromLegacy(old, time.Now())
}

func create(partial Fields, now time.Time) *Request {
	f := copyFields(partial)

	if id, ok := f["id"].(string); !ok || id == "" {
		f["id"] = NewID(now)
	}
	if isBlank(f["created_at"]) {
		f["created_at"] = now.UTC().Format(time.RFC3339Nano)
	}
	for _, spec := range Schema {
		if spec.Default != nil && isBlank(f[spec.Name]) {
			f[spec.Name] = spec.Default
		}
	}

	r, err := Decode(f)
	if err != nil {
		r.Warnings = append(r.Warnings, err.Error())
	}

	if res := Validate(f, false); !res.Valid {
		r.Warnings = append(r.Warnings, res.Errors...)
	}
	if len(r.Warnings) > 0 {
		log.WithField("id", r.ID).Warnf("Request validation warnings: %s", strings.Join(r.Warnings, "; "))
	}
	return r
}

func fromLegacy(old Fields, now time.Time) *Request {
	f := copyFields(old)

	lat, latOK := toFloat(f["lat"])
	lng, lngOK := toFloat(f["lng"])
	if latOK && lngOK {
		f["coordinates"] = map[string]interface{}{"lat": lat, "lng": lng}
		delete(f, "lat")
		delete(f, "lng")
	}

	if isBlank(f["user_id"]) {
		if name, ok := f["name"].(string); ok && name != "" {
			f["user_id"] = LegacyUserID(name)
		}
	}

	if w, ok := f["estimated_weight"]; !ok || w == nil {
		if bags, ok := toFloat(f["bags"]); ok && bags > 0 {
			f["estimated_weight"] = bags * KilogramsPerBag
		}
	}

	if isBlank(f["type"]) {
		f["type"] = string(TypeGeneral)
	}

	if isBlank(f["created_at"]) {
		if ts := f["timestamp"]; !isBlank(ts) {
			f["created_at"] = ts
		} else {
			f["created_at"] = now.UTC().Format(time.RFC3339Nano)
		}
	}

	return create(f, now)
}

// Decode parses the plain form into a Request. Known fields that cannot be
// decoded, at the top level or anywhere inside, are moved to Extra
// untouched. The returned error describes nested decoding problems; the
// request is usable either way.
func Decode(f Fields) (*Request, error) {
	clean := make(map[string]interface{}, len(f))
	bad := make(map[string]interface{})
	for k, v := range f {
		if spec, ok := Lookup(k); ok && !kindMatches(spec.Kind, v) {
			bad[k] = v
			continue
		}
		clean[k] = v
	}

	r, decodeErr := decodeStruct(clean)
	if decodeErr != nil {
		for k, v := range clean {
			if _, known := Lookup(k); !known {
				continue
			}
			if _, err := decodeStruct(map[string]interface{}{k: v}); err != nil {
				bad[k] = v
				delete(clean, k)
			}
		}
		if retried, err := decodeStruct(clean); err == nil {
			r = retried
		}
	}

	r.Extra = mergeExtra(r.Extra, bad)
	return r, decodeErr
}

func decodeStruct(input map[string]interface{}) (*Request, error) {
	r := &Request{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
		Result:     r,
	})
	if err != nil {
		return r, err
	}
	return r, dec.Decode(input)
}

func mergeExtra(extra, bad map[string]interface{}) map[string]interface{} {
	if len(bad) == 0 {
		return extra
	}
	if extra == nil {
		extra = make(map[string]interface{}, len(bad))
	}
	for k, v := range bad {
		extra[k] = v
	}
	return extra
}

func copyFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// isBlank reports values that count as unset for defaulting: nil, empty
// string, zero or false.
func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	}
	if n, ok := toFloat(v); ok {
		return n == 0
	}
	return false
}
