package geofence

import (
	"sort"

	"github.com/golang/geo/s2"

	"trashdrop/request"
)

const (
	// EarthRadiusMeters is the mean earth radius.
	EarthRadiusMeters = 6371e3

	// DefaultRadiusMeters is how close a collector must be to a pickup point.
	DefaultRadiusMeters = 50.0
)

func latLng(c request.Coordinates) s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lng)
}

// Distance returns the great circle distance in meters.
func Distance(a, b request.Coordinates) float64 {
	return latLng(a).Distance(latLng(b)).Radians() * EarthRadiusMeters
}

// Within reports whether a and b are at most radius meters apart.
func Within(a, b request.Coordinates, radius float64) bool {
	return Distance(a, b) <= radius
}

// Nearby is a request with its distance from a reference point.
type Nearby struct {
	Request  *request.Request `json:"request"`
	Distance float64          `json:"distance_m"`
}

// FindNearby returns requests with coordinates within radius meters of
// center, closest first. A non-positive radius matches everything.
func FindNearby(reqs []*request.Request, center request.Coordinates, radius float64) []Nearby {
	out := make([]Nearby, 0)
	for _, r := range reqs {
		if r == nil || r.Coordinates == nil {
			continue
		}
		d := Distance(center, *r.Coordinates)
		if radius > 0 && d > radius {
			continue
		}
		out = append(out, Nearby{Request: r, Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out
}

// Check verifies that a collector at location is close enough to r. It
// passes when the location or the request coordinates are unknown, or when
// radius is not positive.
func Check(r *request.Request, location *request.Coordinates, radius float64) (float64, bool) {
	if r == nil || r.Coordinates == nil || location == nil || radius <= 0 {
		return 0, true
	}
	d := Distance(*location, *r.Coordinates)
	return d, d <= radius
}
