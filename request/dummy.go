package request

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Accra, the default centre for generated requests.
var DefaultCenter = Coordinates{Lat: 5.6037, Lng: -0.1870}

var dummyStreets = []string{
	"Independence Avenue", "Oxford Street", "Liberation Road", "Ring Road Central",
	"Kojo Thompson Road", "Cantonments Road", "Spintex Road", "Graphic Road",
}

var dummyTypes = []WasteType{TypeRecyclable, TypeGeneral, TypeHazardous, TypeMixed, TypeOrganic}

// DummyRequests builds n pending requests scattered within 10 km of center,
// in the legacy shape and migrated through FromLegacy. Each carries an
// impact preview from EstimateImpact.
func DummyRequests(n int, center Coordinates, rng *rand.Rand, now time.Time) []*Request {
	out := make([]*Request, 0, n)
	for i := 0; i < n; i++ {
		angle := rng.Float64() * 2 * math.Pi
		km := rng.Float64() * 10
		latOffset := km * math.Cos(angle) / 111
		lngOffset := km * math.Sin(angle) / (111 * math.Cos(center.Lat*math.Pi/180))

		bags := rng.Intn(5) + 1
		legacy := Fields{
			"name":      fmt.Sprintf("Test User %d", i),
			"address":   fmt.Sprintf("%d %s", rng.Intn(1000)+1, dummyStreets[rng.Intn(len(dummyStreets))]),
			"lat":       center.Lat + latOffset,
			"lng":       center.Lng + lngOffset,
			"type":      string(dummyTypes[rng.Intn(len(dummyTypes))]),
			"bags":      bags,
			"points":    rng.Intn(100) + 50,
			"fee":       math.Round((rng.Float64()*20+5)*100) / 100,
			"timestamp": now.Add(-time.Duration(rng.Int63n(int64(7 * 24 * time.Hour)))).UTC().Format(time.RFC3339Nano),
		}

		r := fromLegacy(legacy, now)
		r.Priority = []Priority{PriorityLow, PriorityMedium, PriorityHigh}[rng.Intn(3)]
		r.Description = Ptr(fmt.Sprintf("Trash collection request for %d bags of %s waste.", r.Bags, r.Type))
		preview := EstimateImpact(r.Bags)
		r.EnvironmentalImpact = &preview
		out = append(out, r)
	}
	return out
}
