package map_aggr

import (
	"sort"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"trashdrop/request"
)

// ViewPort is the visible map rectangle in degrees.
type ViewPort struct {
	LatMin float64 `json:"latmin"`
	LngMin float64 `json:"lngmin"`
	LatMax float64 `json:"latmax"`
	LngMax float64 `json:"lngmax"`
}

// Pin is either a single request or a cluster of Count requests.
type Pin struct {
	Lat       float64           `json:"lat"`
	Lng       float64           `json:"lng"`
	Count     int64             `json:"count"`
	RequestID string            `json:"request_id,omitempty"` // Ignored if Count > 1
	Status    request.Status    `json:"status,omitempty"`     // Ignored if Count > 1
	Type      request.WasteType `json:"type,omitempty"`       // Ignored if Count > 1
	Bags      int               `json:"bags,omitempty"`       // Ignored if Count > 1
}

type aggrUnit struct {
	cnt         int64
	containment [4]bool // 4 elements, one per child cell
	pin         s2.Point
	origPins    []*Pin
}

type Aggregator struct {
	level  int
	points map[s2.CellID][]*Pin
	aggrs  map[s2.CellID]*aggrUnit
}

const (
	expectedCells       = 16
	minLevel            = 2
	maxLevel            = 18
	minPinsToAggr       = 10
	weightDiffThreshold = 8
)

func CellBaseLevel(vp ViewPort, center request.Coordinates) int {
	minLL := s2.LatLngFromDegrees(vp.LatMin, vp.LngMin)
	maxLL := s2.LatLngFromDegrees(vp.LatMax, vp.LngMax)

	rect := s2.Rect{
		Lat: r1.Interval{
			Lo: minLL.Lat.Radians(),
			Hi: maxLL.Lat.Radians()},
		Lng: s1.Interval{
			Lo: minLL.Lng.Radians(),
			Hi: maxLL.Lng.Radians()},
	}

	vpArea := rect.Area()

	centerLL := s2.CellIDFromLatLng(s2.LatLngFromDegrees(center.Lat, center.Lng))

	for lv := maxLevel; lv >= minLevel; lv-- {
		cc := s2.CellFromCellID(centerLL.Parent(lv))
		// The first level at which roughly expectedCells cells cover the
		// viewport.
		if vpArea/cc.ApproxArea() < expectedCells {
			return lv
		}
	}
	return minLevel
}

// Bounds returns the viewport enclosing every request with coordinates, and
// its centre.
func Bounds(reqs []*request.Request) (ViewPort, request.Coordinates, bool) {
	rect := s2.EmptyRect()
	for _, r := range reqs {
		if r == nil || r.Coordinates == nil {
			continue
		}
		rect = rect.AddPoint(s2.LatLngFromDegrees(r.Coordinates.Lat, r.Coordinates.Lng))
	}
	if rect.IsEmpty() {
		return ViewPort{}, request.Coordinates{}, false
	}
	lo, hi, c := rect.Lo(), rect.Hi(), rect.Center()
	vp := ViewPort{
		LatMin: lo.Lat.Degrees(),
		LngMin: lo.Lng.Degrees(),
		LatMax: hi.Lat.Degrees(),
		LngMax: hi.Lng.Degrees(),
	}
	return vp, request.Coordinates{Lat: c.Lat.Degrees(), Lng: c.Lng.Degrees()}, true
}

func NewAggregator(vp ViewPort, center request.Coordinates) *Aggregator {
	return &Aggregator{
		level:  CellBaseLevel(vp, center),
		points: make(map[s2.CellID][]*Pin),
		aggrs:  make(map[s2.CellID]*aggrUnit),
	}
}

// AddRequest places a request on the map. Requests without coordinates are
// ignored.
func (a *Aggregator) AddRequest(r *request.Request) {
	if r == nil || r.Coordinates == nil {
		return
	}
	a.AddPin(Pin{
		Lat:       r.Coordinates.Lat,
		Lng:       r.Coordinates.Lng,
		Count:     1,
		RequestID: r.ID,
		Status:    r.Status,
		Type:      r.Type,
		Bags:      r.Bags,
	})
}

func (a *Aggregator) AddPin(p Pin) {
	pc := s2.CellIDFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lng))
	parent := pc.Parent(maxLevel)
	a.points[parent] = append(a.points[parent], &p)
}

// Pins aggregates and returns the pins, clusters first.
func (a *Aggregator) Pins() []Pin {
	a.aggregate()
	r := make([]Pin, 0, len(a.aggrs))
	for _, unit := range a.aggrs {
		ll := s2.LatLngFromPoint(unit.pin)
		if unit.cnt <= minPinsToAggr {
			for _, p := range unit.origPins {
				r = append(r, *p)
			}
		} else {
			r = append(r, Pin{
				Lat:   ll.Lat.Degrees(),
				Lng:   ll.Lng.Degrees(),
				Count: unit.cnt,
			})
		}
	}
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Count != r[j].Count {
			return r[i].Count > r[j].Count
		}
		return r[i].RequestID < r[j].RequestID
	})
	return r
}

func (a *Aggregator) computeCentroid(pCell s2.CellID, chAggrs []*aggrUnit) s2.Point {
	fChPins := make([]s2.Point, 0)
	maxWeight := int64(0)
	for _, aggr := range chAggrs {
		if maxWeight < aggr.cnt {
			maxWeight = aggr.cnt
		}
	}
	for _, aggr := range chAggrs {
		if maxWeight/aggr.cnt < weightDiffThreshold {
			fChPins = append(fChPins, aggr.pin)
		}
	}
	switch len(fChPins) {
	case 1:
		return fChPins[0]
	case 2:
		return s2.PlanarCentroid(fChPins[0], fChPins[0], fChPins[1])
	case 3:
		return s2.PlanarCentroid(fChPins[0], fChPins[1], fChPins[2])
	}
	return s2.PointFromLatLng(pCell.LatLng())
}

func (a *Aggregator) aggrStep(level int) {
	if level < a.level {
		return
	}
	// Merge the units one cell level up
	nextAggrs := make(map[s2.CellID]*aggrUnit)
	for cell, unit := range a.aggrs {
		p := cell.Parent(level)
		eu, ok := nextAggrs[p]
		if !ok {
			nextAggrs[p] = &aggrUnit{
				cnt:      unit.cnt,
				origPins: unit.origPins,
			}
		} else {
			nextAggrs[p] = &aggrUnit{
				cnt:         eu.cnt + unit.cnt,
				containment: eu.containment,
			}
			if eu.cnt+unit.cnt <= minPinsToAggr {
				nextAggrs[p].origPins = append(eu.origPins, unit.origPins...)
			}
		}
		// unit sits on level+1, so it is a child of nextAggrs[p]
		nextAggrs[p].containment[cell.ChildPosition(level+1)] = true
	}
	// The pin of a merged unit is the centroid of its children's pins
	for pCell, pUnit := range nextAggrs {
		chAggrs := make([]*aggrUnit, 0)
		for i, v := range pUnit.containment {
			if v {
				chCell := pCell.Children()[i]
				if chAggr, ok := a.aggrs[chCell]; ok {
					chAggrs = append(chAggrs, chAggr)
				}
			}
		}
		pUnit.pin = a.computeCentroid(pCell, chAggrs)
	}
	a.aggrs = nextAggrs
	a.aggrStep(level - 1)
}

func (a *Aggregator) aggregate() {
	a.aggrs = make(map[s2.CellID]*aggrUnit, len(a.points))
	for cell, pts := range a.points {
		a.aggrs[cell] = &aggrUnit{
			cnt:         int64(len(pts)),
			containment: [4]bool{true, true, true, true},
			pin:         s2.PointFromLatLng(cell.LatLng()),
		}
		if len(pts) <= minPinsToAggr {
			a.aggrs[cell].origPins = pts
		}
	}
	a.aggrStep(maxLevel - 1)
}
