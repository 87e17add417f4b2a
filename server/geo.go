package server

import (
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	geojson "github.com/paulmach/go.geojson"

	"trashdrop/db"
	"trashdrop/earnings"
	"trashdrop/geofence"
	"trashdrop/map_aggr"
	"trashdrop/request"
)

// Search radius for open jobs when none is given.
const defaultNearbyRadiusMeters = 5000.0

// Nearby handles GET /api/v1/nearby?lat=&lng=&radius=&status=, listing
// requests around a point, closest first. Only pending jobs by default.
func (s *Server) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required numbers"})
		return
	}
	radius := defaultNearbyRadiusMeters
	if v := c.Query("radius"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius must be a positive number of meters"})
			return
		}
		radius = r
	}
	status := request.Status(c.DefaultQuery("status", string(request.StatusPending)))

	reqs, err := s.store.List(c.Request.Context(), db.Filter{Status: status})
	if err != nil {
		log.Errorf("Failed to list requests for nearby search: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}
	found := geofence.FindNearby(reqs, request.Coordinates{Lat: lat, Lng: lng}, radius)
	c.JSON(http.StatusOK, gin.H{"requests": found, "count": len(found)})
}

// Map handles GET /api/v1/map, returning requests as a GeoJSON feature
// collection. Dense areas are clustered into a single point carrying a count.
// Without latmin, lngmin, latmax, lngmax the view fits all requests.
func (s *Server) Map(c *gin.Context) {
	f := db.Filter{Status: request.Status(c.Query("status"))}
	reqs, err := s.store.List(c.Request.Context(), f)
	if err != nil {
		log.Errorf("Failed to list requests for map: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}

	fc := geojson.NewFeatureCollection()
	custom, given, err := viewPortFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vp, center, ok := map_aggr.Bounds(reqs)
	if given {
		vp, ok = custom, true
		center = request.Coordinates{Lat: (vp.LatMin + vp.LatMax) / 2, Lng: (vp.LngMin + vp.LngMax) / 2}
	}
	if !ok {
		c.JSON(http.StatusOK, fc)
		return
	}

	aggr := map_aggr.NewAggregator(vp, center)
	for _, r := range reqs {
		if r.Coordinates == nil || (given && !inViewPort(vp, *r.Coordinates)) {
			continue
		}
		aggr.AddRequest(r)
	}
	for _, pin := range aggr.Pins() {
		feature := geojson.NewPointFeature([]float64{pin.Lng, pin.Lat})
		feature.SetProperty("count", pin.Count)
		if pin.Count == 1 {
			feature.ID = pin.RequestID
			feature.SetProperty("request_id", pin.RequestID)
			feature.SetProperty("status", pin.Status)
			feature.SetProperty("type", pin.Type)
			feature.SetProperty("bags", pin.Bags)
		}
		fc.AddFeature(feature)
	}
	c.JSON(http.StatusOK, fc)
}

type viewPortError string

func (e viewPortError) Error() string { return string(e) }

func viewPortFromQuery(c *gin.Context) (map_aggr.ViewPort, bool, error) {
	keys := []string{"latmin", "lngmin", "latmax", "lngmax"}
	vals := make([]float64, len(keys))
	given := 0
	for i, k := range keys {
		v := c.Query(k)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return map_aggr.ViewPort{}, false, viewPortError(k + " must be a number")
		}
		vals[i] = f
		given++
	}
	switch given {
	case 0:
		return map_aggr.ViewPort{}, false, nil
	case len(keys):
		vp := map_aggr.ViewPort{LatMin: vals[0], LngMin: vals[1], LatMax: vals[2], LngMax: vals[3]}
		if vp.LatMin > vp.LatMax || vp.LngMin > vp.LngMax {
			return map_aggr.ViewPort{}, false, viewPortError("view port minimum exceeds maximum")
		}
		return vp, true, nil
	default:
		return map_aggr.ViewPort{}, false, viewPortError("latmin, lngmin, latmax and lngmax go together")
	}
}

func inViewPort(vp map_aggr.ViewPort, p request.Coordinates) bool {
	return p.Lat >= vp.LatMin && p.Lat <= vp.LatMax && p.Lng >= vp.LngMin && p.Lng <= vp.LngMax
}

// Earnings handles GET /api/v1/earnings?period=, summarizing the caller's
// completed jobs.
func (s *Server) Earnings(c *gin.Context) {
	period, err := earnings.ParsePeriod(c.Query("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	collectorID := currentUser(c)
	reqs, err := s.store.List(c.Request.Context(), db.Filter{
		Status:      request.StatusCompleted,
		CollectorID: collectorID,
	})
	if err != nil {
		log.Errorf("Failed to list completed requests for %s: %v", collectorID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}
	c.JSON(http.StatusOK, earnings.Summarize(reqs, collectorID, period, s.now()))
}
