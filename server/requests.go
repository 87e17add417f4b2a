package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trashdrop/db"
	"trashdrop/events"
	"trashdrop/geofence"
	"trashdrop/metrics"
	"trashdrop/request"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ListRequests handles GET /api/v1/requests. collector_id=me selects the
// caller's jobs and format=legacy returns plain objects.
func (s *Server) ListRequests(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}
	collectorID := c.Query("collector_id")
	if collectorID == "me" {
		collectorID = currentUser(c)
	}
	f := db.Filter{
		Status:      request.Status(c.Query("status")),
		CollectorID: collectorID,
		UserID:      c.Query("user_id"),
		Limit:       limit,
	}

	reqs, err := s.store.List(c.Request.Context(), f)
	if err != nil {
		log.Errorf("Failed to list requests: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}
	if c.Query("format") == "legacy" {
		c.JSON(http.StatusOK, gin.H{"requests": request.UnwrapAll(reqs), "count": len(reqs)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs, "count": len(reqs)})
}

func (s *Server) GetRequest(c *gin.Context) {
	r, ok := s.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r)
}

// CreateRequest handles POST /api/v1/requests. The body is a partial plain
// object; defaults fill the rest and validation problems come back as
// warnings.
func (s *Server) CreateRequest(c *gin.Context) {
	var f request.Fields
	if err := c.ShouldBindJSON(&f); err != nil || f == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}
	if v, _ := f["user_id"].(string); v == "" {
		f["user_id"] = currentUser(c)
	}
	if v, _ := f["local_id"].(string); v == "" {
		f["local_id"] = uuid.NewString()
	}

	r, err := s.engine.Create(c.Request.Context(), f)
	if err != nil && r == nil {
		s.respondError(c, request.ActionCreate, err)
		return
	}
	metrics.ValidationWarningsTotal.Add(float64(len(r.Warnings)))
	if err != nil {
		s.respondError(c, request.ActionCreate, err)
		return
	}
	s.announce(c, request.ActionCreate, r)
	c.JSON(http.StatusCreated, gin.H{"request": r, "warnings": r.Warnings})
}

// ImportLegacy handles POST /api/v1/requests/legacy with a JSON array of
// legacy shaped requests. Null entries are skipped. With dry_run=true the
// migrated requests are returned without being stored.
func (s *Server) ImportLegacy(c *gin.Context) {
	var batch []request.Fields
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON array"})
		return
	}

	if c.Query("dry_run") == "true" {
		reqs := request.Wrap(batch)
		c.JSON(http.StatusOK, gin.H{"requests": reqs, "count": len(reqs)})
		return
	}

	reqs := make([]*request.Request, 0, len(batch))
	for i, old := range batch {
		if old == nil {
			continue
		}
		r, err := s.engine.FromLegacy(c.Request.Context(), old)
		if err != nil {
			log.WithField("index", i).Errorf("Failed to import legacy request: %v", err)
			s.respondError(c, request.ActionCreate, err)
			return
		}
		s.announce(c, request.ActionCreate, r)
		reqs = append(reqs, r)
	}
	c.JSON(http.StatusCreated, gin.H{"requests": reqs, "count": len(reqs)})
}

// ValidateRequest handles POST /api/v1/requests/validate?strict=true.
func (s *Server) ValidateRequest(c *gin.Context) {
	var f request.Fields
	if err := c.ShouldBindJSON(&f); err != nil || f == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}
	strict, _ := strconv.ParseBool(c.DefaultQuery("strict", "false"))
	c.JSON(http.StatusOK, request.Validate(f, strict))
}

type locationBody struct {
	Location *request.Coordinates `json:"location"`
}

type cancelBody struct {
	Reason string `json:"reason"`
}

type disposeBody struct {
	FacilityID string `json:"facility_id"`
	Notes      string `json:"notes"`
}

func (s *Server) AcceptRequest(c *gin.Context) {
	var body locationBody
	if !bindOptional(c, &body) {
		return
	}
	r, ok := s.load(c)
	if !ok {
		return
	}
	out, err := s.engine.Accept(c.Request.Context(), r, currentUser(c), body.Location)
	s.respond(c, request.ActionAccept, out, err)
}

// StartPickup handles POST /api/v1/requests/:id/start. When a location is
// given the collector must be within the geofence of the pickup point.
func (s *Server) StartPickup(c *gin.Context) {
	var body locationBody
	if !bindOptional(c, &body) {
		return
	}
	r, ok := s.load(c)
	if !ok || !s.assigned(c, r) || !s.inGeofence(c, r, body.Location) {
		return
	}
	out, err := s.engine.Start(c.Request.Context(), r)
	s.respond(c, request.ActionStart, out, err)
}

func (s *Server) CompletePickup(c *gin.Context) {
	var ev request.Evidence
	if !bindOptional(c, &ev) {
		return
	}
	r, ok := s.load(c)
	if !ok || !s.assigned(c, r) || !s.inGeofence(c, r, ev.Location) {
		return
	}
	out, err := s.engine.Complete(c.Request.Context(), r, ev)
	s.respond(c, request.ActionComplete, out, err)
}

// CancelRequest handles POST /api/v1/requests/:id/cancel. Only the requester
// or the assigned collector may cancel.
func (s *Server) CancelRequest(c *gin.Context) {
	var body cancelBody
	if !bindOptional(c, &body) {
		return
	}
	r, ok := s.load(c)
	if !ok {
		return
	}
	if user := currentUser(c); user != r.UserID && user != r.CollectorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the requester or the assigned collector can cancel"})
		return
	}
	out, err := s.engine.Cancel(c.Request.Context(), r, body.Reason)
	s.respond(c, request.ActionCancel, out, err)
}

// DisposeRequest handles POST /api/v1/requests/:id/dispose, recording the
// delivery of a completed collection to a processing facility.
func (s *Server) DisposeRequest(c *gin.Context) {
	var body disposeBody
	if !bindOptional(c, &body) {
		return
	}
	r, ok := s.load(c)
	if !ok || !s.assigned(c, r) {
		return
	}
	out, err := s.engine.Dispose(c.Request.Context(), r, body.FacilityID, body.Notes)
	s.respond(c, request.ActionDispose, out, err)
}

func (s *Server) load(c *gin.Context) (*request.Request, bool) {
	id := c.Param("id")
	r, err := s.store.Get(c.Request.Context(), id)
	if errors.Is(err, request.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found", "id": id})
		return nil, false
	}
	if err != nil {
		log.WithField("id", id).Errorf("Failed to load request: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load request"})
		return nil, false
	}
	return r, true
}

func (s *Server) assigned(c *gin.Context, r *request.Request) bool {
	if r.CollectorID != "" && r.CollectorID != currentUser(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "request is assigned to another collector"})
		return false
	}
	return true
}

func (s *Server) inGeofence(c *gin.Context, r *request.Request, location *request.Coordinates) bool {
	distance, ok := geofence.Check(r, location, s.cfg.GeofenceRadiusMeters)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "collector is too far from the pickup location",
			"distance_m": distance,
			"radius_m":   s.cfg.GeofenceRadiusMeters,
		})
	}
	return ok
}

func (s *Server) respond(c *gin.Context, a request.Action, out *request.Request, err error) {
	if err != nil {
		s.respondError(c, a, err)
		return
	}
	metrics.TransitionsTotal.WithLabelValues(string(a), "ok").Inc()
	s.announce(c, a, out)
	c.JSON(http.StatusOK, out)
}

func (s *Server) respondError(c *gin.Context, a request.Action, err error) {
	var ite *request.InvalidTransitionError
	switch {
	case errors.As(err, &ite):
		metrics.TransitionsTotal.WithLabelValues(string(a), "rejected").Inc()
		c.JSON(http.StatusConflict, gin.H{
			"error":          ite.Error(),
			"current_status": ite.Current,
			"action":         ite.Action,
		})
	case errors.Is(err, request.ErrMalformedInput):
		metrics.TransitionsTotal.WithLabelValues(string(a), "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		metrics.TransitionsTotal.WithLabelValues(string(a), "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// announce publishes the event for a successful operation. Publishing
// failures never fail the request.
func (s *Server) announce(c *gin.Context, a request.Action, r *request.Request) {
	e, ok := events.For(a, r, s.now())
	if !ok {
		return
	}
	if err := s.events.Publish(c.Request.Context(), e); err != nil {
		metrics.PublishErrorsTotal.WithLabelValues("server").Inc()
		log.WithFields(log.Fields{"id": r.ID, "event": e.Type}).Warnf("Failed to publish event: %v", err)
	}
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return false
	}
	return true
}
