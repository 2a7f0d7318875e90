package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/analytics"
)

func orgIDFrom(raw string) ids.OrgID { return ids.OrgID(raw) }

// registerAnalyticsRoutes mounts the SDK-key-authenticated event capture
// surface: a weaver's embedded analytics client and the dashboard's client
// SDKs both post here.
func (s *Server) registerAnalyticsRoutes(g *gin.RouterGroup) {
	g.POST("/analytics/capture", s.handleCapture)
	g.POST("/analytics/batch", s.handleCaptureBatch)
	g.POST("/analytics/identify", s.handleIdentify)
	g.POST("/analytics/alias", s.handleAlias)
	g.POST("/analytics/set", s.handleSetProperties)
}

func (s *Server) handleCapture(c *gin.Context) {
	var body struct {
		OrgID      string         `json:"org_id"`
		DistinctID string         `json:"distinct_id"`
		EventName  string         `json:"event_name"`
		Properties map[string]any `json:"properties"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.DistinctID == "" || body.EventName == "" {
		respondErr(c, apperr.InvalidInput("body", "distinct_id and event_name are required"))
		return
	}

	evt, err := s.persons.Capture(c.Request.Context(), orgIDFrom(body.OrgID), body.DistinctID, body.EventName, body.Properties)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

func (s *Server) handleCaptureBatch(c *gin.Context) {
	var body struct {
		OrgID  string                     `json:"org_id"`
		Events []analytics.CaptureRequest `json:"events"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondErr(c, apperr.InvalidInput("body", "malformed batch payload"))
		return
	}

	events, err := s.persons.Batch(c.Request.Context(), orgIDFrom(body.OrgID), body.Events)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"events": events})
}

func (s *Server) handleIdentify(c *gin.Context) {
	var body struct {
		OrgID      string         `json:"org_id"`
		DistinctID string         `json:"distinct_id"`
		UserID     string         `json:"user_id"`
		Properties map[string]any `json:"properties"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.DistinctID == "" || body.UserID == "" {
		respondErr(c, apperr.InvalidInput("body", "distinct_id and user_id are required"))
		return
	}

	person, err := s.persons.Identify(c.Request.Context(), orgIDFrom(body.OrgID), body.DistinctID, body.UserID, body.Properties)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, person)
}

func (s *Server) handleAlias(c *gin.Context) {
	var body struct {
		OrgID      string `json:"org_id"`
		DistinctID string `json:"distinct_id"`
		Alias      string `json:"alias"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.DistinctID == "" || body.Alias == "" {
		respondErr(c, apperr.InvalidInput("body", "distinct_id and alias are required"))
		return
	}

	person, err := s.persons.Alias(c.Request.Context(), orgIDFrom(body.OrgID), body.DistinctID, body.Alias)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, person)
}

func (s *Server) handleSetProperties(c *gin.Context) {
	var body struct {
		OrgID      string         `json:"org_id"`
		DistinctID string         `json:"distinct_id"`
		Properties map[string]any `json:"properties"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.DistinctID == "" {
		respondErr(c, apperr.InvalidInput("body", "distinct_id is required"))
		return
	}

	person, err := s.persons.Set(c.Request.Context(), orgIDFrom(body.OrgID), body.DistinctID, body.Properties)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, person)
}
