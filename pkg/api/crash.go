package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/pkg/abac"
	"github.com/codeready-toolchain/loom/pkg/authz"
	"github.com/codeready-toolchain/loom/pkg/crash"
)

// registerCrashRoutes mounts the session-authenticated crash-report and
// cron-monitor management surface.
func (s *Server) registerCrashRoutes(g *gin.RouterGroup) {
	g.POST("/orgs/:org_id/projects/:project_id/crashes", authz.Authorize(abac.ActionWrite, s.loadOrgResource), s.handleIngestCrash)
	g.GET("/orgs/:org_id/projects/:project_id/crashes", authz.Authorize(abac.ActionRead, s.loadOrgResource), s.handleListCrashes)
	g.DELETE("/orgs/:org_id/crashes/:id", authz.Authorize(abac.ActionDelete, s.loadOrgResource), s.handleDeleteCrash)
	g.POST("/orgs/:org_id/monitors/:key", authz.Authorize(abac.ActionWrite, s.loadOrgResource), s.handleEnsureMonitor)
}

// handleIngestCrash accepts a raw Sentry-compatible event envelope body;
// crash.Store.Ingest decodes only the fields Loom actually surfaces.
func (s *Server) handleIngestCrash(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondErr(c, apperr.InvalidInput("body", "could not read crash payload"))
		return
	}
	evt, err := s.crashStore.Ingest(c.Request.Context(), c.Param("org_id"), c.Param("project_id"), payload)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

func (s *Server) handleListCrashes(c *gin.Context) {
	filter := crash.ListFilter{Release: c.Query("release")}
	events, err := s.crashStore.List(c.Request.Context(), c.Param("project_id"), filter)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"crashes": events})
}

func (s *Server) handleDeleteCrash(c *gin.Context) {
	if err := s.crashStore.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleEnsureMonitor(c *gin.Context) {
	var body struct {
		ExpectedPeriodSeconds int64 `json:"expected_period_seconds"`
		GraceSeconds          int64 `json:"grace_seconds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ExpectedPeriodSeconds <= 0 {
		respondErr(c, apperr.InvalidInput("expected_period_seconds", "a positive expected_period_seconds is required"))
		return
	}
	monitor, err := s.monitors.Ensure(c.Request.Context(), c.Param("org_id"), c.Param("key"),
		time.Duration(body.ExpectedPeriodSeconds)*time.Second, time.Duration(body.GraceSeconds)*time.Second)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, monitor)
}

// handleListMonitors is unauthenticated like the ping endpoints below: a
// dashboard status page reads it, and the monitor key itself is the only
// secret a caller needs to have been handed out of band.
func (s *Server) handleListMonitors(c *gin.Context) {
	org := c.Query("org_id")
	if org == "" {
		respondErr(c, apperr.InvalidInput("org_id", "org_id query parameter is required"))
		return
	}
	monitors, err := s.monitors.List(c.Request.Context(), org)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"monitors": monitors})
}

func (s *Server) pingMonitor(c *gin.Context, kind crash.PingKind) {
	org := c.Query("org_id")
	if org == "" {
		respondErr(c, apperr.InvalidInput("org_id", "org_id query parameter is required"))
		return
	}
	monitor, err := s.monitors.Ping(c.Request.Context(), org, c.Param("key"), kind)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, monitor)
}

func (s *Server) handleCronPing(c *gin.Context)      { s.pingMonitor(c, crash.PingOK) }
func (s *Server) handleCronPingStart(c *gin.Context) { s.pingMonitor(c, crash.PingStart) }
func (s *Server) handleCronPingFail(c *gin.Context)  { s.pingMonitor(c, crash.PingFail) }
