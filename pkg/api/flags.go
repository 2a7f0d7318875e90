package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/abac"
	"github.com/codeready-toolchain/loom/pkg/authz"
	"github.com/codeready-toolchain/loom/pkg/flags"
)

// registerFlagAdminRoutes mounts the session-authenticated flag management
// surface: creating flags/strategies, wiring per-environment config, and
// activating kill switches.
func (s *Server) registerFlagAdminRoutes(g *gin.RouterGroup) {
	g.POST("/orgs/:org_id/flags", authz.Authorize(abac.ActionWrite, s.loadOrgResource), s.handleCreateFlag)
	g.POST("/orgs/:org_id/flags/:flag_id/config", authz.Authorize(abac.ActionWrite, s.loadOrgResource), s.handleSetFlagConfig)
	g.POST("/orgs/:org_id/flags/strategies", authz.Authorize(abac.ActionWrite, s.loadOrgResource), s.handleCreateStrategy)
	g.GET("/orgs/:org_id/flags/:flag_id/stats", authz.Authorize(abac.ActionRead, s.loadOrgResource), s.handleFlagStats)
	g.GET("/orgs/:org_id/flags/stale", authz.Authorize(abac.ActionRead, s.loadOrgResource), s.handleListStaleFlags)
	g.POST("/orgs/:org_id/kill-switches/:key/activate", authz.Authorize(abac.ActionManagePlatform, s.loadOrgResource), s.handleActivateKillSwitch)
	g.POST("/orgs/:org_id/kill-switches/:key/deactivate", authz.Authorize(abac.ActionManagePlatform, s.loadOrgResource), s.handleDeactivateKillSwitch)
	g.POST("/orgs/:org_id/sdk-keys", authz.Authorize(abac.ActionManagePlatform, s.loadOrgResource), s.handleIssueSDKKey)
}

// registerFlagSDKRoutes mounts the SDK-key-authenticated evaluation and
// live-mutation stream surface: this is what the weaver sandboxes' and
// client SDKs' flag libraries actually talk to at runtime.
func (s *Server) registerFlagSDKRoutes(g *gin.RouterGroup) {
	g.POST("/flags/:key/evaluate", s.handleEvaluateFlag)
	g.GET("/flags/stream", s.handleFlagStream)
}

func (s *Server) handleCreateFlag(c *gin.Context) {
	var f flags.Flag
	if err := c.ShouldBindJSON(&f); err != nil {
		respondErr(c, apperr.InvalidInput("body", "malformed flag payload"))
		return
	}
	f.OrgID = ids.OrgID(c.Param("org_id"))

	created, err := s.flagEngine.CreateFlag(c.Request.Context(), f)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleSetFlagConfig(c *gin.Context) {
	var body struct {
		EnvironmentID ids.EnvironmentID `json:"environment_id"`
		Enabled       bool              `json:"enabled"`
		StrategyID    *ids.StrategyID   `json:"strategy_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondErr(c, apperr.InvalidInput("body", "malformed config payload"))
		return
	}
	flagID := ids.FlagID(c.Param("flag_id"))

	cfg, err := s.flagEngine.SetConfig(c.Request.Context(), flagID, body.EnvironmentID, body.Enabled, body.StrategyID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleCreateStrategy(c *gin.Context) {
	var strat flags.Strategy
	if err := c.ShouldBindJSON(&strat); err != nil {
		respondErr(c, apperr.InvalidInput("body", "malformed strategy payload"))
		return
	}
	created, err := s.flagEngine.CreateStrategy(c.Request.Context(), strat)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleFlagStats(c *gin.Context) {
	flagID := ids.FlagID(c.Param("flag_id"))
	env := ids.EnvironmentID(c.Query("environment_id"))
	stats, err := s.flagEngine.Stats(c.Request.Context(), flagID, env)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleListStaleFlags(c *gin.Context) {
	org := ids.OrgID(c.Param("org_id"))
	days, _ := strconvAtoiDefault(c.Query("days"), 30)
	stale, err := s.flagEngine.ListStaleFlags(c.Request.Context(), org, days)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stale_flags": stale})
}

func (s *Server) handleActivateKillSwitch(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	key := c.Param("key")
	if err := s.flagEngine.ActivateKillSwitch(c.Request.Context(), key, subject.UserID.String(), body.Reason); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeactivateKillSwitch(c *gin.Context) {
	key := c.Param("key")
	if err := s.flagEngine.DeactivateKillSwitch(c.Request.Context(), key); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleIssueSDKKey(c *gin.Context) {
	var body struct {
		EnvironmentID ids.EnvironmentID `json:"environment_id"`
		KeyType       flags.KeyType     `json:"key_type"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.EnvironmentID == "" {
		respondErr(c, apperr.InvalidInput("environment_id", "environment_id is required"))
		return
	}
	if body.KeyType == "" {
		body.KeyType = flags.KeyTypeServer
	}

	key, raw, err := s.flagKeys.IssueKey(c.Request.Context(), body.EnvironmentID, body.KeyType)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sdk_key": key, "raw_key": raw})
}

func (s *Server) handleEvaluateFlag(c *gin.Context) {
	env := sdkEnvironmentFrom(c)
	flagKey := c.Param("key")
	var evalCtx flags.EvalContext
	_ = c.ShouldBindJSON(&evalCtx)

	result, err := s.flagEngine.Evaluate(c.Request.Context(), flagKey, env, evalCtx)
	if err != nil {
		respondErr(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordFlagEvaluation(flagKey, result.Variant)
	}
	c.JSON(http.StatusOK, result)
}

// handleFlagStream upgrades to a Server-Sent-Events stream of flag
// mutations for the caller's environment, replaying history since
// Last-Event-ID on reconnect.
func (s *Server) handleFlagStream(c *gin.Context) {
	env := sdkEnvironmentFrom(c)
	key := sdkKeyFrom(c)

	var since int64
	if raw := c.GetHeader("Last-Event-ID"); raw != "" {
		fmt.Sscanf(raw, "%d", &since)
	}

	ch, unsubscribe := s.flagStream.Subscribe(env.String(), key.ID.String(), since)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondErr(c, apperr.Internal("streaming unsupported", nil))
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			frame, err := flags.EncodeSSE(evt)
			if err != nil {
				continue
			}
			if _, err := c.Writer.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func strconvAtoiDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	var v int
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return def, nil
	}
	return v, nil
}
