package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/audit"
	"github.com/codeready-toolchain/loom/pkg/secrets"
	"github.com/codeready-toolchain/loom/pkg/svid"
)

// weaverSVIDTTL bounds how long a minted weaver workload token is valid;
// the provisioner re-mints on demand rather than issuing long-lived tokens
// a compromised sandbox could replay indefinitely.
const weaverSVIDTTL = 15 * time.Minute

// registerWeaverAuthRoutes mounts the unauthenticated SVID exchange: a
// weaver pod presents the bootstrap identity its provisioning labels
// carry, and gets back a short-lived signed token it then uses as a
// bearer credential against weaver-secrets and weaver-audit.
func (s *Server) registerWeaverAuthRoutes(g *gin.RouterGroup) {
	g.POST("/token", s.handleMintWeaverSVID)
	g.GET("/.well-known/jwks.json", s.handleWeaverJWKS)
}

func (s *Server) handleMintWeaverSVID(c *gin.Context) {
	var body struct {
		WeaverID string `json:"weaver_id"`
		OrgID    string `json:"org_id"`
		ThreadID string `json:"thread_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.WeaverID == "" || body.OrgID == "" {
		respondErr(c, apperr.InvalidInput("weaver_id", "weaver_id and org_id are required"))
		return
	}
	weaverID, err := ids.ParseWeaverID(body.WeaverID)
	if err != nil {
		respondErr(c, apperr.InvalidID("malformed weaver id"))
		return
	}

	token, err := s.svidMinter.MintWeaverSVID(weaverID, ids.OrgID(body.OrgID), body.ThreadID, weaverSVIDTTL)
	if err != nil {
		respondErr(c, apperr.Internal("mint weaver SVID", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "expires_in_seconds": int(weaverSVIDTTL.Seconds())})
}

// handleWeaverJWKS always returns an empty key set: weaver SVIDs are signed
// with a single server-held HMAC key (pkg/svid), and a symmetric key has no
// public half to publish. The endpoint exists so a client that blindly
// follows a JWKS discovery convention doesn't fail hard; actual SVID
// verification only ever happens server-side via requireWeaverSVID.
func (s *Server) handleWeaverJWKS(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keys": []any{}})
}

// registerWeaverSecretsRoutes mounts the SVID-authenticated secret reveal
// surface a weaver's runtime uses to fetch the repo/org secrets it was
// granted at provision time.
func (s *Server) registerWeaverSecretsRoutes(g *gin.RouterGroup) {
	g.GET("/v1/secrets/:scope/:name", s.handleRevealSecret)
}

func (s *Server) handleRevealSecret(c *gin.Context) {
	scope := secrets.OwnerType(c.Param("scope"))
	if scope != secrets.OwnerRepo && scope != secrets.OwnerOrg {
		respondErr(c, apperr.InvalidInput("scope", "scope must be repo or org"))
		return
	}
	ownerID := c.Query("owner_id")
	if scope == secrets.OwnerOrg && ownerID == "" {
		if claims, ok := c.MustGet("loom.weaver.claims").(*svid.WeaverClaims); ok {
			ownerID = claims.OrgID.String()
		}
	}
	if ownerID == "" {
		respondErr(c, apperr.InvalidInput("owner_id", "owner_id is required"))
		return
	}

	value, err := s.secretStore.Reveal(c.Request.Context(), scope, ownerID, c.Param("name"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value.Reveal()})
}

// registerWeaverAuditRoutes mounts the SVID-authenticated audit-event sink
// a weaver's runtime posts privileged actions to (command execution,
// attach sessions, flagged sandbox-escape attempts), folding them into the
// same audit.Dispatcher every other subsystem logs through.
func (s *Server) registerWeaverAuditRoutes(g *gin.RouterGroup) {
	g.POST("/events", s.handleIngestWeaverAudit)
}

type weaverAuditEvent struct {
	EventType    string         `json:"event_type"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Details      map[string]any `json:"details"`
}

func (s *Server) handleIngestWeaverAudit(c *gin.Context) {
	var body struct {
		Events []weaverAuditEvent `json:"events"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondErr(c, apperr.InvalidInput("body", "malformed audit batch"))
		return
	}
	if s.auditLog == nil {
		c.Status(http.StatusAccepted)
		return
	}

	for _, evt := range body.Events {
		eventType, ok := audit.ParseEventType(evt.EventType)
		if !ok {
			eventType = audit.EventWeaverAttached
		}
		entry := audit.NewEntry(eventType).
			Resource(evt.ResourceType, evt.ResourceID).
			Action(evt.Action).
			Details(evt.Details).
			Build()
		s.auditLog.Log(entry)
	}
	c.Status(http.StatusAccepted)
}
