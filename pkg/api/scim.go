package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/pkg/identity"
	"github.com/codeready-toolchain/loom/pkg/identity/scim"
	"github.com/codeready-toolchain/loom/pkg/svid"
)

// registerSCIMRoutes mounts the identity-sync surface a directory
// provider's SCIM client pushes User provisioning events to. Scoped to
// the org carried in the caller's SCIM bearer token, not a path
// parameter: a SCIM token is minted per-org, so there is no org to spoof.
func (s *Server) registerSCIMRoutes(g *gin.RouterGroup) {
	g.POST("/Users", s.handleSCIMUpsertUser)
}

func (s *Server) handleSCIMUpsertUser(c *gin.Context) {
	claims, ok := c.MustGet("loom.scim.claims").(*svid.SCIMClaims)
	if !ok {
		respondErr(c, apperr.Unauthorized("missing SCIM claims"))
		return
	}

	var resource scim.UserResource
	if err := c.ShouldBindJSON(&resource); err != nil {
		respondErr(c, apperr.InvalidInput("body", "malformed SCIM User resource"))
		return
	}

	user, err := s.scimAdapter.UpsertUser(c.Request.Context(), claims.OrgID, resource, identity.OrgRoleMember)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schemas":  []string{"urn:ietf:params:scim:schemas:core:2.0:User"},
		"id":       user.ID.String(),
		"userName": resource.UserName,
		"active":   resource.Active,
	})
}
