package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/abac"
	"github.com/codeready-toolchain/loom/pkg/authz"
	"github.com/codeready-toolchain/loom/pkg/identity"
	"github.com/codeready-toolchain/loom/pkg/webhook"
)

func (s *Server) registerOrgRoutes(g *gin.RouterGroup) {
	g.POST("/orgs", s.handleCreateOrg)
	g.GET("/orgs/:org_id", authz.Authorize(abac.ActionRead, s.loadOrgResource), s.handleGetOrg)
	g.DELETE("/orgs/:org_id", authz.Authorize(abac.ActionManageOrg, s.loadOrgResource), s.handleDeleteOrg)

	g.GET("/orgs/:org_id/members", authz.Authorize(abac.ActionRead, s.loadOrgResource), s.handleListMembers)
	g.PATCH("/orgs/:org_id/members/:user_id", authz.Authorize(abac.ActionManageOrg, s.loadOrgResource), s.handleChangeMemberRole)
	g.DELETE("/orgs/:org_id/members/:user_id", s.handleRemoveMember)

	g.POST("/orgs/:org_id/invitations", authz.Authorize(abac.ActionManageOrg, s.loadOrgResource), s.handleCreateInvitation)
	g.GET("/orgs/:org_id/invitations", authz.Authorize(abac.ActionManageOrg, s.loadOrgResource), s.handleListInvitations)
	g.POST("/invitations/accept", s.handleAcceptInvitation)

	g.POST("/orgs/:org_id/join-requests", s.handleCreateJoinRequest)
	g.GET("/orgs/:org_id/join-requests", authz.Authorize(abac.ActionManageOrg, s.loadOrgResource), s.handleListJoinRequests)
	g.POST("/join-requests/:id/decide", s.handleDecideJoinRequest)
}

func (s *Server) loadOrgResource(c *gin.Context) (abac.ResourceAttrs, error) {
	org := ids.OrgID(c.Param("org_id"))
	if org == "" {
		return abac.ResourceAttrs{}, apperr.InvalidID("malformed organization id")
	}
	row, err := s.orgs.Get(c.Request.Context(), org)
	if err != nil {
		return abac.ResourceAttrs{}, err
	}
	return abac.ResourceAttrs{
		Kind:  abac.ResourceKindOrg,
		ID:    row.ID.String(),
		OrgID: row.ID,
	}, nil
}

func (s *Server) handleCreateOrg(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	var body struct {
		Name       string                  `json:"name"`
		Slug       string                  `json:"slug"`
		Visibility identity.OrgVisibility `json:"visibility"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Slug == "" {
		respondErr(c, apperr.InvalidInput("body", "name and slug are required"))
		return
	}
	if body.Visibility == "" {
		body.Visibility = identity.OrgVisibilityPrivate
	}

	org, err := s.orgs.CreateOrganization(c.Request.Context(), body.Name, body.Slug, body.Visibility, subject.UserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	s.fireWebhook(c.Request.Context(), webhook.Event{
		OwnerType: webhook.OwnerOrg,
		OwnerID:   org.ID.String(),
		Name:      "org.created",
		Actor:     subject.UserID.String(),
	})
	c.JSON(http.StatusCreated, org)
}

func (s *Server) handleGetOrg(c *gin.Context) {
	org, err := s.orgs.Get(c.Request.Context(), ids.OrgID(c.Param("org_id")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (s *Server) handleDeleteOrg(c *gin.Context) {
	org := ids.OrgID(c.Param("org_id"))
	if err := s.orgs.SoftDelete(c.Request.Context(), org); err != nil {
		respondErr(c, err)
		return
	}
	s.fireWebhook(c.Request.Context(), webhook.Event{
		OwnerType: webhook.OwnerOrg,
		OwnerID:   org.String(),
		Name:      "org.deleted",
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListMembers(c *gin.Context) {
	members, err := s.orgs.ListMembers(c.Request.Context(), ids.OrgID(c.Param("org_id")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) handleChangeMemberRole(c *gin.Context) {
	var body struct {
		Role identity.OrgRole `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Role == "" {
		respondErr(c, apperr.InvalidInput("role", "a valid role is required"))
		return
	}
	org := ids.OrgID(c.Param("org_id"))
	user := ids.UserID(c.Param("user_id"))
	if err := s.orgs.ChangeRole(c.Request.Context(), org, user, body.Role); err != nil {
		respondErr(c, err)
		return
	}
	s.fireWebhook(c.Request.Context(), webhook.Event{
		OwnerType: webhook.OwnerOrg,
		OwnerID:   org.String(),
		Name:      "org.member.role_changed",
		Payload:   map[string]any{"user_id": user.String(), "role": string(body.Role)},
	})
	c.Status(http.StatusNoContent)
}

// handleRemoveMember authorizes itself rather than going through the
// standard Authorize middleware: a member removing themselves (self-
// removal) is always allowed regardless of ManageOrg, so the resource
// loader needs the acting subject's id to set SelfRemoval before Decide
// runs.
func (s *Server) handleRemoveMember(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	org := ids.OrgID(c.Param("org_id"))
	target := ids.UserID(c.Param("user_id"))

	orgRow, err := s.orgs.Get(c.Request.Context(), org)
	if err != nil {
		respondErr(c, err)
		return
	}
	resource := abac.ResourceAttrs{
		Kind:        abac.ResourceKindOrg,
		ID:          orgRow.ID.String(),
		OrgID:       orgRow.ID,
		SelfRemoval: subject.UserID == target,
	}
	decision := abac.Decide(subject, abac.ActionManageOrg, resource)
	if !decision.Allowed {
		respondErr(c, apperr.Forbidden(string(decision.Reason)))
		return
	}

	if err := s.orgs.RemoveMember(c.Request.Context(), org, target); err != nil {
		respondErr(c, err)
		return
	}
	s.fireWebhook(c.Request.Context(), webhook.Event{
		OwnerType: webhook.OwnerOrg,
		OwnerID:   org.String(),
		Name:      "org.member.removed",
		Actor:     subject.UserID.String(),
		Payload:   map[string]any{"user_id": target.String()},
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCreateInvitation(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	var body struct {
		Email string           `json:"email"`
		Role  identity.OrgRole `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Email == "" {
		respondErr(c, apperr.InvalidInput("email", "a valid email is required"))
		return
	}
	if body.Role == "" {
		body.Role = identity.OrgRoleMember
	}

	org := ids.OrgID(c.Param("org_id"))
	inv, raw, err := s.invitations.Create(c.Request.Context(), org, body.Email, body.Role, subject.UserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invitation": inv, "token": raw})
}

func (s *Server) handleListInvitations(c *gin.Context) {
	invs, err := s.invitations.ListForOrg(c.Request.Context(), ids.OrgID(c.Param("org_id")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

func (s *Server) handleAcceptInvitation(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Token == "" {
		respondErr(c, apperr.InvalidInput("token", "invitation token is required"))
		return
	}
	inv, err := s.invitations.Accept(c.Request.Context(), body.Token, subject.UserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) handleCreateJoinRequest(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	org := ids.OrgID(c.Param("org_id"))
	jr, err := s.joinReqs.Create(c.Request.Context(), org, subject.UserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, jr)
}

func (s *Server) handleListJoinRequests(c *gin.Context) {
	rows, err := s.joinReqs.ListPendingForOrg(c.Request.Context(), ids.OrgID(c.Param("org_id")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"join_requests": rows})
}

func (s *Server) handleDecideJoinRequest(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	var body struct {
		Approve bool `json:"approve"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondErr(c, apperr.InvalidInput("approve", "approve must be a boolean"))
		return
	}
	id := ids.JoinRequestID(c.Param("id"))
	jr, err := s.joinReqs.Decide(c.Request.Context(), id, subject.UserID, body.Approve)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, jr)
}
