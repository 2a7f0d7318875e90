package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/abac"
	"github.com/codeready-toolchain/loom/pkg/authz"
	"github.com/codeready-toolchain/loom/pkg/thread"
)

func (s *Server) registerThreadRoutes(g *gin.RouterGroup) {
	g.GET("/threads", s.handleListThreads)
	g.GET("/threads/search", s.handleSearchThreads)
	g.PUT("/threads/:id", authz.Authorize(abac.ActionWrite, s.loadThreadResource), s.handleUpsertThread)
	g.GET("/threads/:id", authz.Authorize(abac.ActionRead, s.loadThreadResource), s.handleGetThread)
	g.DELETE("/threads/:id", authz.Authorize(abac.ActionDelete, s.loadThreadResource), s.handleDeleteThread)
	g.POST("/threads/:id/visibility", authz.Authorize(abac.ActionWrite, s.loadThreadResource), s.handleSetThreadVisibility)
}

func threadVisibilityToAbac(v thread.Visibility) abac.Visibility {
	switch v {
	case thread.VisibilityOrganization:
		return abac.VisibilityOrganization
	case thread.VisibilityPublic:
		return abac.VisibilityPublic
	default:
		return abac.VisibilityPrivate
	}
}

func (s *Server) loadThreadResource(c *gin.Context) (abac.ResourceAttrs, error) {
	id, err := ids.ParseThreadID(c.Param("id"))
	if err != nil {
		return abac.ResourceAttrs{}, apperr.InvalidID("malformed thread id")
	}
	t, err := s.threads.Get(c.Request.Context(), id)
	if err != nil {
		return abac.ResourceAttrs{}, apperr.NotFound("thread not found")
	}
	return abac.ResourceAttrs{
		Kind:                abac.ResourceKindThread,
		ID:                  id.String(),
		OrgID:               t.OrgID,
		OwnerUserID:         t.OwnerUserID,
		Visibility:          threadVisibilityToAbac(t.Visibility),
		IsSharedWithSupport: t.IsSharedWithSupport,
	}, nil
}

func paginationParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// handleListThreads lists the caller's own threads, paginated by limit and
// offset. A workspace_root query parameter is not read; the listing is not
// narrowed by workspace.
func (s *Server) handleListThreads(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	limit, offset := paginationParams(c)

	summaries, err := s.threads.ListForOwner(c.Request.Context(), subject.UserID, limit, offset)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": summaries})
}

func (s *Server) handleSearchThreads(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	query := c.Query("q")
	if query == "" {
		respondErr(c, apperr.InvalidInput("q", "search query must not be empty"))
		return
	}
	limit, offset := paginationParams(c)

	hits, err := s.threads.SearchForOwner(c.Request.Context(), subject.UserID, query, limit, offset)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

func (s *Server) handleGetThread(c *gin.Context) {
	id, _ := ids.ParseThreadID(c.Param("id"))
	t, err := s.threads.Get(c.Request.Context(), id)
	if err != nil {
		respondErr(c, apperr.NotFound("thread not found"))
		return
	}
	c.JSON(http.StatusOK, t)
}

// handleUpsertThread accepts the CLI sync client's push of a thread
// snapshot. expected_version, when present on the query string,
// enforces optimistic concurrency the same way the sync client does
// locally.
func (s *Server) handleUpsertThread(c *gin.Context) {
	var t thread.Thread
	if err := c.ShouldBindJSON(&t); err != nil {
		respondErr(c, apperr.InvalidInput("body", "malformed thread payload"))
		return
	}
	if t.IsPrivate {
		respondErr(c, apperr.InvalidInput("is_private", "a private thread is never synced"))
		return
	}
	if !t.Valid() {
		respondErr(c, apperr.InvalidInput("is_private", "a private thread must have visibility private"))
		return
	}

	var expected *int64
	if raw := c.Query("expected_version"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondErr(c, apperr.InvalidInput("expected_version", "must be an integer"))
			return
		}
		expected = &v
	}

	updated, err := s.threads.Upsert(c.Request.Context(), t, expected)
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteThread(c *gin.Context) {
	id, _ := ids.ParseThreadID(c.Param("id"))
	if err := s.threads.Delete(c.Request.Context(), id); err != nil {
		respondStoreErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetThreadVisibility(c *gin.Context) {
	id, _ := ids.ParseThreadID(c.Param("id"))
	var body struct {
		Visibility          thread.Visibility `json:"visibility"`
		IsSharedWithSupport *bool             `json:"is_shared_with_support"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondErr(c, apperr.InvalidInput("body", "malformed visibility payload"))
		return
	}

	if body.Visibility == thread.VisibilityOrganization || body.Visibility == thread.VisibilityPublic {
		if err := s.threads.SetVisibility(c.Request.Context(), id, body.Visibility); err != nil {
			respondStoreErr(c, err)
			return
		}
	}

	if body.IsSharedWithSupport != nil {
		if err := s.threads.SetSharedWithSupport(c.Request.Context(), id, *body.IsSharedWithSupport); err != nil {
			respondStoreErr(c, err)
			return
		}
	}

	c.Status(http.StatusNoContent)
}

// respondStoreErr maps a pkg/thread.StoreError onto the uniform envelope;
// pkg/thread predates apperr and carries its own error taxonomy, so this
// is the one seam where a non-apperr error type needs its own mapping
// instead of apperr.StatusAndBody's generic fallback.
func respondStoreErr(c *gin.Context, err error) {
	if storeErr, ok := asStoreError(err); ok {
		switch storeErr.Kind {
		case thread.ErrorKindNotFound:
			respondErr(c, apperr.NotFound("thread not found"))
		case thread.ErrorKindConflict:
			respondErr(c, apperr.Conflict(apperr.CodeConflict, "thread version conflict"))
		default:
			respondErr(c, apperr.Internal("thread store failure", storeErr))
		}
		return
	}
	respondErr(c, err)
}

func asStoreError(err error) (*thread.StoreError, bool) {
	se, ok := err.(*thread.StoreError)
	return se, ok
}
