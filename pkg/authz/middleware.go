package authz

import (
	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/pkg/abac"
)

// ResourceLoader resolves the abac.ResourceAttrs for the resource named in
// the current request (e.g. by path parameter), returning an *apperr.Error
// on lookup failure so 404s still come back as 404s rather than being
// swallowed into a blanket 403. Forbidden and not-found stay distinct
// status codes, even though the message text for forbidden never leaks
// whether the resource exists.
type ResourceLoader func(c *gin.Context) (abac.ResourceAttrs, error)

// Authorize builds gin middleware that authorizes action against the
// resource produced by load, using the SubjectAttrs already stashed on the
// context by an earlier authentication middleware (SetSubject). Denial
// renders the stable envelope `{"error":"forbidden","message":"..."}`
// with status 403, matching apperr.Forbidden's shape exactly so handlers
// downstream never need to special-case an ABAC denial versus any other
// apperr-typed failure.
func Authorize(action abac.Action, load ResourceLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := SubjectFrom(c)
		if !ok {
			respondErr(c, apperr.Unauthorized("authentication required"))
			return
		}

		resource, err := load(c)
		if err != nil {
			respondErr(c, err)
			return
		}

		decision := abac.Decide(subject, action, resource)
		if !decision.Allowed {
			respondErr(c, apperr.Forbidden(string(decision.Reason)))
			return
		}

		c.Next()
	}
}

func respondErr(c *gin.Context, err error) {
	status, body := apperr.StatusAndBody(err)
	c.AbortWithStatusJSON(status, body)
}
