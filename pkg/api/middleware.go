package api

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/abac"
	"github.com/codeready-toolchain/loom/pkg/authz"
	"github.com/codeready-toolchain/loom/pkg/flags"
	"github.com/codeready-toolchain/loom/pkg/metrics"
)

const environmentHeader = "X-Loom-Environment"

// sdkKeyEnvironmentKey/sdkKeyKey are the gin context keys requireSDKKey
// stashes the authenticated SDK key and its environment under, for the
// flag-stream and analytics-ingestion handlers to read back.
const (
	sdkKeyEnvironmentKey = "loom.sdk.environment"
	sdkKeyKey            = "loom.sdk.key"
)

const requestIDHeader = "X-Request-ID"

// requestID assigns every request a stable id, reusing an inbound header
// value when the caller (or an upstream proxy) already supplied one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// accessLog emits one structured log line per request, in the
// slog idiom the rest of the module (pkg/audit, pkg/webhook,
// pkg/weaver) uses throughout.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// securityHeaders sets baseline response headers for a dashboard-facing
// API: this surface serves a browser-facing dashboard in addition to
// programmatic clients.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

func metricsMiddleware(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		reg.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// requireSession authenticates a bearer session or API-key token, loads
// the subject's ABAC attributes, and stashes them on the context via
// authz.SetSubject for downstream authz.Authorize middleware and handlers.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			respondErr(c, apperr.Unauthorized("missing bearer token"))
			return
		}

		user, origin, err := s.authenticateBearer(c, token)
		if err != nil {
			respondErr(c, err)
			return
		}

		subject, err := authz.BuildSubjectAttrs(c.Request.Context(), s.lookup, user, origin)
		if err != nil {
			respondErr(c, apperr.Internal("load subject attributes", err))
			return
		}
		authz.SetSubject(c, subject)
		c.Next()
	}
}

// authenticateBearer tries the token as a session first, falling back to
// an API key: both live in the same opaque bearer-token namespace, and a
// caller has no way to tell the server which kind it holds.
func (s *Server) authenticateBearer(c *gin.Context, token string) (ids.UserID, abac.SessionOrigin, error) {
	ctx := c.Request.Context()

	user, err := s.credentials.VerifySession(ctx, token)
	if err == nil {
		return user, abac.SessionOriginWebSession, nil
	}

	user, err = s.credentials.VerifyAPIKey(ctx, token)
	if err == nil {
		return user, abac.SessionOriginAPIKey, nil
	}

	return "", abac.SessionOriginUnknown, apperr.Unauthorized("invalid or expired credential")
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

// requireSDKKey authenticates the flags/analytics ingestion surface: a
// long-lived per-environment key, never a user session.
func (s *Server) requireSDKKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			respondErr(c, apperr.Unauthorized("missing SDK key"))
			return
		}
		env := ids.EnvironmentID(c.GetHeader(environmentHeader))
		if env == "" {
			respondErr(c, apperr.InvalidInput("environment", "X-Loom-Environment header is required"))
			return
		}

		key, err := s.flagKeys.Authenticate(c.Request.Context(), env, token)
		if err != nil {
			respondErr(c, apperr.Unauthorized("invalid SDK key"))
			return
		}

		c.Set(sdkKeyEnvironmentKey, env)
		c.Set(sdkKeyKey, key)
		c.Next()
	}
}

func sdkEnvironmentFrom(c *gin.Context) ids.EnvironmentID {
	env, _ := c.Get(sdkKeyEnvironmentKey)
	id, _ := env.(ids.EnvironmentID)
	return id
}

func sdkKeyFrom(c *gin.Context) flags.SDKKey {
	v, _ := c.Get(sdkKeyKey)
	key, _ := v.(flags.SDKKey)
	return key
}

// requireWeaverSVID authenticates the internal weaver-secrets/weaver-audit
// surface: calls that originate from inside a weaver sandbox, never from a
// browser or the CLI, carrying the short-lived SVID minted at provision
// time.
func (s *Server) requireWeaverSVID() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			respondErr(c, apperr.Unauthorized("missing weaver SVID"))
			return
		}
		claims, err := s.svidMinter.VerifyWeaverSVID(token)
		if err != nil {
			respondErr(c, apperr.Unauthorized("invalid weaver SVID"))
			return
		}
		c.Set("loom.weaver.claims", claims)
		c.Next()
	}
}

// requireSCIMToken authenticates the identity-sync surface a directory
// provider (Okta, Azure AD) pushes SCIM payloads to: a bearer token
// minted for one org via svid.Minter.MintSCIMToken, never a user session.
func (s *Server) requireSCIMToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			respondErr(c, apperr.Unauthorized("missing SCIM token"))
			return
		}
		claims, err := s.svidMinter.VerifySCIMToken(token)
		if err != nil {
			respondErr(c, apperr.Unauthorized("invalid SCIM token"))
			return
		}
		c.Set("loom.scim.claims", claims)
		c.Next()
	}
}
