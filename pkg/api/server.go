// Package api is Loom's HTTP composition root: a gin.Engine wired against
// every domain service through a Set*Service dependency-injection
// pattern.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/pkg/analytics"
	"github.com/codeready-toolchain/loom/pkg/audit"
	"github.com/codeready-toolchain/loom/pkg/authz"
	"github.com/codeready-toolchain/loom/pkg/crash"
	"github.com/codeready-toolchain/loom/pkg/database"
	"github.com/codeready-toolchain/loom/pkg/flags"
	"github.com/codeready-toolchain/loom/pkg/identity"
	"github.com/codeready-toolchain/loom/pkg/identity/scim"
	"github.com/codeready-toolchain/loom/pkg/metrics"
	"github.com/codeready-toolchain/loom/pkg/secrets"
	"github.com/codeready-toolchain/loom/pkg/svid"
	"github.com/codeready-toolchain/loom/pkg/thread"
	"github.com/codeready-toolchain/loom/pkg/version"
	"github.com/codeready-toolchain/loom/pkg/weaver"
	"github.com/codeready-toolchain/loom/pkg/webhook"
)

// Server owns the gin.Engine and every service the HTTP surface dispatches
// to. Fields are populated through the Set* setters so a caller can wire
// up only the subsystems it has constructed; ValidateWiring then catches
// a missing dependency at boot rather than at first request.
type Server struct {
	router *gin.Engine
	http   *http.Server

	db      *database.Client
	metrics *metrics.Registry

	credentials *identity.CredentialService
	users       *identity.UserService
	orgs        *identity.OrgService
	teams       *identity.TeamService
	invitations *identity.InvitationService
	joinReqs    *identity.JoinRequestService
	lookup      authz.MembershipLookup

	threads thread.Store

	flagEngine  *flags.Engine
	flagKeys    *flags.KeyService
	flagStream  *flags.Broadcaster

	persons *analytics.PersonService

	crashStore *crash.Store
	monitors   *crash.Monitors

	weavers *weaver.Provisioner

	secretStore *secrets.Store
	svidMinter  *svid.Minter
	scimAdapter *scim.Adapter

	webhooks *webhook.Dispatcher
	auditLog *audit.Dispatcher

	logger *slog.Logger
}

// NewServer constructs a Server with its gin.Engine configured but no
// domain services attached yet. Callers wire services through the Set*
// methods, then call RegisterRoutes before Start.
func NewServer(db *database.Client, reg *metrics.Registry) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		db:      db,
		metrics: reg,
		logger:  slog.Default(),
	}
	router.Use(requestID())
	router.Use(accessLog(s.logger))
	router.Use(securityHeaders())
	if reg != nil {
		router.Use(metricsMiddleware(reg))
	}
	return s
}

func (s *Server) SetIdentity(creds *identity.CredentialService, users *identity.UserService, orgs *identity.OrgService, teams *identity.TeamService, invitations *identity.InvitationService, joinReqs *identity.JoinRequestService, lookup authz.MembershipLookup) {
	s.credentials, s.users, s.orgs, s.teams, s.invitations, s.joinReqs, s.lookup = creds, users, orgs, teams, invitations, joinReqs, lookup
}

func (s *Server) SetThreads(store thread.Store) { s.threads = store }

func (s *Server) SetFlags(engine *flags.Engine, keys *flags.KeyService, stream *flags.Broadcaster) {
	s.flagEngine, s.flagKeys, s.flagStream = engine, keys, stream
}

func (s *Server) SetAnalytics(persons *analytics.PersonService) { s.persons = persons }

func (s *Server) SetCrash(store *crash.Store, monitors *crash.Monitors) {
	s.crashStore, s.monitors = store, monitors
}

func (s *Server) SetWeaver(p *weaver.Provisioner) { s.weavers = p }

func (s *Server) SetSecrets(store *secrets.Store, minter *svid.Minter) {
	s.secretStore, s.svidMinter = store, minter
}

func (s *Server) SetSCIM(a *scim.Adapter) { s.scimAdapter = a }

func (s *Server) SetWebhooks(d *webhook.Dispatcher) { s.webhooks = d }

func (s *Server) SetAudit(d *audit.Dispatcher) { s.auditLog = d }

// ValidateWiring reports every domain dependency a registered route group
// needs but that was never set, so a missing Set* call fails at boot
// instead of producing a 500 the first time a request reaches it.
func (s *Server) ValidateWiring() error {
	missing := []string{}
	if s.credentials == nil || s.users == nil || s.orgs == nil || s.lookup == nil {
		missing = append(missing, "identity")
	}
	if s.threads == nil {
		missing = append(missing, "threads")
	}
	if s.flagEngine == nil || s.flagKeys == nil || s.flagStream == nil {
		missing = append(missing, "flags")
	}
	if s.persons == nil {
		missing = append(missing, "analytics")
	}
	if s.crashStore == nil || s.monitors == nil {
		missing = append(missing, "crash")
	}
	if s.weavers == nil {
		missing = append(missing, "weaver")
	}
	if s.secretStore == nil || s.svidMinter == nil {
		missing = append(missing, "secrets/svid")
	}
	if len(missing) > 0 {
		return fmt.Errorf("api: server missing wiring for: %v", missing)
	}
	return nil
}

// RegisterRoutes mounts every route group. Call once, after every Set*
// call the caller intends to make.
func (s *Server) RegisterRoutes() {
	r := s.router

	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	public := api.Group("")
	s.registerPublicRoutes(public)

	authed := api.Group("")
	authed.Use(s.requireSession())
	s.registerThreadRoutes(authed)
	s.registerOrgRoutes(authed)
	s.registerFlagAdminRoutes(authed)
	s.registerCrashRoutes(authed)
	s.registerWeaverRoutes(authed)

	sdk := api.Group("")
	sdk.Use(s.requireSDKKey())
	s.registerFlagSDKRoutes(sdk)
	s.registerAnalyticsRoutes(sdk)

	internal := r.Group("/internal")
	s.registerWeaverAuthRoutes(internal.Group("/weaver-auth"))
	internalSVID := internal.Group("")
	internalSVID.Use(s.requireWeaverSVID())
	s.registerWeaverSecretsRoutes(internalSVID.Group("/weaver-secrets"))
	s.registerWeaverAuditRoutes(internalSVID.Group("/weaver-audit"))

	if s.scimAdapter != nil {
		scimGroup := internal.Group("/scim/v2")
		scimGroup.Use(s.requireSCIMToken())
		s.registerSCIMRoutes(scimGroup)
	}
}

// fireWebhook dispatches evt to every matching registered webhook, fire-
// and-forget style like auditLog.Log: a delivery failure is logged, never
// propagated back to the mutation that produced evt.
func (s *Server) fireWebhook(ctx context.Context, evt webhook.Event) {
	if s.webhooks == nil {
		return
	}
	if _, err := s.webhooks.Dispatch(ctx, evt); err != nil {
		s.logger.Error("webhook dispatch failed", "event", evt.Name, "owner_id", evt.OwnerID, "error", err)
	}
}

func (s *Server) registerPublicRoutes(g *gin.RouterGroup) {
	g.GET("/crons/monitors", s.handleListMonitors)
	g.GET("/ping/:key", s.handleCronPing)
	g.GET("/ping/:key/start", s.handleCronPingStart)
	g.GET("/ping/:key/fail", s.handleCronPingFail)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB())
	status := http.StatusOK
	body := gin.H{
		"status":   "healthy",
		"version":  version.Full(),
		"database": dbHealth,
	}
	if err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}

// Start runs the HTTP server on addr, blocking until it returns (normally
// via Shutdown).
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func respondErr(c *gin.Context, err error) {
	status, body := apperr.StatusAndBody(err)
	c.AbortWithStatusJSON(status, body)
}
