// Loom server - provides the HTTP API for identity, threads, flags,
// analytics, crash reporting, weaver sandboxes, and secrets custody.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/analytics"
	"github.com/codeready-toolchain/loom/pkg/api"
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
	"github.com/codeready-toolchain/loom/pkg/thread/syncstore"
	"github.com/codeready-toolchain/loom/pkg/weaver"
	"github.com/codeready-toolchain/loom/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	log.Printf("Starting Loom server")
	log.Printf("HTTP Port: %s", httpPort)

	ctx := context.Background()

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	log.Println("Connected to PostgreSQL database")

	// --- identity ---
	orgs := identity.NewOrgService(dbClient.Client)
	users := identity.NewUserService(dbClient.Client, orgs)
	teams := identity.NewTeamService(dbClient.Client)
	invitations := identity.NewInvitationService(dbClient.Client, orgs)
	joinReqs := identity.NewJoinRequestService(dbClient.Client)
	credentials := identity.NewCredentialService(dbClient.Client)
	membershipLookup := authz.NewEntMembershipLookup(dbClient.Client)

	// --- threads ---
	threadStore := syncstore.New(dbClient.Client)

	// --- feature flags ---
	flagBroadcaster := flags.NewBroadcaster(200)
	flagEngine := flags.NewEngine(dbClient.Client, flagBroadcaster)
	flagKeys := flags.NewKeyService(dbClient.Client)

	// --- analytics ---
	personService := analytics.NewPersonService(dbClient.Client, nil)

	// --- crash reporting / cron monitors ---
	crashStore := crash.NewStore(dbClient.Client)
	monitors := crash.NewMonitors(dbClient.Client)

	// --- weaver sandboxes ---
	k8sConfig, err := loadKubeConfig()
	var provisioner *weaver.Provisioner
	if err != nil {
		log.Printf("Warning: weaver sandboxes disabled, no Kubernetes config: %v", err)
	} else {
		clientset, err := kubernetes.NewForConfig(k8sConfig)
		if err != nil {
			log.Fatalf("Failed to build Kubernetes clientset: %v", err)
		}
		k8sClient := weaver.NewClientsetK8sClient(clientset, k8sConfig)
		provisioner = weaver.NewProvisioner(k8sClient, weaver.Config{
			Namespace:           getEnv("WEAVER_NAMESPACE", "loom-weavers"),
			MaxConcurrent:       200,
			ServerURL:           getEnv("LOOM_SERVER_URL", "http://loom-server.loom.svc:8080"),
			SecretsServerURL:    getEnv("LOOM_SERVER_URL", "http://loom-server.loom.svc:8080") + "/internal/weaver-secrets",
			AuditEnabled:        getEnv("WEAVER_AUDIT_ENABLED", "true") == "true",
			AuditSidecarImage:   getEnv("WEAVER_AUDIT_SIDECAR_IMAGE", "ghcr.io/codeready-toolchain/loom-audit-sidecar:latest"),
			CleanupIntervalSecs: 60,
		})
		if err := provisioner.ValidateNamespace(ctx); err != nil {
			log.Fatalf("weaver namespace validation failed: %v", err)
		}
		cleanup := weaver.NewCleanupScheduler(provisioner, 60)
		if err := cleanup.Start(ctx); err != nil {
			log.Printf("Warning: weaver cleanup scheduler failed to start: %v", err)
		}
	}

	// --- secrets custody ---
	kekValue := os.Getenv("LOOM_KEK")
	var secretStore *secrets.Store
	if kekValue == "" {
		log.Printf("Warning: LOOM_KEK not set, secrets custody disabled")
	} else {
		kek, err := secrets.LoadKEK(kekValue)
		if err != nil {
			log.Fatalf("Failed to load KEK: %v", err)
		}
		secretStore = secrets.NewStore(dbClient.Client, kek)
	}

	// --- weaver/SCIM workload identity ---
	svidSecret := getEnv("LOOM_SVID_KEY", "")
	if svidSecret == "" {
		log.Fatalf("LOOM_SVID_KEY must be set")
	}
	svidMinter := svid.NewMinter(ids.NewSecret(svidSecret))
	scimAdapter := scim.NewAdapter(users, orgs)

	// --- webhooks ---
	webhookDispatcher := webhook.NewDispatcher(dbClient.Client, getEnv("LOOM_SERVER_URL", "http://localhost:"+httpPort))
	retrySweeper := webhook.NewRetrySweeper(webhookDispatcher, dbClient.Client, 30)
	if err := retrySweeper.Start(ctx); err != nil {
		log.Printf("Warning: webhook retry sweeper failed to start: %v", err)
	}

	// --- audit log ---
	auditDispatcher := audit.NewDispatcher(audit.DefaultDispatcherConfig())
	auditDBPath := getEnv("LOOM_AUDIT_DB_PATH", filepath.Join(*configDir, "audit.db"))
	if sink, err := audit.OpenSQLiteSink(auditDBPath); err != nil {
		log.Printf("Warning: audit SQLite sink disabled: %v", err)
	} else {
		auditDispatcher.AddSink(sink)
	}
	auditDispatcher.Start(ctx)

	// --- metrics ---
	registry := metrics.NewRegistry()

	server := api.NewServer(dbClient, registry)
	server.SetIdentity(credentials, users, orgs, teams, invitations, joinReqs, membershipLookup)
	server.SetThreads(threadStore)
	server.SetFlags(flagEngine, flagKeys, flagBroadcaster)
	server.SetAnalytics(personService)
	server.SetCrash(crashStore, monitors)
	if provisioner != nil {
		server.SetWeaver(provisioner)
	}
	if secretStore != nil {
		server.SetSecrets(secretStore, svidMinter)
	}
	server.SetSCIM(scimAdapter)
	server.SetWebhooks(webhookDispatcher)
	server.SetAudit(auditDispatcher)

	if err := server.ValidateWiring(); err != nil {
		log.Fatalf("Server wiring incomplete: %v", err)
	}
	server.RegisterRoutes()

	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		if err := server.Start(":" + httpPort); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	auditDispatcher.Stop()
	retrySweeper.Stop()
}

// loadKubeConfig prefers in-cluster credentials (the normal deployment
// shape) and falls back to KUBECONFIG for local development against a
// kind/minikube cluster.
func loadKubeConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	kubeconfig := getEnv("KUBECONFIG", filepath.Join(os.Getenv("HOME"), ".kube", "config"))
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}
