package database

import (
	"context"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/loom/ent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestClient creates a test database client inline (avoiding import cycle with test/database)
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	// Get connection string
	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Open connection with driver
	drv, err := sql.Open(dialect.Postgres, connStr)
	require.NoError(t, err)

	// Configure connection pool for tests
	db := drv.DB()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	// Create Ent client
	entClient := ent.NewClient(ent.Driver(drv))

	// Run migrations (auto-migration for tests)
	err = entClient.Schema.Create(ctx)
	require.NoError(t, err)

	// Create the title trigram index
	err = CreateGINIndexes(ctx, drv)
	require.NoError(t, err)

	// Create the slug partial unique index
	err = CreatePartialUniqueIndexes(ctx, drv)
	require.NoError(t, err)

	// Wrap in our client type
	client := NewClientFromEnt(entClient, db)

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// Test basic connectivity
	err := client.DB().PingContext(ctx)
	require.NoError(t, err)

	// Test health check
	health, err := Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxOpenConns, 0)
}

func TestThreadTitleTrigramIndex(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	thread1, err := client.Thread.Create().
		SetID("T-1").
		SetVersion(1).
		SetOwnerUserID("user-1").
		SetWorkspaceRoot("/workspace/one").
		SetCwd("/workspace/one").
		SetLoomVersion("1.0.0").
		SetProvider("anthropic").
		SetModel("claude").
		SetTitle("fix the kubernetes pod scheduler").
		SetVisibility("organization").
		SetLastActivityAt(now).
		Save(ctx)
	require.NoError(t, err)

	thread2, err := client.Thread.Create().
		SetID("T-2").
		SetVersion(1).
		SetOwnerUserID("user-1").
		SetWorkspaceRoot("/workspace/two").
		SetCwd("/workspace/two").
		SetLoomVersion("1.0.0").
		SetProvider("anthropic").
		SetModel("claude").
		SetTitle("investigate high memory usage").
		SetVisibility("organization").
		SetLastActivityAt(now).
		Save(ctx)
	require.NoError(t, err)

	// The index accelerates ILIKE/substring search, which is what
	// thread/syncstore's title fallback issues. Confirm the underlying
	// query still returns the expected rows with the index in place.
	rows, err := client.DB().QueryContext(ctx,
		`SELECT id FROM threads WHERE title ILIKE '%' || $1 || '%'`, "kubernetes")
	require.NoError(t, err)
	defer rows.Close()

	var results []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		results = append(results, id)
	}
	assert.Equal(t, []string{thread1.ID}, results)

	rows2, err := client.DB().QueryContext(ctx,
		`SELECT id FROM threads WHERE title ILIKE '%' || $1 || '%'`, "memory")
	require.NoError(t, err)
	defer rows2.Close()

	var results2 []string
	for rows2.Next() {
		var id string
		require.NoError(t, rows2.Scan(&id))
		results2 = append(results2, id)
	}
	assert.Equal(t, []string{thread2.ID}, results2)
}

func TestOrganizationSlugReusableAfterSoftDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	org1, err := client.Organization.Create().
		SetID("org-1").
		SetName("Acme").
		SetSlug("acme").
		SetVisibility("private").
		Save(ctx)
	require.NoError(t, err)

	// Duplicate slug against a live org must fail the partial unique index.
	_, err = client.Organization.Create().
		SetID("org-2").
		SetName("Acme Clone").
		SetSlug("acme").
		SetVisibility("private").
		Save(ctx)
	require.Error(t, err)

	// Soft-delete org1; its slug becomes reusable immediately.
	deletedAt := time.Now()
	_, err = client.Organization.UpdateOne(org1).SetDeletedAt(deletedAt).Save(ctx)
	require.NoError(t, err)

	org2, err := client.Organization.Create().
		SetID("org-2").
		SetName("Acme Reborn").
		SetSlug("acme").
		SetVisibility("private").
		Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme", org2.Slug)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "test",
				Database:     "test",
				SSLMode:      "disable",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
			wantErr: false,
		},
		{
			name: "missing password",
			cfg: Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "",
				Database:     "test",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
			wantErr: true,
		},
		{
			name: "idle conns exceed max conns",
			cfg: Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "test",
				Database:     "test",
				MaxOpenConns: 5,
				MaxIdleConns: 10,
			},
			wantErr: true,
		},
		{
			name: "zero max open conns",
			cfg: Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "test",
				Database:     "test",
				MaxOpenConns: 0,
				MaxIdleConns: 0,
			},
			wantErr: true,
		},
		{
			name: "negative idle conns",
			cfg: Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "test",
				Database:     "test",
				MaxOpenConns: 10,
				MaxIdleConns: -1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
