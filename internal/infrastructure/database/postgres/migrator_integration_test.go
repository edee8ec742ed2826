//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres"
	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// openTestDB connects to INTEGRATION_TEST_DB_URL through lib/pq, or starts
// a throwaway PostgreSQL container and connects through pgx.
func openTestDB(t *testing.T) *postgres.Connection {
	t.Helper()
	driver, dsn := postgres.DriverPQ, os.Getenv("INTEGRATION_TEST_DB_URL")
	if dsn == "" {
		driver, dsn = postgres.DriverPGX, startPostgres(t)
	}
	db, err := sql.Open(driver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.NewConnectionWithDB(db, logging.NewNopLogger())
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "doctalk",
				"POSTGRES_PASSWORD": "doctalk",
				"POSTGRES_DB":       "doctalk_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("cannot start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://doctalk:doctalk@%s:%s/doctalk_test?sslmode=disable", host, port.Port())
}

func TestMigrator_UpDownRoundTrip(t *testing.T) {
	conn := openTestDB(t)
	m := postgres.NewMigrator(conn, "", logging.NewNopLogger())

	require.NoError(t, m.Up())
	require.NoError(t, m.Up(), "no pending migrations is not an error")

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, m.Down(1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Up())
}

func TestRepositories_RoundTrip(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, postgres.NewMigrator(conn, "", nil).Up())
	ctx := context.Background()

	glossaries := repositories.NewGlossaryRepository(conn, nil)
	stats, err := glossaries.Import(ctx, &clinical.Glossary{
		Terms: []clinical.Term{
			{ID: 1, Canonical: "heart failure", Category: clinical.CategoryDiagnosis},
			{ID: 2, Canonical: "metformin", Category: clinical.CategoryMedication},
		},
		Aliases:  []clinical.Alias{{Text: "cardiac failure", TermID: 1}},
		Acronyms: []clinical.Acronym{{Acronym: "HF", Expansions: []string{"heart failure", "high frequency"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, repositories.ImportStats{Terms: 2, Aliases: 1, Acronyms: 1}, stats)

	g, err := glossaries.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, g.Terms, 2)
	require.Len(t, g.Acronyms, 1)
	assert.Equal(t, []string{"heart failure", "high frequency"}, g.Acronyms[0].Expansions)

	memory := repositories.NewAcronymRepository(conn)
	require.NoError(t, memory.Put(ctx, "doc-1", map[string]string{"hf": "heart failure"}))
	got, err := memory.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"HF": "heart failure"}, got)
}
