//go:build integration

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/irrigation/config"
	"github.com/liamcoop/irrigation/internal/app"
	"github.com/liamcoop/irrigation/irrigation"
)

// setupDatabase starts PostgreSQL and migrates it with the same files
// cmd/migrate applies
func setupDatabase(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	m, err := migrate.New("file://../../migrations", connStr)
	if err != nil {
		t.Fatalf("Failed to create migration instance: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	m.Close()

	return connStr, func() { postgres.Terminate(ctx) }
}

func postgresApp(t *testing.T, url string) *app.App {
	t.Helper()
	cfg := config.Default()
	cfg.Rules.Store = config.StorePostgres
	cfg.Rules.DatabaseURL = url
	cfg.Model.SampleCount = 400
	cfg.Model.Forest.Trees = 10

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New() failed: %v", err)
	}
	return a
}

// TestEndToEnd_RuleEditSurvivesRestart adds a rule over HTTP, restarts the
// service on the same database and checks the rule still decides
func TestEndToEnd_RuleEditSurvivesRestart(t *testing.T) {
	url, cleanup := setupDatabase(t)
	defer cleanup()

	first := postgresApp(t, url)
	s := NewServer(first)

	rec := do(t, s, "GET", "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, "POST", "/api/v1/rulesets/risk/rules/", map[string]any{
		"id": "risk-heatwave", "name": "heatwave", "expression": "temp > 45.0", "verdict": "High", "priority": 5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule = %d: %s", rec.Code, rec.Body.String())
	}
	first.Close()

	second := postgresApp(t, url)
	defer second.Close()
	s = NewServer(second)

	list := decode[RulesListResponse](t, do(t, s, "GET", "/api/v1/rulesets/risk/rules/", nil))
	if len(list.Rules) != 4 {
		t.Fatalf("risk set has %d rules after restart, want 4 (seeded once plus the new one)", len(list.Rules))
	}

	res := decode[DecideResponse](t, do(t, s, "POST", "/api/v1/decide", map[string]any{"soil": 80, "temp": 48})).Results[0]
	if res.Verdict != irrigation.VerdictHigh || res.RuleID != "risk-heatwave" {
		t.Errorf("decision = %s by %s, want High by risk-heatwave", res.Verdict, res.RuleID)
	}
}

func TestEndToEnd_BatchWithPostgresRules(t *testing.T) {
	url, cleanup := setupDatabase(t)
	defer cleanup()

	a := postgresApp(t, url)
	defer a.Close()
	s := NewServer(a)

	rec := do(t, s, "DELETE", "/api/v1/rulesets/risk/rules/risk-high", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d: %s", rec.Code, rec.Body.String())
	}

	res := decode[DecideResponse](t, do(t, s, "POST", "/api/v1/decide", map[string]any{"soil": 10, "temp": 45})).Results[0]
	if res.Verdict != irrigation.VerdictMedium {
		t.Errorf("verdict without risk-high = %s, want Medium", res.Verdict)
	}
}
