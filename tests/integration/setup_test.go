package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
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

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func runMigrations(db *sql.DB) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		filePath := filepath.Join(migrationDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

var emailSeq int64

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, atomic.AddInt64(&emailSeq, 1))
}

func createTestUser(t *testing.T, db *sql.DB, role models.Role) *models.User {
	t.Helper()

	user, err := store.CreateUser(context.Background(), db, store.CreateUserRequest{
		Email:       uniqueEmail(strings.ToLower(string(role))),
		PhoneNumber: "+1 (555) 000-1234",
		FullName:    "Test " + string(role),
		Password:    "password123",
		Role:        role,
		BcryptCost:  4,
	})
	if err != nil {
		t.Fatalf("Create %s: %v", role, err)
	}
	return user
}

func createTestItem(t *testing.T, db *sql.DB, sellerID int64, name string, price int64, stock int) *models.Item {
	t.Helper()

	item, err := store.CreateItem(context.Background(), db, store.CreateItemRequest{
		SellerID:  sellerID,
		Name:      name,
		Condition: models.ConditionNew,
		Price:     decimal.NewFromInt(price),
		Stock:     stock,
		Status:    models.ItemStatusPublished,
	})
	if err != nil {
		t.Fatalf("Create item %q: %v", name, err)
	}
	return item
}

func createTestAddress(t *testing.T, db *sql.DB, userID int64) *models.Address {
	t.Helper()

	addr, err := store.CreateAddress(context.Background(), db, userID, "1 Main St", "Springfield", "IL", "US")
	if err != nil {
		t.Fatalf("Create address: %v", err)
	}
	return addr
}
