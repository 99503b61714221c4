package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/dukerupert/village/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// registerHousehold creates a household whose admin has the given email and
// returns the user and household ids.
func registerHousehold(t *testing.T, db *sql.DB, email string) (int64, int64) {
	t.Helper()
	user, household, err := NewHouseholdStore(db).Register(context.Background(), "Test Household", email, "Test User", "hash")
	if err != nil {
		t.Fatalf("register household: %v", err)
	}
	return user.ID, household.ID
}

// addMember joins a new user to the household and returns the user id.
func addMember(t *testing.T, db *sql.DB, householdID int64, name string) int64 {
	t.Helper()
	email := fmt.Sprintf("%s@example.com", name)
	user, err := NewHouseholdStore(db).Join(context.Background(), householdID, email, name, "hash")
	if err != nil {
		t.Fatalf("join household: %v", err)
	}
	return user.ID
}
