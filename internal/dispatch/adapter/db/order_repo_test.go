package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// The create retry only fires on a duplicate order number; everything else
// must surface to the caller unchanged.
func TestUniqueViolationDetection(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
	if !isUniqueViolation(fmt.Errorf("failed to insert order: %w", dup)) {
		t.Error("wrapped duplicate-key error not recognized")
	}
	if isUniqueViolation(errors.New("connection reset by peer")) {
		t.Error("unrelated error treated as duplicate key")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign-key violation treated as duplicate key")
	}
	if isUniqueViolation(nil) {
		t.Error("nil error treated as duplicate key")
	}
}
