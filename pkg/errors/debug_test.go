package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpExtractsPgxFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23514",
		ConstraintName: "products_stock_non_negative",
		TableName:      "products",
		Message:        "new row violates check constraint",
	}
	err := Wrap(CodeDependency, fmt.Errorf("decrement: %w", pgErr), "decrement stock")

	d := Dump(err)
	assert.Equal(t, CodeDependency, d.Code)
	assert.Equal(t, "23514", d.PGCode)
	assert.Equal(t, "products_stock_non_negative", d.PGConstraint)
	assert.Equal(t, "products", d.PGTable)
	require.Len(t, d.Chain, 3)
}

func TestSQLStateFromLibPQ(t *testing.T) {
	err := fmt.Errorf("insert cart: %w", &pq.Error{Code: "23505", Constraint: "ux_carts_user_seller"})
	assert.Equal(t, "23505", SQLState(err))
	assert.Equal(t, "", SQLState(fmt.Errorf("plain")))
}

func TestDumpCarriesReason(t *testing.T) {
	err := NewReason(CodeStateConflict, ReasonEmptyCart, "cart is empty", nil)
	d := Dump(err)
	assert.Equal(t, ReasonEmptyCart, d.Reason)
	assert.Empty(t, d.PGCode)
}

func TestDumpLogFieldsOmitsEmptyDriverFields(t *testing.T) {
	fields := Dump(New(CodeNotFound, "order missing")).LogFields()
	if fields["error_code"] != "NOT_FOUND" {
		t.Fatalf("unexpected code field %v", fields["error_code"])
	}
	for _, key := range []string{"pg_code", "pg_table", "error_chain"} {
		if _, ok := fields[key]; ok {
			t.Fatalf("did not expect %s in %v", key, fields)
		}
	}

	wrapped := Wrap(CodeDependency, &pgconn.PgError{Code: "40001", TableName: "orders"}, "commit")
	fields = Dump(wrapped).LogFields()
	if fields["pg_code"] != "40001" || fields["pg_table"] != "orders" {
		t.Fatalf("expected postgres fields, got %v", fields)
	}
	if _, ok := fields["error_chain"]; !ok {
		t.Fatal("expected chain for wrapped error")
	}
}
