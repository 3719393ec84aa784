package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

const sqlStateUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation.
// Postgres errors are matched by SQLSTATE and, when constraintName is set, by
// constraint name. Other drivers (sqlite in tests) fall back to the message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if state := pkgerrors.SQLState(err); state != "" {
		if state != sqlStateUniqueViolation {
			return false
		}
		return constraintName == "" || strings.Contains(err.Error(), constraintName) || constraintMatches(err, constraintName)
	}

	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "unique constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, strings.ToLower(constraintName))
}

func constraintMatches(err error, constraintName string) bool {
	return pkgerrors.Dump(err).PGConstraint == constraintName
}
