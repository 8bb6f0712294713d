// Package pgutil holds the transaction and error helpers the Postgres-backed
// services share.
package pgutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres error codes the services map to domain errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// InTx runs fn in a transaction and commits if it returns nil.
func InTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func IsUniqueViolation(err error) bool     { return hasCode(err, uniqueViolation) }
func IsForeignKeyViolation(err error) bool { return hasCode(err, foreignKeyViolation) }
func IsCheckViolation(err error) bool      { return hasCode(err, checkViolation) }

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// UUIDArray passes ids as an ANY($n::uuid[]) parameter.
func UUIDArray(ids []uuid.UUID) driver.Valuer {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
