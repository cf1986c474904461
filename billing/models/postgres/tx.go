package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vitalpath/billing-app/billing/models"
)

// Transaction returns a models.TxFunc backed by db. The callback receives a
// Repository scoped to the transaction; the transaction commits when the
// callback returns nil and rolls back otherwise.
func Transaction(db *sql.DB) models.TxFunc {
	return func(ctx context.Context, fn func(models.Repository) error) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(NewRepositoryTx(tx)); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
			}
			return err
		}

		return tx.Commit()
	}
}
