package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/poolpay/poolpay/internal/models"
	"github.com/poolpay/poolpay/internal/storage"
)

// ListTransactions retrieves a group's ledger, ordered by creation time
// ascending. Timestamps are whole seconds, so entries appended within the
// same second tie-break on rowid to preserve append order.
func (s *SQLiteStore) ListTransactions(ctx context.Context, groupID string) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, member_id, type, amount, description, idempotency_key, created_at
		 FROM transactions WHERE group_id = ? ORDER BY created_at ASC, rowid ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		tx := &models.Transaction{}
		var key sql.NullString
		if err := rows.Scan(&tx.ID, &tx.GroupID, &tx.MemberID, &tx.Type,
			&tx.Amount, &tx.Description, &key, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if key.Valid {
			tx.IdempotencyKey = key.String
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

// RunAtomic applies all ops inside one database transaction. SQLite
// serializes writers, so a committed batch is never interleaved with
// another writer's ops; version and status checks turn lost races into
// ErrConflict instead of silent overwrites.
func (s *SQLiteStore) RunAtomic(ctx context.Context, ops []storage.WriteOp) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", storage.ErrAborted, err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		if err := s.applyOp(ctx, tx, op); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", storage.ErrAborted, err)
	}
	return nil
}

func (s *SQLiteStore) applyOp(ctx context.Context, tx *sql.Tx, op storage.WriteOp) error {
	switch o := op.(type) {
	case storage.UpdateRequestStatus:
		res, err := tx.ExecContext(ctx,
			`UPDATE payment_requests SET status = ?, responded_at = ?
			 WHERE id = ? AND status = ?`,
			o.To, o.RespondedAt, o.RequestID, o.From,
		)
		if err != nil {
			return fmt.Errorf("%w: update request status: %v", storage.ErrAborted, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("request %s is no longer %s: %w", o.RequestID, o.From, storage.ErrConflict)
		}

	case storage.AppendTransaction:
		var key any
		if o.Tx.IdempotencyKey != "" {
			key = o.Tx.IdempotencyKey
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (id, group_id, member_id, type, amount, description, idempotency_key, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			o.Tx.ID, o.Tx.GroupID, o.Tx.MemberID, o.Tx.Type,
			o.Tx.Amount.String(), o.Tx.Description, key, o.Tx.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("idempotency key %q: %w", o.Tx.IdempotencyKey, storage.ErrDuplicateTransaction)
			}
			return fmt.Errorf("%w: append transaction: %v", storage.ErrAborted, err)
		}

	case storage.UpdateGroupBalance:
		res, err := tx.ExecContext(ctx,
			`UPDATE groups SET total_pooled = ?, version = version + 1
			 WHERE id = ? AND version = ?`,
			o.NewTotal.String(), o.GroupID, o.Version,
		)
		if err != nil {
			return fmt.Errorf("%w: update group balance: %v", storage.ErrAborted, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("group %s version %d is stale: %w", o.GroupID, o.Version, storage.ErrConflict)
		}

	case storage.IncrementMemberContribution:
		// TEXT money columns cannot be summed in SQL; read-modify-write
		// inside the transaction.
		var current decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT contributed_amount FROM members WHERE id = ?`, o.MemberID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("member %s: %w", o.MemberID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("%w: read member contribution: %v", storage.ErrAborted, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE members SET contributed_amount = ? WHERE id = ?`,
			current.Add(o.Delta).String(), o.MemberID,
		)
		if err != nil {
			return fmt.Errorf("%w: update member contribution: %v", storage.ErrAborted, err)
		}

	default:
		return fmt.Errorf("%w: unknown write op %T", storage.ErrAborted, op)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure. The modernc driver exposes constraint failures through the
// error message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
