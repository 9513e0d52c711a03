// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface using lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/poolpay/poolpay/internal/models"
	"github.com/poolpay/poolpay/internal/storage"
)

// Ensure PostgresStore implements storage.Store
var _ storage.Store = (*PostgresStore)(nil)

// PostgresStore implements storage.Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// New connects to PostgreSQL with the given DSN and runs migrations.
func New(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateGroup persists a new group.
func (s *PostgresStore) CreateGroup(ctx context.Context, group *models.Group) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, description, total_pooled, status, created_by, created_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		group.ID, group.Name, group.Description, group.TotalPooled.String(),
		group.Status, group.CreatedBy, group.CreatedAt, group.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, total_pooled, status, created_by, created_at, version
		 FROM groups WHERE id = $1`,
		groupID,
	).Scan(&group.ID, &group.Name, &group.Description, &group.TotalPooled,
		&group.Status, &group.CreatedBy, &group.CreatedAt, &group.Version)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// ListGroupsByUser retrieves the groups a user is a member of.
func (s *PostgresStore) ListGroupsByUser(ctx context.Context, userID string) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.description, g.total_pooled, g.status, g.created_by, g.created_at, g.version
		 FROM groups g
		 JOIN members m ON m.group_id = g.id
		 WHERE m.user_id = $1
		 ORDER BY g.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		group := &models.Group{}
		if err := rows.Scan(&group.ID, &group.Name, &group.Description, &group.TotalPooled,
			&group.Status, &group.CreatedBy, &group.CreatedAt, &group.Version); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// CreateMember persists a new membership.
func (s *PostgresStore) CreateMember(ctx context.Context, member *models.Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, group_id, user_id, display_name, upi_id, role, contributed_amount, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		member.ID, member.GroupID, member.UserID, member.DisplayName,
		member.UpiID, member.Role, member.ContributedAmount.String(), member.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s already in group %s: %w",
				member.UserID, member.GroupID, storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// GetMember retrieves a membership by ID.
func (s *PostgresStore) GetMember(ctx context.Context, memberID string) (*models.Member, error) {
	member := &models.Member{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, display_name, upi_id, role, contributed_amount, joined_at
		 FROM members WHERE id = $1`,
		memberID,
	).Scan(&member.ID, &member.GroupID, &member.UserID, &member.DisplayName,
		&member.UpiID, &member.Role, &member.ContributedAmount, &member.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %s: %w", memberID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// GetMemberByUser retrieves a user's membership in a group.
func (s *PostgresStore) GetMemberByUser(ctx context.Context, groupID, userID string) (*models.Member, error) {
	member := &models.Member{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, display_name, upi_id, role, contributed_amount, joined_at
		 FROM members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	).Scan(&member.ID, &member.GroupID, &member.UserID, &member.DisplayName,
		&member.UpiID, &member.Role, &member.ContributedAmount, &member.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s in group %s: %w", userID, groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member by user: %w", err)
	}
	return member, nil
}

// ListMembers retrieves all members of a group, oldest first.
func (s *PostgresStore) ListMembers(ctx context.Context, groupID string) ([]*models.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, user_id, display_name, upi_id, role, contributed_amount, joined_at
		 FROM members WHERE group_id = $1 ORDER BY joined_at ASC, id ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member := &models.Member{}
		if err := rows.Scan(&member.ID, &member.GroupID, &member.UserID, &member.DisplayName,
			&member.UpiID, &member.Role, &member.ContributedAmount, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

const requestColumns = "id, group_id, member_id, amount, description, mode, status, requested_at, responded_at"

// CreateRequest persists a new payment request.
func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.PaymentRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_requests (`+requestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.GroupID, req.MemberID, req.Amount.String(),
		req.Description, req.Mode, req.Status, req.RequestedAt, req.RespondedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment request: %w", err)
	}
	return nil
}

// GetRequest retrieves a payment request by ID.
func (s *PostgresStore) GetRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	req := &models.PaymentRequest{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM payment_requests WHERE id = $1`,
		requestID,
	).Scan(&req.ID, &req.GroupID, &req.MemberID, &req.Amount,
		&req.Description, &req.Mode, &req.Status, &req.RequestedAt, &req.RespondedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment request %s: %w", requestID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return req, nil
}

// ListRequestsByGroup retrieves a group's requests, newest first.
func (s *PostgresStore) ListRequestsByGroup(ctx context.Context, groupID string) ([]*models.PaymentRequest, error) {
	return s.listRequests(ctx,
		`SELECT `+requestColumns+` FROM payment_requests
		 WHERE group_id = $1 ORDER BY requested_at DESC, id ASC`,
		groupID,
	)
}

// ListRequestsByMember retrieves the requests addressed to a member,
// newest first.
func (s *PostgresStore) ListRequestsByMember(ctx context.Context, memberID string) ([]*models.PaymentRequest, error) {
	return s.listRequests(ctx,
		`SELECT `+requestColumns+` FROM payment_requests
		 WHERE member_id = $1 ORDER BY requested_at DESC, id ASC`,
		memberID,
	)
}

// ListPendingBefore retrieves pending requests requested at or before the
// cutoff, for expiry sweeps.
func (s *PostgresStore) ListPendingBefore(ctx context.Context, cutoff int64) ([]*models.PaymentRequest, error) {
	return s.listRequests(ctx,
		`SELECT `+requestColumns+` FROM payment_requests
		 WHERE status = $1 AND requested_at <= $2 ORDER BY requested_at ASC, id ASC`,
		models.RequestPending, cutoff,
	)
}

func (s *PostgresStore) listRequests(ctx context.Context, query string, args ...any) ([]*models.PaymentRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	defer rows.Close()

	var reqs []*models.PaymentRequest
	for rows.Next() {
		req := &models.PaymentRequest{}
		if err := rows.Scan(&req.ID, &req.GroupID, &req.MemberID, &req.Amount,
			&req.Description, &req.Mode, &req.Status, &req.RequestedAt, &req.RespondedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment requests: %w", err)
	}
	return reqs, nil
}

// ListTransactions retrieves a group's ledger, ordered by creation time
// ascending. Timestamps are whole seconds, so entries appended within the
// same second tie-break on the insert sequence to preserve append order.
func (s *PostgresStore) ListTransactions(ctx context.Context, groupID string) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, member_id, type, amount, description, idempotency_key, created_at
		 FROM transactions WHERE group_id = $1 ORDER BY created_at ASC, seq ASC`,
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

// RunAtomic applies all ops inside one database transaction. Group balance
// and request status writes are compare-and-swaps; member contribution
// reads lock the row FOR UPDATE to keep concurrent accepts serialized.
func (s *PostgresStore) RunAtomic(ctx context.Context, ops []storage.WriteOp) error {
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

func (s *PostgresStore) applyOp(ctx context.Context, tx *sql.Tx, op storage.WriteOp) error {
	switch o := op.(type) {
	case storage.UpdateRequestStatus:
		res, err := tx.ExecContext(ctx,
			`UPDATE payment_requests SET status = $1, responded_at = $2
			 WHERE id = $3 AND status = $4`,
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
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
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
			`UPDATE groups SET total_pooled = $1, version = version + 1
			 WHERE id = $2 AND version = $3`,
			o.NewTotal.String(), o.GroupID, o.Version,
		)
		if err != nil {
			return fmt.Errorf("%w: update group balance: %v", storage.ErrAborted, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("group %s version %d is stale: %w", o.GroupID, o.Version, storage.ErrConflict)
		}

	case storage.IncrementMemberContribution:
		var current decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT contributed_amount FROM members WHERE id = $1 FOR UPDATE`, o.MemberID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("member %s: %w", o.MemberID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("%w: read member contribution: %v", storage.ErrAborted, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE members SET contributed_amount = $1 WHERE id = $2`,
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

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (error code 23505).
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
