package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/poolpay/poolpay/internal/models"
	"github.com/poolpay/poolpay/internal/storage"
)

const requestColumns = "id, group_id, member_id, amount, description, mode, status, requested_at, responded_at"

// CreateRequest persists a new payment request.
func (s *SQLiteStore) CreateRequest(ctx context.Context, req *models.PaymentRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.GroupID, req.MemberID, req.Amount.String(),
		req.Description, req.Mode, req.Status, req.RequestedAt, req.RespondedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment request: %w", err)
	}
	return nil
}

// GetRequest retrieves a payment request by ID.
func (s *SQLiteStore) GetRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM payment_requests WHERE id = ?`,
		requestID,
	)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment request %s: %w", requestID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return req, nil
}

// ListRequestsByGroup retrieves a group's requests, newest first.
func (s *SQLiteStore) ListRequestsByGroup(ctx context.Context, groupID string) ([]*models.PaymentRequest, error) {
	return s.listRequests(ctx,
		`SELECT `+requestColumns+` FROM payment_requests
		 WHERE group_id = ? ORDER BY requested_at DESC, id ASC`,
		groupID,
	)
}

// ListRequestsByMember retrieves the requests addressed to a member,
// newest first.
func (s *SQLiteStore) ListRequestsByMember(ctx context.Context, memberID string) ([]*models.PaymentRequest, error) {
	return s.listRequests(ctx,
		`SELECT `+requestColumns+` FROM payment_requests
		 WHERE member_id = ? ORDER BY requested_at DESC, id ASC`,
		memberID,
	)
}

// ListPendingBefore retrieves pending requests requested at or before the
// cutoff, for expiry sweeps.
func (s *SQLiteStore) ListPendingBefore(ctx context.Context, cutoff int64) ([]*models.PaymentRequest, error) {
	return s.listRequests(ctx,
		`SELECT `+requestColumns+` FROM payment_requests
		 WHERE status = ? AND requested_at <= ? ORDER BY requested_at ASC, id ASC`,
		models.RequestPending, cutoff,
	)
}

func (s *SQLiteStore) listRequests(ctx context.Context, query string, args ...any) ([]*models.PaymentRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	defer rows.Close()

	var reqs []*models.PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment requests: %w", err)
	}
	return reqs, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.PaymentRequest, error) {
	req := &models.PaymentRequest{}
	err := row.Scan(&req.ID, &req.GroupID, &req.MemberID, &req.Amount,
		&req.Description, &req.Mode, &req.Status, &req.RequestedAt, &req.RespondedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}
