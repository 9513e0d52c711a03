// Package sqlite provides a SQLite-backed implementation of the
// storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/poolpay/poolpay/internal/models"
	"github.com/poolpay/poolpay/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateGroup persists a new group.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, description, total_pooled, status, created_by, created_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.Description, group.TotalPooled.String(),
		group.Status, group.CreatedBy, group.CreatedAt, group.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, total_pooled, status, created_by, created_at, version
		 FROM groups WHERE id = ?`,
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
func (s *SQLiteStore) ListGroupsByUser(ctx context.Context, userID string) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.description, g.total_pooled, g.status, g.created_by, g.created_at, g.version
		 FROM groups g
		 JOIN members m ON m.group_id = g.id
		 WHERE m.user_id = ?
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
func (s *SQLiteStore) CreateMember(ctx context.Context, member *models.Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, group_id, user_id, display_name, upi_id, role, contributed_amount, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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
func (s *SQLiteStore) GetMember(ctx context.Context, memberID string) (*models.Member, error) {
	member := &models.Member{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, display_name, upi_id, role, contributed_amount, joined_at
		 FROM members WHERE id = ?`,
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
func (s *SQLiteStore) GetMemberByUser(ctx context.Context, groupID, userID string) (*models.Member, error) {
	member := &models.Member{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, display_name, upi_id, role, contributed_amount, joined_at
		 FROM members WHERE group_id = ? AND user_id = ?`,
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
func (s *SQLiteStore) ListMembers(ctx context.Context, groupID string) ([]*models.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, user_id, display_name, upi_id, role, contributed_amount, joined_at
		 FROM members WHERE group_id = ? ORDER BY joined_at ASC, id ASC`,
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
