package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/shared/postgres"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{
	"u.id::text",
	"COALESCE(u.email, '')",
	"COALESCE(u.first_name, '')",
	"COALESCE(u.last_name, '')",
	"u.role",
	"u.is_active",
}

// DirectoryRepository reads staff, clients and supervision links from the practice database
type DirectoryRepository struct {
	db postgres.Querier
}

// NewDirectoryRepository creates a directory over a pool or transaction
func NewDirectoryRepository(db postgres.Querier) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// UsersByRoles returns active users holding any of the roles
func (r *DirectoryRepository) UsersByRoles(ctx context.Context, roles []string) ([]domain.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query := psql.Select(userColumns...).
		From("users u").
		Where(sq.Eq{"u.role": roles, "u.is_active": true}).
		OrderBy("u.id")
	return r.queryUsers(ctx, query)
}

// UsersByIDs returns the active users among ids
func (r *DirectoryRepository) UsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := psql.Select(userColumns...).
		From("users u").
		Where(sq.Eq{"u.id::text": ids, "u.is_active": true}).
		OrderBy("u.id")
	return r.queryUsers(ctx, query)
}

// ActiveSupervisorOf returns the active supervisor linked to the therapist
// through an active assignment, or ErrNotFound
func (r *DirectoryRepository) ActiveSupervisorOf(ctx context.Context, therapistID string) (*domain.User, error) {
	query := psql.Select(userColumns...).
		From("supervision_assignments sa").
		Join("users u ON u.id = sa.supervisor_id").
		Where(sq.Eq{"sa.therapist_id::text": therapistID, "sa.is_active": true, "u.is_active": true}).
		OrderBy("u.id").
		Limit(1)

	users, err := r.queryUsers(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, domain.ErrNotFound
	}
	return &users[0], nil
}

// ClientByID returns the client or ErrNotFound
func (r *DirectoryRepository) ClientByID(ctx context.Context, id string) (*domain.Client, error) {
	sql, args, err := psql.Select(
		"c.id::text",
		"COALESCE(c.email, '')",
		"COALESCE(c.first_name, '')",
		"COALESCE(c.last_name, '')",
		"c.email_notifications",
	).
		From("clients c").
		Where(sq.Eq{"c.id::text": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build client query: %w", err)
	}

	var c domain.Client
	err = r.db.QueryRow(ctx, sql, args...).Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.EmailNotifications)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query client %s: %w", id, err)
	}
	return &c, nil
}

func (r *DirectoryRepository) queryUsers(ctx context.Context, query sq.SelectBuilder) ([]domain.User, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.IsActive); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
