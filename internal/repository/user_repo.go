package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hirepipe/internal/pipeline"
	"hirepipe/pkg/rbac"
)

// ErrUserNotFound is returned for unknown or deactivated users.
var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// FindActor resolves an active user into the actor the pipeline authorizes.
func (r *UserRepository) FindActor(ctx context.Context, userID int64) (pipeline.Actor, error) {
	query := `
        SELECT id, role, is_superuser
        FROM users
        WHERE id = $1 AND is_active
    `
	var (
		id        int64
		role      string
		superuser bool
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(&id, &role, &superuser)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Actor{}, ErrUserNotFound
	}
	if err != nil {
		return pipeline.Actor{}, err
	}
	return actorFromRow(id, role, superuser)
}

// actorFromRow rejects users whose stored role is not one the policy knows.
func actorFromRow(id int64, role string, superuser bool) (pipeline.Actor, error) {
	r := rbac.Role(role)
	if !r.Valid() {
		return pipeline.Actor{}, fmt.Errorf("%w: user %d has unknown role %q", ErrUserNotFound, id, role)
	}
	return pipeline.Actor{UserID: id, Role: r, IsSuperuser: superuser}, nil
}

// FindIDByEmail returns the id of the user with the given email.
func (r *UserRepository) FindIDByEmail(ctx context.Context, email string) (int64, error) {
	query := `
        SELECT id
        FROM users
        WHERE email = $1
    `
	var id int64
	err := r.db.QueryRow(ctx, query, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return id, err
}
