package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/dispatch/app/core"
	"courier-dispatch/internal/dispatch/domain/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Get(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, role FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, core.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
