package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sungwon/notification-pipeline/internal/errclass"
)

// ErrUserNotFound is returned when no user exists for an ID. It is a
// validation failure: redelivering the message cannot make the user appear.
var ErrUserNotFound = errclass.New(errclass.KindValidation, "user not found")

// User is the recipient record used to address notifications.
type User struct {
	ID     string
	Email  string
	Name   string
	Locale string
}

// rowQuerier is the subset of pgxpool.Pool used by UserRepository.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository reads users from PostgreSQL.
type UserRepository struct {
	db rowQuerier
}

// NewUserRepository creates a UserRepository backed by db's pool.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db.Pool}
}

const getUser = `SELECT id, email, name, locale FROM users WHERE id = $1`

// GetUser returns the user with the given ID, or ErrUserNotFound.
func (r *UserRepository) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := r.db.QueryRow(ctx, getUser, id).Scan(&u.ID, &u.Email, &u.Name, &u.Locale)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("get user %s: %w", id, ErrUserNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

const upsertUser = `INSERT INTO users (id, email, name, locale)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, locale = EXCLUDED.locale
RETURNING (xmax = 0)`

// UpsertUser inserts u or updates the existing row with the same ID. It
// reports whether a new row was created.
func (r *UserRepository) UpsertUser(ctx context.Context, u User) (bool, error) {
	if u.Locale == "" {
		u.Locale = "en"
	}
	var inserted bool
	if err := r.db.QueryRow(ctx, upsertUser, u.ID, u.Email, u.Name, u.Locale).Scan(&inserted); err != nil {
		return false, fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return inserted, nil
}
