package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/faciam-dev/gcdisk/pkg/util"
)

// User represents an application user.
type User struct {
	ID           int64
	UUID         string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserRepo provides access to the users table.
type UserRepo struct {
	DB          *sql.DB
	Driver      string
	TablePrefix string
}

func (r *UserRepo) table() string { return r.TablePrefix + "users" }

const userCols = "id, uuid, name, email, password_hash, created_at"

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.UUID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns an active user by email, or nil if none matches.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	if r == nil || r.DB == nil {
		return nil, fmt.Errorf("repo not initialized")
	}
	q := util.Rebind(r.Driver, fmt.Sprintf("SELECT %s FROM %s WHERE email=? AND deleted_at IS NULL", userCols, r.table()))
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetByID returns an active user by numeric id, or nil if none matches.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	if r == nil || r.DB == nil {
		return nil, fmt.Errorf("repo not initialized")
	}
	q := util.Rebind(r.Driver, fmt.Sprintf("SELECT %s FROM %s WHERE id=? AND deleted_at IS NULL", userCols, r.table()))
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// List returns every active user ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]User, error) {
	if r == nil || r.DB == nil {
		return nil, fmt.Errorf("repo not initialized")
	}
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE deleted_at IS NULL ORDER BY id", userCols, r.table()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Create hashes password and inserts a user, returning its id.
func (r *UserRepo) Create(ctx context.Context, name, email, password string, cost int) (int64, error) {
	if r == nil || r.DB == nil {
		return 0, fmt.Errorf("repo not initialized")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	args := []any{uuid.NewString(), name, email, string(hash), now, now}
	stmt := fmt.Sprintf("INSERT INTO %s (uuid, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)", r.table())
	if r.Driver == "postgres" {
		var id int64
		err := r.DB.QueryRowContext(ctx, util.Rebind(r.Driver, stmt+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := r.DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Authenticate returns the user whose password matches, or nil.
func (r *UserRepo) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil || u == nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return u, nil
}
