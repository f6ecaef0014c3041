package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/aciencia/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, role, password_hash, created_at, updated_at`

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := Stamp(time.Time{})
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Role.String(),
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

// Update locks the user row, applies mutate and stores the result in one
// transaction. An error from mutate aborts the update.
func (r *UserRepository) Update(ctx context.Context, id int, mutate func(*types.User) error) (types.User, error) {
	var updated types.User
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		const selectQuery = `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
		user, err := scanUser(tx.QueryRowContext(ctx, selectQuery, id))
		if err != nil {
			return translate(err)
		}
		if err := mutate(&user); err != nil {
			return err
		}
		user.UpdatedAt = Stamp(user.UpdatedAt)

		const query = `
			UPDATE users
			SET username = $1,
				email = $2,
				role = $3,
				password_hash = $4,
				updated_at = $5
			WHERE id = $6`
		if _, err := tx.ExecContext(
			ctx,
			query,
			user.Username,
			user.Email,
			user.Role.String(),
			user.PasswordHash,
			user.UpdatedAt,
			user.ID,
		); err != nil {
			return translate(err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return updated, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user types.User
		role string
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&role,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return types.User{}, err
	}
	parsed, err := types.ParseRole(role)
	if err != nil {
		return types.User{}, err
	}
	user.Role = parsed
	return user, nil
}
