package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/domain/user"
)

const userColumns = `id, username, space_id, password_hash, created_at`

func scanUser(row scannable) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Username, &u.SpaceID, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	u.Username = space.NormalizeUsername(u.Username)
	u.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.SpaceID, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return wrapErr(err, "create user %s", u.Username)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, spaceID, username string) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE space_id = $1 AND username = $2`, spaceID, space.NormalizeUsername(username)))
	if err != nil {
		return nil, wrapErr(err, "get user %s", username)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, spaceID string) ([]user.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE space_id = $1 ORDER BY username`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
