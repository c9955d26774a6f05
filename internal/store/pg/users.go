package pg

import (
	"context"
	"database/sql"
	"errors"

	"moneta.app/internal/auth"
	"moneta.app/internal/users"
)

const userColumns = `id, email, password_hash, name, role, blocked, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (users.User, error) {
	var (
		u    users.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.Blocked, &u.Version, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return users.User{}, err
	}
	u.Role = auth.Role(role)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u users.User) (users.User, error) {
	if s.db == nil {
		return users.User{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (email, password_hash, name, role, blocked)
		values ($1, $2, $3, $4, $5)
		returning `+userColumns,
		u.Email, u.PasswordHash, u.Name, string(u.Role), u.Blocked)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return users.User{}, users.ErrEmailTaken
		}
		return users.User{}, err
	}
	return created, nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (users.User, error) {
	return s.userWhere(ctx, `id = $1`, id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (users.User, error) {
	return s.userWhere(ctx, `email = $1`, email)
}

func (s *Store) userWhere(ctx context.Context, cond string, arg any) (users.User, error) {
	if s.db == nil {
		return users.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return users.User{}, users.ErrNotFound
	}
	if err != nil {
		return users.User{}, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]users.User, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		order by id
		offset $1 limit $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]users.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateUser writes u only when the stored version equals expectedVersion.
// A miss is resolved into ErrNotFound or ErrVersionConflict.
func (s *Store) UpdateUser(ctx context.Context, u users.User, expectedVersion int64) (users.User, error) {
	if s.db == nil {
		return users.User{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		update users
		set email = $3, password_hash = $4, name = $5, role = $6, blocked = $7,
		    version = version + 1, updated_at = now()
		where id = $1 and version = $2
		returning `+userColumns,
		u.ID, expectedVersion, u.Email, u.PasswordHash, u.Name, string(u.Role), u.Blocked)
	updated, err := scanUser(row)
	if err == nil {
		return updated, nil
	}
	if isUniqueViolation(err) {
		return users.User{}, users.ErrEmailTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return users.User{}, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from users where id = $1)`, u.ID).Scan(&exists); err != nil {
		return users.User{}, err
	}
	if !exists {
		return users.User{}, users.ErrNotFound
	}
	return users.User{}, users.ErrVersionConflict
}
