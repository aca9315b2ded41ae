package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"shelfd.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

const pgUniqueViolation = "23505"

// PGStore implements Store using PostgreSQL. Username and email uniqueness is
// enforced by database constraints, so concurrent registrations surface as
// ErrConflict rather than silent duplicates.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore { return &pgUserStore{db: s.db} }
func (s *PGStore) Roles() RoleStore { return &pgRoleStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// User store ---------------------------------------------------------------

type pgUserStore struct{ db *sql.DB }

const userColumns = `id, username, email, password_hash, first_name, last_name, active, created_at, updated_at`

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`insert into users(id, username, email, password_hash, first_name, last_name, active)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", ErrConflict, u.Username)
		}
		return err
	}
	for _, role := range u.Roles {
		if _, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, role_id)
			 select $1, id from roles where upper(name) = upper($2)
			 on conflict do nothing`,
			u.ID, role,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *pgUserStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, `select `+userColumns+` from users where id=$1`, id)
}

func (s *pgUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, `select `+userColumns+` from users where lower(username)=lower($1)`, username)
}

func (s *pgUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, `select exists(select 1 from users where lower(username)=lower($1))`, username)
}

func (s *pgUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `select exists(select 1 from users where lower(email)=lower($1))`, email)
}

func (s *pgUserStore) List(ctx context.Context) ([]*User, error) {
	return s.findMany(ctx, `select `+userColumns+` from users order by created_at asc`)
}

func (s *pgUserStore) ListPage(ctx context.Context, offset, limit int) ([]*User, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	users, err := s.findMany(ctx,
		`select `+userColumns+` from users order by created_at asc limit $1 offset $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *pgUserStore) ListActive(ctx context.Context) ([]*User, error) {
	return s.findMany(ctx, `select `+userColumns+` from users where active order by created_at asc`)
}

func (s *pgUserStore) SearchByName(ctx context.Context, name string) ([]*User, error) {
	pattern := "%" + name + "%"
	return s.findMany(ctx,
		`select `+userColumns+` from users
		 where first_name ilike $1 or last_name ilike $1 or username ilike $1
		 order by created_at asc`,
		pattern,
	)
}

func (s *pgUserStore) ListByRole(ctx context.Context, role string) ([]*User, error) {
	return s.findMany(ctx,
		`select `+prefixColumns("u.")+` from users u
		 join user_roles ur on ur.user_id = u.id
		 join roles r on r.id = ur.role_id
		 where upper(r.name) = upper($1)
		 order by u.created_at asc`,
		role,
	)
}

func (s *pgUserStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*User, error) {
	return s.findMany(ctx,
		`select `+userColumns+` from users where created_at between $1 and $2 order by created_at asc`,
		from, to,
	)
}

func (s *pgUserStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `select count(*) from users where active`).Scan(&n)
	return n, err
}

func (s *pgUserStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

func (s *pgUserStore) Update(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	_, err := s.db.ExecContext(ctx,
		`update users set
		   email      = coalesce($2, email),
		   first_name = coalesce($3, first_name),
		   last_name  = coalesce($4, last_name),
		   updated_at = now()
		 where id = $1`,
		id, upd.Email, upd.FirstName, upd.LastName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already in use", ErrConflict)
		}
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *pgUserStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgUserStore) findOne(ctx context.Context, query string, args ...any) (*User, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if u.Roles, err = rolesForUser(ctx, s.db, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *pgUserStore) findMany(ctx context.Context, query string, args ...any) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range out {
		if u.Roles, err = rolesForUser(ctx, s.db, u.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *pgUserStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok)
	return ok, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.FirstName, &u.LastName, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func rolesForUser(ctx context.Context, db *sql.DB, userID string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`select r.name from roles r
		 join user_roles ur on ur.role_id = r.id
		 where ur.user_id = $1
		 order by r.name asc`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func prefixColumns(prefix string) string {
	return prefix + `id, ` + prefix + `username, ` + prefix + `email, ` + prefix + `password_hash, ` +
		prefix + `first_name, ` + prefix + `last_name, ` + prefix + `active, ` +
		prefix + `created_at, ` + prefix + `updated_at`
}

// Role store ---------------------------------------------------------------

type pgRoleStore struct{ db *sql.DB }

// Ensure upserts the role by name. The insert races safely: on conflict the
// existing row wins and is read back.
func (s *pgRoleStore) Ensure(ctx context.Context, name, description string) (Role, error) {
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if _, err := s.db.ExecContext(ctx,
		`insert into roles(id, name, description) values($1,$2,$3)
		 on conflict (name) do nothing`,
		ids.New(), name, description,
	); err != nil {
		return Role{}, err
	}
	var role Role
	err := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at from roles where upper(name)=upper($1)`, name,
	).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func (s *pgRoleStore) ForUser(ctx context.Context, userID string) ([]string, error) {
	return rolesForUser(ctx, s.db, userID)
}
