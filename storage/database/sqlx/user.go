package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeded/core/user"
)

const userColumns = "id, email, name, is_active, password_hash, created_at, updated_at, last_login"

type userRow struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	Name         string     `db:"name"`
	IsActive     bool       `db:"is_active"`
	PasswordHash null.Bytes `db:"password_hash"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLogin    null.Time  `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Email:        usr.Email,
		Name:         usr.Name,
		IsActive:     usr.IsActive,
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    utc(r.LastLogin),
	}
}

func utc(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// trapNoRowsErr maps "no rows" err to user.ErrNotFound
func (repo *userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES (:id, :email, :name, :is_active, :password_hash, :created_at, :updated_at, :last_login)`,
		toUserRow(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, id string) (user.User, error) {
	var row userRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user by ID")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row userRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user by email")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	n, err := affected(repo.db.NamedExecContext(ctx,
		`UPDATE users SET email = :email, name = :name, is_active = :is_active, password_hash = :password_hash,
		updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`,
		toUserRow(usr)))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
