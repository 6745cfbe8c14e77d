package database

import (
	"context"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/feeded/core"
	appfs "github.com/trezcool/feeded/fs"
)

const (
	driverName    = "postgres"
	migrationsDir = "migrations"
)

func init() {
	goose.SetBaseFS(appfs.FS)
	_ = goose.SetDialect(driverName)
}

func dsn(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   driverName,
		User:     user,
		Host:     conf.DatabaseAddress(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	return sqlx.Open(driverName, dsn(dbName, admin, conf))
}

// Open opens the app database and waits for it to be ready.
func Open(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping cancelled")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

func exists(ctx context.Context, db *sqlx.DB, query, name string) (bool, error) {
	var found []bool
	if err := db.SelectContext(ctx, &found, query, name); err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func createAppUser(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}
	found, err := exists(ctx, db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if found {
		return nil
	}
	q := "CREATE USER " + pq.QuoteIdentifier(conf.Database.User) +
		" CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(conf.Database.Password)
	_, err = db.ExecContext(ctx, q)
	return errors.Wrap(err, "creating app user")
}

func createDB(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	found, err := exists(ctx, db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if found {
		return nil
	}
	_, err = db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(conf.Database.Name))
	return errors.Wrap(err, "creating database")
}

// CreateIfNotExist creates the app user (as admin) and the app database (as the app user).
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	adminDB, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = adminDB.Close() }()

	if err = ping(ctx, adminDB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(ctx, adminDB, conf); err != nil {
		return err
	}

	db, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	return createDB(ctx, db, conf)
}

// Migrate applies all pending migrations.
func Migrate(db *sqlx.DB) error {
	return RunMigrations(db, "up")
}

// RunMigrations runs a goose command ("up", "down", "status", "redo", "version"...) on the embedded migrations.
func RunMigrations(db *sqlx.DB, command string, args ...string) error {
	if err := goose.Run(command, db.DB, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migrations %s", command)
	}
	return nil
}
