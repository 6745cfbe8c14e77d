// Package di wires the stores, gateways and services shared by the binaries.
package di

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/dispatch"
	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
	"github.com/trezcool/feeded/core/user"
	emailsvc "github.com/trezcool/feeded/services/email"
	"github.com/trezcool/feeded/storage/database"
	inmemdb "github.com/trezcool/feeded/storage/database/inmem"
	sqlxrepos "github.com/trezcool/feeded/storage/database/sqlx"
	mongorepos "github.com/trezcool/feeded/storage/docstore/mongo"
)

const (
	EnginePostgres = "postgres"
	EngineMongo    = "mongo"
	EngineMemory   = "memory"

	ProviderConsole  = "console"
	ProviderSendgrid = "sendgrid"
	ProviderSES      = "ses"
)

var (
	createDatabaseFunc = database.CreateIfNotExist
	openDatabaseFunc   = database.Open
)

type Container struct {
	Conf     *core.Config
	Logger   core.Logger
	DBLogger core.Logger

	// SQL is only set for the postgres engine.
	SQL      *sqlx.DB
	Users    user.Repository
	Programs program.Repository
	Forms    survey.Repository
	MailSvc  core.EmailService

	UserSvc     *user.Service
	ProgramSvc  *program.Service
	SurveySvc   *survey.Service
	DispatchSvc *dispatch.Service

	closers []func(ctx context.Context) error
}

// New sets up the configured store engine and email provider, then the services on top of them.
func New(ctx context.Context, conf *core.Config, logger, dbLogger core.Logger) (*Container, error) {
	c := &Container{Conf: conf, Logger: logger, DBLogger: dbLogger}

	if err := c.setUpStore(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, errors.Wrapf(err, "setting up %s store", conf.Database.Engine)
	}
	mailSvc, err := NewEmailService(ctx, conf)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.MailSvc = mailSvc

	c.UserSvc = user.NewService(c.Users, c.MailSvc, conf)
	c.ProgramSvc = program.NewService(c.Programs, c.Forms)
	c.SurveySvc = survey.NewService(c.Forms, c.ProgramSvc)
	c.DispatchSvc = dispatch.NewService(c.Users, c.Programs, c.Forms, c.MailSvc, logger, conf)
	return c, nil
}

func (c *Container) setUpStore(ctx context.Context) error {
	switch c.Conf.Database.Engine {
	case EnginePostgres, "":
		if err := createDatabaseFunc(ctx, c.Conf); err != nil {
			return err
		}
		db, err := openDatabaseFunc(ctx, c.Conf)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, func(context.Context) error { return db.Close() })
		if err := database.Migrate(db); err != nil {
			return err
		}
		c.SQL = db
		c.Users = sqlxrepos.NewUserRepository(db)
		c.Programs = sqlxrepos.NewProgramRepository(db)
		c.Forms = sqlxrepos.NewFormRepository(db)

	case EngineMongo:
		db, err := mongorepos.Connect(ctx, c.Conf, c.DBLogger)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, db.Close)
		c.Users = mongorepos.NewUserRepository(db)
		c.Programs = mongorepos.NewProgramRepository(db)
		c.Forms = mongorepos.NewFormRepository(db)

	case EngineMemory:
		db := inmemdb.Open()
		c.Users = inmemdb.NewUserRepository(db)
		c.Programs = inmemdb.NewProgramRepository(db)
		c.Forms = inmemdb.NewFormRepository(db)

	default:
		return errors.Errorf("unknown database engine %q", c.Conf.Database.Engine)
	}
	return nil
}

// NewEmailService returns the gateway of the configured email provider.
func NewEmailService(ctx context.Context, conf *core.Config) (core.EmailService, error) {
	switch conf.Email.Provider {
	case ProviderConsole, "":
		return emailsvc.NewConsoleService(conf), nil
	case ProviderSendgrid:
		if conf.Email.SendgridAPIKey == "" {
			return nil, errors.New("sendgrid provider requires email.sendgridAPIKey")
		}
		return emailsvc.NewSendgridService(conf), nil
	case ProviderSES:
		svc, err := emailsvc.NewSESService(ctx, conf)
		return svc, errors.Wrap(err, "setting up SES")
	}
	return nil, errors.Errorf("unknown email provider %q", conf.Email.Provider)
}

// Close releases the store connections.
func (c *Container) Close(ctx context.Context) error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
