package di

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/storage/database"
	testutil "github.com/trezcool/feeded/tests"
)

func TestNew_memory(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()
	conf.Database.Engine = EngineMemory
	conf.Email.Provider = ProviderConsole

	c, err := New(ctx, conf, testutil.NewLogger(), testutil.NewLogger())
	require.NoError(t, err)
	defer func() { assert.NoError(t, c.Close(ctx)) }()

	assert.Nil(t, c.SQL)
	usr := testutil.CreateUser(t, c.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	p, err := c.ProgramSvc.Create(ctx, usr.ID, program.NewProgram{
		Name:      "Management",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// services share the same store
	details, err := c.ProgramSvc.Get(ctx, usr.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Management", details.Name)
}

func TestNew_errors(t *testing.T) {
	tests := []struct {
		name     string
		engine   string
		provider string
		wantErr  string
	}{
		{name: "unknown engine", engine: "oracle", provider: ProviderConsole, wantErr: `unknown database engine "oracle"`},
		{name: "unknown provider", engine: EngineMemory, provider: "pigeon", wantErr: `unknown email provider "pigeon"`},
		{name: "sendgrid without key", engine: EngineMemory, provider: ProviderSendgrid, wantErr: "sendgrid provider requires email.sendgridAPIKey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testutil.NewConfig()
			conf.Database.Engine = tt.engine
			conf.Email.Provider = tt.provider

			_, err := New(context.Background(), conf, testutil.NewLogger(), testutil.NewLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_closesStoreOnSetupError(t *testing.T) {
	var opened *sqlx.DB
	createDatabaseFunc = func(context.Context, *core.Config) error { return nil }
	openDatabaseFunc = func(context.Context, *core.Config) (*sqlx.DB, error) {
		// lib/pq connects lazily, so migrations are the first to hit the closed port
		db, err := sqlx.Open("postgres", "postgres://feeded@127.0.0.1:1/feeded?sslmode=disable&connect_timeout=1")
		opened = db
		return db, err
	}
	defer func() {
		createDatabaseFunc = database.CreateIfNotExist
		openDatabaseFunc = database.Open
	}()

	conf := testutil.NewConfig()
	conf.Database.Engine = EnginePostgres
	_, err := New(context.Background(), conf, testutil.NewLogger(), testutil.NewLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setting up postgres store")

	require.NotNil(t, opened)
	err = opened.Ping()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is closed")
}

func TestNewEmailService_sendgrid(t *testing.T) {
	conf := testutil.NewConfig()
	conf.Email.Provider = ProviderSendgrid
	conf.Email.SendgridAPIKey = "SG.test"

	svc, err := NewEmailService(context.Background(), conf)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
