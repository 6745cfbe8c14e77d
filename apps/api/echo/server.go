package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/dispatch"
	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
	"github.com/trezcool/feeded/core/user"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		UserSvc        *user.Service
		ProgramSvc     *program.Service
		SurveySvc      *survey.Service
		DispatchSvc    *dispatch.Service
		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.AllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, apiKeyHeader},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)
	authed := []echo.MiddlewareFunc{jwt, contextUserMiddleware(s.deps.UserSvc)}

	v1 := s.app.Group("/v1")
	registerUserAPI(v1, authed, s.auth, s.deps.UserSvc, s.deps.Logger)
	registerProgramAPI(v1, authed, s.deps.ProgramSvc, s.deps.DispatchSvc, s.deps.SurveySvc)
	registerFormAPI(v1, s.deps.SurveySvc)

	api := s.app.Group("/api")
	registerDispatchAPI(api, authed, s.deps.DispatchSvc, conf.Server.ScheduleAPIKey)
}

// Start listens on conf.Server.Address until the server is shut down.
// Errors are reported on Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error            { return s.errors }
func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
