package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"os"

	echoapi "github.com/trezcool/feeded/apps/api/echo"
	"github.com/trezcool/feeded/apps/di"
	"github.com/trezcool/feeded/core"
	logsvc "github.com/trezcool/feeded/services/logger"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf, "API : "), conf)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf, "DB : "), conf)
	dbLogger.Enable(!conf.Debug)

	ctx, cancel := context.WithTimeout(context.Background(), conf.Database.Timeout)
	container, err := di.New(ctx, conf, logger, dbLogger)
	cancel()
	if err != nil {
		logger.Error(fmt.Sprintf("setting up dependencies: %v", err), err)
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := container.Close(ctx); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("engine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     container.UserSvc,
		ProgramSvc:  container.ProgramSvc,
		SurveySvc:   container.SurveySvc,
		DispatchSvc: container.DispatchSvc,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)
		return err

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
				return err
			}
		}
	}
	return nil
}
