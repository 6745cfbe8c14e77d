package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trezcool/feeded/apps/di"
	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/dispatch"
	"github.com/trezcool/feeded/core/scheduler"
	logsvc "github.com/trezcool/feeded/services/logger"
)

// A single instance is expected to run; concurrent instances are safe but wasteful.
func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf, "SCHEDULER : "), conf)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf, "DB : "), conf)
	dbLogger.Enable(!conf.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupCtx, cancel := context.WithTimeout(ctx, conf.Database.Timeout)
	container, err := di.New(setupCtx, conf, logger, dbLogger)
	cancel()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up dependencies: %v", err), err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	logger.Info(fmt.Sprintf("Scheduler initializing : version %q", conf.Build))
	defer logger.Info("Scheduler stopped")

	poller := scheduler.NewPoller(conf, logger)
	_ = poller.Run(ctx, "survey scan", scanTask(container.DispatchSvc, logger))
}

func scanTask(svc *dispatch.Service, logger core.Logger) scheduler.Task {
	return func(ctx context.Context) error {
		res, err := svc.Scan(ctx, time.Now().UTC())
		logger.Info(fmt.Sprintf(
			"survey scan done: hot %d sent, %d skipped, %d failed; cold %d sent, %d skipped, %d failed",
			res.Hot.Sent, res.Hot.Skipped, res.Hot.Failed, res.Cold.Sent, res.Cold.Skipped, res.Cold.Failed,
		))
		return err
	}
}
