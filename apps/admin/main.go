package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/trezcool/feeded/apps/di"
	"github.com/trezcool/feeded/core"
	logsvc "github.com/trezcool/feeded/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf, "ADMIN : "), conf)
	logger.Enable(!conf.Debug)

	ctx := context.Background()
	setupCtx, cancel := context.WithTimeout(ctx, conf.Database.Timeout)
	container, err := di.New(setupCtx, conf, logger, logger)
	cancel()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up dependencies: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:          container.SQL,
		usrSvc:      container.UserSvc,
		dispatchSvc: container.DispatchSvc,
		out:         os.Stdout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	err = cli.run(ctx, os.Args)
	if cerr := container.Close(ctx); cerr != nil {
		logger.Error("Failed to close", cerr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
