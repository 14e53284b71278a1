package main

import (
	"context"

	"github.com/rapport-app/rapport/internal/logging"
	"github.com/rapport-app/rapport/internal/prometheus"
	"github.com/rapport-app/rapport/internal/rapport"
	"go.uber.org/zap"
)

func main() {
	go prometheus.Run()

	for {
		ctx, cancel := context.WithCancel(context.Background())

		app, err := rapport.NewApp(cancel)
		if err != nil {
			logging.Logger.Fatal("failed to create rapport app", zap.String("error", err.Error()))
		}

		err = app.Run(ctx)
		if err != nil {
			panic(err)
		}

		<-ctx.Done()

		app.HealthCheckerService.Check()

		cancel()
	}
}
