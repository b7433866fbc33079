// Package main выполняет ежегодное начисление баллов за финансовый год и завершается.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/app"
	"github.com/mmeshcher/uniform-points/internal/config"
	"github.com/mmeshcher/uniform-points/internal/model"
)

// systemActorID записывается в created_by записей, созданных пакетным запуском.
const systemActorID = 0

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	var year int
	flag.IntVar(&year, "y", 0, "fiscal year to grant, current year when zero")

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if year == 0 {
		year = time.Now().In(loc).Year()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		sugar.Fatalw("initialization error", "error", err.Error())
	}

	report, err := application.Service.GrantAnnual(ctx, model.Actor{ID: systemActorID, Role: model.RoleStaff}, year)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := application.Close(closeCtx); cerr != nil {
		sugar.Errorw("close error", "error", cerr.Error())
	}

	if err != nil {
		sugar.Fatalw("annual grant failed", "year", year, "error", err.Error())
	}

	sugar.Infow("annual grant finished",
		"year", report.FiscalYear,
		"granted", report.Granted,
		"skipped", report.Skipped,
		"zero_amount", report.ZeroAmount,
		"unknown_rank", len(report.UnknownRank),
		"total_points", report.TotalPoints,
	)
}
