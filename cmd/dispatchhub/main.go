package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"courier-dispatch/internal/dispatch/adapter/broker"
	dispatchdb "courier-dispatch/internal/dispatch/adapter/db"
	"courier-dispatch/internal/dispatch/app/services"
	"courier-dispatch/internal/hub"
	"courier-dispatch/internal/hub/api"
	"courier-dispatch/internal/hub/consumer"
	"courier-dispatch/internal/hub/sweeper"
	"courier-dispatch/internal/xpkg/config"
	"courier-dispatch/internal/xpkg/db"
	"courier-dispatch/internal/xpkg/logger"
	"courier-dispatch/internal/xpkg/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	mylog, err := logger.New("dispatch-hub", cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer mylog.Sync()

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Start(ctx, cfg.Postgres)
	if err != nil {
		mylog.Action("db_connect").Error("failed to connect to database", err)
		return
	}
	defer pool.Close()
	mylog.Action("db_connected").Info("database connected")

	broadcaster, err := broker.New(ctx, cfg.RabbitMQ, mylog)
	if err != nil {
		mylog.Action("mb_connect").Error("failed to connect to message broker", err)
		return
	}
	defer broadcaster.Close()
	mylog.Action("mb_connected").Info("message broker connected")

	orderRepo := dispatchdb.NewOrderRepo(pool)
	historyRepo := dispatchdb.NewHistoryRepo(pool)
	userRepo := dispatchdb.NewUserRepo(pool)

	svc := services.NewDispatchService(orderRepo, historyRepo, broadcaster, mylog)
	pushHub := hub.New(userRepo, cfg.Hub, mylog)
	handler := api.NewHandler(svc, mylog)
	server := api.NewServer(cfg.Hub, handler, pushHub, mylog, cfg.App.Env)
	cons := consumer.New(cfg.RabbitMQ, pushHub, mylog)

	sw := sweeper.New(svc, cfg.Hub.SweepEvery, mylog)
	if err := sw.Start(); err != nil {
		mylog.Action("sweeper_start").Error("failed to start sweeper", err)
		return
	}
	defer sw.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := cons.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	mylog.Action("hub_started").Info("dispatch hub is up")
	if err := g.Wait(); err != nil {
		mylog.Action("hub_stopped").Error("dispatch hub exited with error", err)
		return
	}
	mylog.Action("hub_stopped").Info("dispatch hub shut down")
}
