package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"

	"medication-reminders/internal/alarm"
	"medication-reminders/internal/config"
	"medication-reminders/internal/engine"
	"medication-reminders/internal/logger"
	"medication-reminders/internal/server"
	"medication-reminders/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("could not load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("opening store")
	}
	defer st.Close()
	log.WithField("path", cfg.DatabasePath).Info("store opened")

	alarms := alarm.NewScheduler(clock.New())
	defer alarms.Close()

	eng := engine.New(engine.Deps{
		Schedules:   st,
		Intakes:     st,
		Medications: st,
		Alarms:      alarms,
		Notifier:    &engine.LogNotifier{Log: log},
		Clock:       clock.New(),
		Log:         log,
	})
	alarms.Subscribe(eng.HandleFired)

	// Platform timers do not survive a restart; re-arm everything before
	// accepting traffic.
	if err := eng.Recover(ctx); err != nil {
		log.WithError(err).Fatal("startup recovery")
	}
	log.Info("startup recovery complete")

	sweeper := engine.NewSweeper(eng, log, cfg.SweepCronSpec)
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Fatal("starting recovery sweeper")
	}
	defer sweeper.Stop()

	srv := server.New(st, eng, log)
	if err := srv.ListenAndServe(ctx, cfg.Port); err != nil {
		log.WithError(err).Fatal("http server")
	}
	log.Info("shut down")
}
