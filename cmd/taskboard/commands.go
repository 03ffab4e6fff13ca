package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"gorm.io/gorm"

	"taskboard/internal/bot"
	"taskboard/internal/config"
	"taskboard/internal/engine"
	"taskboard/internal/logx"
	"taskboard/internal/recurrence"
	"taskboard/internal/recurring"
	"taskboard/internal/repository"
	"taskboard/internal/service"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg        config.Config
	log        logx.Logger
	db         *gorm.DB
	pool       *engine.Pool
	dispatcher *service.Dispatcher
	tasks      *service.TaskService
	users      *repository.UserRepository
}

// setup loads configuration and wires the stack. With a nil pool completion
// events are processed inline.
func setup(pool func(config.Config, logx.Logger) *engine.Pool) (*app, error) {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logx.New(cfg.Log, os.Stderr)

	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	retrier := engine.NewRetrier(engine.RetryOptions{
		MaxAttempts: cfg.Engine.RetryMax,
		Base:        cfg.Engine.RetryBase,
		MaxDelay:    cfg.Engine.RetryMaxDelay,
	}, log.With(logx.String("component", "retrier")))
	orchestrator := recurring.NewOrchestrator(repository.NewStore(db), recurring.Options{
		Runner:    retrier,
		Evaluator: recurrence.Evaluator{Location: cfg.Location},
		Log:       log.With(logx.String("component", "recurring")),
	})

	a := &app{cfg: cfg, log: log, db: db, users: repository.NewUserRepository(db)}
	if pool != nil {
		a.pool = pool(cfg, log)
	}
	events := repository.NewEventRepository(db)
	a.dispatcher = service.NewDispatcher(events, orchestrator, a.pool, cfg.Redrive, log)
	a.tasks = service.NewTaskService(db, repository.NewTaskRepository(db), events, a.dispatcher, log)
	return a, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newPool(cfg config.Config, log logx.Logger) *engine.Pool {
	return engine.NewPool(engine.PoolConfig{Workers: cfg.Engine.Workers, QueueSize: cfg.Engine.QueueSize}, log.With(logx.String("component", "engine")))
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(newPool)
	if err != nil {
		return err
	}
	defer a.close()

	a.pool.Start(ctx)

	scheduler := service.NewSchedulerService(a.cfg.Location, a.log.With(logx.String("component", "scheduler")))
	if _, err := scheduler.ScheduleRedrive(a.cfg.Redrive.Schedule, time.Minute, a.dispatcher); err != nil {
		return err
	}
	scheduler.Start()

	botDone := make(chan error, 1)
	if a.cfg.TelegramToken != "" {
		telegramBot, err := bot.New(a.cfg.TelegramToken, a.users, a.tasks, a.cfg.Location, a.log)
		if err != nil {
			return err
		}
		go func() { botDone <- telegramBot.Start(ctx) }()
	} else {
		a.log.Info("telegram token not set, bot disabled")
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified")
	}
	a.log.Info("taskboard started")

	select {
	case <-ctx.Done():
	case err := <-botDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("bot stopped with error", logx.Err(err))
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Engine.ShutdownTimeout)
	defer cancel()
	a.pool.Stop(shutdownCtx)
	a.log.Info("shutdown complete")
	return nil
}

func complete(c *cli.Context) error {
	taskID := c.Args().First()
	if taskID == "" {
		return cli.NewExitError("task id is required", 2)
	}
	a, err := setup(nil)
	if err != nil {
		return err
	}
	defer a.close()

	task, err := a.tasks.CompleteTask(context.Background(), taskID, c.String("user"), time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("completed %s (%s)\n", task.ID, task.Title)
	return nil
}

func next(c *cli.Context) error {
	raw := c.Args().First()
	if raw == "" {
		return cli.NewExitError("rule is required", 2)
	}
	var rule recurrence.Rule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		return fmt.Errorf("parse rule: %w", err)
	}
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	now := time.Now()
	from := recurrence.Today(now, cfg.Location)
	if s := c.String("from"); s != "" {
		if from, err = recurrence.ParseDate(s); err != nil {
			return err
		}
	}
	due, ok, err := recurrence.Evaluator{Location: cfg.Location}.Next(rule, from, now)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("none")
		return nil
	}
	fmt.Println(recurrence.FormatDate(due))
	return nil
}

func redrive(c *cli.Context) error {
	a, err := setup(nil)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.dispatcher.Redrive(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("processed %d event(s)\n", n)
	return nil
}
