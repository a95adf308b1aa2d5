// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/router"
	"github.com/go-gatehouse/gatehouse/internal/gate/sched"
	"github.com/go-gatehouse/gatehouse/internal/gate/service"
	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
	"github.com/go-gatehouse/gatehouse/pkg/cache"
	"github.com/go-gatehouse/gatehouse/pkg/cron"
	"github.com/go-gatehouse/gatehouse/pkg/database"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
	"github.com/go-gatehouse/gatehouse/pkg/pprof"
	"github.com/go-gatehouse/gatehouse/pkg/retry"
	"github.com/go-gatehouse/gatehouse/pkg/safe"
	"github.com/go-gatehouse/gatehouse/pkg/trace"
	"github.com/redis/go-redis/v9"
)

const (
	reconcileTimeout       = 2 * time.Minute
	botIdentityTimeout     = time.Minute
	defaultShutdownTimeout = 30 * time.Second
)

// App bundles the long-running components so Run can start and stop
// them in a fixed order.
type App struct {
	HttpApp   *fiber.App
	Services  *service.Services
	Scheduler *sched.Scheduler
	TaskQueue *queue.TaskQueue
	Poller    *telegram.Poller
	Bot       *telegram.Client
	Cron      *cron.Cron
	Metrics   *metrics.Server
	Pprof     *pprof.Server
	AppConf   *config.AppConfig
}

// InitAppFunc is the Wire-generated constructor for the object graph.
// Bootstrap owns the shared clients and hands them in.
type InitAppFunc func(configPath string, db database.IDatabase, redisClient *redis.Client, redisCache cache.ICache) (*App, func(), error)

// NewApp assembles the App once every component exists. The scheduler
// is bound here: the trial service queues through the scheduler and
// the scheduler's tasks settle through the trial service, so the
// service side attaches after both are built and before the queue
// starts consuming.
func NewApp(
	rt *router.Router,
	services *service.Services,
	scheduler *sched.Scheduler,
	taskQueue *queue.TaskQueue,
	poller *telegram.Poller,
	bot *telegram.Client,
	cronSrv *cron.Cron,
	metricsServer *metrics.Server,
	pprofServer *pprof.Server,
	appConf *config.AppConfig,
) (*App, func(), error) {
	scheduler.Bind(services.Trial, services.Notifier)
	if err := scheduler.RegisterSweep(cronSrv); err != nil {
		return nil, nil, fmt.Errorf("register sweep: %w", err)
	}

	if appConf.Metrics.Enable {
		sink, err := metricsServer.GoMetricsSink()
		if err != nil {
			log.Warnw("queue depth metrics disabled", "error", err)
		} else {
			metrics.RegisterAsynqMetricsFrom(sink, taskQueue)
		}
	}

	cleanup := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.StopAsynqMetricsCollector(stopCtx); err != nil {
			log.Warnw("queue metrics collector shutdown error", "error", err)
		}
		if err := metricsServer.Stop(stopCtx); err != nil {
			log.Warnw("metrics server shutdown error", "error", err)
		}
		if err := pprofServer.Stop(stopCtx); err != nil {
			log.Warnw("pprof server shutdown error", "error", err)
		}
	}

	app := &App{
		HttpApp:   rt.Router(),
		Services:  services,
		Scheduler: scheduler,
		TaskQueue: taskQueue,
		Poller:    poller,
		Bot:       bot,
		Cron:      cronSrv,
		Metrics:   metricsServer,
		Pprof:     pprofServer,
		AppConf:   appConf,
	}
	return app, cleanup, nil
}

// Bootstrap loads configuration, opens the shared clients, migrates
// the schema and builds the object graph through initApp. The returned
// cleanup also flushes the tracer and the logger.
func Bootstrap(configFile string, initApp InitAppFunc) (*App, func(), error) {
	appConf := config.NewConf(configFile)

	logger, err := log.NewLog(&appConf.Log)
	if err != nil {
		return nil, nil, err
	}

	redisClient, err := cache.NewRedis(appConf.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	dbClient, err := database.NewDatabase(appConf.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	model.Register()
	if err := database.AutoMigrate(dbClient); err != nil {
		return nil, nil, fmt.Errorf("migrate schema: %w", err)
	}

	_, traceStop, err := trace.InitTracerProvider(context.Background(), appConf.Trace)
	if err != nil {
		return nil, nil, fmt.Errorf("init tracer: %w", err)
	}

	db := database.NewGormDB(dbClient)
	redisCache := cache.NewRedisCache(redisClient)

	app, cleanup, err := initApp(configFile, db, redisClient, redisCache)
	if err != nil {
		traceStop()
		return nil, nil, err
	}

	fullCleanup := func() {
		cleanup()
		traceStop()
		_ = logger.Sync()
	}
	return app, fullCleanup, nil
}

// Run starts every component and blocks until a termination signal,
// then shuts them down in reverse dependency order: stop taking HTTP
// requests, stop the update stream, drain the task workers, stop the
// cron, release the rest.
func Run(app *App, cleanup func()) {
	if err := app.Metrics.Start(); err != nil {
		log.Errorw("metrics server failed to start", "error", err)
	}
	if err := app.Pprof.Start(); err != nil {
		log.Errorw("pprof server failed to start", "error", err)
	}

	confirmBotIdentity(app.Bot)

	if err := app.TaskQueue.Start(); err != nil {
		log.Fatalf("task queue failed to start: %v", err)
	}

	reconcileCtx, cancelReconcile := context.WithTimeout(context.Background(), reconcileTimeout)
	if err := app.Scheduler.Reconcile(reconcileCtx); err != nil {
		// The hourly sweep settles whatever reconcile missed.
		log.Errorw("trial reconcile failed", "error", err)
	}
	cancelReconcile()

	app.Poller.Start()
	safe.Go(func() {
		app.Services.Event.Run(app.Poller.Updates())
	})

	app.Cron.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		addr := fmt.Sprintf("%s:%d", app.AppConf.Http.Host, app.AppConf.Http.Port)
		tls := app.AppConf.Http.TLS
		log.Infow("HTTP listener started", "address", addr, "tls", tls.CertFile != "")

		var err error
		if tls.CertFile != "" && tls.KeyFile != "" {
			err = app.HttpApp.ListenTLS(addr, tls.CertFile, tls.KeyFile)
		} else {
			err = app.HttpApp.Listen(addr)
		}
		if err != nil {
			log.Errorw("HTTP listener failed", "address", addr, "error", err)
		}
	}()

	sig := <-quit
	log.Infow("signal received, shutting down", "signal", sig.String())

	shutdownTimeout := defaultShutdownTimeout
	if app.AppConf.Http.ShutdownTimeout > 0 {
		shutdownTimeout = time.Duration(app.AppConf.Http.ShutdownTimeout) * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.HttpApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	}

	app.Poller.Stop()
	app.TaskQueue.Shutdown()
	app.Cron.Stop()

	cleanup()
	log.Info("shutdown complete")
}

// confirmBotIdentity verifies the bot token against the live API before
// anything is served. A token that cannot authenticate makes every
// later call fail, so a dead token is fatal at boot instead.
func confirmBotIdentity(bot *telegram.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), botIdentityTimeout)
	defer cancel()

	err := retry.Do(ctx, func(ctx context.Context) error {
		_, err := bot.GetMe(ctx)
		return err
	}, retry.WithMaxAttempts(5), retry.WithBackoff(retry.Exponential(2*time.Second)))
	if err != nil {
		log.Fatalf("telegram getMe failed, check telegram.botToken: %v", err)
	}

	me := bot.Self()
	log.Infow("bot identity confirmed", "id", me.ID, "username", me.Username)
}
