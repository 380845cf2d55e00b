package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	flog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisstore "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/TourMarket/app/controllers"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/archive"
	"github.com/ManuelReschke/TourMarket/internal/pkg/billing"
	"github.com/ManuelReschke/TourMarket/internal/pkg/booking"
	"github.com/ManuelReschke/TourMarket/internal/pkg/cache"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"github.com/ManuelReschke/TourMarket/internal/pkg/entitlements"
	"github.com/ManuelReschke/TourMarket/internal/pkg/env"
	"github.com/ManuelReschke/TourMarket/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TourMarket/internal/pkg/mail"
	"github.com/ManuelReschke/TourMarket/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/TourMarket/internal/pkg/notify"
	"github.com/ManuelReschke/TourMarket/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		flog.Info("[App] Shutting down")
		if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
			flog.Errorw("[App] shutdown failed", "error", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires storage, background workers and routes. The returned
// func stops the workers and closes the publisher.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	ctx := context.Background()
	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	uow := database.NewUnitOfWork(db)

	// background jobs
	manager := jobqueue.NewManager(cache.GetClient(), env.GetEnvInt("JOB_WORKERS", 4))
	queue := manager.GetQueue()

	publisher := notify.MultiPublisher{}
	if url := env.GetEnv("RABBITMQ_URL", ""); url != "" {
		p, err := notify.NewRabbitMQPublisher(url)
		if err != nil {
			flog.Warnw("[App] RabbitMQ unavailable, skipping broker delivery", "error", err)
		} else {
			publisher = append(publisher, p)
		}
	}
	if mailCfg := mail.LoadConfig(); mailCfg.Enabled() {
		publisher = append(publisher, notify.NewMailPublisher(repos.User, mail.NewSMTPMailer(mailCfg)))
	}
	if len(publisher) == 0 {
		publisher = append(publisher, notify.LogPublisher{})
	}
	notify.NewWorker(repos.Notification, publisher).Register(queue)

	archiveCfg, err := archive.LoadConfig()
	if err != nil {
		panic(err)
	}
	archiver, err := archive.New(ctx, archiveCfg)
	if err != nil {
		panic(err)
	}
	queue.Handle(jobqueue.JobTypeArchiveWebhook, archive.WebhookJobHandler(archiver))
	manager.Start()

	// domain services
	dispatcher := notify.NewQueueDispatcher(queue)
	roles := entitlements.NewCoordinator(repos.Role, repos.Subscription,
		entitlements.NewRedisCache(cache.GetClient(), env.GetEnvDuration("AUTHZ_CACHE_TTL", 5*time.Minute)))
	bookings := booking.NewService(repos.Booking, repos.Notification, uow, dispatcher, booking.WithArchiver(archiver))

	processor := billing.NewMercadoPagoClientFromEnv()
	reconciler := billing.NewReconciler(processor, repos.Subscription, repos.Plan, roles, uow, dispatcher,
		billing.WithBookingPayments(bookings))
	outcomes := counter.NewHash(cache.GetClient(), counter.WebhookOutcomesKey)
	webhooks := billing.NewWebhookService(repos.WebhookEvent, reconciler, queue, billing.WithOutcomeRecorder(outcomes))
	plans := billing.NewPlanSyncService(processor, repos.Plan, env.GetEnv("BILLING_BACK_URL", ""))

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Users:          repos.User,
		Roles:          roles,
		Bookings:       controllers.NewBookingController(bookings),
		Billing:        controllers.NewBillingController(webhooks, plans, repos.Subscription, repos.Plan, env.GetEnv("MP_WEBHOOK_SECRET", "")),
		PlanAdmin:      controllers.NewPlanAdminController(plans),
		UserAdmin:      controllers.NewUserController(roles, repos.Notification),
		Stats:          controllers.NewStatsController(outcomes),
		LimiterStorage: limiterStorage(),
		LimiterMax:     env.GetEnvInt("API_RATE_LIMIT", 120),
		Ping: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
	})

	return app, func() {
		manager.Stop()
		if err := publisher.Close(); err != nil {
			flog.Warnw("[App] publisher close failed", "error", err)
		}
	}
}

// limiterStorage shares rate limit counters across instances through the
// cache server.
func limiterStorage() fiber.Storage {
	if !env.GetEnvBool("RATE_LIMIT_SHARED", true) {
		return nil
	}
	return redisstore.New(redisstore.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     env.GetEnvInt("CACHE_PORT", 6379),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: env.GetEnvInt("CACHE_DB", 0),
		Reset:    false,
	})
}
