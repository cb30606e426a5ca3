package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zllovesuki/studio/attendance"
	"github.com/zllovesuki/studio/auth"
	"github.com/zllovesuki/studio/broker"
	"github.com/zllovesuki/studio/class"
	"github.com/zllovesuki/studio/config"
	"github.com/zllovesuki/studio/db"
	"github.com/zllovesuki/studio/makeup"
	"github.com/zllovesuki/studio/notification"
	"github.com/zllovesuki/studio/revenue"
	specBroker "github.com/zllovesuki/studio/spec/broker"
	"github.com/zllovesuki/studio/student"
	"github.com/zllovesuki/studio/subscription"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var err error

	// Determine running environment and initialize structural logger
	environment := config.CurrentEnvironment(os.Getenv("ENV"))
	if environment == config.Production {
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))

	// Load configurations from dotFile
	cfg, err := config.Load(environment)
	if err != nil {
		logger.Fatal("Cannot load configurations",
			zap.Error(err),
		)
	}

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: string(authEnvironment),
		Release:     Version,
		Debug:       authEnvironment == auth.EnvDevelopment,
	}); err != nil {
		logger.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	sentryCfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(sentryCfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot attach sentry to logger",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	defer logger.Sync()

	// Initialize backend connections
	gormDB, err := db.New(db.Options{
		URI:    cfg.PostgresURI,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot connect to database",
			zap.Error(err),
		)
	}

	var rdb redis.UniversalClient
	if cfg.RedisURI != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisURI},
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("Cannot connect to Redis",
				zap.Error(err),
			)
		}
		defer rdb.Close()
	}

	var producer specBroker.Producer = specBroker.NopProducer{}
	if cfg.AMQPURI != "" {
		amqpBroker, err := broker.NewAMQPBroker(logger, cfg.AMQPURI)
		if err != nil {
			logger.Fatal("Cannot connect to Broker",
				zap.Error(err),
			)
		}
		defer amqpBroker.Close()
		producer = amqpBroker
	}

	authenticator, err := auth.New(auth.Options{
		Logger:        logger,
		JWTSigningKey: cfg.JWTSigningKey,
		Environment:   authEnvironment,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Auth",
			zap.Error(err),
		)
	}

	// Initialize managers
	studentManager, err := student.NewManager(logger, gormDB)
	if err != nil {
		logger.Fatal("Cannot initialize StudentManager",
			zap.Error(err),
		)
	}

	classManager, err := class.NewManager(logger, gormDB)
	if err != nil {
		logger.Fatal("Cannot initialize ClassManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:               gormDB,
		Logger:           logger,
		Producer:         producer,
		SweepConcurrency: cfg.SweepConcurrency,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	attendanceManager, err := attendance.NewManager(attendance.ManagerOptions{
		DB:                  gormDB,
		Logger:              logger,
		SubscriptionManager: subscriptionManager,
	})
	if err != nil {
		logger.Fatal("Cannot initialize AttendanceManager",
			zap.Error(err),
		)
	}

	notificationManager, err := notification.NewManager(notification.ManagerOptions{
		DB:     gormDB,
		Logger: logger,
		Redis:  rdb,
	})
	if err != nil {
		logger.Fatal("Cannot initialize NotificationManager",
			zap.Error(err),
		)
	}

	makeupManager, err := makeup.NewManager(makeup.ManagerOptions{
		DB:                  gormDB,
		Logger:              logger,
		AttendanceManager:   attendanceManager,
		ClassManager:        classManager,
		NotificationManager: notificationManager,
	})
	if err != nil {
		logger.Fatal("Cannot initialize MakeupManager",
			zap.Error(err),
		)
	}

	revenueManager, err := revenue.NewManager(logger, gormDB)
	if err != nil {
		logger.Fatal("Cannot initialize RevenueManager",
			zap.Error(err),
		)
	}

	// Initialize routers
	studentRouter, err := student.NewService(student.Options{
		StudentManager: studentManager,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Student Service Router",
			zap.Error(err),
		)
	}

	classRouter, err := class.NewService(class.ServiceOptions{
		ClassManager: classManager,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Class Service Router",
			zap.Error(err),
		)
	}

	subscriptionRouter, err := subscription.NewService(subscription.ServiceOptions{
		SubscriptionManager: subscriptionManager,
		StudentManager:      studentManager,
		ClassManager:        classManager,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Subscription Service Router",
			zap.Error(err),
		)
	}

	attendanceRouter, err := attendance.NewService(attendance.ServiceOptions{
		AttendanceManager: attendanceManager,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Attendance Service Router",
			zap.Error(err),
		)
	}

	notificationRouter, err := notification.NewService(notification.ServiceOptions{
		NotificationManager: notificationManager,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Notification Service Router",
			zap.Error(err),
		)
	}

	makeupRouter, err := makeup.NewService(makeup.ServiceOptions{
		MakeupManager: makeupManager,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Makeup Service Router",
			zap.Error(err),
		)
	}

	revenueRouter, err := revenue.NewService(revenue.ServiceOptions{
		RevenueManager: revenueManager,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Revenue Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(middleware.RequestID)
	rootRouter.Use(middleware.Recoverer)
	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rootRouter.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware())
		r.Use(authenticator.ClaimCheck())

		r.Mount("/notifications", notificationRouter.Router())

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireStaff)

			r.Mount("/students", studentRouter.Router())
			r.Mount("/classes", classRouter.Router())
			r.Mount("/subscriptions", subscriptionRouter.Router())
			r.Mount("/attendance", attendanceRouter.Router())
			r.Mount("/makeups", makeupRouter.Router())
			r.Mount("/revenue", revenueRouter.Router())
		})
	})

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "OK")
	})

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    cfg.ListenAddr,
	}

	go func() {
		logger.Info("API server started",
			zap.String("Addr", cfg.ListenAddr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server stopped unexpectedly",
				zap.Error(err),
			)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Cannot shutdown API server gracefully",
			zap.Error(err),
		)
	}
}
