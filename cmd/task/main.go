package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zllovesuki/studio/auth"
	"github.com/zllovesuki/studio/broker"
	"github.com/zllovesuki/studio/class"
	"github.com/zllovesuki/studio/config"
	"github.com/zllovesuki/studio/db"
	"github.com/zllovesuki/studio/notification"
	"github.com/zllovesuki/studio/subscription"
	"github.com/zllovesuki/studio/task"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
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

	subscriptionTaskCapable := flag.Bool("subscription", false, "task instance will also be responsible for SubscriptionTask")
	flag.Parse()

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
			"component": "task",
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

	if cfg.AMQPURI == "" {
		logger.Fatal("AMQP_URI is required for the task instance")
	}
	amqpBroker, err := broker.NewAMQPBroker(logger, cfg.AMQPURI)
	if err != nil {
		logger.Fatal("Cannot connect to Broker",
			zap.Error(err),
		)
	}
	defer amqpBroker.Close()

	classManager, err := class.NewManager(logger, gormDB)
	if err != nil {
		logger.Fatal("Cannot initialize ClassManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:               gormDB,
		Logger:           logger,
		Producer:         amqpBroker,
		SweepConcurrency: cfg.SweepConcurrency,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
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

	notificationTask, err := task.NewNotificationTask(task.NotificationOptions{
		Consumer:            amqpBroker,
		NotificationManager: notificationManager,
		ClassManager:        classManager,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot get notification task",
			zap.Error(err),
		)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	if err := notificationTask.HandleEvents(ctx); err != nil {
		logger.Fatal("Cannot handle subscription events",
			zap.Error(err),
		)
	}

	if *subscriptionTaskCapable {
		subscriptionTask, err := task.NewSubscriptionTask(task.SubscriptionOptions{
			SubscriptionManager: subscriptionManager,
			NotificationManager: notificationManager,
			ClassManager:        classManager,
			Logger:              logger,
			Interval:            cfg.SweepInterval,
			ReminderDays:        cfg.ExpiryReminderDays,
		})
		if err != nil {
			logger.Fatal("Cannot get subscription task",
				zap.Error(err),
			)
		}
		go subscriptionTask.Run(ctx)
		logger.Info("Task instance will run SubscriptionTask")
	}

	logger.Info("Task instance started")

	<-c
	cancel()

}
