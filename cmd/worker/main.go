package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/ticketbari/config"
	"github.com/Domenick1991/ticketbari/internal/bootstrap"
	"github.com/Domenick1991/ticketbari/internal/cache"
	"github.com/Domenick1991/ticketbari/internal/kafka"
	"github.com/Domenick1991/ticketbari/internal/notify"
	"github.com/Domenick1991/ticketbari/internal/repository"
	"github.com/Domenick1991/ticketbari/internal/service/booking"
	"github.com/Domenick1991/ticketbari/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	cfgPath := pflag.String("config", defaultPath, "path to the YAML config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger, err := bootstrap.NewLogger(cfg.Log, "worker")
	if err != nil {
		logrus.Fatalf("configure logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger.WithField("component", "producer"))
	defer producer.Close()
	clock := clockwork.NewRealClock()
	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.TicketsCacheTTL(), cache.WithClock(clock))
	defer redisCache.Close()

	bookingService := booking.NewBookingService(
		repository.NewBookingRepository(pool),
		repository.NewTicketRepository(pool),
		redisCache,
		producer,
		cfg.Kafka.BookingEventsTopic,
		cfg.Booking.LockTTL(),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithFlagTTL(cfg.Worker.FlagTTL()),
		booking.WithClock(clock),
		booking.WithLogger(logger.WithField("component", "bookings")),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger.WithField("component", "consumer"))
	defer consumer.Close()
	sender := notify.NewSender(logger.WithField("component", "notify"))

	go func() {
		if err := consumer.Consume(ctx, consumer.BookingEventHandler(sender.Send)); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("consumer stopped")
			stop()
		}
	}()

	sweeper, err := worker.NewSweeper(bookingService, cfg.Worker.SweepInterval(), clock, logger.WithField("component", "sweeper"))
	if err != nil {
		logger.WithError(err).Fatal("create sweeper")
	}
	if err := sweeper.Start(ctx); err != nil {
		logger.WithError(err).Fatal("start sweeper")
	}

	<-ctx.Done()
	logger.Info("shutting down")
	if err := sweeper.Stop(); err != nil {
		logger.WithError(err).Warn("stop sweeper")
	}
}
