package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/ticketbari/api"
	"github.com/Domenick1991/ticketbari/config"
	"github.com/Domenick1991/ticketbari/internal/auth"
	"github.com/Domenick1991/ticketbari/internal/bootstrap"
	"github.com/Domenick1991/ticketbari/internal/cache"
	"github.com/Domenick1991/ticketbari/internal/kafka"
	"github.com/Domenick1991/ticketbari/internal/repository"
	"github.com/Domenick1991/ticketbari/internal/service/booking"
	"github.com/Domenick1991/ticketbari/internal/service/tickets"
	"github.com/Domenick1991/ticketbari/internal/ticketpass"
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
	logger, err := bootstrap.NewLogger(cfg.Log, "app")
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

	clock := clockwork.NewRealClock()
	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.TicketsCacheTTL(), cache.WithClock(clock))
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		logger.WithError(err).Warn("redis unavailable, booking locks will fail until it recovers")
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger.WithField("component", "producer"))
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		logger.WithError(err).Warn("kafka unavailable, events will be dropped")
	}

	ticketRepo := repository.NewTicketRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)

	ticketService := tickets.NewTicketService(
		ticketRepo,
		redisCache,
		tickets.WithClock(clock),
		tickets.WithLogger(logger.WithField("component", "tickets")),
	)
	bookingService := booking.NewBookingService(
		bookingRepo,
		ticketRepo,
		redisCache,
		producer,
		cfg.Kafka.BookingEventsTopic,
		cfg.Booking.LockTTL(),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithFlagTTL(cfg.Worker.FlagTTL()),
		booking.WithMutationTimeout(cfg.Booking.MutationTimeout()),
		booking.WithPageSize(cfg.Booking.PageSize),
		booking.WithClock(clock),
		booking.WithLogger(logger.WithField("component", "bookings")),
	)

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL(), clock)
	router := api.NewRouter(
		logger.WithField("component", "http"),
		issuer,
		api.NewTicketHandler(ticketService),
		api.NewBookingHandler(bookingService, ticketpass.NewRenderer(cfg.Auth.PassSecret), clock),
	)

	if err := bootstrap.Run(ctx, cfg, router, logger); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}
