package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// ExpiryFlagger reports approved bookings whose trip has departed unpaid.
type ExpiryFlagger interface {
	FlagExpiredApproved(ctx context.Context) ([]domain.Booking, error)
}

// Sweeper runs the trip expiry sweep on a fixed interval.
type Sweeper struct {
	flagger   ExpiryFlagger
	scheduler gocron.Scheduler
	interval  time.Duration
	logger    *logrus.Entry
}

func NewSweeper(flagger ExpiryFlagger, interval time.Duration, clock clockwork.Clock, logger *logrus.Entry) (*Sweeper, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Sweeper{
		flagger:   flagger,
		scheduler: scheduler,
		interval:  interval,
		logger:    logger,
	}, nil
}

// Start registers the sweep job and starts the scheduler. The first sweep
// runs immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.Sweep(ctx) }),
		gocron.WithName("trip-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	s.scheduler.Start()
	s.logger.WithField("interval", s.interval.String()).Info("trip expiry sweep scheduled")
	return nil
}

// Sweep flags departed approved bookings once and returns how many were
// reported.
func (s *Sweeper) Sweep(ctx context.Context) int {
	flagged, err := s.flagger.FlagExpiredApproved(ctx)
	if err != nil {
		s.logger.WithError(err).Error("trip expiry sweep failed")
		return 0
	}
	if len(flagged) > 0 {
		s.logger.WithField("count", len(flagged)).Info("flagged expired approved bookings")
	}
	return len(flagged)
}

func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}
