package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gitcord/internal/domain"
)

// Syncer runs one poll cycle for one feed.
type Syncer interface {
	SyncFeed(ctx context.Context, feed *domain.Feed) (*domain.CycleStats, error)
}

// FeedLister enumerates the tracked feeds at the start of each tick.
type FeedLister interface {
	List(ctx context.Context) ([]domain.Feed, error)
}

type Config struct {
	Interval       time.Duration
	Workers        int
	CycleTimeout   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Scheduler drives the poll loop: every tick it lists the tracked feeds
// and hands them to a bounded worker pool. Ordering is guaranteed within
// a feed only; feeds sharing a destination channel may interleave.
type Scheduler struct {
	syncer Syncer
	feeds  FeedLister
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	gates map[string]*feedGate
}

// feedGate holds the per-feed re-poll restrictions: the host's advertised
// poll interval and the backoff applied after transient source failures.
type feedGate struct {
	notBefore time.Time
	bo        *backoff.ExponentialBackOff
}

func NewScheduler(syncer Syncer, feeds FeedLister, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer: syncer,
		feeds:  feeds,
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
		gates:  make(map[string]*feedGate),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"workers", s.cfg.Workers,
	)

	s.runTick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	feeds, err := s.feeds.List(ctx)
	if err != nil {
		s.logger.Error("list feeds failed", "error", err)
		return
	}

	jobs := make(chan domain.Feed)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for feed := range jobs {
				s.runFeed(ctx, &feed)
			}
		}()
	}

	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		jobs <- feed
	}
	close(jobs)
	wg.Wait()
}

func (s *Scheduler) runFeed(ctx context.Context, feed *domain.Feed) {
	if wait := s.gateClosed(feed.Subject); wait > 0 {
		s.logger.Debug("too early to re-poll", "subject", feed.Subject, "wait", wait)
		return
	}

	// The cycle is detached from the shutdown signal so an in-flight feed
	// can resolve its current item and persist its cursor; the timeout
	// bounds how long that may take.
	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CycleTimeout)
	defer cancel()

	stats, err := s.syncer.SyncFeed(cycleCtx, feed)

	switch {
	case err == nil:
		s.gateOpen(feed.Subject, pollInterval(stats))
	case errors.Is(err, domain.ErrSourceUnavailable):
		delay := s.gateBackoff(feed.Subject)
		s.logger.Warn("source unavailable, feed backed off",
			"subject", feed.Subject,
			"retry_in", delay,
			"error", err,
		)
	case errors.Is(err, domain.ErrSourceRejected):
		// Deleted or renamed subject, or bad credentials. The feed stays;
		// removal is the operator's call.
		s.logger.Error("source rejected poll, cycle skipped",
			"subject", feed.Subject,
			"error", err,
		)
	case errors.Is(err, domain.ErrDeliveryUnavailable):
		s.logger.Warn("delivery unavailable, cycle halted",
			"subject", feed.Subject,
			"error", err,
		)
	default:
		s.logger.Error("cycle failed", "subject", feed.Subject, "error", err)
	}
}

// gateClosed returns how long the feed must still wait, or zero when it
// may be polled now.
func (s *Scheduler) gateClosed(subject string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[subject]
	if !ok {
		return 0
	}
	return time.Until(g.notBefore)
}

// gateOpen resets the failure backoff after a successful cycle and
// applies the host's advertised minimum poll delay.
func (s *Scheduler) gateOpen(subject string, hostDelay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gate(subject)
	g.bo = nil
	g.notBefore = time.Now().Add(hostDelay)
}

// gateBackoff advances the feed's exponential backoff and returns the
// applied delay.
func (s *Scheduler) gateBackoff(subject string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gate(subject)
	if g.bo == nil {
		g.bo = backoff.NewExponentialBackOff()
		g.bo.InitialInterval = s.cfg.InitialBackoff
		g.bo.MaxInterval = s.cfg.MaxBackoff
		g.bo.MaxElapsedTime = 0 // capped, never gives up
	}
	delay := g.bo.NextBackOff()
	g.notBefore = time.Now().Add(delay)
	return delay
}

func (s *Scheduler) gate(subject string) *feedGate {
	g, ok := s.gates[subject]
	if !ok {
		g = &feedGate{}
		s.gates[subject] = g
	}
	return g
}

func pollInterval(stats *domain.CycleStats) time.Duration {
	if stats == nil {
		return 0
	}
	return time.Duration(stats.PollInterval) * time.Second
}
