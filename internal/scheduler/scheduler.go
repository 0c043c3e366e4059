package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Refresher is a provider-side resource that needs periodic renewal, such as
// a session cookie.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context) error
}

// Scheduler periodically refreshes provider sessions. It never fetches or
// keeps trend data.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	refreshers []Refresher
	interval   time.Duration
	timeout    time.Duration
	log        zerolog.Logger
}

// New creates a new Scheduler.
func New(refreshers []Refresher, interval time.Duration, log zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:  s,
		refreshers: refreshers,
		interval:   interval,
		timeout:    30 * time.Second,
		log:        log.With().Str("component", "scheduler").Logger(),
	}
}

// Start schedules the refresh job and starts the underlying scheduler. The
// first run happens one interval after start; the provider refreshes lazily
// before its first call.
func (s *Scheduler) Start() error {
	if len(s.refreshers) == 0 || s.interval <= 0 {
		s.log.Info().Msg("session refresh disabled; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce refreshes every registered refresher concurrently. Failures are
// logged and never fatal.
func (s *Scheduler) RunOnce() {
	s.log.Debug().Msg("running session refresh job")

	var wg sync.WaitGroup
	for _, r := range s.refreshers {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			if err := r.Refresh(ctx); err != nil {
				s.log.Warn().Err(err).Str("refresher", r.Name()).Msg("session refresh failed")
			}
		}()
	}
	wg.Wait()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
