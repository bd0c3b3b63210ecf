// Package schedule fires browsing sessions at randomized times of day.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/birdhouse/internal/config"
	"github.com/shehryarbajwa/birdhouse/internal/console"
	"github.com/shehryarbajwa/birdhouse/internal/events"
	"github.com/shehryarbajwa/birdhouse/internal/logging"
	"github.com/shehryarbajwa/birdhouse/internal/runs"
	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// ErrBusy is returned when a run is requested while another is in progress.
var ErrBusy = errors.New("a browsing session is already running")

// ErrStopped is returned when a run is requested after Stop.
var ErrStopped = errors.New("scheduler is stopped")

// RunFunc performs one browsing session.
type RunFunc func(ctx context.Context, trigger models.Trigger) (*models.Run, error)

// PickSlots picks between SessionsMin and SessionsMax distinct daily times
// within [HourMin, HourMax], sorted.
func PickSlots(rng *rand.Rand, cfg *config.Config) []models.Slot {
	n := cfg.SessionsMin + rng.IntN(cfg.SessionsMax-cfg.SessionsMin+1)

	seen := make(map[models.Slot]bool, n)
	slots := make([]models.Slot, 0, n)
	for len(slots) < n {
		slot := models.Slot{
			Hour:   cfg.HourMin + rng.IntN(cfg.HourMax-cfg.HourMin+1),
			Minute: rng.IntN(60),
		}
		if seen[slot] {
			continue
		}
		seen[slot] = true
		slots = append(slots, slot)
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

// Options holds the optional collaborators of a Scheduler.
type Options struct {
	Rand     *rand.Rand
	Runs     *runs.Registry
	Events   events.Publisher
	Location *time.Location
	Logger   logging.Logger
	Console  *console.Printer
}

// Scheduler registers one daily cron entry per slot. At most one run is in
// progress at a time; overlapping requests are recorded as skipped.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	cfg    *config.Config
	sem    *semaphore.Weighted
	runs   *runs.Registry
	events events.Publisher
	logger logging.Logger
	out    *console.Printer
	now    func() time.Time

	mu          sync.Mutex
	rng         *rand.Rand
	slots       []models.Slot
	entryIDs    []cron.EntryID
	reshuffleID cron.EntryID
	stopping    bool

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
	stopped   chan struct{}
	stopOnce  sync.Once
}

// New creates a Scheduler that calls run for every slot.
func New(cfg *config.Config, run RunFunc, opts Options) *Scheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	reg := opts.Runs
	if reg == nil {
		reg = runs.NewRegistry(0)
	}
	pub := opts.Events
	if pub == nil {
		pub = events.PublisherFunc(func(events.Event) {})
	}
	out := opts.Console
	if out == nil {
		out = console.New(nil)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	runCtx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		run:       run,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(1),
		runs:      reg,
		events:    pub,
		logger:    logging.Component(opts.Logger, "schedule"),
		out:       out,
		now:       func() time.Time { return time.Now().In(loc) },
		rng:       rng,
		runCtx:    runCtx,
		cancelRun: cancel,
		stopped:   make(chan struct{}),
	}
}

// Start picks today's slots, registers them and starts the cron loop. The
// scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	slots := PickSlots(s.rng, s.cfg)
	if err := s.registerLocked(slots); err != nil {
		s.mu.Unlock()
		return err
	}

	if s.cfg.ReshuffleDaily {
		id, err := s.cron.AddFunc("0 0 * * *", func() {
			if err := s.Reshuffle(); err != nil {
				s.logger.Error("reshuffle failed: %v", err)
			}
		})
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to register reshuffle: %w", err)
		}
		s.reshuffleID = id
	}
	s.mu.Unlock()

	s.announce(slots)
	s.cron.Start()
	s.logger.Info("scheduler started with %d sessions", len(slots))

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	}()
	return nil
}

// Stop cancels any run in progress and waits for it to return. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("scheduler stopping...")
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		s.cancelRun()
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		s.wg.Wait()
		close(s.stopped)
		s.logger.Info("scheduler stopped")
	})
}

// Done is closed once the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// Reshuffle replaces the registered slots with freshly picked ones.
func (s *Scheduler) Reshuffle() error {
	s.mu.Lock()
	for _, id := range s.entryIDs {
		s.cron.Remove(id)
	}
	s.entryIDs = nil
	slots := PickSlots(s.rng, s.cfg)
	err := s.registerLocked(slots)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.announce(slots)
	return nil
}

// Slots returns the registered daily times.
func (s *Scheduler) Slots() []models.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Slot(nil), s.slots...)
}

// Next returns the next time a session fires, or the zero time when no
// slot is registered.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	ids := append([]cron.EntryID(nil), s.entryIDs...)
	s.mu.Unlock()

	now := s.now()
	var next time.Time
	for _, id := range ids {
		entry := s.cron.Entry(id)
		if !entry.Valid() {
			continue
		}
		t := entry.Schedule.Next(now)
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	if s.sem.TryAcquire(1) {
		s.sem.Release(1)
		return false
	}
	return true
}

// Trigger starts a run in the background. It returns ErrBusy, and records
// a skipped run, when another run is in progress, and ErrStopped once Stop
// has been called.
func (s *Scheduler) Trigger(trigger models.Trigger) error {
	if err := s.acquire(trigger); err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		s.execute(trigger)
	}()
	return nil
}

func (s *Scheduler) fire() {
	if err := s.acquire(models.TriggerSchedule); err != nil {
		return
	}
	defer s.wg.Done()
	s.execute(models.TriggerSchedule)
}

// acquire takes the run slot and registers the run with wg. The stopping
// check and wg.Add happen under mu so Stop never waits on a moving count.
func (s *Scheduler) acquire(trigger models.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		s.logger.Info("ignoring %s run: %v", trigger, ErrStopped)
		return ErrStopped
	}
	if !s.sem.TryAcquire(1) {
		run := s.runs.Skip(models.KindBrowse, trigger, ErrBusy.Error())
		s.events.Publish(events.Event{Type: events.RunSkipped, RunID: run.ID, Message: ErrBusy.Error()})
		s.out.Warn("Skipping %s session: %v", trigger, ErrBusy)
		s.logger.Warn("skipped %s run: %v", trigger, ErrBusy)
		return ErrBusy
	}
	s.wg.Add(1)
	return nil
}

func (s *Scheduler) execute(trigger models.Trigger) {
	defer s.sem.Release(1)

	run, err := s.run(s.runCtx, trigger)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		s.logger.Info("%s run cancelled", trigger)
	case run == nil:
		// Nothing was launched, e.g. the cookie export is missing.
		s.out.Error("Browsing session did not start: %v", err)
		s.logger.Error("%s run did not start: %v", trigger, err)
	default:
		s.logger.Error("%s run %s failed: %v", trigger, run.ID, err)
	}

	if next := s.Next(); !next.IsZero() {
		s.out.Printf("⏰ Next session at %s", next.Format("15:04"))
	}
}

// registerLocked adds a daily entry for each slot. Must be called with s.mu
// held.
func (s *Scheduler) registerLocked(slots []models.Slot) error {
	ids := make([]cron.EntryID, 0, len(slots))
	for _, slot := range slots {
		id, err := s.cron.AddFunc(slot.CronSpec(), s.fire)
		if err != nil {
			for _, added := range ids {
				s.cron.Remove(added)
			}
			return fmt.Errorf("invalid schedule for %s: %w", slot, err)
		}
		ids = append(ids, id)
	}
	s.slots = slots
	s.entryIDs = ids
	return nil
}

func (s *Scheduler) announce(slots []models.Slot) {
	s.out.Printf("📅 Scheduling %d browsing sessions today...", len(slots))
	for i, slot := range slots {
		s.out.Printf("  ⏰ Session %d: %s", i+1, slot)
	}
}
