package placebot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultColorIndex is the fill color submitted for every target pixel.
const DefaultColorIndex = 12

const (
	defaultRetryDelay = 30 * time.Second
	defaultMaxRetries = 3
)

// State is a step of the scheduling loop.
type State int

const (
	// StateReady compares the clock with the cooldown.
	StateReady State = iota
	// StateCooling sleeps out the cooldown plus the safety buffer.
	StateCooling
	StateFetching
	StateSelecting
	StateSubmitting
	// StateTerminated is absorbing.
	StateTerminated
)

var stateNames = [...]string{"ready", "cooling", "fetching", "selecting", "submitting", "terminated"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PixelSubmitter places one pixel.
type PixelSubmitter interface {
	SubmitPixel(ctx context.Context, p Point, colorIndex int) (*SubmitResult, error)
}

// Stats counts what a Scheduler has done so far.
type Stats struct {
	Cycles     int
	Placed     int
	Rejected   int
	LastPlaced *Point
}

// Scheduler drives fetch, select, submit and cooldown waits until the canvas matches
// the target, the credential expires, or the context is cancelled.
// It runs strictly sequentially; there is never more than one request in flight.
type Scheduler struct {
	fetcher    CanvasFetcher
	submitter  PixelSubmitter
	target     *Target
	colorIndex int
	cooldown   *Cooldown
	notifier   Notifier
	idle       time.Duration
	retryDelay time.Duration
	maxRetries int
	hook       func(State)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	stats Stats
}

// SchedulerOption mutates the scheduler during construction.
type SchedulerOption func(*Scheduler)

// WithColorIndex sets the fill color. Default is DefaultColorIndex.
func WithColorIndex(idx int) SchedulerOption {
	return func(s *Scheduler) { s.colorIndex = idx }
}

// WithCooldown shares an existing cooldown state, e.g. one also used as a client limiter.
func WithCooldown(c *Cooldown) SchedulerOption {
	return func(s *Scheduler) { s.cooldown = c }
}

// WithCooldownBuffer sets the safety buffer added to every cooldown wait.
func WithCooldownBuffer(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.cooldown = NewCooldown(d) }
}

// WithNotifier is told about every accepted pixel. Default is LogNotifier.
func WithNotifier(n Notifier) SchedulerOption {
	return func(s *Scheduler) { s.notifier = n }
}

// WithIdleInterval keeps the scheduler running once the canvas matches the target,
// re-checking every d. Zero (the default) makes Run return instead.
func WithIdleInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.idle = d }
}

// WithRetry sets how many consecutive transient failures are tolerated and the
// delay before each retry. max < 0 disables retries.
func WithRetry(max int, delay time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.maxRetries = max
		s.retryDelay = delay
	}
}

// WithStateHook is called on every state entered, including StateTerminated.
func WithStateHook(fn func(State)) SchedulerOption {
	return func(s *Scheduler) { s.hook = fn }
}

// NewScheduler wires the loop. The target must contain at least one pixel.
func NewScheduler(fetcher CanvasFetcher, submitter PixelSubmitter, target *Target, opts ...SchedulerOption) (*Scheduler, error) {
	if fetcher == nil || submitter == nil {
		return nil, errors.New("placebot: scheduler needs a fetcher and a submitter")
	}
	if target.Len() == 0 {
		return nil, ErrTargetEmpty
	}
	s := &Scheduler{
		fetcher:    fetcher,
		submitter:  submitter,
		target:     target,
		colorIndex: DefaultColorIndex,
		cooldown:   NewCooldown(DefaultCooldownBuffer),
		notifier:   LogNotifier{},
		retryDelay: defaultRetryDelay,
		maxRetries: defaultMaxRetries,
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.cooldown == nil {
		s.cooldown = NewCooldown(DefaultCooldownBuffer)
	}
	return s, nil
}

// Cooldown returns the scheduler's cooldown state.
func (s *Scheduler) Cooldown() *Cooldown { return s.cooldown }

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	if st.LastPlaced != nil {
		p := *st.LastPlaced
		st.LastPlaced = &p
	}
	return st
}

// Run executes the loop. It returns nil when the target is complete or ctx is
// cancelled, ErrCredentialExpired (wrapped) when the token is rejected, and the
// failure itself for protocol errors or exhausted retries.
func (s *Scheduler) Run(ctx context.Context) error {
	var (
		state     = StateReady
		grid      *CanvasGrid
		next      Point
		remaining int
		failures  int
		result    error
	)
	log := Logger()

	// retry handles a transient failure; it returns the next state.
	retry := func(err error) State {
		failures++
		if s.maxRetries < 0 || failures > s.maxRetries {
			result = fmt.Errorf("placebot: giving up after %d attempts: %w", failures, err)
			return StateTerminated
		}
		log.Warn("transient failure, retrying", "attempt", failures, "delay", s.retryDelay, "error", err)
		if s.sleep(ctx, s.retryDelay) != nil {
			return StateTerminated
		}
		return StateReady
	}

	for state != StateTerminated {
		if ctx.Err() != nil {
			break
		}
		s.enter(state)

		switch state {
		case StateReady:
			if _, cooling := s.cooldown.Remaining(s.now()); cooling {
				state = StateCooling
			} else {
				state = StateFetching
			}

		case StateCooling:
			d, cooling := s.cooldown.Remaining(s.now())
			if cooling {
				log.Info("currently on cooldown", "wait", d.Round(time.Second), "until", s.cooldown.Until().Format(time.RFC3339))
				if s.sleep(ctx, d) != nil {
					state = StateTerminated
					break
				}
			}
			state = StateReady

		case StateFetching:
			s.count(func(st *Stats) { st.Cycles++ })
			g, err := s.fetcher.FetchCanvas(ctx)
			switch {
			case ctx.Err() != nil:
				state = StateTerminated
			case err == nil && !g.Empty():
				grid, failures = g, 0
				state = StateSelecting
			case err == nil:
				result = fmt.Errorf("%w: empty canvas snapshot", ErrCredentialExpired)
				state = StateTerminated
			case IsAuthError(err):
				result = credentialError(err)
				state = StateTerminated
			case IsTransient(err):
				state = retry(err)
			default:
				result = err
				state = StateTerminated
			}

		case StateSelecting:
			p, err := FirstDifference(s.target.Points, grid, s.colorIndex)
			if errors.Is(err, ErrNoDifference) {
				grid = nil
				if s.idle <= 0 {
					log.Info("canvas matches target, nothing left to do")
					state = StateTerminated
					break
				}
				log.Info("canvas matches target, idling", "interval", s.idle)
				if s.sleep(ctx, s.idle) != nil {
					state = StateTerminated
					break
				}
				state = StateReady
				break
			}
			remaining = CountDifferences(s.target.Points, grid, s.colorIndex)
			grid = nil
			next = p
			log.Info("found tile", "x", p.X, "y", p.Y, "remaining", remaining)
			state = StateSubmitting

		case StateSubmitting:
			res, err := s.submitter.SubmitPixel(ctx, next, s.colorIndex)
			if err != nil {
				switch {
				case ctx.Err() != nil:
					state = StateTerminated
				case IsAuthError(err):
					result = credentialError(err)
					state = StateTerminated
				case IsTransient(err):
					state = retry(err)
				default:
					result = err
					state = StateTerminated
				}
				break
			}
			failures = 0
			s.cooldown.Set(res.NextAvailable)
			if res.Outcome == OutcomeAccepted {
				s.placed(ctx, next, res, remaining-1)
			} else {
				s.count(func(st *Stats) { st.Rejected++ })
				log.Info("still on cooldown", "until", res.NextAvailable.Format(time.RFC3339))
			}
			state = StateReady
		}
	}

	s.enter(StateTerminated)
	return result
}

func (s *Scheduler) placed(ctx context.Context, p Point, res *SubmitResult, remaining int) {
	s.count(func(st *Stats) {
		st.Placed++
		st.LastPlaced = &p
	})
	if s.notifier == nil {
		return
	}
	ev := PlacedPixel{
		X:             p.X,
		Y:             p.Y,
		ColorIndex:    s.colorIndex,
		PlacedAt:      s.now(),
		NextAvailable: res.NextAvailable,
		Remaining:     remaining,
	}
	if ci, ok := s.submitter.(interface{ CanvasIndex() int }); ok {
		ev.CanvasIndex = ci.CanvasIndex()
	}
	if err := s.notifier.PixelPlaced(ctx, ev); err != nil {
		Logger().Warn("notification failed", "error", err)
	}
}

func (s *Scheduler) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

func (s *Scheduler) enter(st State) {
	Logger().Debug("scheduler state", "state", st)
	if s.hook != nil {
		s.hook(st)
	}
}

func credentialError(err error) error {
	if errors.Is(err, ErrCredentialExpired) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCredentialExpired, err)
}
