package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"meeting-scheduler/internal/calls"

	"golang.org/x/sync/errgroup"
)

// Runner is the per-call entry point driven by the sweeper.
type Runner interface {
	Run(ctx context.Context, callID string) (Result, error)
}

// Locker keeps two processes from running the same call at once.
type Locker interface {
	TryLock(ctx context.Context, id string) (unlock func(), ok bool, err error)
}

// CallLister lists the calls still in flight.
type CallLister interface {
	ListCallsByStatus(ctx context.Context, statuses ...calls.Status) ([]calls.Call, error)
}

type SweeperOptions struct {
	Concurrency int
	Interval    time.Duration
	// RunTimeout bounds a single call's run.
	RunTimeout time.Duration
	Locker     Locker
	Logger     *slog.Logger
}

// Sweeper runs the orchestrator over every in-flight call.
type Sweeper struct {
	calls    CallLister
	runner   Runner
	locker   Locker
	limit    int
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewSweeper(lister CallLister, runner Runner, opts SweeperOptions) *Sweeper {
	s := &Sweeper{
		calls:    lister,
		runner:   runner,
		locker:   opts.Locker,
		limit:    opts.Concurrency,
		interval: opts.Interval,
		timeout:  opts.RunTimeout,
		log:      opts.Logger,
	}
	if s.limit <= 0 {
		s.limit = 4
	}
	if s.interval <= 0 {
		s.interval = 5 * time.Minute
	}
	if s.timeout <= 0 {
		s.timeout = time.Minute
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Report counts the outcomes of one sweep.
type Report struct {
	Calls    int             `json:"calls"`
	Outcomes map[Outcome]int `json:"outcomes"`
	Skipped  int             `json:"skipped"`
	Errors   int             `json:"errors"`
}

// Sweep runs every processing or scheduled call once. A failing call is
// logged and counted; it never stops the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	list, err := s.calls.ListCallsByStatus(ctx, calls.StatusProcessing, calls.StatusScheduled)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Calls: len(list), Outcomes: map[Outcome]int{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for _, c := range list {
		id := c.ID
		g.Go(func() error {
			res, skipped, err := s.runOne(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case skipped:
				rep.Skipped++
			case err != nil:
				rep.Errors++
				s.log.Error("call run failed", "call_id", id, "err", err)
			default:
				rep.Outcomes[res.Outcome]++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("sweep finished",
		"calls", rep.Calls,
		"scheduled", rep.Outcomes[OutcomeScheduled],
		"canceled", rep.Outcomes[OutcomeCanceled],
		"deferred", rep.Outcomes[OutcomeDeferred],
		"skipped", rep.Skipped,
		"errors", rep.Errors,
	)
	return rep, ctx.Err()
}

// RunOne runs a single call under the lock.
func (s *Sweeper) RunOne(ctx context.Context, callID string) (Result, error) {
	res, skipped, err := s.runOne(ctx, callID)
	if skipped {
		return Result{CallID: callID, Outcome: OutcomeNoop}, nil
	}
	return res, err
}

func (s *Sweeper) runOne(ctx context.Context, callID string) (Result, bool, error) {
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, callID)
		if err != nil {
			return Result{}, false, err
		}
		if !ok {
			s.log.Debug("call locked by another worker", "call_id", callID)
			return Result{}, true, nil
		}
		defer unlock()
	}
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.runner.Run(runCtx, callID)
	return res, false, err
}

// Loop sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Loop(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RequestRun runs callID in the background. It serves as the in-process
// trigger for intake actions when no message broker is configured.
func (s *Sweeper) RequestRun(ctx context.Context, callID string) error {
	go func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if res, err := s.RunOne(rctx, callID); err != nil {
			s.log.Error("requested run failed", "call_id", callID, "err", err)
		} else {
			s.log.Debug("requested run finished", "call_id", callID, "outcome", string(res.Outcome))
		}
	}()
	return nil
}
