package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meeting-scheduler/internal/calls"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    map[string]int
	results map[string]Result
	errs    map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, callID string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runs == nil {
		f.runs = map[string]int{}
	}
	f.runs[callID]++
	if err := f.errs[callID]; err != nil {
		return Result{CallID: callID}, err
	}
	return f.results[callID], nil
}

func (f *fakeRunner) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

type heldLocker struct{ held map[string]bool }

func (l heldLocker) TryLock(ctx context.Context, id string) (func(), bool, error) {
	if l.held[id] {
		return nil, false, nil
	}
	return func() {}, true, nil
}

func seedCalls(t *testing.T, repo *calls.MemoryRepo, statuses map[string]calls.Status) {
	t.Helper()
	for id, st := range statuses {
		err := repo.CreateCall(context.Background(), calls.Call{
			ID:              id,
			Title:           id,
			DurationMinutes: 30,
			Status:          st,
			CreatedAt:       now,
		}, nil)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestSweep_RunsInFlightCallsAndCountsOutcomes(t *testing.T) {
	repo := calls.NewMemoryRepo()
	seedCalls(t, repo, map[string]calls.Status{
		"a": calls.StatusProcessing,
		"b": calls.StatusProcessing,
		"c": calls.StatusScheduled,
		"d": calls.StatusCanceled,
		"e": calls.StatusEnded,
	})
	runner := &fakeRunner{
		results: map[string]Result{
			"a": {CallID: "a", Outcome: OutcomeScheduled},
			"c": {CallID: "c", Outcome: OutcomeEnded},
		},
		errs: map[string]error{"b": errors.New("db down")},
	}

	rep, err := NewSweeper(repo, runner, SweeperOptions{Concurrency: 2}).Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Calls != 3 || rep.Errors != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Outcomes[OutcomeScheduled] != 1 || rep.Outcomes[OutcomeEnded] != 1 {
		t.Fatalf("unexpected outcomes %+v", rep.Outcomes)
	}
	if runner.count("d") != 0 || runner.count("e") != 0 {
		t.Fatalf("terminal calls must not be swept")
	}
}

func TestSweep_SkipsLockedCalls(t *testing.T) {
	repo := calls.NewMemoryRepo()
	seedCalls(t, repo, map[string]calls.Status{"a": calls.StatusProcessing, "b": calls.StatusProcessing})
	runner := &fakeRunner{}

	s := NewSweeper(repo, runner, SweeperOptions{Locker: heldLocker{held: map[string]bool{"a": true}}})
	rep, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Skipped != 1 || runner.count("a") != 0 || runner.count("b") != 1 {
		t.Fatalf("expected locked call skipped, got %+v", rep)
	}

	res, err := s.RunOne(context.Background(), "a")
	if err != nil || res.Outcome != OutcomeNoop {
		t.Fatalf("locked single run is a noop, got %+v %v", res, err)
	}
}

func TestLoop_StopsOnCancel(t *testing.T) {
	repo := calls.NewMemoryRepo()
	seedCalls(t, repo, map[string]calls.Status{"a": calls.StatusProcessing})
	runner := &fakeRunner{}
	s := NewSweeper(repo, runner, SweeperOptions{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Loop(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.count("a") < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated sweeps")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
}
