// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/pingcap/stepflow/pkg/progress"
	"github.com/pingcap/stepflow/pkg/workflow"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type workerHarness struct {
	store    *progress.MemoryStore
	broker   *MemoryBroker
	backend  Backend
	client   *Client
	registry *workflow.Registry

	cancel context.CancelFunc
	errCh  chan error
}

func newWorkerHarness(t *testing.T, registry *workflow.Registry, cfg WorkerConfig) *workerHarness {
	return newWorkerHarnessWithBackend(t, registry, cfg, NewMemoryBackend())
}

func newWorkerHarnessWithBackend(
	t *testing.T, registry *workflow.Registry, cfg WorkerConfig, backend Backend,
) *workerHarness {
	h := &workerHarness{
		store:    progress.NewMemoryStore(),
		broker:   NewMemoryBroker(0),
		backend:  backend,
		registry: registry,
		errCh:    make(chan error, 1),
	}
	h.client = NewClient(h.broker, h.backend)

	if cfg.ID == "" {
		cfg.ID = "worker-test"
	}
	worker := NewWorker(cfg, h.broker, h.backend, h.store, registry)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.errCh <- worker.Run(ctx)
	}()
	t.Cleanup(func() { h.stop(t) })
	return h
}

func (h *workerHarness) stop(t *testing.T) {
	h.cancel()
	if err, ok := <-h.errCh; ok {
		close(h.errCh)
		require.ErrorIs(t, errors.Cause(err), context.Canceled)
	}
}

func (h *workerHarness) launch(t *testing.T, plan workflow.Plan) (jobID, taskID string) {
	builder := workflow.NewBuilder(h.client, h.store, h.registry, plan)
	jobID, err := builder.Launch(context.Background())
	require.NoError(t, err)
	r, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	return jobID, r.TaskID
}

func (h *workerHarness) waitStatus(t *testing.T, taskID string, want Status) {
	require.Eventually(t, func() bool {
		st, err := h.client.Status(context.Background(), taskID)
		return err == nil && st == want
	}, testTimeout, testTick)
}

func work(f func(ctx context.Context, jobID string) error) workflow.WorkFunc {
	return f
}

func noop(context.Context, string) error { return nil }

func TestWorkerRunsDemoPlan(t *testing.T) {
	h := newWorkerHarness(t, workflow.DemoRegistry(clock.New(), 0), WorkerConfig{Concurrency: 2})
	jobID, taskID := h.launch(t, workflow.DemoPlan())

	h.waitStatus(t, taskID, StatusSucceeded)
	r, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, progress.Record{TaskID: taskID, Step: workflow.DemoTask4, Percent: 85}, r)
}

func TestWorkerGroupIsABarrier(t *testing.T) {
	var (
		started  sync.WaitGroup
		finished atomic.Int32
		sawBoth  atomic.Bool
	)
	started.Add(2)
	member := work(func(ctx context.Context, jobID string) error {
		started.Done()
		// both members must be running at the same time
		done := make(chan struct{})
		go func() {
			started.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		finished.Inc()
		return nil
	})

	registry := workflow.NewRegistry()
	registry.MustRegister(
		workflow.Step{Name: "fan-a", Percent: 40, Work: member},
		workflow.Step{Name: "fan-b", Percent: 40, Work: member},
		workflow.Step{Name: "join", Percent: 60, Work: work(func(context.Context, string) error {
			sawBoth.Store(finished.Load() == 2)
			return nil
		})},
	)
	h := newWorkerHarness(t, registry, WorkerConfig{Concurrency: 2})
	jobID, taskID := h.launch(t, workflow.Sequence(workflow.Group("fan-a", "fan-b"), workflow.Single("join")))

	h.waitStatus(t, taskID, StatusSucceeded)
	require.True(t, sawBoth.Load())
	r, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, "join", r.Step)
	require.Equal(t, 60, r.Percent)
}

func TestWorkerFailures(t *testing.T) {
	var lastRan atomic.Bool
	registry := workflow.NewRegistry()
	registry.MustRegister(
		workflow.Step{Name: "first", Percent: 10, Work: noop},
		workflow.Step{Name: "broken", Percent: 20, Work: work(func(context.Context, string) error {
			return errors.New("disk full")
		})},
		workflow.Step{Name: "panicky", Percent: 20, Work: work(func(context.Context, string) error {
			panic("unexpected")
		})},
		workflow.Step{Name: "last", Percent: 30, Work: work(func(context.Context, string) error {
			lastRan.Store(true)
			return nil
		})},
	)
	h := newWorkerHarness(t, registry, WorkerConfig{})

	for _, failing := range []string{"broken", "panicky"} {
		jobID, taskID := h.launch(t, workflow.Sequence(
			workflow.Single("first"), workflow.Single(failing), workflow.Single("last")))
		h.waitStatus(t, taskID, StatusFailed)
		r, err := h.store.Get(context.Background(), jobID)
		require.NoError(t, err)
		require.Equal(t, failing, r.Step)
		require.Equal(t, 20, r.Percent)
	}
	require.False(t, lastRan.Load())

	// a plan naming a step this worker does not know fails the submission
	id, err := h.client.Submit(context.Background(), workflow.Submission{
		JobID: "job-unknown",
		Plan:  workflow.Sequence(workflow.Single("missing")),
	})
	require.NoError(t, err)
	h.waitStatus(t, id, StatusFailed)
}

func TestWorkerBoundsInflightSubmissions(t *testing.T) {
	var (
		running    atomic.Int32
		maxRunning atomic.Int32
	)
	registry := workflow.NewRegistry()
	registry.MustRegister(workflow.Step{Name: "slow", Percent: 50, Work: work(func(context.Context, string) error {
		n := running.Inc()
		defer running.Dec()
		for {
			old := maxRunning.Load()
			if n <= old || maxRunning.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	})})
	h := newWorkerHarness(t, registry, WorkerConfig{Concurrency: 4, MaxInflightSubmissions: 1})

	var taskIDs []string
	for i := 0; i < 4; i++ {
		_, taskID := h.launch(t, workflow.Sequence(workflow.Single("slow")))
		taskIDs = append(taskIDs, taskID)
	}
	for _, taskID := range taskIDs {
		h.waitStatus(t, taskID, StatusSucceeded)
	}
	require.Equal(t, int32(1), maxRunning.Load())
}

func TestWorkerInterruptedSubmissionStaysRunning(t *testing.T) {
	started := make(chan struct{})
	registry := workflow.NewRegistry()
	registry.MustRegister(workflow.Step{Name: "endless", Percent: 50, Work: work(func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})})
	h := newWorkerHarness(t, registry, WorkerConfig{})
	_, taskID := h.launch(t, workflow.Sequence(workflow.Single("endless")))

	select {
	case <-started:
	case <-time.After(testTimeout):
		require.FailNow(t, "step did not start")
	}
	h.stop(t)

	st, err := h.client.Status(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, st)
}

// flakyBackend fails the first writes of the given statuses.
type flakyBackend struct {
	Backend

	mu       sync.Mutex
	failures map[Status]int
	attempts map[Status]int
}

func newFlakyBackend(backend Backend, failures map[Status]int) *flakyBackend {
	return &flakyBackend{Backend: backend, failures: failures, attempts: make(map[Status]int)}
}

func (b *flakyBackend) SetStatus(ctx context.Context, id string, status Status) error {
	b.mu.Lock()
	b.attempts[status]++
	fail := b.failures[status] > 0
	if fail {
		b.failures[status]--
	}
	b.mu.Unlock()
	if fail {
		return errors.New("status backend unavailable")
	}
	return b.Backend.SetStatus(ctx, id, status)
}

func (b *flakyBackend) attemptsOf(status Status) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts[status]
}

func countingRegistry(runs *atomic.Int32) *workflow.Registry {
	registry := workflow.NewRegistry()
	registry.MustRegister(workflow.Step{Name: "count", Percent: 50, Work: work(func(context.Context, string) error {
		runs.Inc()
		return nil
	})})
	return registry
}

func TestWorkerRetriesStatusWrites(t *testing.T) {
	var runs atomic.Int32
	backend := newFlakyBackend(NewMemoryBackend(), map[Status]int{
		StatusRunning:   statusMaxTries - 1,
		StatusSucceeded: statusMaxTries - 1,
	})
	h := newWorkerHarnessWithBackend(t, countingRegistry(&runs), WorkerConfig{}, backend)
	_, taskID := h.launch(t, workflow.Sequence(workflow.Single("count")))

	h.waitStatus(t, taskID, StatusSucceeded)
	require.Equal(t, int32(1), runs.Load())
	require.Equal(t, statusMaxTries, backend.attemptsOf(StatusSucceeded))
}

func TestWorkerReleasesWhenStatusCannotBeSettled(t *testing.T) {
	var runs atomic.Int32
	// the first claim exhausts its retries on the final status
	backend := newFlakyBackend(NewMemoryBackend(), map[Status]int{StatusSucceeded: statusMaxTries})
	h := newWorkerHarnessWithBackend(t, countingRegistry(&runs), WorkerConfig{}, backend)
	_, taskID := h.launch(t, workflow.Sequence(workflow.Single("count")))

	h.waitStatus(t, taskID, StatusSucceeded)
	// released and run again
	require.Equal(t, int32(2), runs.Load())
}

func TestWorkerReleasesWhenStatusCannotBeMarkedRunning(t *testing.T) {
	var runs atomic.Int32
	backend := newFlakyBackend(NewMemoryBackend(), map[Status]int{StatusRunning: statusMaxTries})
	h := newWorkerHarnessWithBackend(t, countingRegistry(&runs), WorkerConfig{}, backend)
	_, taskID := h.launch(t, workflow.Sequence(workflow.Single("count")))

	h.waitStatus(t, taskID, StatusSucceeded)
	require.Equal(t, int32(1), runs.Load())
	require.Equal(t, statusMaxTries+1, backend.attemptsOf(StatusRunning))
}
