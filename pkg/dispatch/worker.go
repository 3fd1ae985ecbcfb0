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

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/logutil"
	"github.com/pingcap/stepflow/pkg/progress"
	"github.com/pingcap/stepflow/pkg/retry"
	"github.com/pingcap/stepflow/pkg/workflow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	defaultConcurrency            = 4
	defaultMaxInflightSubmissions = 16

	statusMaxTries             = 3
	statusBackoffBaseDelayInMs = 50
	statusBackoffMaxDelayInMs  = 1000
)

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	ID string
	// Concurrency is the number of goroutines running steps.
	Concurrency int
	// MaxInflightSubmissions bounds the submissions executed at the same time.
	MaxInflightSubmissions int64
}

// Worker claims envelopes from a broker and executes their plans, stage by
// stage, recording the status of each submission in a backend.
type Worker struct {
	cfg      WorkerConfig
	broker   Broker
	backend  Backend
	updater  progress.Updater
	registry *workflow.Registry
	pool     StepPool
	sem      *semaphore.Weighted
	clock    clock.Clock
}

// NewWorker creates a Worker. Steps report their progress through updater
// and are resolved by name in registry.
func NewWorker(
	cfg WorkerConfig,
	broker Broker,
	backend Backend,
	updater progress.Updater,
	registry *workflow.Registry,
) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxInflightSubmissions <= 0 {
		cfg.MaxInflightSubmissions = defaultMaxInflightSubmissions
	}
	return &Worker{
		cfg:      cfg,
		broker:   broker,
		backend:  backend,
		updater:  updater,
		registry: registry,
		pool:     NewStepPool(cfg.Concurrency),
		sem:      semaphore.NewWeighted(cfg.MaxInflightSubmissions),
		clock:    clock.New(),
	}
}

// Run claims and executes submissions until ctx is done or the broker fails.
func (w *Worker) Run(ctx context.Context) error {
	log.Info("worker started",
		zap.String("workerID", w.cfg.ID),
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Int64("maxInflightSubmissions", w.cfg.MaxInflightSubmissions))
	defer log.Info("worker exited", zap.String("workerID", w.cfg.ID))

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return w.pool.Run(ctx)
	})
	errg.Go(func() error {
		return w.claimLoop(ctx)
	})
	return errors.Trace(errg.Wait())
}

func (w *Worker) claimLoop(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return errors.Trace(err)
		}
		e, err := w.broker.Claim(ctx)
		if err != nil {
			w.sem.Release(1)
			return errors.Trace(err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.sem.Release(1)
			w.handle(ctx, e)
		}()
	}
}

// handle executes one claimed envelope and settles its status. When a status
// cannot be written the claim is released, so the submission is run again
// by some worker instead of staying "running" forever.
func (w *Worker) handle(ctx context.Context, e *Envelope) {
	logger := logutil.NewLogger4Submission(w.cfg.ID, e.ID, e.JobID)
	submissionCounter.WithLabelValues(outcomeClaimed).Inc()
	inflightGauge.Inc()
	defer inflightGauge.Dec()

	if err := w.setStatus(ctx, e.ID, StatusRunning); err != nil {
		logger.Warn("mark submission running failed", zap.Error(err))
		w.release(ctx, e, logger)
		return
	}
	logger.Info("submission started", zap.Stringer("plan", e.Plan()))

	startTime := w.clock.Now()
	err := w.execute(ctx, e)
	if err != nil && ctx.Err() != nil {
		// interrupted by shutdown, the claim goes away with the broker session
		submissionCounter.WithLabelValues(outcomeInterrupted).Inc()
		logger.Warn("submission interrupted", logutil.ZapErrorFilter(err, context.Canceled))
		return
	}

	status, outcome := StatusSucceeded, outcomeSucceeded
	if err != nil {
		status, outcome = StatusFailed, outcomeFailed
		logger.Warn("submission failed", zap.Error(err))
	} else {
		logger.Info("submission succeeded", zap.Duration("duration", w.clock.Since(startTime)))
	}

	if err := w.setStatus(ctx, e.ID, status); err != nil {
		logger.Warn("settle submission status failed",
			zap.Stringer("status", status), zap.Error(err))
		w.release(ctx, e, logger)
		return
	}
	submissionCounter.WithLabelValues(outcome).Inc()
	if err := w.broker.Ack(ctx, e.ID); err != nil {
		logger.Warn("ack submission failed", zap.Error(err))
	}
}

func (w *Worker) setStatus(ctx context.Context, id string, status Status) error {
	return retry.Do(ctx, func() error {
		return w.backend.SetStatus(ctx, id, status)
	}, retry.WithBackoffBaseDelay(statusBackoffBaseDelayInMs),
		retry.WithBackoffMaxDelay(statusBackoffMaxDelayInMs),
		retry.WithMaxTries(statusMaxTries),
		retry.WithIsRetryableErr(cerror.IsRetryableError))
}

// release hands the envelope back to the broker. Failing that, the claim
// only goes away with the broker session.
func (w *Worker) release(ctx context.Context, e *Envelope, logger *zap.Logger) {
	submissionCounter.WithLabelValues(outcomeReleased).Inc()
	if err := w.broker.Release(ctx, e.ID); err != nil {
		logger.Error("release submission failed", zap.Error(err))
	}
}

// execute runs the stages of an envelope in order. The steps of a stage are
// all started on the pool and the stage completes when every one of them
// has returned. The first failed stage ends the execution.
func (w *Worker) execute(ctx context.Context, e *Envelope) error {
	stages, err := e.Plan().Resolve(w.registry)
	if err != nil {
		return errors.Trace(err)
	}

	for _, stage := range stages {
		results := make(chan error, len(stage))
		for _, step := range stage {
			step := step
			err := w.pool.Go(ctx, func() {
				results <- w.runStep(ctx, step, e.JobID)
			})
			if err != nil {
				results <- errors.Trace(err)
			}
		}

		var stageErr error
		for range stage {
			if err := <-results; err != nil && stageErr == nil {
				stageErr = err
			}
		}
		if stageErr != nil {
			return stageErr
		}
	}
	return nil
}

// runStep executes a step, turning a panic of its work into an error.
func (w *Worker) runStep(ctx context.Context, step workflow.Step, jobID string) (err error) {
	startTime := w.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("step panicked",
				zap.String("jobID", jobID), zap.String("step", step.Name),
				zap.Any("panic", r), zap.Stack("stack"))
			err = cerror.ErrStepFailed.Wrap(errors.Errorf("panic: %v", r)).
				GenWithStackByArgs(step.Name, jobID)
		}
		result := resultOK
		if err != nil {
			result = resultError
		}
		stepCounter.WithLabelValues(step.Name, result).Inc()
		stepDurationHistogram.WithLabelValues(step.Name).
			Observe(w.clock.Since(startTime).Seconds())
	}()
	return step.Execute(ctx, w.updater, jobID)
}
