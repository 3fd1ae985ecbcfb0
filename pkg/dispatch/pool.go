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

	"github.com/pingcap/errors"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/retry"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	poolBackoffBaseDelayInMs = 1
	poolMaxTries             = 25
	stepQueueSize            = 1024
)

// StepPool runs step executions on a fixed number of goroutines, in no
// particular order.
type StepPool interface {
	// Go mimics the "go" keyword. ctx only cancels the submission of f.
	// Every f submitted successfully runs eventually, as long as Run is
	// called again after it returns. Go might block while the pool is not running.
	Go(ctx context.Context, f func()) error

	// Run runs the pool until ctx is done or a worker fails.
	Run(ctx context.Context) error
}

type stepPoolImpl struct {
	workers      []*stepWorker
	nextWorkerID atomic.Int32
	isRunning    atomic.Bool
	runningLock  sync.RWMutex
}

// NewStepPool creates a StepPool of numWorkers goroutines.
func NewStepPool(numWorkers int) StepPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &stepPoolImpl{workers: make([]*stepWorker, numWorkers)}
}

func (p *stepPoolImpl) Go(ctx context.Context, f func()) error {
	if p.doGo(ctx, f) == nil {
		return nil
	}

	err := retry.Do(ctx, func() error {
		return errors.Trace(p.doGo(ctx, f))
	}, retry.WithBackoffBaseDelay(poolBackoffBaseDelayInMs),
		retry.WithMaxTries(poolMaxTries),
		retry.WithIsRetryableErr(isPoolRetryable))
	return errors.Trace(err)
}

func isPoolRetryable(err error) bool {
	return cerror.IsRetryableError(err) && cerror.ErrStepPoolExited.Equal(err)
}

func (p *stepPoolImpl) doGo(ctx context.Context, f func()) error {
	p.runningLock.RLock()
	defer p.runningLock.RUnlock()

	if !p.isRunning.Load() {
		return cerror.ErrStepPoolExited.GenWithStackByArgs()
	}

	worker := p.workers[int(p.nextWorkerID.Inc())%len(p.workers)]

	worker.chLock.RLock()
	defer worker.chLock.RUnlock()

	if worker.isClosed.Load() {
		return cerror.ErrStepPoolExited.GenWithStackByArgs()
	}

	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case worker.inputCh <- f:
	}
	return nil
}

func (p *stepPoolImpl) Run(ctx context.Context) error {
	p.prepare()
	errg := errgroup.Group{}

	p.runningLock.Lock()
	p.isRunning.Store(true)
	p.runningLock.Unlock()

	defer func() {
		p.runningLock.Lock()
		p.isRunning.Store(false)
		p.runningLock.Unlock()
	}()

	errCh := make(chan error, len(p.workers))
	defer close(errCh)

	for _, worker := range p.workers {
		worker := worker
		errg.Go(func() error {
			err := worker.run()
			if err != nil && cerror.ErrStepPoolExited.NotEqual(errors.Cause(err)) {
				errCh <- err
			}
			return nil
		})
	}

	errg.Go(func() error {
		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case err = <-errCh:
		}

		for _, worker := range p.workers {
			worker.close()
		}
		return err
	})

	return errors.Trace(errg.Wait())
}

func (p *stepPoolImpl) prepare() {
	for i := range p.workers {
		p.workers[i] = &stepWorker{inputCh: make(chan func(), stepQueueSize)}
	}
}

type stepWorker struct {
	inputCh  chan func()
	isClosed atomic.Bool
	chLock   sync.RWMutex
}

// run executes tasks until the input channel is closed and drained.
func (w *stepWorker) run() error {
	for f := range w.inputCh {
		f()
	}
	return cerror.ErrStepPoolExited.GenWithStackByArgs()
}

func (w *stepWorker) close() {
	if w.isClosed.Swap(true) {
		return
	}

	w.chLock.Lock()
	defer w.chLock.Unlock()

	close(w.inputCh)
}
