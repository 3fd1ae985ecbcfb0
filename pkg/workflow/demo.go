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

package workflow

import (
	"context"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/pingcap/stepflow/pkg/logutil"
	"go.uber.org/zap"
)

// Names of the demo steps.
const (
	DemoTask1    = "task1"
	DemoTask2    = "task2"
	DemoSubtask1 = "subtask1"
	DemoSubtask2 = "subtask2"
	DemoTask3    = "task3"
	DemoTask4    = "task4"
)

// DefaultMaxStepDelay is the upper bound of the simulated work of a demo step.
const DefaultMaxStepDelay = 3 * time.Second

var demoCheckpoints = []struct {
	name    string
	percent int
}{
	{DemoTask1, 20},
	{DemoTask2, 30},
	{DemoSubtask1, 50},
	{DemoSubtask2, 50},
	{DemoTask3, 65},
	{DemoTask4, 85},
}

// DemoRegistry returns a registry holding the demo steps. Each of them
// simulates work by waiting a random duration in [0, maxDelay) on clk.
// A non-positive maxDelay makes the steps return immediately.
func DemoRegistry(clk clock.Clock, maxDelay time.Duration) *Registry {
	r := NewRegistry()
	for _, c := range demoCheckpoints {
		r.MustRegister(Step{
			Name:    c.name,
			Percent: c.percent,
			Work:    simulatedWork(clk, c.name, maxDelay),
		})
	}
	return r
}

// DemoPlan returns task1, task2, the parallel group of subtask1 and
// subtask2, task3 and task4, chained in this order.
func DemoPlan() Plan {
	return Sequence(
		Single(DemoTask1),
		Single(DemoTask2),
		Group(DemoSubtask1, DemoSubtask2),
		Single(DemoTask3),
		Single(DemoTask4),
	)
}

func simulatedWork(clk clock.Clock, name string, maxDelay time.Duration) WorkFunc {
	return func(ctx context.Context, jobID string) error {
		var delay time.Duration
		if maxDelay > 0 {
			delay = time.Duration(rand.Int63n(int64(maxDelay)))
		}
		logutil.NewLogger4Step(jobID, name).Info("processing step", zap.Duration("delay", delay))
		if delay == 0 {
			return nil
		}

		timer := clk.Timer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-timer.C:
			return nil
		}
	}
}
