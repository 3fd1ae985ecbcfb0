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

	"github.com/pingcap/errors"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/progress"
)

// WorkFunc is the body of a step.
//
// Every step of a plan has this signature: it receives the job id it was
// bound to at submission time and nothing else. Whatever a predecessor
// stage produced is never forwarded, so steps communicate only through
// their side effects.
type WorkFunc func(ctx context.Context, jobID string) error

// Step is a dispatchable unit of work. Name and Percent are fixed when the
// step is defined and shared by every job that runs it.
type Step struct {
	// Name is the stable name reported as the current step of a job.
	Name string
	// Percent is the checkpoint reported when the step starts, in [0, 100].
	Percent int
	// Work is the body of the step.
	Work WorkFunc
}

// Execute runs the step for a job: it first records its own checkpoint,
// then performs its work.
func (s Step) Execute(ctx context.Context, updater progress.Updater, jobID string) error {
	if err := updater.Update(ctx, jobID, s.Name, s.Percent); err != nil {
		return errors.Trace(err)
	}
	if s.Work == nil {
		return nil
	}
	if err := s.Work(ctx, jobID); err != nil {
		return cerror.WrapError(cerror.ErrStepFailed, err, s.Name, jobID)
	}
	return nil
}
