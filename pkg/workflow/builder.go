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
	"github.com/pingcap/stepflow/pkg/logutil"
	"github.com/pingcap/stepflow/pkg/progress"
	"github.com/pingcap/stepflow/pkg/uuid"
	"go.uber.org/zap"
)

// JobIDPrefix prefixes every generated job id.
const JobIDPrefix = "job-"

// Submitter hands a submission to the dispatch layer and returns the id of
// the submission executing it.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (string, error)
}

// Builder launches jobs of one plan.
type Builder struct {
	submitter Submitter
	store     progress.Store
	registry  *Registry
	plan      Plan
	idGen     uuid.Generator
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithIDGenerator sets the generator of job ids.
func WithIDGenerator(gen uuid.Generator) BuilderOption {
	return func(b *Builder) {
		b.idGen = gen
	}
}

// NewBuilder creates a Builder that launches plan through submitter and
// records progress in store.
func NewBuilder(
	submitter Submitter,
	store progress.Store,
	registry *Registry,
	plan Plan,
	opts ...BuilderOption,
) *Builder {
	b := &Builder{
		submitter: submitter,
		store:     store,
		registry:  registry,
		plan:      plan,
		idGen:     uuid.NewGenerator(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Launch creates a job id, submits the plan bound to it and initializes the
// progress record of the job with the id of the submission.
//
// If the submission fails no record is written. If the record cannot be
// initialized after a successful submission, the submission keeps running
// and the error is returned.
func (b *Builder) Launch(ctx context.Context) (string, error) {
	jobID := JobIDPrefix + b.idGen.NewString()
	logger := logutil.NewLogger4Job(jobID)

	if err := b.plan.Validate(b.registry); err != nil {
		return "", errors.Trace(err)
	}

	taskID, err := b.submitter.Submit(ctx, Submission{JobID: jobID, Plan: b.plan})
	if err != nil {
		logger.Warn("submit workflow failed", zap.Error(err))
		if cerror.Is(err, cerror.ErrSubmitWorkflow) {
			return "", errors.Trace(err)
		}
		return "", cerror.WrapError(cerror.ErrSubmitWorkflow, err, jobID)
	}

	if err := b.store.Init(ctx, jobID, taskID); err != nil {
		logger.Warn("init progress record failed",
			zap.String("taskID", taskID), zap.Error(err))
		return "", errors.Trace(err)
	}

	logger.Info("job launched", zap.String("taskID", taskID), zap.Stringer("plan", b.plan))
	return jobID, nil
}
