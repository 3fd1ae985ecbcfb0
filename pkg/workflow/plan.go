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
	"fmt"
	"strings"

	"github.com/pingcap/errors"
	cerror "github.com/pingcap/stepflow/pkg/errors"
)

// Stage is one element of a plan: a single step, or a group of steps that
// may run in parallel. A stage starts only after every step of the previous
// stage has completed.
type Stage struct {
	Steps []string `json:"steps"`
}

// Single returns a stage made of one step.
func Single(name string) Stage {
	return Stage{Steps: []string{name}}
}

// Group returns a stage whose steps may run concurrently and in any order.
// The group completes when all of its steps complete.
func Group(names ...string) Stage {
	steps := make([]string, len(names))
	copy(steps, names)
	return Stage{Steps: steps}
}

// IsGroup returns true if the stage fans out to more than one step.
func (s Stage) IsGroup() bool {
	return len(s.Steps) > 1
}

func (s Stage) String() string {
	if s.IsGroup() {
		return "group(" + strings.Join(s.Steps, ", ") + ")"
	}
	return strings.Join(s.Steps, "")
}

// Plan is the DAG of a job: stages executed strictly in order.
type Plan struct {
	Stages []Stage `json:"stages"`
}

// Sequence chains stages into a plan.
func Sequence(stages ...Stage) Plan {
	p := Plan{Stages: make([]Stage, len(stages))}
	copy(p.Stages, stages)
	return p
}

func (p Plan) String() string {
	parts := make([]string, 0, len(p.Stages))
	for _, s := range p.Stages {
		parts = append(parts, s.String())
	}
	return "sequence(" + strings.Join(parts, ", ") + ")"
}

// Validate checks the plan against a registry:
//   - the plan and each of its stages are not empty,
//   - every step is registered and appears once in the plan,
//   - all steps of a group share one checkpoint percentage, so the percent
//     an observer reads does not depend on which member wrote last,
//   - checkpoints never decrease from one stage to the next.
func (p Plan) Validate(registry *Registry) error {
	if len(p.Stages) == 0 {
		return cerror.ErrInvalidWorkflow.GenWithStackByArgs("empty plan")
	}

	seen := make(map[string]struct{})
	lastPercent := -1
	for i, stage := range p.Stages {
		if len(stage.Steps) == 0 {
			return cerror.ErrInvalidWorkflow.GenWithStackByArgs(fmt.Sprintf("stage %d is empty", i))
		}
		stagePercent := -1
		for _, name := range stage.Steps {
			step, err := registry.Lookup(name)
			if err != nil {
				return errors.Trace(err)
			}
			if _, ok := seen[name]; ok {
				return cerror.ErrInvalidWorkflow.GenWithStackByArgs(
					fmt.Sprintf("step %s appears more than once", name))
			}
			seen[name] = struct{}{}

			if stagePercent >= 0 && step.Percent != stagePercent {
				return cerror.ErrInvalidWorkflow.GenWithStackByArgs(
					fmt.Sprintf("steps of %s have different checkpoints", stage))
			}
			stagePercent = step.Percent
		}
		if stagePercent < lastPercent {
			return cerror.ErrInvalidWorkflow.GenWithStackByArgs(
				fmt.Sprintf("checkpoint of stage %d (%s) decreases from %d to %d",
					i, stage, lastPercent, stagePercent))
		}
		lastPercent = stagePercent
	}
	return nil
}

// Resolve returns the steps of every stage, looked up in registry.
func (p Plan) Resolve(registry *Registry) ([][]Step, error) {
	if err := p.Validate(registry); err != nil {
		return nil, err
	}
	stages := make([][]Step, 0, len(p.Stages))
	for _, stage := range p.Stages {
		steps := make([]Step, 0, len(stage.Steps))
		for _, name := range stage.Steps {
			step, err := registry.Lookup(name)
			if err != nil {
				return nil, errors.Trace(err)
			}
			steps = append(steps, step)
		}
		stages = append(stages, steps)
	}
	return stages, nil
}

// Submission is a plan bound to a job, as handed to the dispatch layer.
type Submission struct {
	JobID string
	Plan  Plan
}
