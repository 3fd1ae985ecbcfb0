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
	"strconv"
	"sync"

	"github.com/pingcap/log"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"go.uber.org/zap"
)

// Registry is the table of known steps, keyed by name. Submissions refer to
// steps by name only, a worker resolves them through its own registry.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	names []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// Register adds a step to the registry.
func (r *Registry) Register(step Step) error {
	if step.Name == "" {
		return cerror.ErrInvalidArgument.GenWithStackByArgs("empty step name")
	}
	if step.Work == nil {
		return cerror.ErrInvalidArgument.GenWithStackByArgs("step " + step.Name + " has no work")
	}
	if step.Percent < 0 || step.Percent > 100 {
		return cerror.ErrInvalidArgument.GenWithStackByArgs(
			"percent " + strconv.Itoa(step.Percent) + " of step " + step.Name + " out of [0, 100]")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.steps[step.Name]; ok {
		return cerror.ErrDuplicateStep.GenWithStackByArgs(step.Name)
	}
	r.steps[step.Name] = step
	r.names = append(r.names, step.Name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(steps ...Step) {
	for _, step := range steps {
		if err := r.Register(step); err != nil {
			log.Panic("register step failed", zap.String("step", step.Name), zap.Error(err))
		}
	}
}

// Lookup returns the step registered under name.
func (r *Registry) Lookup(name string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	step, ok := r.steps[name]
	if !ok {
		return Step{}, cerror.ErrUnknownStep.GenWithStackByArgs(name)
	}
	return step, nil
}

// Names returns the registered step names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}
