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
	"time"

	"github.com/goccy/go-json"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/workflow"
)

// Envelope is a submission as it travels through a broker.
type Envelope struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	Stages      [][]string `json:"stages"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// NewEnvelope wraps a submission into an envelope with the given id.
func NewEnvelope(id string, sub workflow.Submission, submittedAt time.Time) *Envelope {
	stages := make([][]string, 0, len(sub.Plan.Stages))
	for _, stage := range sub.Plan.Stages {
		steps := make([]string, len(stage.Steps))
		copy(steps, stage.Steps)
		stages = append(stages, steps)
	}
	return &Envelope{
		ID:          id,
		JobID:       sub.JobID,
		Stages:      stages,
		SubmittedAt: submittedAt,
	}
}

// Plan rebuilds the plan carried by the envelope.
func (e *Envelope) Plan() workflow.Plan {
	stages := make([]workflow.Stage, 0, len(e.Stages))
	for _, steps := range e.Stages {
		stages = append(stages, workflow.Group(steps...))
	}
	return workflow.Sequence(stages...)
}

// Marshal encodes the envelope to its wire format.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, cerror.WrapError(cerror.ErrEncodeFailed, err, "envelope "+e.ID)
	}
	return data, nil
}

// UnmarshalEnvelope decodes an envelope from its wire format.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	e := &Envelope{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, cerror.WrapError(cerror.ErrDecodeFailed, err, "envelope")
	}
	if e.ID == "" || e.JobID == "" {
		return nil, cerror.ErrDecodeFailed.GenWithStackByArgs("envelope without id or job id")
	}
	return e, nil
}
