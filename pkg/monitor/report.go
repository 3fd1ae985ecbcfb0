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

package monitor

import (
	"context"
	"fmt"

	"github.com/pingcap/errors"
	"github.com/pingcap/stepflow/pkg/dispatch"
	"github.com/pingcap/stepflow/pkg/progress"
)

// Report is what an observer sees of a job at one point in time.
type Report struct {
	JobID   string          `json:"job_id"`
	TaskID  string          `json:"task_id"`
	Status  dispatch.Status `json:"status"`
	Step    string          `json:"step"`
	Percent int             `json:"percent"`
}

func (r Report) String() string {
	return fmt.Sprintf("Job ID: %s, Status: %s, Step: %s, Percent: %3d%%",
		r.JobID, r.Status, r.Step, r.Percent)
}

// StatusReader reports the status of a submission.
type StatusReader interface {
	Status(ctx context.Context, submissionID string) (dispatch.Status, error)
}

// Reader combines the progress record of a job with the status of the
// submission executing it.
type Reader struct {
	store    progress.Store
	statuses StatusReader
}

// NewReader creates a Reader.
func NewReader(store progress.Store, statuses StatusReader) *Reader {
	return &Reader{store: store, statuses: statuses}
}

// Report returns the current report of a job. It never writes.
//
// A finished submission reports 100 percent whatever its last checkpoint
// was, an unfinished one reports the stored checkpoint.
func (r *Reader) Report(ctx context.Context, jobID string) (Report, error) {
	record, err := r.store.Get(ctx, jobID)
	if err != nil {
		return Report{}, errors.Trace(err)
	}
	status, err := r.statuses.Status(ctx, record.TaskID)
	if err != nil {
		return Report{}, errors.Trace(err)
	}

	percent := record.Percent
	if status.Finished() {
		percent = 100
	}
	return Report{
		JobID:   jobID,
		TaskID:  record.TaskID,
		Status:  status,
		Step:    record.Step,
		Percent: percent,
	}, nil
}
