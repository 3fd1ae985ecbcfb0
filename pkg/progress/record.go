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

package progress

import (
	"strconv"

	cerror "github.com/pingcap/stepflow/pkg/errors"
)

// Fields of a progress record, as stored in the key-value store.
const (
	FieldTaskID  = "task_id"
	FieldStep    = "step"
	FieldPercent = "percent"
)

// Values written by Init and substituted by Get for missing fields.
const (
	StartStep      = "<start>"
	UnknownTaskID  = "<unknown>"
	IdleStep       = "<idle>"
	DefaultPercent = 0
)

// Record is the progress of one job: the submission executing it, the last
// step that started and that step's checkpoint percentage.
type Record struct {
	TaskID  string `json:"task_id"`
	Step    string `json:"step"`
	Percent int    `json:"percent"`
}

// EmptyRecord is what Get returns for a job that has no record.
func EmptyRecord() Record {
	return Record{
		TaskID:  UnknownTaskID,
		Step:    IdleStep,
		Percent: DefaultPercent,
	}
}

// recordFromFields builds a Record from raw hash fields, substituting the
// defaults for missing ones.
func recordFromFields(jobID string, fields map[string]string) (Record, error) {
	r := EmptyRecord()
	if v, ok := fields[FieldTaskID]; ok {
		r.TaskID = v
	}
	if v, ok := fields[FieldStep]; ok {
		r.Step = v
	}
	if v, ok := fields[FieldPercent]; ok {
		percent, err := strconv.Atoi(v)
		if err != nil {
			return Record{}, cerror.ErrInvalidProgressRecord.GenWithStackByArgs(jobID, "percent "+strconv.Quote(v))
		}
		r.Percent = percent
	}
	return r, nil
}

func initFields(taskID string) map[string]string {
	return map[string]string{
		FieldTaskID:  taskID,
		FieldStep:    StartStep,
		FieldPercent: strconv.Itoa(DefaultPercent),
	}
}

func updateFields(step string, percent int) map[string]string {
	return map[string]string{
		FieldStep:    step,
		FieldPercent: strconv.Itoa(percent),
	}
}

func checkUpdate(jobID, step string, percent int) error {
	if jobID == "" {
		return cerror.ErrInvalidArgument.GenWithStackByArgs("empty job id")
	}
	if step == "" {
		return cerror.ErrInvalidArgument.GenWithStackByArgs("empty step name")
	}
	if percent < 0 || percent > 100 {
		return cerror.ErrInvalidArgument.GenWithStackByArgs("percent " + strconv.Itoa(percent) + " out of [0, 100]")
	}
	return nil
}

func checkJobID(jobID string) error {
	if jobID == "" {
		return cerror.ErrInvalidArgument.GenWithStackByArgs("empty job id")
	}
	return nil
}
