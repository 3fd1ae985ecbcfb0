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
	cerror "github.com/pingcap/stepflow/pkg/errors"
)

// Status is the lifecycle state of a submission as reported by the dispatch layer.
type Status string

// Statuses of a submission.
const (
	// StatusPending means the submission is queued, or its id is unknown.
	StatusPending Status = "pending"
	// StatusRunning means a worker has claimed the submission.
	StatusRunning Status = "running"
	// StatusSucceeded means every stage of the submission completed.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means a stage of the submission failed.
	StatusFailed Status = "failed"
)

// Finished returns true if the submission reached a terminal status.
func (s Status) Finished() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus decodes a status read from a backend.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return st, nil
	default:
		return "", cerror.ErrInvalidStatus.GenWithStackByArgs(s)
	}
}
