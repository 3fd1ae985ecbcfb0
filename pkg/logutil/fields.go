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

package logutil

import (
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	// constFieldJobKey is used to recognize logs of the same job
	constFieldJobKey = "job_id"
	// constFieldStepKey is used to recognize logs of the same step in a job
	constFieldStepKey = "step"
	// constFieldSubmissionKey is used to recognize logs of one dispatched submission
	constFieldSubmissionKey = "submission_id"
	// constFieldWorkerKey is used to recognize logs of one worker process
	constFieldWorkerKey = "worker_id"
)

// NewLogger4Job returns a new logger for a job.
func NewLogger4Job(jobID string) *zap.Logger {
	return log.L().With(zap.String(constFieldJobKey, jobID))
}

// NewLogger4Step returns a new logger for one step of a job.
func NewLogger4Step(jobID, step string) *zap.Logger {
	return log.L().With(
		zap.String(constFieldJobKey, jobID),
		zap.String(constFieldStepKey, step),
	)
}

// NewLogger4Submission returns a new logger for a submission handled by a worker.
func NewLogger4Submission(workerID, submissionID, jobID string) *zap.Logger {
	return log.L().With(
		zap.String(constFieldWorkerKey, workerID),
		zap.String(constFieldSubmissionKey, submissionID),
		zap.String(constFieldJobKey, jobID),
	)
}
