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

package errors

import (
	"github.com/pingcap/errors"
)

// errors
var (
	// general errors
	ErrInvalidArgument = errors.Normalize(
		"invalid argument: %s",
		errors.RFCCodeText("STEPFLOW:ErrInvalidArgument"),
	)
	ErrDecodeFailed = errors.Normalize(
		"decode failed: %s",
		errors.RFCCodeText("STEPFLOW:ErrDecodeFailed"),
	)
	ErrEncodeFailed = errors.Normalize(
		"encode failed: %s",
		errors.RFCCodeText("STEPFLOW:ErrEncodeFailed"),
	)
	ErrReachMaxTry = errors.Normalize(
		"reach maximum try: %s, error: %s",
		errors.RFCCodeText("STEPFLOW:ErrReachMaxTry"),
	)

	// etcd related errors
	ErrEtcdAPIError = errors.Normalize(
		"etcd api returns error",
		errors.RFCCodeText("STEPFLOW:ErrEtcdAPIError"),
	)

	// workflow related errors
	ErrInvalidWorkflow = errors.Normalize(
		"invalid workflow: %s",
		errors.RFCCodeText("STEPFLOW:ErrInvalidWorkflow"),
	)
	ErrUnknownStep = errors.Normalize(
		"step %s is not registered",
		errors.RFCCodeText("STEPFLOW:ErrUnknownStep"),
	)
	ErrDuplicateStep = errors.Normalize(
		"step %s is already registered",
		errors.RFCCodeText("STEPFLOW:ErrDuplicateStep"),
	)
	ErrSubmitWorkflow = errors.Normalize(
		"failed to submit workflow for job %s",
		errors.RFCCodeText("STEPFLOW:ErrSubmitWorkflow"),
	)
	ErrStepFailed = errors.Normalize(
		"step %s of job %s failed",
		errors.RFCCodeText("STEPFLOW:ErrStepFailed"),
	)

	// progress store related errors
	ErrProgressStore = errors.Normalize(
		"progress store operation %s failed for job %s",
		errors.RFCCodeText("STEPFLOW:ErrProgressStore"),
	)
	ErrInvalidProgressRecord = errors.Normalize(
		"invalid progress record of job %s: %s",
		errors.RFCCodeText("STEPFLOW:ErrInvalidProgressRecord"),
	)

	// dispatch related errors
	ErrStatusBackend = errors.Normalize(
		"status backend operation %s failed for submission %s",
		errors.RFCCodeText("STEPFLOW:ErrStatusBackend"),
	)
	ErrInvalidStatus = errors.Normalize(
		"invalid dispatch status %s",
		errors.RFCCodeText("STEPFLOW:ErrInvalidStatus"),
	)
	ErrBrokerClosed = errors.Normalize(
		"broker is closed",
		errors.RFCCodeText("STEPFLOW:ErrBrokerClosed"),
	)
	ErrBrokerOperation = errors.Normalize(
		"broker operation %s failed",
		errors.RFCCodeText("STEPFLOW:ErrBrokerOperation"),
	)
	ErrStepPoolExited = errors.Normalize(
		"step pool exited",
		errors.RFCCodeText("STEPFLOW:ErrStepPoolExited"),
	)

	ErrWorkerExited = errors.Normalize(
		"worker %s exited",
		errors.RFCCodeText("STEPFLOW:ErrWorkerExited"),
	)

	// monitor related errors
	ErrMonitorTimeout = errors.Normalize(
		"job %s did not complete in %s",
		errors.RFCCodeText("STEPFLOW:ErrMonitorTimeout"),
	)

	// cli related errors
	ErrInvalidServerOption = errors.Normalize(
		"invalid server option: %s",
		errors.RFCCodeText("STEPFLOW:ErrInvalidServerOption"),
	)
)
