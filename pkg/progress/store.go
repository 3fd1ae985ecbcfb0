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

import "context"

// Updater is the part of a Store that running steps use to report a checkpoint.
type Updater interface {
	// Update overwrites the step and percent of the record of jobID,
	// leaving its task id untouched. It may be called concurrently for the
	// same job, the last write wins.
	Update(ctx context.Context, jobID, step string, percent int) error
}

// Store is the table of progress records, keyed by job id.
//
// No operation retries: a failure of the underlying store is returned to
// the caller as is.
type Store interface {
	Updater
	// Init creates or overwrites the record of jobID with the given task id,
	// step StartStep and percent 0.
	Init(ctx context.Context, jobID, taskID string) error
	// Get returns the record of jobID. Missing fields, including the case
	// where no record exists, take the values of EmptyRecord.
	Get(ctx context.Context, jobID string) (Record, error)
	// Delete removes the record of jobID. Deleting a missing record is not an error.
	Delete(ctx context.Context, jobID string) error
}
