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

import "context"

// Broker carries envelopes from submitters to workers.
type Broker interface {
	// Enqueue makes an envelope available to workers.
	Enqueue(ctx context.Context, e *Envelope) error
	// Claim blocks until an envelope is claimed for the caller or ctx is done.
	// An envelope is claimed by one worker at a time.
	Claim(ctx context.Context) (*Envelope, error)
	// Ack removes an envelope whose execution finished.
	Ack(ctx context.Context, id string) error
	// Release gives up the claim on an envelope without removing it, so it
	// can be claimed again by any worker.
	Release(ctx context.Context, id string) error
	// Close releases the resources held by the broker.
	Close() error
}

// Backend stores the status of submissions.
type Backend interface {
	SetStatus(ctx context.Context, id string, status Status) error
	// Status returns the status of a submission, StatusPending for an unknown id.
	Status(ctx context.Context, id string) (Status, error)
	// Forget removes the status of a submission.
	Forget(ctx context.Context, id string) error
}
