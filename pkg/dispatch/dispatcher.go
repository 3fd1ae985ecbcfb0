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
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/log"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/uuid"
	"github.com/pingcap/stepflow/pkg/workflow"
	"go.uber.org/zap"
)

// Dispatcher submits plans for asynchronous execution and reports the
// status of submissions.
type Dispatcher interface {
	workflow.Submitter
	Status(ctx context.Context, submissionID string) (Status, error)
}

// Client is the Dispatcher used by processes that launch and observe jobs.
type Client struct {
	broker  Broker
	backend Backend
	idGen   uuid.Generator
	clock   clock.Clock
}

var _ Dispatcher = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientIDGenerator sets the generator of submission ids.
func WithClientIDGenerator(gen uuid.Generator) ClientOption {
	return func(c *Client) {
		c.idGen = gen
	}
}

// WithClientClock sets the clock used to stamp envelopes.
func WithClientClock(clk clock.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clk
	}
}

// NewClient creates a Client on a broker and a status backend.
func NewClient(broker Broker, backend Backend, opts ...ClientOption) *Client {
	c := &Client{
		broker:  broker,
		backend: backend,
		idGen:   uuid.NewGenerator(),
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit implements workflow.Submitter. The submission is pending once
// Submit returns.
func (c *Client) Submit(ctx context.Context, sub workflow.Submission) (string, error) {
	id := c.idGen.NewString()
	if err := c.backend.SetStatus(ctx, id, StatusPending); err != nil {
		return "", cerror.WrapError(cerror.ErrSubmitWorkflow, err, sub.JobID)
	}
	if err := c.broker.Enqueue(ctx, NewEnvelope(id, sub, c.clock.Now())); err != nil {
		if forgetErr := c.backend.Forget(ctx, id); forgetErr != nil {
			log.Warn("forget status of failed submission failed",
				zap.String("submissionID", id), zap.Error(forgetErr))
		}
		return "", cerror.WrapError(cerror.ErrSubmitWorkflow, err, sub.JobID)
	}
	log.Info("workflow submitted",
		zap.String("jobID", sub.JobID), zap.String("submissionID", id))
	return id, nil
}

// Status implements Dispatcher.
func (c *Client) Status(ctx context.Context, submissionID string) (Status, error) {
	return c.backend.Status(ctx, submissionID)
}
