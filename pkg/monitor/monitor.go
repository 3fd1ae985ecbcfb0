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
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/logutil"
	"github.com/pingcap/stepflow/pkg/progress"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the default delay between two reports.
	DefaultPollInterval = time.Second
	// DefaultTimeout is the default time a job is watched for.
	DefaultTimeout = 15 * time.Second

	cleanupTimeout = 5 * time.Second
)

// Config configures a Monitor.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Monitor follows a job until it finishes, then removes its progress record.
type Monitor struct {
	reader *Reader
	store  progress.Store
	cfg    Config
	clock  clock.Clock
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock polls and the timeout are measured on.
func WithClock(clk clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = clk
	}
}

// NewMonitor creates a Monitor. Non-positive durations in cfg take their defaults.
func NewMonitor(reader *Reader, store progress.Store, cfg Config, opts ...Option) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	m := &Monitor{
		reader: reader,
		store:  store,
		cfg:    cfg,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Watch logs a report of the job every poll interval until its submission
// finishes or the timeout elapses, and returns the last report. In every
// case, including a failed read, the progress record of the job is deleted
// before Watch returns.
func (m *Monitor) Watch(ctx context.Context, jobID string) (report Report, err error) {
	logger := logutil.NewLogger4Job(jobID)
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if delErr := m.store.Delete(cleanupCtx, jobID); delErr != nil {
			logger.Warn("delete progress record failed", zap.Error(delErr))
			if err == nil {
				err = errors.Trace(delErr)
			}
		}
	}()

	timeout := m.clock.Timer(m.cfg.Timeout)
	defer timeout.Stop()
	ticker := m.clock.Ticker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		report, err = m.reader.Report(ctx, jobID)
		if err != nil {
			logger.Warn("read job report failed", zap.Error(err))
			return report, errors.Trace(err)
		}
		logger.Info(report.String())
		if report.Status.Finished() {
			return report, nil
		}

		select {
		case <-ctx.Done():
			return report, errors.Trace(ctx.Err())
		case <-timeout.C:
			logger.Error("job did not complete in time", zap.Duration("timeout", m.cfg.Timeout))
			return report, cerror.ErrMonitorTimeout.GenWithStackByArgs(jobID, m.cfg.Timeout)
		case <-ticker.C:
		}
	}
}
