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
	"context"
	"path/filepath"
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerAndSetLogLevel(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test")
	cfg := &Config{
		Level: "warning",
		File:  f,
	}
	err := InitLogger(cfg)
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, log.GetLevel())
	require.Equal(t, defaultLogMaxSize, cfg.FileMaxSize)

	// Set a different level.
	err = SetLogLevel("info")
	require.NoError(t, err)
	require.Equal(t, zapcore.InfoLevel, log.GetLevel())

	// Set the same level.
	err = SetLogLevel("info")
	require.NoError(t, err)
	require.Equal(t, zapcore.InfoLevel, log.GetLevel())

	// Set an invalid level.
	err = SetLogLevel("badlevel")
	require.Error(t, err)
}

func TestZapErrorFilter(t *testing.T) {
	var (
		err       = errors.New("test error")
		testCases = []struct {
			err      error
			filters  []error
			expected zap.Field
		}{
			{nil, []error{}, zap.Error(nil)},
			{err, []error{}, zap.Error(err)},
			{err, []error{context.Canceled}, zap.Error(err)},
			{err, []error{err}, zap.Error(nil)},
			{context.Canceled, []error{context.Canceled}, zap.Error(nil)},
			{errors.Annotate(context.Canceled, "annotate error"), []error{context.Canceled}, zap.Error(nil)},
		}
	)
	for _, tc := range testCases {
		require.Equal(t, tc.expected, ZapErrorFilter(tc.err, tc.filters...))
	}
}

func TestScopedLoggers(t *testing.T) {
	buf := &BufferSyncer{}
	err := InitLogger(&Config{Level: "info"}, WithOutputWriteSyncer(buf))
	require.NoError(t, err)

	NewLogger4Step("job-1", "task1").Info("processing step")
	NewLogger4Submission("worker-1", "sub-1", "job-1").Info("submission claimed")

	out := buf.String()
	require.Contains(t, out, "processing step")
	require.Contains(t, out, "[job_id=job-1]")
	require.Contains(t, out, "[step=task1]")
	require.Contains(t, out, "[submission_id=sub-1]")
	require.Contains(t, out, "[worker_id=worker-1]")
}
