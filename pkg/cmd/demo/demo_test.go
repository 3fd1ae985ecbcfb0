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

package demo

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pingcap/stepflow/pkg/config"
	"github.com/pingcap/stepflow/pkg/dispatch"
	"github.com/pingcap/stepflow/pkg/leakutil"
	"github.com/pingcap/stepflow/pkg/workflow"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func TestParseCfg(t *testing.T) {
	cmd := new(cobra.Command)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	o := newOptions()
	o.addFlags(cmd)

	require.Nil(t, cmd.ParseFlags([]string{"--max-step-delay", "0s", "--timeout", "3s"}))
	require.Nil(t, o.complete(cmd))
	require.Zero(t, o.cfg.Worker.MaxStepDelay)
	require.Equal(t, config.TomlDuration(3*time.Second), o.cfg.Monitor.Timeout)
	require.Empty(t, buf.String())

	cmd = new(cobra.Command)
	buf = new(bytes.Buffer)
	cmd.SetOut(buf)
	o = newOptions()
	o.addFlags(cmd)
	require.Nil(t, cmd.ParseFlags([]string{"--etcd", "http://10.0.0.1:2379"}))
	require.Nil(t, o.complete(cmd))
	require.Contains(t, buf.String(), "--etcd is ignored")
	require.NotContains(t, buf.String(), "--key-prefix")
}

func newDemoConfig(t *testing.T, maxStepDelay, timeout time.Duration) *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Worker.MaxStepDelay = config.TomlDuration(maxStepDelay)
	cfg.Monitor.PollInterval = config.TomlDuration(10 * time.Millisecond)
	cfg.Monitor.Timeout = config.TomlDuration(timeout)
	require.NoError(t, cfg.ValidateAndAdjust())
	return cfg
}

func TestRunDemo(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	report, err := runDemo(ctx, newDemoConfig(t, 20*time.Millisecond, 10*time.Second))
	require.NoError(t, err)
	require.Equal(t, dispatch.StatusSucceeded, report.Status)
	require.Equal(t, workflow.DemoTask4, report.Step)
	require.Equal(t, 100, report.Percent)
}

func TestRunDemoTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	report, err := runDemo(ctx, newDemoConfig(t, time.Minute, 100*time.Millisecond))
	require.NoError(t, err)
	require.False(t, report.Status.Finished())
	require.Less(t, report.Percent, 100)
}
