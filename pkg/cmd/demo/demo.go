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
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/stepflow/pkg/cmd/factory"
	"github.com/pingcap/stepflow/pkg/cmd/util"
	"github.com/pingcap/stepflow/pkg/config"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/monitor"
	"github.com/pingcap/stepflow/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const demoWorkerID = "demo-worker"

// options defines flags for the `demo` command.
type options struct {
	common *util.CommonOptions

	maxStepDelay time.Duration
	timeout      time.Duration

	cfg *config.Config
}

// newOptions creates new options for the `demo` command.
func newOptions() *options {
	return &options{common: util.NewCommonOptions()}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to the demo to it.
func (o *options) addFlags(cmd *cobra.Command) {
	defaultConfig := config.GetDefaultConfig()
	o.common.AddFlags(cmd)
	cmd.Flags().DurationVar(&o.maxStepDelay, "max-step-delay",
		time.Duration(defaultConfig.Worker.MaxStepDelay), "upper bound of the simulated work of a step")
	cmd.Flags().DurationVar(&o.timeout, "timeout",
		time.Duration(defaultConfig.Monitor.Timeout), "how long the job is watched for")
}

// complete loads the configuration and adapts it to the flags.
func (o *options) complete(cmd *cobra.Command) error {
	cfg, err := o.common.LoadConfig(cmd, "stepflow demo", func(flag *pflag.Flag, cfg *config.Config) error {
		switch flag.Name {
		case "max-step-delay":
			cfg.Worker.MaxStepDelay = config.TomlDuration(o.maxStepDelay)
		case "timeout":
			cfg.Monitor.Timeout = config.TomlDuration(o.timeout)
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	for _, name := range []string{"etcd", "key-prefix", "progress-backend", "progress-dsn"} {
		if cmd.Flags().Changed(name) {
			cmd.Print(color.HiYellowString("[WARN] the demo runs on in-memory backends, --%s is ignored\n", name))
		}
	}
	o.cfg = cfg
	return nil
}

func (o *options) run(cmd *cobra.Command) error {
	ctx, cancel := util.InitCmd(cmd, o.cfg.Log)
	defer cancel()

	version.LogVersionInfo("demo")
	util.InitSignalHandling(func() <-chan struct{} {
		ch := make(chan struct{})
		close(ch)
		return ch
	}, cancel)

	report, err := runDemo(ctx, o.cfg)
	if err != nil {
		return err
	}
	return util.JSONPrint(cmd, report)
}

// runDemo runs a worker and a monitored job in the same process, on in-memory
// backends. A job that does not finish in time is logged by the monitor and
// is not reported as an error.
func runDemo(ctx context.Context, cfg *config.Config) (monitor.Report, error) {
	c := factory.NewMemoryComponents(cfg)
	defer c.Close()

	var report monitor.Report
	errg, ctx := errgroup.WithContext(ctx)
	workerCtx, stopWorker := context.WithCancel(ctx)
	errg.Go(func() error {
		err := c.NewWorker(demoWorkerID).Run(workerCtx)
		if errors.Cause(err) == context.Canceled {
			return nil
		}
		return errors.Trace(err)
	})
	errg.Go(func() error {
		defer stopWorker()
		var err error
		report, err = c.LaunchAndWatch(ctx)
		if err != nil && !cerror.Is(err, cerror.ErrMonitorTimeout) {
			return errors.Trace(err)
		}
		return nil
	})
	err := errg.Wait()
	return report, err
}

// NewCmdDemo creates the `demo` command.
func NewCmdDemo() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "demo",
		Short: "Run a worker and a monitored demo job in one process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd); err != nil {
				return err
			}
			return o.run(cmd)
		},
	}
	o.addFlags(command)

	return command
}
