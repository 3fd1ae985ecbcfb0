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

	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/stepflow/pkg/cmd/factory"
	"github.com/pingcap/stepflow/pkg/cmd/util"
	"github.com/pingcap/stepflow/pkg/config"
	"github.com/pingcap/stepflow/pkg/dispatch"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/monitor"
	"github.com/pingcap/stepflow/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// options defines flags for the `monitor` command.
type options struct {
	common *util.CommonOptions

	pollInterval time.Duration
	timeout      time.Duration
	json         bool

	cfg *config.Config
}

// newOptions creates new options for the `monitor` command.
func newOptions() *options {
	return &options{common: util.NewCommonOptions()}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to the monitor to it.
func (o *options) addFlags(cmd *cobra.Command) {
	defaultConfig := config.GetDefaultConfig()
	o.common.AddFlags(cmd)
	cmd.Flags().DurationVar(&o.pollInterval, "poll-interval",
		time.Duration(defaultConfig.Monitor.PollInterval), "delay between two progress reports")
	cmd.Flags().DurationVar(&o.timeout, "timeout",
		time.Duration(defaultConfig.Monitor.Timeout), "how long the job is watched for")
	cmd.Flags().BoolVar(&o.json, "json", false, "print the last report in JSON format")
}

// complete loads the configuration and adapts it to the flags.
func (o *options) complete(cmd *cobra.Command) error {
	cfg, err := o.common.LoadConfig(cmd, "stepflow monitor", func(flag *pflag.Flag, cfg *config.Config) error {
		switch flag.Name {
		case "poll-interval":
			cfg.Monitor.PollInterval = config.TomlDuration(o.pollInterval)
		case "timeout":
			cfg.Monitor.Timeout = config.TomlDuration(o.timeout)
		case "json":
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	o.cfg = cfg
	return nil
}

func (o *options) run(cmd *cobra.Command) error {
	ctx, cancel := util.InitCmd(cmd, o.cfg.Log)
	defer cancel()

	version.LogVersionInfo("monitor")
	util.LogHTTPProxies()

	// the first signal stops the watch, the record is still cleaned up
	util.InitSignalHandling(func() <-chan struct{} {
		ch := make(chan struct{})
		close(ch)
		return ch
	}, cancel)

	c, err := factory.NewEtcdComponents(context.WithoutCancel(ctx), o.cfg, "")
	if err != nil {
		return errors.Trace(err)
	}
	defer c.Close()

	report, err := c.LaunchAndWatch(ctx)
	return printOutcome(cmd, report, err, o.json)
}

// printOutcome prints the last report of a watched job. A job that did not
// finish in time is only warned about.
func printOutcome(cmd *cobra.Command, report monitor.Report, err error, asJSON bool) error {
	if err != nil && !cerror.Is(err, cerror.ErrMonitorTimeout) {
		return errors.Trace(err)
	}
	if asJSON {
		if err := util.JSONPrint(cmd, report); err != nil {
			return errors.Trace(err)
		}
	}

	switch {
	case err != nil:
		cmd.Print(color.HiYellowString("[WARN] job %s did not complete in time, last report: %s\n",
			report.JobID, report))
	case report.Status == dispatch.StatusFailed:
		cmd.Print(color.HiRedString("job %s failed at step %s\n", report.JobID, report.Step))
	default:
		cmd.Print(color.HiGreenString("job %s completed\n", report.JobID))
	}
	return nil
}

// NewCmdMonitor creates the `monitor` command.
func NewCmdMonitor() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "monitor",
		Short: "Launch a demo job and report its progress until it completes",
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
