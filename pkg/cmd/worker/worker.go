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

package worker

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/stepflow/pkg/cmd/factory"
	"github.com/pingcap/stepflow/pkg/cmd/util"
	"github.com/pingcap/stepflow/pkg/config"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/uuid"
	"github.com/pingcap/stepflow/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// options defines flags for the `worker` command.
type options struct {
	common *util.CommonOptions

	workerID               string
	concurrency            int
	maxInflightSubmissions int
	maxStepDelay           time.Duration

	cfg *config.Config
}

// newOptions creates new options for the `worker` command.
func newOptions() *options {
	return &options{common: util.NewCommonOptions()}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to the worker to it.
func (o *options) addFlags(cmd *cobra.Command) {
	defaultConfig := config.GetDefaultConfig()
	o.common.AddFlags(cmd)
	cmd.Flags().StringVar(&o.workerID, "worker-id", "", "Set the id written into the claims of this worker, generated if empty")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", defaultConfig.Worker.Concurrency, "number of steps executed at the same time")
	cmd.Flags().IntVar(&o.maxInflightSubmissions, "max-inflight-submissions",
		defaultConfig.Worker.MaxInflightSubmissions, "number of submissions executed at the same time")
	cmd.Flags().DurationVar(&o.maxStepDelay, "max-step-delay",
		time.Duration(defaultConfig.Worker.MaxStepDelay), "upper bound of the simulated work of a step")
}

// complete loads the configuration and adapts it to the flags.
func (o *options) complete(cmd *cobra.Command) error {
	cfg, err := o.common.LoadConfig(cmd, "stepflow worker", func(flag *pflag.Flag, cfg *config.Config) error {
		switch flag.Name {
		case "worker-id":
		case "concurrency":
			cfg.Worker.Concurrency = o.concurrency
		case "max-inflight-submissions":
			cfg.Worker.MaxInflightSubmissions = o.maxInflightSubmissions
		case "max-step-delay":
			cfg.Worker.MaxStepDelay = config.TomlDuration(o.maxStepDelay)
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	if o.workerID == "" {
		o.workerID = "worker-" + uuid.NewGenerator().NewString()
	}
	o.cfg = cfg
	return nil
}

func (o *options) run(cmd *cobra.Command) error {
	ctx, cancel := util.InitCmd(cmd, o.cfg.Log)
	defer cancel()

	version.LogVersionInfo("worker")
	util.LogHTTPProxies()
	log.Info("worker config", zap.Stringer("config", o.cfg))

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	util.InitSignalHandling(func() <-chan struct{} {
		stop()
		return done
	}, cancel)

	err := runWorker(runCtx, o.cfg, o.workerID)
	close(done)
	return err
}

// runWorker executes submissions until ctx is canceled, which is not
// reported as an error.
func runWorker(ctx context.Context, cfg *config.Config, workerID string) error {
	// the client outlives ctx so that Close can revoke the claims of the worker
	c, err := factory.NewEtcdComponents(context.WithoutCancel(ctx), cfg, workerID)
	if err != nil {
		return errors.Trace(err)
	}
	defer c.Close()

	err = c.NewWorker(workerID).Run(ctx)
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Error("run worker", zap.String("workerID", workerID), zap.Error(err))
		return cerror.WrapError(cerror.ErrWorkerExited, err, workerID)
	}
	log.Info("stepflow worker exits successfully", zap.String("workerID", workerID))
	return nil
}

// NewCmdWorker creates the `worker` command.
func NewCmdWorker() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "worker",
		Short: "Start a worker executing the steps of submitted jobs",
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
