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

package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/stepflow/pkg/api"
	"github.com/pingcap/stepflow/pkg/cmd/factory"
	"github.com/pingcap/stepflow/pkg/cmd/util"
	"github.com/pingcap/stepflow/pkg/config"
	"github.com/pingcap/stepflow/pkg/uuid"
	"github.com/pingcap/stepflow/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// options defines flags for the `server` command.
type options struct {
	common *util.CommonOptions

	addr       string
	withWorker bool

	cfg *config.Config
}

// newOptions creates new options for the `server` command.
func newOptions() *options {
	return &options{common: util.NewCommonOptions()}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to the server to it.
func (o *options) addFlags(cmd *cobra.Command) {
	defaultConfig := config.GetDefaultConfig()
	o.common.AddFlags(cmd)
	cmd.Flags().StringVar(&o.addr, "addr", defaultConfig.Server.Addr, "Set the listening address")
	cmd.Flags().BoolVar(&o.withWorker, "with-worker", false, "also run a worker in the server process")
}

// complete loads the configuration and adapts it to the flags.
func (o *options) complete(cmd *cobra.Command) error {
	cfg, err := o.common.LoadConfig(cmd, "stepflow server", func(flag *pflag.Flag, cfg *config.Config) error {
		switch flag.Name {
		case "addr":
			cfg.Server.Addr = o.addr
		case "with-worker":
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

	version.LogVersionInfo("server")
	util.LogHTTPProxies()
	log.Info("server config", zap.Stringer("config", o.cfg))

	lis, err := net.Listen("tcp", o.cfg.Server.Addr)
	if err != nil {
		return errors.Annotate(err, "listen")
	}

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	util.InitSignalHandling(func() <-chan struct{} {
		stop()
		return done
	}, cancel)

	err = newServer(o.cfg, o.withWorker).run(runCtx, lis)
	close(done)
	return err
}

// server serves the jobs api of one etcd cluster and optionally executes
// its submissions.
type server struct {
	cfg        *config.Config
	withWorker bool
}

func newServer(cfg *config.Config, withWorker bool) *server {
	return &server{cfg: cfg, withWorker: withWorker}
}

// run serves on lis until ctx is canceled, which is not reported as an error.
func (s *server) run(ctx context.Context, lis net.Listener) error {
	workerID := "server-" + uuid.NewGenerator().NewString()
	c, err := factory.NewEtcdComponents(context.WithoutCancel(ctx), s.cfg, workerID)
	if err != nil {
		_ = lis.Close()
		return errors.Trace(err)
	}
	defer c.Close()

	openAPI := api.NewOpenAPIV1(c.NewBuilder(), c.NewReader(), c.Store)
	httpServer := &http.Server{
		Handler:           api.NewRouter(openAPI, factory.NewMetricsRegistry()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		log.Info("http server listening", zap.String("addr", lis.Addr().String()))
		err := httpServer.Serve(lis)
		if err != nil && err != http.ErrServerClosed {
			return errors.Annotate(err, "serve http")
		}
		return nil
	})
	errg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown http server failed", zap.Error(err))
		}
		return nil
	})
	if s.withWorker {
		errg.Go(func() error {
			return c.NewWorker(workerID).Run(ctx)
		})
	}

	err = errg.Wait()
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Error("run server", zap.Error(err))
		return errors.Annotate(err, "run server")
	}
	log.Info("stepflow server exits successfully")
	return nil
}

// NewCmdServer creates the `server` command.
func NewCmdServer() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "server",
		Short: "Start a stepflow HTTP API server",
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
