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

package factory

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/stepflow/pkg/config"
	"github.com/pingcap/stepflow/pkg/dispatch"
	"github.com/pingcap/stepflow/pkg/etcd"
	"github.com/pingcap/stepflow/pkg/monitor"
	"github.com/pingcap/stepflow/pkg/progress"
	"github.com/pingcap/stepflow/pkg/workflow"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Components groups the stores, the broker and the step registry a command
// runs on.
type Components struct {
	cfg *config.Config

	// EtcdClient is nil for in-memory components.
	EtcdClient *etcd.Client
	Store      progress.Store
	Broker     dispatch.Broker
	Backend    dispatch.Backend
	Dispatcher *dispatch.Client
	Registry   *workflow.Registry

	// sqlStore is set when progress records live in a sql database.
	sqlStore *progress.SQLStore
}

// NewEtcdComponents connects to the etcd cluster of cfg and builds the etcd
// backed components. workerID names the claims of the broker.
func NewEtcdComponents(ctx context.Context, cfg *config.Config, workerID string) (*Components, error) {
	rawClient, err := etcd.CreateRawEtcdClient(ctx, cfg.Etcd.Endpoints, time.Duration(cfg.Etcd.DialTimeout))
	if err != nil {
		return nil, errors.Trace(err)
	}
	client := etcd.Wrap(rawClient, etcd.NewClientMetrics())
	keys := etcd.NewKeyLayout(cfg.Etcd.KeyPrefix)

	broker := dispatch.NewEtcdBroker(client, keys, dispatch.EtcdBrokerConfig{
		WorkerID:       workerID,
		SessionTTL:     cfg.Etcd.SessionTTL,
		RescanInterval: time.Duration(cfg.Worker.RescanInterval),
	})
	var (
		store    progress.Store = progress.NewEtcdStore(client, keys)
		sqlStore *progress.SQLStore
	)
	if cfg.Progress.Backend != config.ProgressBackendEtcd {
		sqlStore, err = progress.OpenSQLStore(ctx, cfg.Progress.Backend, cfg.Progress.DSN)
		if err != nil {
			_ = broker.Close()
			_ = client.Close()
			return nil, errors.Trace(err)
		}
		store = sqlStore
	}
	c := newComponents(cfg, store, broker, dispatch.NewEtcdBackend(client, keys))
	c.EtcdClient = client
	c.sqlStore = sqlStore
	return c, nil
}

// NewMemoryComponents builds components that live in the process memory.
func NewMemoryComponents(cfg *config.Config) *Components {
	return newComponents(cfg, progress.NewMemoryStore(), dispatch.NewMemoryBroker(0), dispatch.NewMemoryBackend())
}

func newComponents(
	cfg *config.Config, store progress.Store, broker dispatch.Broker, backend dispatch.Backend,
) *Components {
	return &Components{
		cfg:        cfg,
		Store:      store,
		Broker:     broker,
		Backend:    backend,
		Dispatcher: dispatch.NewClient(broker, backend),
		Registry:   workflow.DemoRegistry(clock.New(), time.Duration(cfg.Worker.MaxStepDelay)),
	}
}

// NewWorker creates a worker executing the submissions of the broker.
func (c *Components) NewWorker(workerID string) *dispatch.Worker {
	return dispatch.NewWorker(dispatch.WorkerConfig{
		ID:                     workerID,
		Concurrency:            c.cfg.Worker.Concurrency,
		MaxInflightSubmissions: int64(c.cfg.Worker.MaxInflightSubmissions),
	}, c.Broker, c.Backend, c.Store, c.Registry)
}

// NewBuilder creates a builder launching the demo plan.
func (c *Components) NewBuilder() *workflow.Builder {
	return workflow.NewBuilder(c.Dispatcher, c.Store, c.Registry, workflow.DemoPlan())
}

// NewReader creates a reader of job reports.
func (c *Components) NewReader() *monitor.Reader {
	return monitor.NewReader(c.Store, c.Dispatcher)
}

// NewMonitor creates a monitor configured by the monitor section.
func (c *Components) NewMonitor() *monitor.Monitor {
	return monitor.NewMonitor(c.NewReader(), c.Store, monitor.Config{
		PollInterval: time.Duration(c.cfg.Monitor.PollInterval),
		Timeout:      time.Duration(c.cfg.Monitor.Timeout),
	})
}

// LaunchAndWatch launches a demo job and watches it until it finishes or
// the monitor times out. The last report is returned in both cases.
func (c *Components) LaunchAndWatch(ctx context.Context) (monitor.Report, error) {
	jobID, err := c.NewBuilder().Launch(ctx)
	if err != nil {
		return monitor.Report{}, errors.Trace(err)
	}
	return c.NewMonitor().Watch(ctx, jobID)
}

// Close releases the broker, the sql progress store and the etcd client.
func (c *Components) Close() error {
	err := c.Broker.Close()
	if c.sqlStore != nil {
		err = multierr.Append(err, c.sqlStore.Close())
	}
	if c.EtcdClient != nil {
		err = multierr.Append(err, c.EtcdClient.Close())
	}
	if err != nil {
		log.Warn("close components failed", zap.Error(err))
	}
	return errors.Trace(err)
}
