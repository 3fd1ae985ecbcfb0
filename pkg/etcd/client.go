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


package etcd

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	v3rpc "go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientV3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// etcd operation names, also the label values of the request counter.
const (
	EtcdPut = "Put"
	EtcdGet = "Get"
	EtcdTxn = "Txn"
	EtcdDel = "Del"
)

const (
	rpcBackoffBaseDelayInMs = 200
	rpcBackoffMaxDelayInMs  = 5 * 1000
	// rpcTimeout bounds one call including its retries.
	rpcTimeout = 30 * time.Second
	// an idle watch asks the server for a progress notification this often,
	// so a compacted or broken stream is noticed.
	watchProgressInterval = time.Second
	watchBufferSize       = 16
)

var (
	// TxnEmptyCmps is an empty comparison list.
	TxnEmptyCmps = []clientV3.Cmp{}
	// TxnEmptyOpsElse is an empty else branch.
	TxnEmptyOpsElse = []clientV3.Op{}
)

// variable so tests can shorten it
var maxTries uint64 = 8

// Client wraps an etcd client. Reads, puts and transactions are retried
// while etcd reports a transient failure, and every call is counted.
type Client struct {
	cli     *clientV3.Client
	metrics map[string]prometheus.Counter
	clock   clock.Clock
}

// Wrap wraps cli. metrics may be nil.
func Wrap(cli *clientV3.Client, metrics map[string]prometheus.Counter) *Client {
	return &Client{cli: cli, metrics: metrics, clock: clock.New()}
}

// Unwrap returns the underlying client, used to create sessions.
func (c *Client) Unwrap() *clientV3.Client {
	return c.cli
}

// Close closes the underlying client.
func (c *Client) Close() error {
	return c.cli.Close()
}

// call runs rpc under rpcTimeout, retrying the errors isRetryableError
// accepts for op.
func (c *Client) call(ctx context.Context, op string, rpc func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	metric := c.metrics[op]
	return retry.Do(ctx, func() error {
		if metric != nil {
			metric.Inc()
		}
		err := rpc(ctx)
		if err != nil && errors.Cause(err) != context.Canceled {
			log.Warn("etcd request failed", zap.String("op", op), zap.Error(err))
		}
		return err
	}, retry.WithBackoffBaseDelay(rpcBackoffBaseDelayInMs),
		retry.WithBackoffMaxDelay(rpcBackoffMaxDelayInMs),
		retry.WithMaxTries(maxTries),
		retry.WithIsRetryableErr(isRetryableError(op)))
}

// Put stores a key.
func (c *Client) Put(
	ctx context.Context, key, val string, opts ...clientV3.OpOption,
) (resp *clientV3.PutResponse, err error) {
	err = c.call(ctx, EtcdPut, func(ctx context.Context) (inErr error) {
		resp, inErr = c.cli.Put(ctx, key, val, opts...)
		return
	})
	return
}

// Get reads a key or a range.
func (c *Client) Get(
	ctx context.Context, key string, opts ...clientV3.OpOption,
) (resp *clientV3.GetResponse, err error) {
	err = c.call(ctx, EtcdGet, func(ctx context.Context) (inErr error) {
		resp, inErr = c.cli.Get(ctx, key, opts...)
		return
	})
	return
}

// Delete removes a key or a range. It is never retried.
func (c *Client) Delete(
	ctx context.Context, key string, opts ...clientV3.OpOption,
) (*clientV3.DeleteResponse, error) {
	if metric, ok := c.metrics[EtcdDel]; ok {
		metric.Inc()
	}
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	return c.cli.Delete(ctx, key, opts...)
}

// Txn commits a transaction. It is retried only when etcd reports the
// cluster unavailable, so a retried commit may find its own earlier write:
// callers whose comparisons guard a create must read the key back in the
// else branch.
func (c *Client) Txn(
	ctx context.Context, cmps []clientV3.Cmp, opsThen, opsElse []clientV3.Op,
) (resp *clientV3.TxnResponse, err error) {
	err = c.call(ctx, EtcdTxn, func(ctx context.Context) (inErr error) {
		resp, inErr = c.cli.Txn(ctx).If(cmps...).Then(opsThen...).Else(opsElse...).Commit()
		return
	})
	return
}

func isRetryableError(op string) retry.IsRetryableErr {
	return func(err error) bool {
		if !cerrors.IsRetryableError(err) {
			return false
		}
		if op == EtcdTxn {
			return isRetryableEtcdError(err)
		}
		return true
	}
}

// isRetryableEtcdError returns true for the errors etcd returns while it has
// no leader, is overloaded or is shutting down a member.
func isRetryableEtcdError(err error) bool {
	switch errors.Cause(err) {
	case v3rpc.ErrNoSpace, v3rpc.ErrTooManyRequests,
		v3rpc.ErrNoLeader, v3rpc.ErrLeaderChanged, v3rpc.ErrNotCapable, v3rpc.ErrStopped, v3rpc.ErrTimeout,
		v3rpc.ErrTimeoutDueToLeaderFail, v3rpc.ErrTimeoutDueToConnectionLost, v3rpc.ErrUnhealthy:
		return true
	default:
		return false
	}
}

// Watch watches key with opts and forwards the responses to the returned
// channel, which is closed once ctx is done or the watch ends. role names
// the watcher in logs.
func (c *Client) Watch(
	ctx context.Context, key string, role string, opts ...clientV3.OpOption,
) clientV3.WatchChan {
	out := make(chan clientV3.WatchResponse, watchBufferSize)
	go c.forwardWatch(ctx, out, key, role, opts...)
	return out
}

func (c *Client) forwardWatch(
	ctx context.Context, out chan<- clientV3.WatchResponse,
	key string, role string, opts ...clientV3.OpOption,
) {
	defer close(out)
	watchCh := c.cli.Watch(ctx, key, opts...)
	ticker := c.clock.Ticker(watchProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-watchCh:
			if !ok {
				log.Debug("etcd watch ended", zap.String("role", role))
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- resp:
			}
			ticker.Reset(watchProgressInterval)
		case <-ticker.C:
			if err := c.cli.RequestProgress(ctx); err != nil && ctx.Err() == nil {
				log.Warn("request etcd watch progress failed", zap.String("role", role), zap.Error(err))
			}
		}
	}
}
