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
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/stepflow/pkg/etcd"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

// Broker operation names, used in errors.
const (
	opEnqueue = "enqueue"
	opClaim   = "claim"
	opAck     = "ack"
	opRelease = "release"
)

const (
	defaultSessionTTL     = 10
	defaultRescanInterval = 2 * time.Second
)

// EtcdBrokerConfig configures an EtcdBroker.
type EtcdBrokerConfig struct {
	// WorkerID is written into the claims of this broker.
	WorkerID string
	// SessionTTL is the TTL in seconds of the lease claims are bound to.
	SessionTTL int
	// RescanInterval bounds how long a claimable envelope can go unnoticed
	// when a watch event is missed.
	RescanInterval time.Duration
}

// EtcdBroker is a Broker on etcd.
//
// An envelope is queued under etcd.KeyLayout.QueueKey. A worker claims it by
// creating etcd.KeyLayout.ClaimKey bound to the lease of its session, which
// only succeeds while no claim exists. When a worker dies its lease expires,
// the claim disappears and the envelope can be claimed again, so a
// submission is executed at least once.
type EtcdBroker struct {
	client *etcd.Client
	keys   etcd.KeyLayout
	cfg    EtcdBrokerConfig
	clock  clock.Clock

	sessionMu sync.Mutex
	session   *concurrency.Session
	closed    bool
}

var _ Broker = (*EtcdBroker)(nil)

// NewEtcdBroker creates an EtcdBroker. The etcd session used by claims is
// created on the first Claim, so a broker that only enqueues holds no lease.
func NewEtcdBroker(client *etcd.Client, keys etcd.KeyLayout, cfg EtcdBrokerConfig) *EtcdBroker {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = defaultRescanInterval
	}
	return &EtcdBroker{
		client: client,
		keys:   keys,
		cfg:    cfg,
		clock:  clock.New(),
	}
}

// Enqueue implements Broker.
func (b *EtcdBroker) Enqueue(ctx context.Context, e *Envelope) error {
	data, err := e.Marshal()
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := b.client.Put(ctx, b.keys.QueueKey(e.ID), string(data)); err != nil {
		return cerror.WrapError(cerror.ErrBrokerOperation, err, opEnqueue)
	}
	return nil
}

// Claim implements Broker.
func (b *EtcdBroker) Claim(ctx context.Context) (*Envelope, error) {
	ticker := b.clock.Ticker(b.cfg.RescanInterval)
	defer ticker.Stop()

	for {
		session, err := b.getSession()
		if err != nil {
			return nil, errors.Trace(err)
		}
		e, rev, err := b.tryClaim(ctx, session)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if e != nil {
			return e, nil
		}

		if err := b.waitQueueChange(ctx, session, rev, ticker); err != nil {
			return nil, errors.Trace(err)
		}
	}
}

// waitQueueChange returns once an envelope was queued or a claim was
// released after rev, the rescan ticker fired or the session ended.
func (b *EtcdBroker) waitQueueChange(
	ctx context.Context, session *concurrency.Session, rev int64, ticker *clock.Ticker,
) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	queueCh := b.client.Watch(watchCtx, b.keys.QueuePrefix(), "broker-queue",
		clientv3.WithPrefix(), clientv3.WithRev(rev+1))
	claimCh := b.client.Watch(watchCtx, b.keys.ClaimPrefix(), "broker-claim",
		clientv3.WithPrefix(), clientv3.WithRev(rev+1))

	for {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-session.Done():
			return nil
		case <-ticker.C:
			return nil
		case resp, ok := <-queueCh:
			if changed(resp, ok, clientv3.EventTypePut) {
				return nil
			}
		case resp, ok := <-claimCh:
			if changed(resp, ok, clientv3.EventTypeDelete) {
				return nil
			}
		}
	}
}

// changed returns true if a watch response carries an event of type typ,
// or if the watch can no longer be trusted.
func changed(resp clientv3.WatchResponse, ok bool, typ mvccpb.Event_EventType) bool {
	if !ok {
		return true
	}
	if err := resp.Err(); err != nil {
		log.Warn("watch broker keys failed", zap.Error(err))
		return true
	}
	for _, ev := range resp.Events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

// tryClaim tries to claim the oldest queued envelope. If none can be
// claimed it returns the revision the queue was read at.
func (b *EtcdBroker) tryClaim(
	ctx context.Context, session *concurrency.Session,
) (*Envelope, int64, error) {
	resp, err := b.client.Get(ctx, b.keys.QueuePrefix(),
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend))
	if err != nil {
		return nil, 0, cerror.WrapError(cerror.ErrBrokerOperation, err, opClaim)
	}

	for _, kv := range resp.Kvs {
		id, err := b.keys.SubmissionIDFromQueueKey(string(kv.Key))
		if err != nil {
			log.Warn("skip unexpected queue key", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		claimKey := b.keys.ClaimKey(id)
		txnResp, err := b.client.Txn(ctx,
			[]clientv3.Cmp{
				clientv3.Compare(clientv3.CreateRevision(claimKey), "=", 0),
				clientv3.Compare(clientv3.CreateRevision(string(kv.Key)), "=", kv.CreateRevision),
			},
			[]clientv3.Op{clientv3.OpPut(claimKey, b.cfg.WorkerID, clientv3.WithLease(session.Lease()))},
			[]clientv3.Op{clientv3.OpGet(claimKey)})
		if err != nil {
			return nil, 0, cerror.WrapError(cerror.ErrBrokerOperation, err, opClaim)
		}
		if !txnResp.Succeeded && !heldBy(txnResp, session.Lease()) {
			continue
		}

		e, err := UnmarshalEnvelope(kv.Value)
		if err != nil {
			// an envelope that cannot be decoded would be claimed forever
			log.Error("drop malformed envelope", zap.String("submissionID", id), zap.Error(err))
			if ackErr := b.Ack(ctx, id); ackErr != nil {
				return nil, 0, errors.Trace(ackErr)
			}
			continue
		}
		log.Debug("envelope claimed",
			zap.String("submissionID", id), zap.String("workerID", b.cfg.WorkerID))
		return e, 0, nil
	}
	return nil, resp.Header.Revision, nil
}

// heldBy returns true if the claim read in the else branch of a failed
// claim txn is bound to lease. It happens when a retried commit follows one
// that was applied but whose response was lost.
func heldBy(resp *clientv3.TxnResponse, lease clientv3.LeaseID) bool {
	if len(resp.Responses) == 0 {
		return false
	}
	rangeResp := resp.Responses[0].GetResponseRange()
	if rangeResp == nil || len(rangeResp.Kvs) == 0 {
		return false
	}
	return clientv3.LeaseID(rangeResp.Kvs[0].Lease) == lease
}

// Release implements Broker. The claim is deleted only while it is still
// bound to the session of this broker.
func (b *EtcdBroker) Release(ctx context.Context, id string) error {
	b.sessionMu.Lock()
	session := b.session
	b.sessionMu.Unlock()
	if session == nil {
		// no session, no claim held
		return nil
	}

	claimKey := b.keys.ClaimKey(id)
	_, err := b.client.Txn(ctx,
		[]clientv3.Cmp{clientv3.Compare(clientv3.LeaseValue(claimKey), "=", session.Lease())},
		[]clientv3.Op{clientv3.OpDelete(claimKey)},
		etcd.TxnEmptyOpsElse)
	if err != nil {
		return cerror.WrapError(cerror.ErrBrokerOperation, err, opRelease)
	}
	log.Debug("envelope released",
		zap.String("submissionID", id), zap.String("workerID", b.cfg.WorkerID))
	return nil
}

// Ack implements Broker.
func (b *EtcdBroker) Ack(ctx context.Context, id string) error {
	_, err := b.client.Txn(ctx, etcd.TxnEmptyCmps,
		[]clientv3.Op{
			clientv3.OpDelete(b.keys.QueueKey(id)),
			clientv3.OpDelete(b.keys.ClaimKey(id)),
		}, etcd.TxnEmptyOpsElse)
	if err != nil {
		return cerror.WrapError(cerror.ErrBrokerOperation, err, opAck)
	}
	return nil
}

// getSession returns the live session of the broker, creating a new one if
// there is none or the previous one expired.
func (b *EtcdBroker) getSession() (*concurrency.Session, error) {
	b.sessionMu.Lock()
	defer b.sessionMu.Unlock()

	if b.closed {
		return nil, cerror.ErrBrokerClosed.GenWithStackByArgs()
	}
	if b.session != nil {
		select {
		case <-b.session.Done():
			log.Warn("etcd session of broker is done, create a new one",
				zap.String("workerID", b.cfg.WorkerID))
			b.session = nil
		default:
			return b.session, nil
		}
	}

	session, err := concurrency.NewSession(b.client.Unwrap(),
		concurrency.WithTTL(b.cfg.SessionTTL))
	if err != nil {
		return nil, cerror.WrapError(cerror.ErrEtcdAPIError, err)
	}
	b.session = session
	return session, nil
}

// Close implements Broker. It revokes the lease of the broker, releasing
// every claim it still holds.
func (b *EtcdBroker) Close() error {
	b.sessionMu.Lock()
	defer b.sessionMu.Unlock()

	b.closed = true
	if b.session == nil {
		return nil
	}
	err := b.session.Close()
	b.session = nil
	if err != nil {
		return cerror.WrapError(cerror.ErrEtcdAPIError, err)
	}
	return nil
}
