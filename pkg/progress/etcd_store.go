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

package progress

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/stepflow/pkg/etcd"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Progress store operation names, used in errors.
const (
	opInit   = "init"
	opUpdate = "update"
	opGet    = "get"
	opDelete = "delete"
)

// EtcdStore is a Store backed by etcd. A record is a hash emulated by one
// etcd key per field under etcd.KeyLayout.ProgressKey.
type EtcdStore struct {
	client *etcd.Client
	keys   etcd.KeyLayout
}

var _ Store = (*EtcdStore)(nil)

// NewEtcdStore creates an EtcdStore on the given client and key layout.
func NewEtcdStore(client *etcd.Client, keys etcd.KeyLayout) *EtcdStore {
	return &EtcdStore{client: client, keys: keys}
}

// Init implements Store.
func (s *EtcdStore) Init(ctx context.Context, jobID, taskID string) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	if err := s.hset(ctx, jobID, initFields(taskID)); err != nil {
		return cerror.WrapError(cerror.ErrProgressStore, err, opInit, jobID)
	}
	log.Debug("progress initialized", zap.String("jobID", jobID), zap.String("taskID", taskID))
	return nil
}

// Update implements Updater.
func (s *EtcdStore) Update(ctx context.Context, jobID, step string, percent int) error {
	if err := checkUpdate(jobID, step, percent); err != nil {
		return err
	}
	if err := s.hset(ctx, jobID, updateFields(step, percent)); err != nil {
		return cerror.WrapError(cerror.ErrProgressStore, err, opUpdate, jobID)
	}
	return nil
}

// Get implements Store.
func (s *EtcdStore) Get(ctx context.Context, jobID string) (Record, error) {
	if err := checkJobID(jobID); err != nil {
		return Record{}, err
	}
	resp, err := s.client.Get(ctx, s.keys.ProgressFieldPrefix(jobID), clientv3.WithPrefix())
	if err != nil {
		return Record{}, cerror.WrapError(cerror.ErrProgressStore, err, opGet, jobID)
	}
	fields := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		field, err := s.keys.FieldFromProgressKey(jobID, string(kv.Key))
		if err != nil {
			return Record{}, errors.Trace(err)
		}
		fields[field] = string(kv.Value)
	}
	return recordFromFields(jobID, fields)
}

// Delete implements Store.
func (s *EtcdStore) Delete(ctx context.Context, jobID string) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	_, err := s.client.Delete(ctx, s.keys.ProgressFieldPrefix(jobID), clientv3.WithPrefix())
	if err != nil {
		return cerror.WrapError(cerror.ErrProgressStore, err, opDelete, jobID)
	}
	return nil
}

// hset writes every field in one transaction, each field being its own key.
func (s *EtcdStore) hset(ctx context.Context, jobID string, fields map[string]string) error {
	ops := make([]clientv3.Op, 0, len(fields))
	for field, value := range fields {
		ops = append(ops, clientv3.OpPut(s.keys.ProgressFieldKey(jobID, field), value))
	}
	_, err := s.client.Txn(ctx, etcd.TxnEmptyCmps, ops, etcd.TxnEmptyOpsElse)
	return errors.Trace(err)
}
