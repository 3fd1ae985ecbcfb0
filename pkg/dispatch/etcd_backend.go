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

	"github.com/pingcap/stepflow/pkg/etcd"
	cerror "github.com/pingcap/stepflow/pkg/errors"
)

// Status backend operation names, used in errors.
const (
	opSetStatus = "set-status"
	opStatus    = "status"
	opForget    = "forget"
)

// EtcdBackend is a Backend storing each status under etcd.KeyLayout.StatusKey.
type EtcdBackend struct {
	client *etcd.Client
	keys   etcd.KeyLayout
}

var _ Backend = (*EtcdBackend)(nil)

// NewEtcdBackend creates an EtcdBackend.
func NewEtcdBackend(client *etcd.Client, keys etcd.KeyLayout) *EtcdBackend {
	return &EtcdBackend{client: client, keys: keys}
}

// SetStatus implements Backend.
func (b *EtcdBackend) SetStatus(ctx context.Context, id string, status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	if _, err := b.client.Put(ctx, b.keys.StatusKey(id), string(status)); err != nil {
		return cerror.WrapError(cerror.ErrStatusBackend, err, opSetStatus, id)
	}
	return nil
}

// Status implements Backend.
func (b *EtcdBackend) Status(ctx context.Context, id string) (Status, error) {
	resp, err := b.client.Get(ctx, b.keys.StatusKey(id))
	if err != nil {
		return "", cerror.WrapError(cerror.ErrStatusBackend, err, opStatus, id)
	}
	if len(resp.Kvs) == 0 {
		return StatusPending, nil
	}
	return ParseStatus(string(resp.Kvs[0].Value))
}

// Forget implements Backend.
func (b *EtcdBackend) Forget(ctx context.Context, id string) error {
	if _, err := b.client.Delete(ctx, b.keys.StatusKey(id)); err != nil {
		return cerror.WrapError(cerror.ErrStatusBackend, err, opForget, id)
	}
	return nil
}
